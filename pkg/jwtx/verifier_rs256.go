package jwtx

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates documents signed with the portal's RSA key.
type RS256Verifier struct {
	key    *rsa.PublicKey
	issuer string
	now    func() time.Time
}

// NewVerifierRS256 creates a verifier for key. An empty issuer skips the
// issuer check.
func NewVerifierRS256(key *rsa.PublicKey, issuer string) *RS256Verifier {
	return &RS256Verifier{key: key, issuer: issuer, now: time.Now}
}

// Verify validates the JWT string and returns its parsed claims.
func (v *RS256Verifier) Verify(tokenStr string) (*DocumentClaims, error) {
	if v.key == nil {
		return nil, errors.New("jwtx: nil RSA verification key")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)

	token, err := parser.ParseWithClaims(tokenStr, &DocumentClaims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*DocumentClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(v.now()); err != nil {
		return nil, err
	}

	return claims, nil
}
