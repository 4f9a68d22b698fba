package jwtx

import "crypto/rsa"

// Signer is our interface for anything that can sign portal documents.
type Signer interface {
	Alg() string
	KID() string
	Sign(DocumentClaims) (string, error)
	Public() *rsa.PublicKey
	Validate() error
}

// NewSignerRS256 creates an RS256 signer from PEM bytes.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	return newRS256Signer(kid, pemKey)
}
