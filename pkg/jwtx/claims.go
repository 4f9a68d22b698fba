package jwtx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PortalIssuer is the "iss" the portal puts on every signed document.
const PortalIssuer = "NIC"

// DocumentClaims are the claims of a portal-signed document: SignedInvoice
// and SignedQRCode both carry the document as a JSON string in "data".
type DocumentClaims struct {
	jwt.RegisteredClaims

	// Data is the signed document, itself JSON encoded.
	Data string `json:"data"`
}

// NewDocumentClaims encodes doc into the data claim.
func NewDocumentClaims(doc any, issuer string, now time.Time) (DocumentClaims, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return DocumentClaims{}, fmt.Errorf("jwtx: encode document: %w", err)
	}

	return DocumentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Data: string(raw),
	}, nil
}

// Decode unmarshals the data claim into v.
func (c *DocumentClaims) Decode(v any) error {
	if c.Data == "" {
		return ErrInvalidClaim
	}
	if err := json.Unmarshal([]byte(c.Data), v); err != nil {
		return fmt.Errorf("%w: data: %v", ErrInvalidClaim, err)
	}
	return nil
}

// Document returns the data claim as a generic JSON object.
func (c *DocumentClaims) Document() (map[string]any, error) {
	var doc map[string]any
	if err := c.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *DocumentClaims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiry rejects documents past exp or before nbf. Portal documents
// usually carry neither, in which case this always passes.
func (c *DocumentClaims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
