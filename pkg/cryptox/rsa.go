package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP parameters are fixed by the portal
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Padding selects the RSA encryption scheme used for the auth payload.
type Padding int

const (
	// PaddingPKCS1v15 is RSAES-PKCS1-v1_5, what the portal accepts by default.
	PaddingPKCS1v15 Padding = iota

	// PaddingOAEP is RSAES-OAEP with SHA-1 and MGF1-SHA-1, matching the
	// "RSA/ECB/OAEPPadding" default of the portal's Java stack.
	PaddingOAEP
)

// String returns the configuration name of the padding scheme.
func (p Padding) String() string {
	switch p {
	case PaddingOAEP:
		return "oaep"
	default:
		return "pkcs1v15"
	}
}

// ParsePadding maps a configuration string to a Padding.
func ParsePadding(s string) (Padding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pkcs1", "pkcs1v15", "pkcs1-v1_5":
		return PaddingPKCS1v15, nil
	case "oaep":
		return PaddingOAEP, nil
	default:
		return PaddingPKCS1v15, fmt.Errorf("cryptox: unknown padding %q", s)
	}
}

// GenerateRSAKey generates a new RSA private key with the specified bit size.
// Returns the private key in PEM format (PKCS1).
func GenerateRSAKey(bits int) ([]byte, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("cryptox: RSA key size must be at least 2048 bits")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}), nil
}

// GenerateRSAKeyPKCS8 is GenerateRSAKey with the key wrapped as PKCS8
// ("PRIVATE KEY"), the form most Java tooling exports.
func GenerateRSAKeyPKCS8(bits int) ([]byte, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("cryptox: RSA key size must be at least 2048 bits")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal RSA key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyPEM derives the PKIX "PUBLIC KEY" PEM for a PEM-encoded RSA
// private key. This is the form the portal publishes its encryption key in.
func PublicKeyPEM(privatePEM []byte) (string, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePrivateKey loads an RSA private key in PKCS1 or PKCS8 PEM form.
func ParsePrivateKey(privatePEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, cryptoErr("parse private key", ErrInvalidKey, errors.New("no PEM block"))
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, cryptoErr("parse private key", ErrInvalidKey, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, cryptoErr("parse private key", ErrInvalidKey, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, cryptoErr("parse private key", ErrInvalidKey, errors.New("not an RSA key"))
		}
		return key, nil
	default:
		return nil, cryptoErr("parse private key", ErrInvalidKey, fmt.Errorf("unsupported PEM type %q", block.Type))
	}
}

// ParsePublicKey loads the server's RSA public key. The portal hands it out
// in several shapes, so PKIX and PKCS1 PEM blocks, X.509 certificates and
// bare base64 DER without PEM armour are all accepted.
func ParsePublicKey(publicKey string) (*rsa.PublicKey, error) {
	var der []byte
	blockType := "PUBLIC KEY"

	if block, _ := pem.Decode([]byte(publicKey)); block != nil {
		der = block.Bytes
		blockType = block.Type
	} else {
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(publicKey), ""))
		if err != nil {
			return nil, cryptoErr("parse public key", ErrInvalidKey, errors.New("neither PEM nor base64 DER"))
		}
		der = raw
	}

	var parsed any
	var err error
	switch blockType {
	case "RSA PUBLIC KEY":
		parsed, err = x509.ParsePKCS1PublicKey(der)
	case "CERTIFICATE":
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(der)
		if err == nil {
			parsed = cert.PublicKey
		}
	default:
		parsed, err = x509.ParsePKIXPublicKey(der)
	}
	if err != nil {
		return nil, cryptoErr("parse public key", ErrInvalidKey, err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, cryptoErr("parse public key", ErrInvalidKey, errors.New("not an RSA key"))
	}
	return key, nil
}

// MaxPlaintextSize returns the largest message the key can encrypt under
// the given padding scheme.
func MaxPlaintextSize(key *rsa.PublicKey, scheme Padding) int {
	k := key.Size()
	if scheme == PaddingOAEP {
		return k - 2*sha1.Size - 2
	}
	return k - 11
}

// EncryptAsymmetric encrypts plaintext under the server's RSA public key and
// returns the base64 ciphertext. The ciphertext length is fixed by the key
// size, but the content differs on every call because both schemes use
// random padding.
func EncryptAsymmetric(plaintext []byte, publicKey string, scheme Padding) (string, error) {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}

	if limit := MaxPlaintextSize(key, scheme); len(plaintext) > limit {
		return "", cryptoErr(
			"encrypt asymmetric",
			ErrMessageTooLong,
			fmt.Errorf("%d bytes, limit %d", len(plaintext), limit),
		)
	}

	var out []byte
	switch scheme {
	case PaddingOAEP:
		out, err = rsa.EncryptOAEP(sha1.New(), rand.Reader, key, plaintext, nil) //nolint:gosec
	default:
		out, err = rsa.EncryptPKCS1v15(rand.Reader, key, plaintext)
	}
	if err != nil {
		return "", cryptoErr("encrypt asymmetric", ErrMessageTooLong, err)
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptAsymmetric reverses EncryptAsymmetric with the private key. Clients
// never hold the portal's private key; this exists for the server side of
// the handshake (see irntest).
func DecryptAsymmetric(ciphertext string, key *rsa.PrivateKey, scheme Padding) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, cryptoErr("decrypt asymmetric", ErrInvalidCiphertext, err)
	}

	var out []byte
	switch scheme {
	case PaddingOAEP:
		out, err = rsa.DecryptOAEP(sha1.New(), rand.Reader, key, raw, nil) //nolint:gosec
	default:
		out, err = rsa.DecryptPKCS1v15(rand.Reader, key, raw)
	}
	if err != nil {
		return nil, cryptoErr("decrypt asymmetric", ErrInvalidCiphertext, err)
	}
	return out, nil
}
