package cryptox

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey reports a key that cannot be parsed or has the wrong size.
	ErrInvalidKey = errors.New("cryptox: invalid key")

	// ErrInvalidPadding reports PKCS#7 padding that does not verify.
	ErrInvalidPadding = errors.New("cryptox: invalid padding")

	// ErrMessageTooLong reports a plaintext larger than the RSA modulus allows.
	ErrMessageTooLong = errors.New("cryptox: message too long for RSA key")

	// ErrInvalidCiphertext reports ciphertext that is not valid base64 or not
	// a whole number of blocks.
	ErrInvalidCiphertext = errors.New("cryptox: invalid ciphertext")
)

// CryptoError is returned by every encryption and decryption helper in this
// package. Op names the failing operation and Err is one of the package
// sentinels, optionally wrapping the underlying library error.
//
// A CryptoError is never worth retrying: the same inputs fail the same way.
type CryptoError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the wrapped sentinel for errors.Is.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

func cryptoErr(op string, sentinel error, cause error) error {
	if cause == nil {
		return &CryptoError{Op: op, Err: sentinel}
	}
	return &CryptoError{Op: op, Err: fmt.Errorf("%w: %v", sentinel, cause)}
}
