package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase-derived keys.
const (
	kdfMemory      = 19 * 1024 // KiB
	kdfIterations  = 2
	kdfParallelism = 1
	kdfKeyLength   = 32
	kdfSaltLength  = 16
)

// ErrSealed reports sealed data that does not open: truncated, tampered
// with, or sealed under a different passphrase.
var ErrSealed = errors.New("cryptox: cannot open sealed data")

// DeriveKey stretches passphrase into an AES-256 key with Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfIterations, kdfMemory, kdfParallelism, kdfKeyLength)
}

// Seal encrypts plaintext under a key derived from passphrase using
// AES-256-GCM. The output is [16-byte salt][12-byte nonce][ciphertext+tag];
// every call uses a fresh salt and nonce.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, kdfSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, cryptoErr("seal", ErrInvalidKey, err)
	}

	gcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, cryptoErr("seal", ErrInvalidKey, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, cryptoErr("seal", ErrInvalidKey, err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < kdfSaltLength {
		return nil, cryptoErr("open", ErrSealed, nil)
	}
	salt, rest := sealed[:kdfSaltLength], sealed[kdfSaltLength:]

	gcm, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, cryptoErr("open", ErrInvalidKey, err)
	}

	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, cryptoErr("open", ErrSealed, nil)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, cryptoErr("open", ErrSealed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
