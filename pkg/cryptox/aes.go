package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The portal mandates AES in ECB mode with PKCS#7 padding for every payload
// encrypted under the SEK or the application key. ECB is weak (equal blocks
// encrypt equally) but it is what the server speaks, so it stays.

// EncryptSymmetric pads plaintext with PKCS#7 and encrypts it with AES-ECB
// under the base64 encoded key, returning base64 ciphertext.
func EncryptSymmetric(plaintext []byte, key string) (string, error) {
	block, err := newAESCipher("encrypt symmetric", key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptSymmetric decrypts base64 AES-ECB ciphertext under the base64
// encoded key and strips the PKCS#7 padding. The bytes are returned as-is.
func DecryptSymmetric(ciphertext, key string) ([]byte, error) {
	block, err := newAESCipher("decrypt symmetric", key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, cryptoErr("decrypt symmetric", ErrInvalidCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, cryptoErr(
			"decrypt symmetric",
			ErrInvalidCiphertext,
			fmt.Errorf("length %d is not a multiple of %d", len(raw), aes.BlockSize),
		)
	}

	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], raw[i:i+aes.BlockSize])
	}

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return nil, cryptoErr("decrypt symmetric", ErrInvalidPadding, err)
	}
	return unpadded, nil
}

// DecryptSymmetricString is DecryptSymmetric for textual payloads. After
// unpadding, trailing bytes that cannot belong to a JSON document are
// trimmed (see TrimSandboxArtifacts).
func DecryptSymmetricString(ciphertext, key string) (string, error) {
	raw, err := DecryptSymmetric(ciphertext, key)
	if err != nil {
		return "", err
	}
	return TrimSandboxArtifacts(string(raw)), nil
}

// TrimSandboxArtifacts removes trailing control characters and invalid UTF-8
// from a decrypted payload. Bytes before the last printable rune are kept
// as they are.
//
// COMPATIBILITY SHIM: the sandbox portal has been observed appending a few
// non-printable bytes (e.g. "\x03\x03\x03") after the JSON body. This is not
// documented protocol behaviour and the number of bytes varies, so we trim
// everything after the last printable rune instead of a fixed count. Verify
// against production before depending on it.
func TrimSandboxArtifacts(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r == utf8.RuneError && size <= 1 {
			s = s[:len(s)-1]
			continue
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			s = s[:len(s)-size]
			continue
		}
		break
	}
	return s
}

// TruncateToJSON cuts s after its last closing brace or bracket. It is the
// lenient fallback used when a trimmed payload still fails to parse.
func TruncateToJSON(s string) string {
	if i := strings.LastIndexAny(s, "}]"); i >= 0 {
		return s[:i+1]
	}
	return s
}

func newAESCipher(op, key string) (cipher.Block, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, cryptoErr(op, ErrInvalidKey, err)
	}

	switch len(raw) {
	case 16, 24, 32:
	default:
		return nil, cryptoErr(op, ErrInvalidKey, fmt.Errorf("AES key must be 16, 24 or 32 bytes, got %d", len(raw)))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, cryptoErr(op, ErrInvalidKey, err)
	}
	return block, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("padded length %d", len(b))
	}

	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("pad byte %d out of range", n)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("inconsistent pad bytes")
		}
	}
	return b[:len(b)-n], nil
}
