package tokencache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
)

// SealedBackend encrypts entries before handing them to another backend.
// The token and SEK are sealed together with a passphrase into the Token
// field. SEK stays empty, so a plain Cache over the same store never serves
// a sealed entry. Only the expiry is readable, so stores can still expire
// entries.
type SealedBackend struct {
	inner      Backend
	passphrase string
}

// NewSealedBackend wraps inner. An entry written under one passphrase reads
// back as ErrCorrupt under another.
func NewSealedBackend(inner Backend, passphrase string) *SealedBackend {
	return &SealedBackend{inner: inner, passphrase: passphrase}
}

// Get implements Backend.
func (b *SealedBackend) Get(ctx context.Context, key string) (Entry, error) {
	stored, err := b.inner.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if stored.SEK != "" {
		return Entry{}, fmt.Errorf("%w: entry is not sealed", ErrCorrupt)
	}

	sealed, err := base64.StdEncoding.DecodeString(stored.Token)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	plain, err := cryptox.Open(sealed, b.passphrase)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var entry Entry
	if err := json.Unmarshal(plain, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entry, nil
}

// Put implements Backend.
func (b *SealedBackend) Put(ctx context.Context, key string, entry Entry) error {
	plain, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	sealed, err := cryptox.Seal(plain, b.passphrase)
	if err != nil {
		return err
	}

	return b.inner.Put(ctx, key, Entry{
		Token:  base64.StdEncoding.EncodeToString(sealed),
		Expiry: entry.Expiry,
	})
}
