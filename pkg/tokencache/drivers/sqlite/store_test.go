package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_GetPut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Ping(ctx))

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, tokencache.ErrNotFound)

	expiry := time.Date(2024, 4, 1, 18, 30, 0, 0, tokencache.IST)
	require.NoError(t, store.Put(ctx, "k1", tokencache.Entry{Token: "tok", SEK: "c2Vr", Expiry: expiry}))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)
	require.Equal(t, "c2Vr", got.SEK)
	require.True(t, expiry.Equal(got.Expiry))

	require.NoError(t, store.Put(ctx, "k1", tokencache.Entry{Token: "tok2", SEK: "c2VyMg==", Expiry: expiry.Add(time.Hour)}))
	got, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "tok2", got.Token)
	require.True(t, expiry.Add(time.Hour).Equal(got.Expiry))
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	require.NoError(t, store.ApplyMigrations())
	require.NoError(t, store.ApplyMigrations())
}

func TestStore_DeleteExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, tokencache.IST)

	require.NoError(t, store.Put(ctx, "old", tokencache.Entry{Token: "a", SEK: "b", Expiry: now.Add(-time.Hour)}))
	require.NoError(t, store.Put(ctx, "new", tokencache.Entry{Token: "c", SEK: "d", Expiry: now.Add(time.Hour)}))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = store.Get(ctx, "old")
	require.ErrorIs(t, err, tokencache.ErrNotFound)
	_, err = store.Get(ctx, "new")
	require.NoError(t, err)
}

func TestStore_AsCacheBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, tokencache.IST)
	cache := tokencache.New(openStore(t), tokencache.WithClock(func() time.Time { return now }))

	fields := tokencache.Fields{"gstin": "29AAACP7879D1Z0", "username": "user"}
	cache.Store(ctx, fields, tokencache.Entry{Token: "tok", SEK: "c2Vr", Expiry: now.Add(time.Hour)})

	got, ok := cache.Lookup(ctx, fields)
	require.True(t, ok)
	require.Equal(t, "tok", got.Token)
}
