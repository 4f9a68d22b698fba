// Package sqlite is a tokencache.Backend on a SQLite file, for deployments
// where several processes on one host share credentials.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Several CLI invocations may race on the same file
	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

// Open is NewStore followed by ApplyMigrations.
func Open(dsn string) (*Store, error) {
	s, err := NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache db: %w", err)
	}
	if err := s.ApplyMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate token cache db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements tokencache.Backend.
func (s *Store) Get(ctx context.Context, key string) (tokencache.Entry, error) {
	var (
		entry     tokencache.Entry
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT token, sek, expires_at FROM token_cache WHERE cache_key = ?`,
		key,
	).Scan(&entry.Token, &entry.SEK, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tokencache.Entry{}, tokencache.ErrNotFound
	}
	if err != nil {
		return tokencache.Entry{}, err
	}

	entry.Expiry = time.Unix(expiresAt, 0).In(tokencache.IST)
	return entry, nil
}

// Put implements tokencache.Backend. The row is replaced as a whole.
func (s *Store) Put(ctx context.Context, key string, entry tokencache.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_cache (cache_key, token, sek, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			token      = excluded.token,
			sek        = excluded.sek,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, entry.Token, entry.SEK, entry.Expiry.Unix(), time.Now().Unix(),
	)
	return err
}

// DeleteExpired removes entries that expired before now and returns how many
// were dropped.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_cache WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
