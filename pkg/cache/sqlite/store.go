// Package sqlite stores artifacts in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Store is an artifact cache backed by SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	cache.Counters
}

var _ cache.Store = (*Store)(nil)

const createArtifactsTable = `
CREATE TABLE IF NOT EXISTS artifacts (
	digest TEXT PRIMARY KEY,
	implementation TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens the database at dbPath and creates the artifacts table.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createArtifactsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Lookup retrieves the implementation stored under digest.
func (s *Store) Lookup(ctx context.Context, digest models.Digest) (string, bool, error) {
	var impl string
	err := s.db.QueryRowContext(ctx,
		`SELECT implementation FROM artifacts WHERE digest = ?`, string(digest),
	).Scan(&impl)

	if errors.Is(err, sql.ErrNoRows) {
		s.Miss()
		return "", false, nil
	}
	if err != nil {
		s.ReadError()
		return "", false, errs.New(errs.KindCacheRead, "cache lookup", err).WithContext("digest", digest.Short())
	}

	s.Hit()
	return impl, true, nil
}

// Store inserts or replaces the implementation for digest.
func (s *Store) Store(ctx context.Context, digest models.Digest, implementation string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (digest, implementation, updated_at) VALUES (?, ?, ?)`,
		string(digest), implementation, time.Now().UTC(),
	)
	if err != nil {
		return errs.New(errs.KindCacheWrite, "cache store", err).WithContext("digest", digest.Short())
	}
	return nil
}

// Entry returns the full row for digest, for inspection.
func (s *Store) Entry(ctx context.Context, digest models.Digest) (models.CacheEntry, error) {
	e := models.CacheEntry{Digest: digest}
	err := s.db.QueryRowContext(ctx,
		`SELECT implementation, updated_at FROM artifacts WHERE digest = ?`, string(digest),
	).Scan(&e.Implementation, &e.UpdatedAt)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache entry: %w", err)
	}
	return e, nil
}

// Stats returns the row count and lookup counters.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	st := models.CacheStats{Backend: "sqlite", Location: s.dbPath, Entries: count}
	s.Fill(&st)
	return st, nil
}

// Clear removes all artifacts.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts`)
	if err != nil {
		return 0, errs.New(errs.KindCacheWrite, "cache clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return int(n), nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
