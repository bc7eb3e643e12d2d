// Package cache defines the artifact cache: accepted implementations keyed by
// signature digest.
package cache

import (
	"context"
	"sync/atomic"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Store persists accepted implementations by digest.
//
// A miss is reported as ("", false, nil). Storage failures are returned as
// errs.KindCacheRead or errs.KindCacheWrite errors. Entries never expire and
// a reader never observes a partially written entry.
type Store interface {
	Lookup(ctx context.Context, digest models.Digest) (string, bool, error)
	Store(ctx context.Context, digest models.Digest, implementation string) error
	// Clear removes every entry at the store's location and returns how many were removed.
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.CacheStats, error)
	Close() error
}

// Counters tracks lookup outcomes for a backend.
type Counters struct {
	hits       atomic.Int64
	misses     atomic.Int64
	readErrors atomic.Int64
}

// Hit records a lookup that found an entry.
func (c *Counters) Hit() { c.hits.Add(1) }

// Miss records a lookup that found nothing.
func (c *Counters) Miss() { c.misses.Add(1) }

// ReadError records a lookup that failed in storage.
func (c *Counters) ReadError() { c.readErrors.Add(1) }

// Fill copies the counters into s.
func (c *Counters) Fill(s *models.CacheStats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.ReadErrors = c.readErrors.Load()
}
