// Package redis stores artifacts as redis string keys under a prefix.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

const scanBatch = 256

// Options configures the redis backend.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is an artifact cache backed by redis.
type Store struct {
	client *goredis.Client
	addr   string
	prefix string
	cache.Counters
}

var _ cache.Store = (*Store)(nil)

// New connects to redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Addr, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, addr, prefix string) *Store {
	return &Store{client: client, addr: addr, prefix: prefix}
}

func (s *Store) key(digest models.Digest) string {
	return s.prefix + string(digest)
}

// Lookup fetches the artifact for digest.
func (s *Store) Lookup(ctx context.Context, digest models.Digest) (string, bool, error) {
	text, err := s.client.Get(ctx, s.key(digest)).Result()
	if errors.Is(err, goredis.Nil) {
		s.Miss()
		return "", false, nil
	}
	if err != nil {
		s.ReadError()
		return "", false, errs.New(errs.KindCacheRead, "redis get", err).WithContext("digest", digest.Short())
	}
	s.Hit()
	return text, true, nil
}

// Store sets the artifact without expiry.
func (s *Store) Store(ctx context.Context, digest models.Digest, implementation string) error {
	if err := s.client.Set(ctx, s.key(digest), implementation, 0).Err(); err != nil {
		return errs.New(errs.KindCacheWrite, "redis set", err).WithContext("digest", digest.Short())
	}
	return nil
}

func (s *Store) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Clear deletes every key under the prefix.
func (s *Store) Clear(ctx context.Context) (int, error) {
	removed := 0
	err := s.scan(ctx, func(keys []string) error {
		n, err := s.client.Del(ctx, keys...).Result()
		removed += int(n)
		return err
	})
	if err != nil {
		return removed, errs.New(errs.KindCacheWrite, "redis clear", err)
	}
	return removed, nil
}

// Stats counts keys under the prefix.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := s.scan(ctx, func(keys []string) error {
		count += int64(len(keys))
		return nil
	})
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	st := models.CacheStats{Backend: "redis", Location: s.addr + "/" + s.prefix, Entries: count}
	s.Fill(&st)
	return st, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
