// Package badger stores artifacts in an embedded BadgerDB directory.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

var keyPrefix = []byte("artifact/")

// Store is an artifact cache backed by BadgerDB.
type Store struct {
	db  *badgerdb.DB
	dir string
	cache.Counters
}

var _ cache.Store = (*Store)(nil)

// New opens (or creates) a badger database in dir. An empty dir opens an
// in-memory database.
func New(dir string) (*Store, error) {
	var opts badgerdb.Options
	if dir == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badgerdb.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil).WithNumCompactors(2).WithNumMemtables(2)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, dir: dir}, nil
}

func key(digest models.Digest) []byte {
	return append(append([]byte{}, keyPrefix...), string(digest)...)
}

// Lookup reads the artifact for digest.
func (s *Store) Lookup(_ context.Context, digest models.Digest) (string, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(digest))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		s.Miss()
		return "", false, nil
	}
	if err != nil {
		s.ReadError()
		return "", false, errs.New(errs.KindCacheRead, "badger get", err).WithContext("digest", digest.Short())
	}
	s.Hit()
	return string(val), true, nil
}

// Store writes the artifact in a single transaction.
func (s *Store) Store(_ context.Context, digest models.Digest, implementation string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(digest), []byte(implementation))
	})
	if err != nil {
		return errs.New(errs.KindCacheWrite, "badger set", err).WithContext("digest", digest.Short())
	}
	return nil
}

func (s *Store) keys() ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return out, err
}

// Clear deletes every artifact key.
func (s *Store) Clear(_ context.Context) (int, error) {
	keys, err := s.keys()
	if err != nil {
		return 0, errs.New(errs.KindCacheWrite, "badger list", err)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, errs.New(errs.KindCacheWrite, "badger delete", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, errs.New(errs.KindCacheWrite, "badger flush", err)
	}
	return len(keys), nil
}

// Stats counts artifact keys.
func (s *Store) Stats(_ context.Context) (models.CacheStats, error) {
	keys, err := s.keys()
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	loc := s.dir
	if loc == "" {
		loc = "memory"
	}
	st := models.CacheStats{Backend: "badger", Location: loc, Entries: int64(len(keys))}
	s.Fill(&st)
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
