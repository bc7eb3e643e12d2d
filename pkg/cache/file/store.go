// Package file stores artifacts as one file per digest in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/i-dream-of-ai/sparkmango/pkg/cache"
	"github.com/i-dream-of-ai/sparkmango/pkg/errs"
	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Ext is the file extension of stored artifacts.
const Ext = ".artifact"

// Store is a directory-backed artifact cache.
type Store struct {
	dir string
	cache.Counters
}

var _ cache.Store = (*Store)(nil)

// New opens the cache directory, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(digest models.Digest) string {
	return filepath.Join(s.dir, string(digest)+Ext)
}

// Lookup reads the artifact for digest.
func (s *Store) Lookup(_ context.Context, digest models.Digest) (string, bool, error) {
	data, err := os.ReadFile(s.path(digest))
	if errors.Is(err, fs.ErrNotExist) {
		s.Miss()
		return "", false, nil
	}
	if err != nil {
		s.ReadError()
		return "", false, errs.New(errs.KindCacheRead, "read artifact", err).
			WithContext("digest", digest.Short())
	}
	s.Hit()
	return string(data), true, nil
}

// Store writes the artifact to a temp file in the same directory and renames it
// into place, so readers see either the old entry or the new one.
func (s *Store) Store(_ context.Context, digest models.Digest, implementation string) error {
	wrap := func(err error) error {
		return errs.New(errs.KindCacheWrite, "write artifact", err).WithContext("digest", digest.Short())
	}

	tmp, err := os.CreateTemp(s.dir, "."+digest.Short()+"-*.tmp")
	if err != nil {
		return wrap(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(implementation); err != nil {
		tmp.Close()
		return wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return wrap(err)
	}
	if err := os.Rename(tmpName, s.path(digest)); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) entries() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, d := range dirents {
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), Ext) {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

// Clear deletes every artifact file in the directory.
func (s *Store) Clear(_ context.Context) (int, error) {
	names, err := s.entries()
	if err != nil {
		return 0, errs.New(errs.KindCacheWrite, "list artifacts", err)
	}
	return s.remove(names)
}

// remove deletes the named artifacts. A file already gone is skipped, not counted.
func (s *Store) remove(names []string) (int, error) {
	removed := 0
	for _, name := range names {
		err := os.Remove(filepath.Join(s.dir, name))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, errs.New(errs.KindCacheWrite, "remove artifact", err).WithContext("file", name)
		}
	}
	return removed, nil
}

// Stats counts artifact files and reports lookup counters.
func (s *Store) Stats(_ context.Context) (models.CacheStats, error) {
	names, err := s.entries()
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	st := models.CacheStats{Backend: "file", Location: s.dir, Entries: int64(len(names))}
	s.Fill(&st)
	return st, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
