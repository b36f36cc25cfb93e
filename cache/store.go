package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store maps source URLs to deterministic local files under one directory
// and writes entries atomically. Safe for concurrent use: distinct URLs map
// to distinct paths, and same-URL writers are idempotent through atomic
// rename.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore opens a cache directory, creating it if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Filename returns the stable cache file name for url: the hex SHA-1 of the
// URL string, with a ".png" extension when the lowercased URL mentions
// ".png" and ".jpg" otherwise. Stable across query parameter noise in the
// sense that the full URL, parameters included, is what gets hashed.
func Filename(url string) string {
	h := sha1.Sum([]byte(url))
	ext := ".jpg"
	if strings.Contains(strings.ToLower(url), ".png") {
		ext = ".png"
	}
	return hex.EncodeToString(h[:]) + ext
}

// PathFor returns the path url maps to. Pure function of the URL and the
// store directory; touches nothing on disk.
func (s *Store) PathFor(url string) string {
	return filepath.Join(s.dir, Filename(url))
}

// Exists reports whether url has a usable cache entry: a non-empty file at
// its path. A zero-byte file is a stale remnant of a prior crash; it is
// removed and reported absent so the caller re-fetches it.
func (s *Store) Exists(url string) bool {
	path := s.PathFor(url)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() == 0 {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("could not remove stale empty cache file", "path", path, "error", err)
		}
		return false
	}
	return true
}

// Write stores the bytes read from r as the entry for url, atomically.
func (s *Store) Write(url string, r io.Reader) error {
	return WriteAtomic(s.PathFor(url), r)
}

// CleanupPartials removes orphaned in-progress files from the store
// directory, returning how many were removed.
func (s *Store) CleanupPartials() int {
	count, err := CleanupPartials(s.dir)
	if err != nil {
		s.logger.Warn("partial file cleanup failed", "dir", s.dir, "error", err)
		return count
	}
	if count > 0 {
		s.logger.Info("removed stale partial files", "dir", s.dir, "count", count)
	}
	return count
}
