package cache

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// partSuffix marks an in-progress atomic write. A *.part file is never
// valid input.
const partSuffix = ".part"

// WriteAtomic writes r to path through a temporary sibling: write to
// <path>.part, flush and force to stable storage, then rename into place.
// On any failure the temporary file is removed and path is untouched, so a
// partial write is indistinguishable from "never written". Renaming over an
// existing path replaces it.
func WriteAtomic(path string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp := path + partSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", tmp, err)
	}
	return nil
}

// WriteAtomicBytes writes data to path with WriteAtomic semantics.
func WriteAtomicBytes(path string, data []byte) error {
	return WriteAtomic(path, bytes.NewReader(data))
}

// CleanupPartials removes orphaned *.part files directly under dir,
// returning how many were removed. A missing directory removes nothing.
func CleanupPartials(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range matches {
		if os.Remove(p) == nil {
			count++
		}
	}
	return count, nil
}
