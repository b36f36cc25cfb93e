package cache

import "errors"

var (
	// ErrDirRequired indicates a Store was constructed without a directory.
	ErrDirRequired = errors.New("cache directory is required")
)
