package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/mtgindex/core"
)

// vectorKeyPrefix namespaces face vector keys.
const vectorKeyPrefix = "facevec"

// Store wraps a BadgerDB instance holding vectors saved mid-build.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a checkpoint database at the specified directory.
// Creates the directory if it doesn't exist.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}

	// Ensure directory exists
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
			info, err = os.Stat(dir)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens an ephemeral checkpoint database for tests and dry
// runs. Nothing survives Close.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	logger := slog.Default()
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the checkpoint database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx executes a function within a BadgerDB transaction.
// The transaction is automatically discarded if fn returns an error.
func (s *Store) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := s.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// SaveVectors upserts a batch of face vectors in a single transaction.
// Callers keep batches to a few thousand vectors so the transaction fits
// Badger's size limit.
func (s *Store) SaveVectors(vectors map[core.ID][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	return s.withTx(func(tx *badger.Txn) error {
		for id, vec := range vectors {
			if err := tx.Set(makeVectorKey(id), MarshalVector(vec)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// LoadAll returns every saved face vector keyed by face ID.
func (s *Store) LoadAll() (map[core.ID][]float32, error) {
	vectors := make(map[core.ID][]float32)

	err := s.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorKeyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			id, err := parseVectorKey(item.Key())
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				vec, err := UnmarshalVector(val)
				if err != nil {
					return err
				}
				vectors[id] = vec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

// Count returns the number of saved face vectors.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(vectorKeyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Clear removes all saved face vectors.
func (s *Store) Clear() error {
	return s.db.DropPrefix([]byte(vectorKeyPrefix))
}

// makeVectorKey generates a key for a face vector by ID.
func makeVectorKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", vectorKeyPrefix, id))
}

// parseVectorKey recovers the face ID from a vector key.
func parseVectorKey(key []byte) (core.ID, error) {
	suffix := strings.TrimPrefix(string(key), vectorKeyPrefix+":")
	id, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed checkpoint key %q: %w", key, err)
	}
	return core.ID(id), nil
}
