// Package storage handles all the lower level support for maintaining the
// blockchain on disk. Chain state lives in a LevelDB database and is
// addressed through the kvcache tables.
package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Storage manages reading and writing chain state to LevelDB. It
// implements the kvcache.Store interface.
type Storage struct {
	dbPath string
	db     *leveldb.DB
	mu     sync.RWMutex
}

// New provides access to blockchain storage at the specified path.
func New(dbPath string) (*Storage, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	strg := Storage{
		dbPath: dbPath,
		db:     db,
	}

	return &strg, nil
}

// NewMemory provides blockchain storage that only lives in memory. This
// is used by tests and by nodes started without a database path.
func NewMemory() (*Storage, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory leveldb: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close cleanly releases the storage area.
func (str *Storage) Close() error {
	str.mu.Lock()
	defer str.mu.Unlock()

	return str.db.Close()
}

// Reset creates a new storage area for the blockchain to start new.
func (str *Storage) Reset() error {
	str.mu.Lock()
	defer str.mu.Unlock()

	if err := str.db.Close(); err != nil {
		return err
	}

	if str.dbPath == "" {
		db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
		if err != nil {
			return err
		}
		str.db = db
		return nil
	}

	if err := os.RemoveAll(str.dbPath); err != nil {
		return err
	}

	db, err := leveldb.OpenFile(str.dbPath, nil)
	if err != nil {
		return err
	}
	str.db = db

	return nil
}

// =============================================================================

// Get returns the value stored for the key.
func (str *Storage) Get(key []byte) ([]byte, bool, error) {
	str.mu.RLock()
	defer str.mu.RUnlock()

	value, err := str.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return value, true, nil
}

// Put stores a single key value pair.
func (str *Storage) Put(key []byte, value []byte) error {
	str.mu.RLock()
	defer str.mu.RUnlock()

	return str.db.Put(key, value, nil)
}

// Delete removes a single key.
func (str *Storage) Delete(key []byte) error {
	str.mu.RLock()
	defer str.mu.RUnlock()

	return str.db.Delete(key, nil)
}

// WriteBatch applies the puts and deletes atomically.
func (str *Storage) WriteBatch(ops []kvcache.Op) error {
	if len(ops) == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete(op.Key)
			continue
		}
		batch.Put(op.Key, op.Value)
	}

	str.mu.RLock()
	defer str.mu.RUnlock()

	return str.db.Write(batch, nil)
}

// NewIterator returns an iterator over the keys that start with prefix,
// in ascending order. The caller must release it.
func (str *Storage) NewIterator(prefix []byte) kvcache.Iterator {
	str.mu.RLock()
	defer str.mu.RUnlock()

	return str.db.NewIterator(util.BytesPrefix(prefix), nil)
}
