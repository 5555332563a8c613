package kvcache

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoBase is returned when a layer has neither a parent nor a store.
var ErrNoBase = errors.New("cache layer has no parent and no store")

// Op is one write in a store batch.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Iterator walks store keys in ascending order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Store is the ordered key value store at the bottom of a cache chain.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	WriteBatch(ops []Op) error
	NewIterator(prefix []byte) Iterator
}

// =============================================================================

// StoreError reports a backing store failure along with the table and key
// that were being accessed.
type StoreError struct {
	Prefix Prefix
	Key    []byte
	Op     string
	Err    error
}

// Error implements the error interface.
func (se *StoreError) Error() string {
	if se.Key == nil {
		return fmt.Sprintf("store %s %s: %s", se.Op, se.Prefix, se.Err)
	}
	return fmt.Sprintf("store %s %s key[%s]: %s", se.Op, se.Prefix, hexutil.Encode(se.Key), se.Err)
}

// Unwrap returns the underlying store error.
func (se *StoreError) Unwrap() error {
	return se.Err
}
