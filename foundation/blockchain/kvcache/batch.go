package kvcache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// ErrBatchStaging is returned when a commit starts while another one is
// still staging its writes.
var ErrBatchStaging = errors.New("batch is already staging")

// Batch is a Store that can gather the writes of several root layers and
// hand them to the backing store as one atomic batch. Outside a commit it
// writes through.
type Batch struct {
	store Store

	mu      sync.Mutex
	staging bool
	ops     []Op
}

// NewBatch constructs a batch over the backing store.
func NewBatch(store Store) *Batch {
	return &Batch{
		store: store,
	}
}

// Get returns the value for the key. While staging, a staged write of the
// key wins over the backing store.
func (b *Batch) Get(key []byte) ([]byte, bool, error) {
	b.mu.Lock()
	if b.staging {
		for i := len(b.ops) - 1; i >= 0; i-- {
			if bytes.Equal(b.ops[i].Key, key) {
				op := b.ops[i]
				b.mu.Unlock()
				if op.Delete {
					return nil, false, nil
				}
				return op.Value, true, nil
			}
		}
	}
	b.mu.Unlock()

	return b.store.Get(key)
}

// WriteBatch stages the ops while a commit is running and writes them
// through otherwise.
func (b *Batch) WriteBatch(ops []Op) error {
	b.mu.Lock()
	if b.staging {
		b.ops = append(b.ops, ops...)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	return b.store.WriteBatch(ops)
}

// NewIterator iterates the backing store. Staged writes are not visible.
func (b *Batch) NewIterator(prefix []byte) Iterator {
	return b.store.NewIterator(prefix)
}

// Commit runs stage with staging turned on, then writes everything stage
// wrote followed by the extra ops in a single store batch. Nothing reaches
// the store when stage fails or the write fails.
func (b *Batch) Commit(stage func() error, extra ...Op) error {
	b.mu.Lock()
	if b.staging {
		b.mu.Unlock()
		return ErrBatchStaging
	}
	b.staging = true
	b.ops = nil
	b.mu.Unlock()

	err := stage()

	b.mu.Lock()
	ops := append(b.ops, extra...)
	b.ops = nil
	b.staging = false
	b.mu.Unlock()

	if err != nil {
		return err
	}

	if err := b.store.WriteBatch(ops); err != nil {
		return fmt.Errorf("commit batch of %d ops: %w", len(ops), err)
	}

	return nil
}
