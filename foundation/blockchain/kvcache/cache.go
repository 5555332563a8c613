// Package kvcache implements the layered key value cache used by every
// piece of chain state. A cache layer holds an in-memory delta over either
// a parent layer or a backing store. Reads fall through the chain, writes
// stay in the layer until it is flushed, and a layer that is dropped
// without a flush leaves everything beneath it untouched.
package kvcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"
)

// degree of the btree holding a layer's delta.
const degree = 16

// Entry is a key and its resolved value returned by ordered scans.
type Entry[K any, V any] struct {
	Key   K
	Value V
}

type item[K any, V any] struct {
	enc   string
	key   K
	value V
	size  int
}

func lessItem[K any, V any](a, b item[K, V]) bool {
	return a.enc < b.enc
}

// =============================================================================

// Cache is one layer of a cache chain for a table with keys of type K and
// values of type V. Exactly one of parent and store is set.
type Cache[K any, V any] struct {
	prefix Prefix
	keys   KeyCodec[K]
	values ValueCodec[V]
	parent *Cache[K, V]
	store  Store

	mu       sync.Mutex
	delta    *btree.BTreeG[item[K, V]]
	undo     *UndoLog
	calcSize bool
	size     int
}

// New constructs a root layer backed by the store. Root layers track the
// serialized size of their delta.
func New[K any, V any](prefix Prefix, keys KeyCodec[K], values ValueCodec[V], store Store) *Cache[K, V] {
	return &Cache[K, V]{
		prefix:   prefix,
		keys:     keys,
		values:   values,
		store:    store,
		delta:    btree.NewG(degree, lessItem[K, V]),
		calcSize: true,
	}
}

// Child constructs an overlay layer on top of this layer.
func (c *Cache[K, V]) Child() *Cache[K, V] {
	return &Cache[K, V]{
		prefix: c.prefix,
		keys:   c.keys,
		values: c.values,
		parent: c,
		delta:  btree.NewG(degree, lessItem[K, V]),
	}
}

// Prefix returns the table prefix for the cache.
func (c *Cache[K, V]) Prefix() Prefix {
	return c.prefix
}

// SetUndoLog sets the log that receives the previous value of every key
// this layer mutates. A nil log turns recording off.
func (c *Cache[K, V]) SetUndoLog(undo *UndoLog) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.undo = undo
}

// SetCalcSize turns size accounting on or off. Turning it on recomputes
// the size of the current delta.
func (c *Cache[K, V]) SetCalcSize(calcSize bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calcSize = calcSize
	c.size = 0
	if !calcSize {
		return
	}

	var items []item[K, V]
	c.delta.Ascend(func(it item[K, V]) bool {
		items = append(items, it)
		return true
	})
	for _, it := range items {
		it.size = c.sizeOf(it.enc, it.value)
		c.size += it.size
		c.delta.ReplaceOrInsert(it)
	}
}

// Size returns the approximate serialized size of the delta in bytes.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

// Len returns the number of keys held in this layer, tombstones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.delta.Len()
}

// Clear drops the delta of this layer.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.delta.Clear(false)
	c.size = 0
}

// =============================================================================

// Get returns the value for the key. A tombstoned key reports false even
// when the tombstone is physically present.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, exists, err := c.find(string(c.keys.EncodeKey(key)), key)
	if err != nil || !exists || IsEmpty(value) {
		var zero V
		return zero, false, err
	}

	return value, true, nil
}

// Has reports whether the key resolves to a value.
func (c *Cache[K, V]) Has(key K) (bool, error) {
	_, exists, err := c.Get(key)
	return exists, err
}

// Set records the previous value of the key in the undo log and then
// stores the new value in this layer.
func (c *Cache[K, V]) Set(key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc := string(c.keys.EncodeKey(key))

	old, exists, err := c.find(enc, key)
	if err != nil {
		return err
	}
	if !exists {
		old = Empty[V]()
	}

	if err := c.record(enc, old); err != nil {
		return err
	}
	c.put(enc, key, value)

	return nil
}

// Erase replaces the value of the key with a tombstone. Erasing a key that
// does not resolve to a value is a no-op.
func (c *Cache[K, V]) Erase(key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc := string(c.keys.EncodeKey(key))

	old, exists, err := c.find(enc, key)
	if err != nil {
		return err
	}
	if !exists || IsEmpty(old) {
		return nil
	}

	if err := c.record(enc, old); err != nil {
		return err
	}
	c.put(enc, key, Empty[V]())

	return nil
}

// Flush moves the delta into the parent layer, or writes it to the store
// as one batch when this is a root layer. Tombstones are propagated to a
// parent as they are and become deletes in the store.
func (c *Cache[K, V]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.parent != nil:
		var items []item[K, V]
		c.delta.Ascend(func(it item[K, V]) bool {
			items = append(items, it)
			return true
		})
		if err := c.parent.merge(items); err != nil {
			return err
		}

	case c.store != nil:
		ops := make([]Op, 0, c.delta.Len())

		var encErr error
		c.delta.Ascend(func(it item[K, V]) bool {
			key := c.storeKey(it.enc)
			if IsEmpty(it.value) {
				ops = append(ops, Op{Key: key, Delete: true})
				return true
			}

			data, err := c.values.Encode(it.value)
			if err != nil {
				encErr = fmt.Errorf("%s: encode value: %w", c.prefix, err)
				return false
			}
			ops = append(ops, Op{Key: key, Value: data})
			return true
		})
		if encErr != nil {
			return encErr
		}

		if err := c.store.WriteBatch(ops); err != nil {
			return &StoreError{Prefix: c.prefix, Op: "flush", Err: err}
		}

	default:
		return fmt.Errorf("%s: flush: %w", c.prefix, ErrNoBase)
	}

	c.delta.Clear(false)
	c.size = 0

	return nil
}

// Undo restores the previous values recorded for this table in the log,
// replaying the entries from the most recent to the oldest.
func (c *Cache[K, V]) Undo(undo *UndoLog) error {
	entries := undo.Entries(c.prefix)

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		key, err := c.keys.DecodeKey(entry.Key)
		if err != nil {
			return fmt.Errorf("%s: undo: decode key: %w", c.prefix, err)
		}

		value, err := c.values.Decode(entry.Value)
		if err != nil {
			return fmt.Errorf("%s: undo: decode value: %w", c.prefix, err)
		}

		c.put(string(entry.Key), key, value)
	}

	return nil
}

// =============================================================================

// TopN returns up to n keys in ascending key order, merged across the
// whole chain.
func (c *Cache[K, V]) TopN(n int) ([]K, error) {
	if n <= 0 {
		return nil, nil
	}

	entries, err := c.scan(nil, n)
	if err != nil {
		return nil, err
	}

	keys := make([]K, len(entries))
	for i, entry := range entries {
		keys[i] = entry.Key
	}

	return keys, nil
}

// All returns every live entry of the table in ascending key order.
func (c *Cache[K, V]) All() ([]Entry[K, V], error) {
	return c.scan(nil, 0)
}

// Below returns the live entries with keys strictly less than end, in
// ascending key order.
func (c *Cache[K, V]) Below(end K) ([]Entry[K, V], error) {
	return c.scan(c.keys.EncodeKey(end), 0)
}

// scan merges the layers from this one down to the store. The closest
// layer that holds a key decides its value, so keys are resolved once and
// tombstones hide everything beneath them. Deltas are walked in full
// because they are in memory; the store is read only until limit live
// keys have been found there.
func (c *Cache[K, V]) scan(end []byte, limit int) ([]Entry[K, V], error) {
	resolved := make(map[string]struct{})
	var found []item[K, V]

	for layer := c; layer != nil; layer = layer.parent {
		layer.mu.Lock()
		layer.delta.Ascend(func(it item[K, V]) bool {
			if end != nil && it.enc >= string(end) {
				return false
			}
			if _, exists := resolved[it.enc]; exists {
				return true
			}

			resolved[it.enc] = struct{}{}
			if !IsEmpty(it.value) {
				found = append(found, it)
			}
			return true
		})
		layer.mu.Unlock()

		if layer.store != nil {
			items, err := layer.scanStore(resolved, end, limit)
			if err != nil {
				return nil, err
			}
			found = append(found, items...)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].enc < found[j].enc })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	entries := make([]Entry[K, V], len(found))
	for i, it := range found {
		entries[i] = Entry[K, V]{Key: it.key, Value: it.value}
	}

	return entries, nil
}

func (c *Cache[K, V]) scanStore(resolved map[string]struct{}, end []byte, limit int) ([]item[K, V], error) {
	iter := c.store.NewIterator(c.prefix.Bytes())
	defer iter.Release()

	var items []item[K, V]
	for iter.Next() {
		enc := string(iter.Key()[1:])
		if end != nil && enc >= string(end) {
			break
		}
		if _, exists := resolved[enc]; exists {
			continue
		}
		resolved[enc] = struct{}{}

		key, err := c.keys.DecodeKey([]byte(enc))
		if err != nil {
			return nil, &StoreError{Prefix: c.prefix, Key: []byte(enc), Op: "scan", Err: err}
		}
		value, err := c.values.Decode(iter.Value())
		if err != nil {
			return nil, &StoreError{Prefix: c.prefix, Key: []byte(enc), Op: "scan", Err: err}
		}
		if IsEmpty(value) {
			continue
		}

		items = append(items, item[K, V]{enc: enc, key: key, value: value})
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return nil, &StoreError{Prefix: c.prefix, Op: "scan", Err: err}
	}

	return items, nil
}

// =============================================================================

// find resolves the key through the chain. A value found beneath this
// layer, tombstones included, is copied into the delta without an undo
// entry. The caller must hold the layer lock.
func (c *Cache[K, V]) find(enc string, key K) (V, bool, error) {
	if it, exists := c.delta.Get(item[K, V]{enc: enc}); exists {
		return it.value, true, nil
	}

	var zero V

	switch {
	case c.parent != nil:
		value, exists, err := c.parent.lookup(enc, key)
		if err != nil || !exists {
			return zero, false, err
		}
		c.put(enc, key, value)
		return value, true, nil

	case c.store != nil:
		skey := c.storeKey(enc)

		data, exists, err := c.store.Get(skey)
		if err != nil {
			return zero, false, &StoreError{Prefix: c.prefix, Key: skey, Op: "get", Err: err}
		}
		if !exists {
			return zero, false, nil
		}

		value, err := c.values.Decode(data)
		if err != nil {
			return zero, false, &StoreError{Prefix: c.prefix, Key: skey, Op: "decode", Err: err}
		}
		c.put(enc, key, value)
		return value, true, nil
	}

	return zero, false, nil
}

// lookup is find for a child layer asking its parent.
func (c *Cache[K, V]) lookup(enc string, key K) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.find(enc, key)
}

// merge overwrites the delta with the items flushed by a child layer. The
// values they replace go to the undo log like any other mutation.
func (c *Cache[K, V]) merge(items []item[K, V]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range items {
		if c.undo != nil {
			old, exists, err := c.find(it.enc, it.key)
			if err != nil {
				return err
			}
			if !exists {
				old = Empty[V]()
			}
			if err := c.record(it.enc, old); err != nil {
				return err
			}
		}
		c.put(it.enc, it.key, it.value)
	}

	return nil
}

// record appends the previous value of the key to the undo log. The
// caller must hold the layer lock.
func (c *Cache[K, V]) record(enc string, old V) error {
	if c.undo == nil {
		return nil
	}

	data, err := c.values.Encode(old)
	if err != nil {
		return fmt.Errorf("%s: encode undo value: %w", c.prefix, err)
	}
	c.undo.Add(c.prefix, []byte(enc), data)

	return nil
}

// put stores the value in the delta and keeps the size in step. The
// caller must hold the layer lock.
func (c *Cache[K, V]) put(enc string, key K, value V) {
	it := item[K, V]{enc: enc, key: key, value: value}
	if c.calcSize {
		it.size = c.sizeOf(enc, value)
	}

	prev, replaced := c.delta.ReplaceOrInsert(it)
	if !c.calcSize {
		return
	}
	if replaced {
		c.size -= prev.size
	}
	c.size += it.size
}

func (c *Cache[K, V]) sizeOf(enc string, value V) int {
	size := len(enc)
	if IsEmpty(value) {
		return size
	}

	data, err := c.values.Encode(value)
	if err != nil {
		return size
	}

	return size + len(data)
}

func (c *Cache[K, V]) storeKey(enc string) []byte {
	key := make([]byte, 0, 1+len(enc))
	key = append(key, byte(c.prefix))
	return append(key, enc...)
}
