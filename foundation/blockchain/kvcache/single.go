package kvcache

// Single is a table that holds exactly one value stored under its prefix,
// such as a global counter.
type Single[V any] struct {
	cache *Cache[struct{}, V]
}

// NewSingle constructs a root single value table backed by the store.
func NewSingle[V any](prefix Prefix, values ValueCodec[V], store Store) *Single[V] {
	return &Single[V]{
		cache: New[struct{}, V](prefix, UnitKey{}, values, store),
	}
}

// Child constructs an overlay on top of this table.
func (s *Single[V]) Child() *Single[V] {
	return &Single[V]{
		cache: s.cache.Child(),
	}
}

// Get returns the value, or the empty value and false when unset.
func (s *Single[V]) Get() (V, bool, error) {
	return s.cache.Get(struct{}{})
}

// Set stores the value.
func (s *Single[V]) Set(value V) error {
	return s.cache.Set(struct{}{}, value)
}

// Erase tombstones the value.
func (s *Single[V]) Erase() error {
	return s.cache.Erase(struct{}{})
}

// Flush commits the value to the parent or the store.
func (s *Single[V]) Flush() error {
	return s.cache.Flush()
}

// Undo restores the value recorded in the log.
func (s *Single[V]) Undo(undo *UndoLog) error {
	return s.cache.Undo(undo)
}

// SetUndoLog sets the log receiving previous values.
func (s *Single[V]) SetUndoLog(undo *UndoLog) {
	s.cache.SetUndoLog(undo)
}

// Size returns the approximate serialized size of the pending value.
func (s *Single[V]) Size() int {
	return s.cache.Size()
}

// Clear drops the pending value of this layer.
func (s *Single[V]) Clear() {
	s.cache.Clear()
}
