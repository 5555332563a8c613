package kvcache

import (
	"fmt"
	"sync"
)

// Prefix is the tag byte that namespaces one logical table inside the
// shared backing store.
type Prefix uint8

var prefixes = struct {
	mu    sync.RWMutex
	names map[Prefix]string
}{
	names: make(map[Prefix]string),
}

// RegisterPrefix records the name of a table prefix for error reporting
// and returns the prefix. Registering the same prefix twice panics.
func RegisterPrefix(p Prefix, name string) Prefix {
	prefixes.mu.Lock()
	defer prefixes.mu.Unlock()

	if existing, exists := prefixes.names[p]; exists {
		panic(fmt.Sprintf("kvcache: prefix %d already registered as %q", p, existing))
	}
	prefixes.names[p] = name

	return p
}

// String returns the registered table name for the prefix.
func (p Prefix) String() string {
	prefixes.mu.RLock()
	defer prefixes.mu.RUnlock()

	if name, exists := prefixes.names[p]; exists {
		return name
	}
	return fmt.Sprintf("prefix(%d)", uint8(p))
}

// Bytes returns the prefix as the leading byte of a store key.
func (p Prefix) Bytes() []byte {
	return []byte{byte(p)}
}
