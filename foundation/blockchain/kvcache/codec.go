package kvcache

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// KeyCodec converts a key into its store representation. Encodings must
// preserve the ordering the table wants to scan in, since ordered scans
// compare the encoded bytes.
type KeyCodec[K any] interface {
	EncodeKey(key K) []byte
	DecodeKey(data []byte) (K, error)
}

// ValueCodec converts a value into its store representation.
type ValueCodec[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// =============================================================================

// RLP is the value codec used by every domain table.
type RLP[V any] struct{}

// Encode serializes the value using RLP.
func (RLP[V]) Encode(value V) ([]byte, error) {
	return rlp.EncodeToBytes(value)
}

// Decode deserializes the RLP data into a value.
func (RLP[V]) Decode(data []byte) (V, error) {
	var value V
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return value, err
	}
	return value, nil
}

// =============================================================================

// StringKey encodes string keys as their raw bytes.
type StringKey struct{}

func (StringKey) EncodeKey(key string) []byte { return []byte(key) }

func (StringKey) DecodeKey(data []byte) (string, error) { return string(data), nil }

// Uint64Key encodes integers big endian so they sort numerically.
type Uint64Key struct{}

func (Uint64Key) EncodeKey(key uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, key)
}

func (Uint64Key) DecodeKey(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64 key: invalid length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// HashKey encodes 32 byte hashes.
type HashKey struct{}

func (HashKey) EncodeKey(key common.Hash) []byte { return key.Bytes() }

func (HashKey) DecodeKey(data []byte) (common.Hash, error) {
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash key: invalid length %d", len(data))
	}
	return common.BytesToHash(data), nil
}

// AddressKey encodes 20 byte account addresses.
type AddressKey struct{}

func (AddressKey) EncodeKey(key common.Address) []byte { return key.Bytes() }

func (AddressKey) DecodeKey(data []byte) (common.Address, error) {
	if len(data) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address key: invalid length %d", len(data))
	}
	return common.BytesToAddress(data), nil
}

// UnitKey is the key of a table holding a single value.
type UnitKey struct{}

func (UnitKey) EncodeKey(struct{}) []byte { return nil }

func (UnitKey) DecodeKey([]byte) (struct{}, error) { return struct{}{}, nil }
