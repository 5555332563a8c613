package signature

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/ethereum/go-ethereum/common"
)

// HashWriter accumulates serialized data and produces the double SHA-256
// of everything written so far. Strings are written with a compact size
// length prefix.
type HashWriter struct {
	h hash.Hash
}

// NewHashWriter constructs an empty hash writer.
func NewHashWriter() *HashWriter {
	return &HashWriter{
		h: sha256.New(),
	}
}

// Write appends raw bytes to the stream.
func (hw *HashWriter) Write(data []byte) {
	hw.h.Write(data)
}

// WriteHash appends the 32 raw bytes of the hash.
func (hw *HashWriter) WriteHash(h common.Hash) {
	hw.h.Write(h.Bytes())
}

// WriteString appends the compact size length of s followed by its bytes.
func (hw *HashWriter) WriteString(s string) {
	hw.h.Write(compactSize(uint64(len(s))))
	hw.h.Write([]byte(s))
}

// Sum returns the double SHA-256 of the stream. The stream is left intact
// so more data can be appended.
func (hw *HashWriter) Sum() common.Hash {
	first := hw.h.Sum(nil)
	second := sha256.Sum256(first)
	return common.Hash(second)
}

func compactSize(n uint64) []byte {
	switch {
	case n < 253:
		return []byte{byte(n)}
	case n <= 0xffff:
		return binary.LittleEndian.AppendUint16([]byte{253}, uint16(n))
	case n <= 0xffffffff:
		return binary.LittleEndian.AppendUint32([]byte{254}, uint32(n))
	}
	return binary.LittleEndian.AppendUint64([]byte{255}, n)
}
