package database

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// RegIDMaturity is the number of blocks a registration id must age before
// it can own assets.
const RegIDMaturity = 100

// RegID is the registered account identifier: the height of the block that
// registered the account and the index of the registering transaction.
type RegID struct {
	Height uint32
	Index  uint16
}

// NewRegID constructs a registration id.
func NewRegID(height uint32, index uint16) RegID {
	return RegID{
		Height: height,
		Index:  index,
	}
}

// ParseRegID parses the "height-index" form of a registration id.
func ParseRegID(s string) (RegID, error) {
	height, index, found := strings.Cut(s, "-")
	if !found {
		return RegID{}, fmt.Errorf("invalid regid %q", s)
	}

	h, err := strconv.ParseUint(height, 10, 32)
	if err != nil {
		return RegID{}, fmt.Errorf("invalid regid height %q: %w", s, err)
	}

	i, err := strconv.ParseUint(index, 10, 16)
	if err != nil {
		return RegID{}, fmt.Errorf("invalid regid index %q: %w", s, err)
	}

	return NewRegID(uint32(h), uint16(i)), nil
}

// String implements the fmt.Stringer interface.
func (r RegID) String() string {
	return fmt.Sprintf("%d-%d", r.Height, r.Index)
}

// IsEmpty reports whether the id is unset.
func (r *RegID) IsEmpty() bool {
	return r.Height == 0 && r.Index == 0
}

// SetEmpty clears the id.
func (r *RegID) SetEmpty() {
	*r = RegID{}
}

// IsMature reports whether the id has aged enough at the specified height.
func (r RegID) IsMature(height uint64) bool {
	return height > uint64(r.Height)+RegIDMaturity
}

// Bytes returns the fixed width, order preserving encoding of the id.
func (r RegID) Bytes() []byte {
	b := binary.BigEndian.AppendUint32(make([]byte, 0, 6), r.Height)
	return binary.BigEndian.AppendUint16(b, r.Index)
}

func regIDFromBytes(data []byte) (RegID, error) {
	if len(data) < 6 {
		return RegID{}, fmt.Errorf("regid key: invalid length %d", len(data))
	}

	return RegID{
		Height: binary.BigEndian.Uint32(data[:4]),
		Index:  binary.BigEndian.Uint16(data[4:6]),
	}, nil
}

// regIDKey is the key codec for tables keyed by registration id.
type regIDKey struct{}

func (regIDKey) EncodeKey(key RegID) []byte { return key.Bytes() }

func (regIDKey) DecodeKey(data []byte) (RegID, error) {
	if len(data) != 6 {
		return RegID{}, fmt.Errorf("regid key: invalid length %d", len(data))
	}
	return regIDFromBytes(data)
}
