// Package dpos implements the delegated proof of stake rules every node
// must agree on: the per height shuffle of the delegate list, the mapping
// of a time slot to the delegate producing in it and the adjustment of the
// fuel rate.
package dpos

import (
	"encoding/binary"
	"strconv"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
)

// Shuffle returns the delegate list permuted for the height. The result is
// a pure function of the height and the list.
//
// The seed is the hash of the round number, ceil(height / len(list)). Each
// digest provides four 8 byte little endian words, each picking the swap
// target for the next position. After four positions the digest is
// appended to the hash stream and rehashed, and one position is skipped
// as a swap source.
func Shuffle[T any](height uint64, list []T) []T {
	out := append([]T(nil), list...)

	n := uint64(len(out))
	if n == 0 {
		return out
	}

	round := height / n
	if height%n > 0 {
		round++
	}

	hw := signature.NewHashWriter()
	hw.WriteString(strconv.FormatUint(round, 10))
	seed := hw.Sum()

	for i := uint64(0); i < n; i++ {
		for x := 0; x < 4 && i < n; i, x = i+1, x+1 {
			source := binary.LittleEndian.Uint64(seed[x*8 : x*8+8])
			target := source % n
			out[target], out[i] = out[i], out[target]
		}

		hw.WriteHash(seed)
		seed = hw.Sum()
	}

	return out
}

// SlotIndex returns the time slot the unix time falls in.
func SlotIndex(unixTime uint64, interval uint64) uint64 {
	return unixTime / interval
}

// CurrentDelegate returns the delegate producing in the slot of the unix
// time, from the shuffled delegate list.
func CurrentDelegate[T any](unixTime uint64, interval uint64, list []T) (T, bool) {
	var zero T
	if len(list) == 0 || interval == 0 {
		return zero, false
	}

	index := SlotIndex(unixTime, interval) % uint64(len(list))
	return list[index], true
}
