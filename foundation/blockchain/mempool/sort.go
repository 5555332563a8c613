package mempool

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// ranked is an entry with the values it is ordered by.
type ranked struct {
	entry    Entry
	txID     common.Hash
	feePerKb float64
}

// byPriority provides sorting support for block inclusion.
type byPriority []ranked

// Len returns the number of transactions in the list.
func (bp byPriority) Len() int {
	return len(bp)
}

// Less orders the list by priority, then by fee per kilobyte, both in
// descending order. Equal transactions fall back to the larger id first so
// every node builds the same order.
func (bp byPriority) Less(i, j int) bool {
	a, b := bp[i], bp[j]

	if a.entry.Priority != b.entry.Priority {
		return a.entry.Priority > b.entry.Priority
	}
	if a.feePerKb != b.feePerKb {
		return a.feePerKb > b.feePerKb
	}
	return bytes.Compare(a.txID.Bytes(), b.txID.Bytes()) > 0
}

// Swap moves transactions in the order of the priority value.
func (bp byPriority) Swap(i, j int) {
	bp[i], bp[j] = bp[j], bp[i]
}

// =============================================================================

// bySeq provides sorting support by the order transactions were accepted.
type bySeq []item

// Len returns the number of transactions in the list.
func (bs bySeq) Len() int {
	return len(bs)
}

// Less helps to sort the list in the order transactions were accepted.
func (bs bySeq) Less(i, j int) bool {
	return bs[i].seq < bs[j].seq
}

// Swap moves transactions in the order of acceptance.
func (bs bySeq) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}
