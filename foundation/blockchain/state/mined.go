package state

import (
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ethereum/go-ethereum/common"
)

// maxMinedBlocks is the capacity of the mined block ring.
const maxMinedBlocks = 100

// MinedBlockInfo describes a block this node produced.
type MinedBlockInfo struct {
	Time      time.Time   `json:"time"`
	Nonce     uint64      `json:"nonce"`
	Height    uint64      `json:"height"`
	TotalFuel uint64      `json:"total_fuel"`
	FuelRate  uint64      `json:"fuel_rate"`
	TotalFees uint64      `json:"total_fees"`
	TxCount   int         `json:"tx_count"`
	Hash      common.Hash `json:"hash"`
	PrevHash  common.Hash `json:"prev_hash"`
}

func newMinedBlockInfo(block *chain.Block) MinedBlockInfo {
	return MinedBlockInfo{
		Time:      time.Unix(int64(block.Header.Time), 0).UTC(),
		Nonce:     block.Header.Nonce,
		Height:    block.Header.Height,
		TotalFuel: block.Header.Fuel,
		FuelRate:  block.Header.FuelRate,
		TotalFees: block.TotalFees(),
		TxCount:   len(block.Txs),
		Hash:      block.Hash(),
		PrevHash:  block.Header.PrevBlockHash,
	}
}

// minedRing keeps the most recent mined blocks, dropping the oldest once
// full.
type minedRing struct {
	blocks []MinedBlockInfo
	next   int
}

func (r *minedRing) push(info MinedBlockInfo) {
	if len(r.blocks) < maxMinedBlocks {
		r.blocks = append(r.blocks, info)
		return
	}

	r.blocks[r.next] = info
	r.next = (r.next + 1) % maxMinedBlocks
}

// newest returns up to count blocks, the most recent first.
func (r *minedRing) newest(count int) []MinedBlockInfo {
	n := len(r.blocks)
	if count <= 0 || count > n {
		count = n
	}

	out := make([]MinedBlockInfo, count)
	last := n - 1
	if n == maxMinedBlocks {
		last = (r.next + maxMinedBlocks - 1) % maxMinedBlocks
	}

	for i := range count {
		out[i] = r.blocks[(last-i+n)%n]
	}

	return out
}

// =============================================================================

// MinedBlocks returns up to count of the blocks this node produced, the
// most recent first. A count of zero or less returns all of them.
func (s *State) MinedBlocks(count int) []MinedBlockInfo {
	s.minedMu.Lock()
	defer s.minedMu.Unlock()

	return s.mined.newest(count)
}

func (s *State) recordMined(block *chain.Block) {
	s.minedMu.Lock()
	defer s.minedMu.Unlock()

	s.mined.push(newMinedBlockInfo(block))
}
