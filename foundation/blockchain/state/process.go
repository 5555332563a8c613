package state

import (
	"fmt"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
)

// ProcessBlock validates the block against the tip and connects it. On
// success the chain state, the block store and the mempool reflect the
// new tip.
func (s *State) ProcessBlock(block *chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.processBlock(block)
}

// CheckWork submits a block this node produced. A block that no longer
// extends the tip is dropped.
func (s *State) CheckWork(block *chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Header.PrevBlockHash != s.tipHash() {
		return fmt.Errorf("%s: %w", block, ErrStaleBlock)
	}

	if err := s.processBlock(block); err != nil {
		return err
	}

	s.metrics.blocksProduced.Inc()
	s.recordMined(block)

	return nil
}

func (s *State) processBlock(block *chain.Block) error {
	s.evHandler("state: ProcessBlock: started: %s prev[%s]", block, block.Header.PrevBlockHash.Hex())

	if err := s.connectBlock(block); err != nil {
		s.metrics.blocksRejected.Inc()
		s.evHandler("state: ProcessBlock: rejected: %s: %s", block, err)
		return err
	}

	s.metrics.blocksConnected.Inc()
	s.metrics.tipHeight.Set(float64(block.Header.Height))
	s.metrics.fuelRate.Set(float64(block.Header.FuelRate))

	removed := s.mempool.Rescan(s.mempoolContext(time.Now()), s.cw)
	for _, tx := range removed {
		s.evHandler("state: ProcessBlock: mempool evicted: %s", tx)
	}
	s.metrics.mempoolSize.Set(float64(s.mempool.Count()))

	s.evHandler("state: ProcessBlock: completed: %s txs[%d] fuel[%d]", block, len(block.Txs), block.Header.Fuel)

	return nil
}

// connectBlock runs every check a block must pass, executes it and makes
// it the tip. Nothing reaches the chain state unless every check passes.
func (s *State) connectBlock(block *chain.Block) error {
	tip := s.tipHeader()
	hdr := block.Header

	if hdr.PrevBlockHash != s.tipHash() {
		return chain.Reject(chain.RejectInvalid, "bad-prevblk", "%s does not extend %s", block, s.tipHash().Hex())
	}

	if hdr.Height != tip.Height+1 {
		return chain.Reject(chain.RejectInvalid, "bad-height", "height %d after %d", hdr.Height, tip.Height)
	}

	if hdr.Version != chain.BlockVersion {
		return chain.Reject(chain.RejectObsolete, "bad-version", "version %d", hdr.Version)
	}

	if len(block.Txs) == 0 || !block.Txs[0].IsReward() {
		return chain.Reject(chain.RejectInvalid, "bad-cb-missing", "first tx is not a reward")
	}

	for _, tx := range block.Txs[1:] {
		if tx.IsReward() {
			return chain.Reject(chain.RejectInvalid, "bad-cb-multiple", "more than one reward")
		}
	}

	if size := block.Size(); size > s.params.MaxBlockSize {
		return chain.Reject(chain.RejectInvalid, "bad-blk-length", "size %d above %d", size, s.params.MaxBlockSize)
	}

	if hdr.Time <= tip.Time {
		return chain.Reject(chain.RejectInvalid, "time-too-old", "time %d not after %d", hdr.Time, tip.Time)
	}

	if rate := s.nextFuelRate(); hdr.FuelRate != rate {
		return chain.Reject(chain.RejectInvalid, "bad-fuel-rate", "fuel rate %d, expected %d", hdr.FuelRate, rate)
	}

	if err := s.verifyRewardTx(block, s.cw, true); err != nil {
		return err
	}

	undo := kvcache.NewUndoLog()
	cw := s.cw.Child()
	cw.SetUndoLog(undo)

	ctx := s.chainContext(hdr.Time, hdr.FuelRate)

	var rewardFees uint64
	for i, tx := range block.Txs {
		txCW := cw.Child()
		txCtx := ctx.WithCache(txCW).WithState(&chain.ValidationState{})
		txCtx.Index = i

		if err := packTx(txCtx, tx); err != nil {
			return err
		}

		if err := txCW.Flush(); err != nil {
			return err
		}

		if i == 0 {
			continue
		}

		fuel := tx.Fuel(hdr.FuelRate)
		if tx.Fees < fuel {
			return chain.Reject(chain.RejectInvalid, "bad-tx-fuel", "%s fees %d below fuel %d", tx, tx.Fees, fuel)
		}
		rewardFees += tx.Fees - fuel
	}

	_, reward, err := block.RewardTx()
	if err != nil {
		return err
	}
	if reward.RewardFees != rewardFees {
		return chain.Reject(chain.RejectInvalid, "bad-reward-amount", "reward %d, fees less fuel %d", reward.RewardFees, rewardFees)
	}

	if err := s.matureReward(ctx.WithCache(cw).WithState(&chain.ValidationState{}), block); err != nil {
		return err
	}

	hash := block.Hash()
	if err := cw.Txs.AddBlockTxs(hash, hdr.Height, block.TxHashes()); err != nil {
		return err
	}

	if err := s.rotateDelegates(cw); err != nil {
		return err
	}

	ops, err := chain.WriteOps(block)
	if err != nil {
		return err
	}

	if err := cw.Flush(); err != nil {
		return s.restore(undo, fmt.Errorf("merge chain state for %s: %w", block, err))
	}

	if err := s.cw.Commit(ops...); err != nil {
		return s.restore(undo, fmt.Errorf("commit %s: %w", block, err))
	}

	s.undo.Add(hash, undo)
	s.index = append(s.index, indexEntry{hash: hash, header: hdr})

	return nil
}

// restore puts the root wrapper back to the state it had before the
// block was merged into it and returns err.
func (s *State) restore(undo *kvcache.UndoLog, err error) error {
	if uerr := s.cw.Undo(undo); uerr != nil {
		s.cw.Clear()
		s.evHandler("state: restore: undo failed, pending changes dropped: %s", uerr)
	}
	return err
}

// matureReward pays the producer of the block the maturity window back.
func (s *State) matureReward(ctx *chain.Context, block *chain.Block) error {
	maturity := s.params.RewardMaturity

	matured := block
	if maturity > 0 {
		if block.Header.Height <= maturity {
			return nil
		}

		var err error
		if matured, err = s.blocks.GetBlockByHeight(block.Header.Height - maturity); err != nil {
			return err
		}
	}

	reward, _, err := matured.RewardTx()
	if err != nil {
		return err
	}

	ctx.Index = chain.RewardMatureIndex
	if err := reward.Execute(ctx); err != nil {
		return err
	}

	s.evHandler("state: matureReward: %s: producer[%s]", matured, reward.From)

	return nil
}

// =============================================================================

// DisconnectTip rolls the chain state back to the parent of the tip with
// the undo log kept when the tip was connected. The transactions of the
// block go back to the mempool. The disconnected block is returned.
func (s *State) DisconnectTip() (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.index) == 1 {
		return nil, ErrGenesisTip
	}

	hash := s.tipHash()

	v, exists := s.undo.Get(hash)
	if !exists {
		return nil, fmt.Errorf("%s: %w", hash.Hex(), ErrNoUndo)
	}
	undo := v.(*kvcache.UndoLog)

	block, err := s.blocks.GetBlock(hash)
	if err != nil {
		return nil, err
	}

	if err := s.cw.Undo(undo); err != nil {
		return nil, err
	}

	if err := s.cw.Commit(chain.RemoveOps(block)...); err != nil {
		s.cw.Clear()
		return nil, fmt.Errorf("commit disconnect of %s: %w", block, err)
	}

	s.undo.Remove(hash)
	s.index = s.index[:len(s.index)-1]

	tip := s.tipHeader()
	s.metrics.tipHeight.Set(float64(tip.Height))
	s.metrics.fuelRate.Set(float64(tip.FuelRate))

	ctx := s.mempoolContext(time.Now())
	s.mempool.Rescan(ctx, s.cw)

	for _, tx := range block.Txs[1:] {
		if err := s.mempool.AddUnchecked(ctx, mempool.NewEntry(tx, ctx.Height, time.Now())); err != nil {
			s.evHandler("state: DisconnectTip: dropped %s: %s", tx, err)
		}
	}
	s.metrics.mempoolSize.Set(float64(s.mempool.Count()))

	s.evHandler("state: DisconnectTip: %s: new tip height[%d]", block, tip.Height)

	return block, nil
}
