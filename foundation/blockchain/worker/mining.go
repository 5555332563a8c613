package worker

import (
	"context"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ethereum/go-ethereum/common"
)

// Timing of the production loop.
const (
	slotPollInterval = 100 * time.Millisecond
	peerPollInterval = time.Second
	maxMineDuration  = 60 * time.Second
)

// miningOperations handles block production.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case target := <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation(target)
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation produces blocks until the target height is reached,
// production is stopped or the node shuts down.
func (w *Worker) runMiningOperation(targetHeight int64) {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.mining.Store(true)

	defer func() {
		w.mining.Store(false)

		w.mu.Lock()
		w.cancel = nil
		w.mu.Unlock()
	}()

	params := w.state.Params()
	tip, _ := w.state.TipHeader()

	target := tip.Height
	if targetHeight > 0 {
		target += uint64(targetHeight)
	}

	for {
		if params.Network != genesis.NetworkRegtest {
			for w.state.PeerCount() == 0 {
				w.evHandler("worker: runMiningOperation: MINING: waiting for peers")
				if !w.sleep(ctx, peerPollInterval) {
					return
				}
			}
		}

		if ctx.Err() != nil || w.isShutdown() {
			return
		}

		txUpdated := w.state.Mempool().UpdatedTxNum()
		_, prevHash := w.state.TipHeader()

		t := time.Now()
		block, err := w.state.CreateNewBlock(t)
		if err != nil {
			w.evHandler("worker: runMiningOperation: MINING: ERROR: create new block: %s", err)
			if !w.sleep(ctx, slotPollInterval) {
				return
			}
			continue
		}
		w.evHandler("worker: runMiningOperation: MINING: %s assembled: txs[%d] duration[%v]", block, len(block.Txs), time.Since(t))

		w.mineBlock(ctx, block, prevHash, txUpdated)

		if params.Network != genesis.NetworkMain {
			if tip, _ := w.state.TipHeader(); tip.Height >= target {
				w.evHandler("worker: runMiningOperation: MINING: target height[%d] reached", target)
				return
			}
		}
	}
}

// mineBlock waits for the slot after the tip and signs and submits the
// block when this node holds the key of the delegate owning the slot. It
// gives up when the tip moves, the node loses its peers, or the mempool
// changed and the block should be assembled again.
func (w *Worker) mineBlock(ctx context.Context, block *chain.Block, prevHash common.Hash, txUpdated uint64) bool {
	params := w.state.Params()
	interval := time.Duration(params.BlockInterval) * time.Second
	start := time.Now()

	for {
		if params.Network != genesis.NetworkRegtest && w.state.PeerCount() == 0 {
			w.evHandler("worker: mineBlock: MINING: no peers")
			return false
		}

		tip, tipHash := w.state.TipHeader()
		if tipHash != prevHash {
			w.evHandler("worker: mineBlock: MINING: tip moved")
			return false
		}

		whenCanIStart := time.Unix(int64(tip.Time), 0).Add(interval)
		for time.Now().Before(whenCanIStart) {
			if !w.sleep(ctx, slotPollInterval) {
				return false
			}
		}

		now := time.Now()

		delegate, err := w.state.CurrentDelegate(now)
		if err != nil {
			w.evHandler("worker: mineBlock: MINING: ERROR: current delegate: %s", err)
			w.sleep(ctx, slotPollInterval)
			return false
		}

		if tip.Height+1 != block.Header.Height {
			return false
		}

		if w.state.CanProduce(delegate) {
			if err := w.state.CreateBlockRewardTx(now, delegate, block); err != nil {
				w.evHandler("worker: mineBlock: MINING: create reward tx: %s", err)
			} else {
				if err := w.state.CheckWork(block); err != nil {
					w.evHandler("worker: mineBlock: MINING: ERROR: check work: %s", err)
					return false
				}

				w.evHandler("worker: mineBlock: MINING: %s produced by %s", block, delegate.RegID)
				w.proposeBlock(block)
				return true
			}
		}

		if w.state.Mempool().UpdatedTxNum() != txUpdated || time.Since(start) > maxMineDuration {
			return false
		}

		if !w.sleep(ctx, slotPollInterval) {
			return false
		}
	}
}
