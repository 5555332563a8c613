// Package worker implements block production and peer upkeep for the
// blockchain.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
)

// peerUpdateInterval represents the interval of checking that the known
// peers are still reachable.
const peerUpdateInterval = time.Minute

// maxTxShareRequests represents the max number of pending tx network share
// requests that can be outstanding before share requests are dropped.
const maxTxShareRequests = 100

// Set of error variables for block generation.
var (
	ErrTargetHeight = errors.New("target height must be positive outside main net")
	ErrNoMinerKey   = errors.New("wallet holds no key to produce blocks")
)

// =============================================================================

// Worker manages the block production workflow for the blockchain.
type Worker struct {
	state       *state.State
	wg          sync.WaitGroup
	ticker      *time.Ticker
	shut        chan struct{}
	startMining chan int64
	txSharing   chan *chain.Tx
	evHandler   state.EventHandler

	mu     sync.Mutex
	cancel context.CancelFunc
	mining atomic.Bool
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. Blocks are produced only after
// StartMining is called.
func Run(state *state.State, evHandler state.EventHandler) *Worker {
	w := Worker{
		state:       state,
		ticker:      time.NewTicker(peerUpdateInterval),
		shut:        make(chan struct{}),
		startMining: make(chan int64, 1),
		txSharing:   make(chan *chain.Tx, maxTxShareRequests),
		evHandler:   evHandler,
	}

	// Register this worker with the state package.
	state.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareTxOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal stop mining")
	w.StopMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// StartMining starts producing blocks, replacing any production already
// running. Outside main net production stops once the chain has grown by
// the target height. On main net production never stops on its own.
func (w *Worker) StartMining(targetHeight int64) error {
	if w.state.Params().Network != genesis.NetworkMain && targetHeight <= 0 {
		return ErrTargetHeight
	}

	if len(w.state.Wallet().Addresses()) == 0 {
		return ErrNoMinerKey
	}

	w.StopMining()

	select {
	case w.startMining <- targetHeight:
	default:
	}
	w.evHandler("worker: StartMining: mining signaled: target[%d]", targetHeight)

	return nil
}

// StopMining cancels block production and any start request still
// pending.
func (w *Worker) StopMining() {
	select {
	case <-w.startMining:
	default:
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.evHandler("worker: StopMining: MINING: CANCEL: signaled")
	}
}

// IsMining reports whether block production is running.
func (w *Worker) IsMining() bool {
	return w.mining.Load()
}

// SignalShareTx queues the transaction for sharing with the known peers.
// The request is dropped when the queue is full.
func (w *Worker) SignalShareTx(tx *chain.Tx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared")
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// sleep waits for the duration. It reports false when the context is
// cancelled or a shutdown is signaled first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.shut:
		return false
	}
}
