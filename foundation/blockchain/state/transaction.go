package state

import (
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
)

// SubmitTx validates a transaction received from a wallet and adds it to
// the mempool. Accepted transactions are shared with the known peers.
func (s *State) SubmitTx(tx *chain.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.submitTx(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
	}

	return nil
}

// SubmitNodeTx adds a transaction shared by a peer to the mempool.
func (s *State) SubmitNodeTx(tx *chain.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submitTx(tx)
}

func (s *State) submitTx(tx *chain.Tx) error {
	now := time.Now()
	ctx := s.mempoolContext(now)

	if err := s.mempool.AddUnchecked(ctx, mempool.NewEntry(tx, ctx.Height, now)); err != nil {
		s.metrics.txRejected(rejectReason(err))
		s.evHandler("state: SubmitTx: rejected: %s: %s", tx, err)
		return err
	}

	s.metrics.mempoolSize.Set(float64(s.mempool.Count()))
	s.evHandler("state: SubmitTx: accepted: %s", tx)

	return nil
}

// mempoolContext returns the context transactions are admitted with: the
// block after the tip assembled at the time.
func (s *State) mempoolContext(now time.Time) chain.Context {
	tip := s.tipHeader()
	blockTime := max(uint64(now.Unix()), tip.Time+1)

	return s.chainContext(blockTime, s.nextFuelRate())
}
