package database

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ethereum/go-ethereum/common"
)

// TxLocation is where a confirmed transaction lives in the chain.
type TxLocation struct {
	BlockHash common.Hash
	Height    uint64
	Index     uint32
}

// IsEmpty reports whether the location is a tombstone.
func (l *TxLocation) IsEmpty() bool {
	return l.BlockHash == (common.Hash{})
}

// SetEmpty turns the location into a tombstone.
func (l *TxLocation) SetEmpty() {
	*l = TxLocation{}
}

// TxCache is the global index of confirmed transaction ids.
type TxCache struct {
	txs *kvcache.Cache[common.Hash, TxLocation]
}

// NewTxCache constructs the transaction index backed by the store.
func NewTxCache(store kvcache.Store) *TxCache {
	return &TxCache{
		txs: kvcache.New[common.Hash, TxLocation](prefixTxIndex, kvcache.HashKey{}, kvcache.RLP[TxLocation]{}, store),
	}
}

// Child constructs an overlay over the transaction index.
func (tc *TxCache) Child() *TxCache {
	return &TxCache{
		txs: tc.txs.Child(),
	}
}

// HaveTx returns the hash of the block holding the transaction, or the zero
// hash when the transaction is not confirmed.
func (tc *TxCache) HaveTx(txID common.Hash) (common.Hash, error) {
	loc, _, err := tc.txs.Get(txID)
	if err != nil {
		return common.Hash{}, err
	}
	return loc.BlockHash, nil
}

// GetTx returns the location of a confirmed transaction.
func (tc *TxCache) GetTx(txID common.Hash) (TxLocation, bool, error) {
	return tc.txs.Get(txID)
}

// AddBlockTxs indexes the transactions of a connected block.
func (tc *TxCache) AddBlockTxs(blockHash common.Hash, height uint64, txIDs []common.Hash) error {
	for i, id := range txIDs {
		loc := TxLocation{BlockHash: blockHash, Height: height, Index: uint32(i)}
		if err := tc.txs.Set(id, loc); err != nil {
			return err
		}
	}
	return nil
}

// RemoveBlockTxs drops the transactions of a disconnected block.
func (tc *TxCache) RemoveBlockTxs(txIDs []common.Hash) error {
	for _, id := range txIDs {
		if err := tc.txs.Erase(id); err != nil {
			return err
		}
	}
	return nil
}

// Flush commits the transaction index.
func (tc *TxCache) Flush() error { return tc.txs.Flush() }

// SetUndoLog sets the undo log for the transaction index.
func (tc *TxCache) SetUndoLog(undo *kvcache.UndoLog) { tc.txs.SetUndoLog(undo) }

// Undo restores the transaction index from the log.
func (tc *TxCache) Undo(undo *kvcache.UndoLog) error { return tc.txs.Undo(undo) }

// Size returns the pending serialized size of the transaction index.
func (tc *TxCache) Size() int { return tc.txs.Size() }

// Clear drops the pending changes of the transaction index.
func (tc *TxCache) Clear() { tc.txs.Clear() }
