// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// Entry is a transaction held by the mempool with the values captured when
// it was accepted.
type Entry struct {
	Tx       *chain.Tx
	Fee      uint64
	Size     int
	Priority float64
	Time     time.Time
	Height   uint64
}

// NewEntry constructs an entry for a transaction accepted at the height.
func NewEntry(tx *chain.Tx, height uint64, now time.Time) Entry {
	return Entry{
		Tx:       tx,
		Fee:      tx.Fees,
		Size:     tx.Size(),
		Priority: tx.Priority(),
		Time:     now,
		Height:   height,
	}
}

// FeePerKb returns the fee left after paying for the fuel, per kilobyte.
func (e Entry) FeePerKb(fuelRate uint64) float64 {
	if e.Size == 0 {
		return 0
	}

	fuel := e.Tx.Fuel(fuelRate)
	if fuel >= e.Fee {
		return 0
	}

	return float64(e.Fee-fuel) / (float64(e.Size) / 1000)
}

// item is an entry with its position in insertion order.
type item struct {
	entry Entry
	seq   uint64
}

// =============================================================================

// Mempool holds the transactions waiting for a block. Every accepted
// transaction has been executed against a private view layered over the
// chain state, so later transactions see the effects of earlier ones.
type Mempool struct {
	mu      sync.RWMutex
	base    *database.CacheWrapper
	view    *database.CacheWrapper
	pool    map[common.Hash]item
	seq     uint64
	updated uint64
}

// New constructs a mempool layered over the chain state.
func New(base *database.CacheWrapper) *Mempool {
	return &Mempool{
		base: base,
		view: base.Child(),
		pool: make(map[common.Hash]item),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// UpdatedTxNum returns a counter bumped on every change to the pool.
func (mp *Mempool) UpdatedTxNum() uint64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.updated
}

// Exists reports whether the transaction is in the pool.
func (mp *Mempool) Exists(txID common.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Lookup returns the transaction with the id.
func (mp *Mempool) Lookup(txID common.Hash) (*chain.Tx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	it, exists := mp.pool[txID]
	if !exists {
		return nil, false
	}
	return it.entry.Tx, true
}

// Entries returns the pooled transactions in the order they were accepted.
func (mp *Mempool) Entries() []Entry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	items := mp.ordered()

	entries := make([]Entry, len(items))
	for i, it := range items {
		entries[i] = it.entry
	}

	return entries
}

// CheckTx validates the transaction against the pool state without
// accepting it.
func (mp *Mempool) CheckTx(ctx chain.Context, tx *chain.Tx) error {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if err := mp.checkAdmission(tx); err != nil {
		return err
	}

	_, err := mp.apply(ctx, tx)
	return err
}

// AddUnchecked validates the entry's transaction against the pool state
// and accepts it. The effects of the transaction become part of the pool
// state. A failing transaction leaves the pool untouched.
func (mp *Mempool) AddUnchecked(ctx chain.Context, entry Entry) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := mp.checkAdmission(entry.Tx); err != nil {
		return err
	}

	cw, err := mp.apply(ctx, entry.Tx)
	if err != nil {
		return err
	}

	if err := cw.Flush(); err != nil {
		return err
	}

	mp.insert(entry)

	return nil
}

// Remove deletes the transaction from the pool. Transactions that depend on
// it stay until the next rescan.
func (mp *Mempool) Remove(txID common.Hash) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[txID]; !exists {
		return false
	}

	delete(mp.pool, txID)
	mp.updated++

	return true
}

// Clear drops every transaction and resets the pool state.
func (mp *Mempool) Clear() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[common.Hash]item)
	mp.view = mp.base.Child()
	mp.updated++
}

// Rescan rebuilds the pool state over the chain state and replays every
// transaction in the order it was accepted. Transactions that no longer
// pass are dropped and returned.
func (mp *Mempool) Rescan(ctx chain.Context, base *database.CacheWrapper) []*chain.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.base = base
	mp.view = base.Child()

	var removed []*chain.Tx
	for _, it := range mp.ordered() {
		txID := it.entry.Tx.Hash()

		err := mp.checkConfirmed(it.entry.Tx)
		if err == nil {
			var cw *database.CacheWrapper
			if cw, err = mp.apply(ctx, it.entry.Tx); err == nil {
				err = cw.Flush()
			}
		}

		if err != nil {
			delete(mp.pool, txID)
			mp.updated++
			removed = append(removed, it.entry.Tx)
		}
	}

	return removed
}

// PriorityTxs returns the transactions valid at the height that are not
// yet confirmed, ordered for inclusion in a block. The valid height window
// is the chain's tx cache height.
func (mp *Mempool) PriorityTxs(height uint64, fuelRate uint64, txCacheHeight uint64) []Entry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	list := make(byPriority, 0, len(mp.pool))
	for txID, it := range mp.pool {
		if !it.entry.Tx.IsValidHeight(height, txCacheHeight) {
			continue
		}

		blockHash, err := mp.base.Txs.HaveTx(txID)
		if err != nil || blockHash != (common.Hash{}) {
			continue
		}

		list = append(list, ranked{
			entry:    it.entry,
			txID:     txID,
			feePerKb: it.entry.FeePerKb(fuelRate),
		})
	}

	sort.Sort(list)

	entries := make([]Entry, len(list))
	for i, r := range list {
		entries[i] = r.entry
	}

	return entries
}

// =============================================================================

// checkAdmission rejects transactions that can never enter the pool.
func (mp *Mempool) checkAdmission(tx *chain.Tx) error {
	if tx.IsReward() {
		return chain.Reject(chain.RejectInvalid, "tx-coinbase-to-mempool", "%s", tx)
	}

	if _, exists := mp.pool[tx.Hash()]; exists {
		return chain.Reject(chain.RejectDuplicate, "tx-already-in-mempool", "%s", tx)
	}

	return mp.checkConfirmed(tx)
}

// checkConfirmed rejects transactions already included in a block.
func (mp *Mempool) checkConfirmed(tx *chain.Tx) error {
	blockHash, err := mp.base.Txs.HaveTx(tx.Hash())
	if err != nil {
		return err
	}
	if blockHash != (common.Hash{}) {
		return chain.Reject(chain.RejectDuplicate, "tx-duplicate-confirmed", "%s in block %s", tx, blockHash.Hex())
	}
	return nil
}

// apply checks and executes the transaction on a fresh overlay of the pool
// state. The overlay is returned for the caller to keep or drop.
func (mp *Mempool) apply(ctx chain.Context, tx *chain.Tx) (*database.CacheWrapper, error) {
	cw := mp.view.Child()
	txCtx := ctx.WithCache(cw).WithState(&chain.ValidationState{})

	if err := tx.Check(txCtx); err != nil {
		return nil, err
	}
	if err := tx.Execute(txCtx); err != nil {
		return nil, err
	}

	return cw, nil
}

func (mp *Mempool) insert(entry Entry) {
	mp.seq++
	mp.pool[entry.Tx.Hash()] = item{
		entry: entry,
		seq:   mp.seq,
	}
	mp.updated++
}

// ordered returns the pool in insertion order.
func (mp *Mempool) ordered() []item {
	items := make(bySeq, 0, len(mp.pool))
	for _, it := range mp.pool {
		items = append(items, it)
	}
	sort.Sort(items)
	return items
}
