// Package database holds the chain state tables: accounts, assets, CDPs,
// delegates, contracts, confirmed transactions and receipts. Each table is
// a layered cache so a block or a transaction can be applied to a private
// overlay and flushed only when it succeeds.
package database

import (
	"errors"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
)

// ErrNotRoot is returned when a commit is asked of a child wrapper.
var ErrNotRoot = errors.New("wrapper is not backed by a store")

// CacheWrapper bundles every domain cache into one unit of work. A child
// wrapper layers each domain cache over the matching cache of its parent,
// so dropping it without a flush leaves the parent untouched.
type CacheWrapper struct {
	Accounts   *AccountCache
	Assets     *AssetCache
	CDPs       *CDPCache
	ClosedCDPs *ClosedCDPCache
	Delegates  *DelegateCache
	Contracts  *ContractCache
	Txs        *TxCache
	Receipts   *ReceiptCache
	Logs       *LogCache

	batch *kvcache.Batch
}

// NewCacheWrapper constructs the root wrapper backed by the store. The
// tables of a root wrapper reach the store through one batch, so a flush
// writes every table or none of them.
func NewCacheWrapper(store kvcache.Store) *CacheWrapper {
	batch := kvcache.NewBatch(store)

	return &CacheWrapper{
		Accounts:   NewAccountCache(batch),
		Assets:     NewAssetCache(batch),
		CDPs:       NewCDPCache(batch),
		ClosedCDPs: NewClosedCDPCache(batch),
		Delegates:  NewDelegateCache(batch),
		Contracts:  NewContractCache(batch),
		Txs:        NewTxCache(batch),
		Receipts:   NewReceiptCache(batch),
		Logs:       NewLogCache(batch),
		batch:      batch,
	}
}

// Child constructs an overlay wrapper over this one.
func (cw *CacheWrapper) Child() *CacheWrapper {
	return &CacheWrapper{
		Accounts:   cw.Accounts.Child(),
		Assets:     cw.Assets.Child(),
		CDPs:       cw.CDPs.Child(),
		ClosedCDPs: cw.ClosedCDPs.Child(),
		Delegates:  cw.Delegates.Child(),
		Contracts:  cw.Contracts.Child(),
		Txs:        cw.Txs.Child(),
		Receipts:   cw.Receipts.Child(),
		Logs:       cw.Logs.Child(),
	}
}

type domainCache interface {
	Flush() error
	SetUndoLog(undo *kvcache.UndoLog)
	Undo(undo *kvcache.UndoLog) error
	Size() int
	Clear()
}

// caches returns the domain caches in flush order.
func (cw *CacheWrapper) caches() []domainCache {
	return []domainCache{
		cw.Accounts,
		cw.Assets,
		cw.CDPs,
		cw.ClosedCDPs,
		cw.Delegates,
		cw.Contracts,
		cw.Txs,
		cw.Receipts,
		cw.Logs,
	}
}

// Flush commits every domain cache in a fixed order. A child wrapper
// merges into its parent. A root wrapper writes all of its tables in one
// store batch.
func (cw *CacheWrapper) Flush() error {
	if cw.batch != nil {
		return cw.batch.Commit(cw.flush)
	}
	return cw.flush()
}

// Commit writes every table of a root wrapper together with the extra ops
// in one store batch. When it fails the store is untouched, but tables
// already staged have dropped their pending changes and the rest still
// hold theirs, so the caller restores the wrapper from its undo log.
func (cw *CacheWrapper) Commit(extra ...kvcache.Op) error {
	if cw.batch == nil {
		return ErrNotRoot
	}
	return cw.batch.Commit(cw.flush, extra...)
}

func (cw *CacheWrapper) flush() error {
	for _, c := range cw.caches() {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// SetUndoLog directs the undo entries of every domain cache to the log.
func (cw *CacheWrapper) SetUndoLog(undo *kvcache.UndoLog) {
	for _, c := range cw.caches() {
		c.SetUndoLog(undo)
	}
}

// Undo restores every domain cache from the log.
func (cw *CacheWrapper) Undo(undo *kvcache.UndoLog) error {
	for _, c := range cw.caches() {
		if err := c.Undo(undo); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops the pending changes of every domain cache. On the root
// wrapper reads then come from the store again.
func (cw *CacheWrapper) Clear() {
	for _, c := range cw.caches() {
		c.Clear()
	}
}

// Size returns the pending serialized size of every domain cache.
func (cw *CacheWrapper) Size() int {
	var size int
	for _, c := range cw.caches() {
		size += c.Size()
	}
	return size
}
