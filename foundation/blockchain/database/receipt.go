package database

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ethereum/go-ethereum/common"
)

// ReceiptCode names the reason funds moved.
type ReceiptCode uint16

// Set of receipt codes.
const (
	ReceiptBlockReward ReceiptCode = iota + 1
	ReceiptTransfer
	ReceiptAssetIssueFee
	ReceiptAssetUpdateFee
	ReceiptCDPStake
	ReceiptCDPMint
	ReceiptCDPRepay
	ReceiptCDPRelease
	ReceiptDelegateVote
	ReceiptContractTransfer
)

var receiptNames = map[ReceiptCode]string{
	ReceiptBlockReward:      "block-reward",
	ReceiptTransfer:         "transfer",
	ReceiptAssetIssueFee:    "asset-issue-fee",
	ReceiptAssetUpdateFee:   "asset-update-fee",
	ReceiptCDPStake:         "cdp-stake",
	ReceiptCDPMint:          "cdp-mint",
	ReceiptCDPRepay:         "cdp-repay",
	ReceiptCDPRelease:       "cdp-release",
	ReceiptDelegateVote:     "delegate-vote",
	ReceiptContractTransfer: "contract-transfer",
}

// String implements the fmt.Stringer interface.
func (c ReceiptCode) String() string {
	if name, exists := receiptNames[c]; exists {
		return name
	}
	return fmt.Sprintf("receipt(%d)", uint16(c))
}

// Receipt records one movement of funds caused by a transaction. A zero
// From is the chain itself.
type Receipt struct {
	From   common.Address
	To     common.Address
	Symbol string
	Amount uint64
	Code   ReceiptCode
}

// ReceiptCache maps a transaction id to the receipts it emitted.
type ReceiptCache struct {
	receipts *kvcache.Cache[common.Hash, []Receipt]
}

// NewReceiptCache constructs the receipt table backed by the store.
func NewReceiptCache(store kvcache.Store) *ReceiptCache {
	return &ReceiptCache{
		receipts: kvcache.New[common.Hash, []Receipt](prefixReceipt, kvcache.HashKey{}, kvcache.RLP[[]Receipt]{}, store),
	}
}

// Child constructs an overlay over the receipt table.
func (rc *ReceiptCache) Child() *ReceiptCache {
	return &ReceiptCache{
		receipts: rc.receipts.Child(),
	}
}

// GetTxReceipts returns the receipts of the transaction.
func (rc *ReceiptCache) GetTxReceipts(txID common.Hash) ([]Receipt, error) {
	receipts, _, err := rc.receipts.Get(txID)
	return receipts, err
}

// SetTxReceipts stores the receipts of the transaction.
func (rc *ReceiptCache) SetTxReceipts(txID common.Hash, receipts []Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return rc.receipts.Set(txID, append([]Receipt(nil), receipts...))
}

// EraseTxReceipts removes the receipts of the transaction.
func (rc *ReceiptCache) EraseTxReceipts(txID common.Hash) error {
	return rc.receipts.Erase(txID)
}

// Flush commits the receipt table.
func (rc *ReceiptCache) Flush() error { return rc.receipts.Flush() }

// SetUndoLog sets the undo log for the receipt table.
func (rc *ReceiptCache) SetUndoLog(undo *kvcache.UndoLog) { rc.receipts.SetUndoLog(undo) }

// Undo restores the receipt table from the log.
func (rc *ReceiptCache) Undo(undo *kvcache.UndoLog) error { return rc.receipts.Undo(undo) }

// Size returns the pending serialized size of the receipt table.
func (rc *ReceiptCache) Size() int { return rc.receipts.Size() }

// Clear drops the pending changes of the receipt table.
func (rc *ReceiptCache) Clear() { rc.receipts.Clear() }

// =============================================================================

// ExecLog is the failure recorded for a contract transaction whose
// execution was rejected by the virtual machine.
type ExecLog struct {
	Code    uint16
	Message string
}

// IsEmpty reports whether the log is a tombstone.
func (l *ExecLog) IsEmpty() bool {
	return l.Code == 0 && l.Message == ""
}

// SetEmpty turns the log into a tombstone.
func (l *ExecLog) SetEmpty() {
	*l = ExecLog{}
}

// LogCache maps a transaction id to its execution failure log.
type LogCache struct {
	logs *kvcache.Cache[common.Hash, ExecLog]
}

// NewLogCache constructs the execution log table backed by the store.
func NewLogCache(store kvcache.Store) *LogCache {
	return &LogCache{
		logs: kvcache.New[common.Hash, ExecLog](prefixTxLog, kvcache.HashKey{}, kvcache.RLP[ExecLog]{}, store),
	}
}

// Child constructs an overlay over the execution log table.
func (lc *LogCache) Child() *LogCache {
	return &LogCache{
		logs: lc.logs.Child(),
	}
}

// GetExecLog returns the execution log of the transaction.
func (lc *LogCache) GetExecLog(txID common.Hash) (ExecLog, bool, error) {
	return lc.logs.Get(txID)
}

// SetExecLog stores the execution log of the transaction.
func (lc *LogCache) SetExecLog(txID common.Hash, log ExecLog) error {
	return lc.logs.Set(txID, log)
}

// Flush commits the execution log table.
func (lc *LogCache) Flush() error { return lc.logs.Flush() }

// SetUndoLog sets the undo log for the execution log table.
func (lc *LogCache) SetUndoLog(undo *kvcache.UndoLog) { lc.logs.SetUndoLog(undo) }

// Undo restores the execution log table from the log.
func (lc *LogCache) Undo(undo *kvcache.UndoLog) error { return lc.logs.Undo(undo) }

// Size returns the pending serialized size of the execution log table.
func (lc *LogCache) Size() int { return lc.logs.Size() }

// Clear drops the pending changes of the execution log table.
func (lc *LogCache) Clear() { lc.logs.Clear() }
