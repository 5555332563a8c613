package chain

import (
	"errors"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// Transfer moves an amount of one token to an address.
type Transfer struct {
	To     common.Address
	Symbol string
	Amount uint64
}

// CoinTransfer sends one or more token transfers from the sender.
type CoinTransfer struct {
	Transfers []Transfer
	Memo      string
}

// TxType implements the Payload interface.
func (*CoinTransfer) TxType() TxType { return UCoinTransferTx }

func (*CoinTransfer) payload() {}

func (ct *CoinTransfer) check(ctx *Context, tx *Tx) error {
	if len(ct.Memo) > MaxMemoSize {
		return Reject(RejectInvalid, "memo-size-toolarge", "memo size %d", len(ct.Memo))
	}

	n := len(ct.Transfers)
	if n == 0 || n > MaxTransferSize {
		return Reject(RejectInvalid, "transfers-size-error", "transfer count %d", n)
	}

	for i, tr := range ct.Transfers {
		if err := ctx.Cache.Assets.CheckTransferCoinSymbol(tr.Symbol); err != nil {
			if errors.Is(err, database.ErrUnsupportedSymbol) {
				return Reject(RejectInvalid, "invalid-coin-symbol", "transfer[%d]: %s", i, err)
			}
			return err
		}

		if tr.Amount < DustAmountThreshold {
			return Reject(RejectDust, "invalid-coin-amount", "transfer[%d]: amount %d is dust", i, tr.Amount)
		}

		if !CheckCoinRange(tr.Symbol, tr.Amount) {
			return Reject(RejectInvalid, "bad-coin-amount-outofrange", "transfer[%d]: amount %d", i, tr.Amount)
		}

		if tr.To == (common.Address{}) {
			return Reject(RejectInvalid, "bad-to-address", "transfer[%d]: empty address", i)
		}
	}

	if err := tx.checkFee(uint64(n)); err != nil {
		return err
	}

	if _, err := tx.checkSigner(ctx, false); err != nil {
		return err
	}

	return nil
}

func (ct *CoinTransfer) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	tx.register(ctx, &src)
	if err := tx.payFees(&src); err != nil {
		return err
	}

	receipts := make([]database.Receipt, 0, len(ct.Transfers))
	for i, tr := range ct.Transfers {
		if err := src.OperateBalance(tr.Symbol, database.SubFree, tr.Amount); err != nil {
			return balanceReject("insufficient-account-coins", err)
		}

		// Self transfers only need the debit undone.
		if tr.To == src.Address {
			if err := src.OperateBalance(tr.Symbol, database.AddFree, tr.Amount); err != nil {
				return balanceReject("operate-add-account-failed", err)
			}
		} else {
			if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
				return err
			}

			dest, exists, err := ctx.Cache.Accounts.GetAccount(tr.To)
			if err != nil {
				return err
			}
			if !exists {
				dest = database.NewAccount(tr.To)
			}

			if err := dest.OperateBalance(tr.Symbol, database.AddFree, tr.Amount); err != nil {
				return Reject(RejectInvalid, "operate-add-account-failed", "transfer[%d]: %s", i, err)
			}
			if err := ctx.Cache.Accounts.SaveAccount(dest); err != nil {
				return err
			}
		}

		receipts = append(receipts, database.Receipt{
			From:   src.Address,
			To:     tr.To,
			Symbol: tr.Symbol,
			Amount: tr.Amount,
			Code:   database.ReceiptTransfer,
		})
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}
