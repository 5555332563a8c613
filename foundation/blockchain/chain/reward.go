package chain

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// BlockReward is the first transaction of every block. It grants the
// producer the fees of the block minus the fuel burned, once the block has
// matured.
type BlockReward struct {
	RewardFees uint64
}

// TxType implements the Payload interface.
func (*BlockReward) TxType() TxType { return BlockRewardTx }

func (*BlockReward) payload() {}

// NewBlockRewardTx constructs the reward transaction for the producer.
func NewBlockRewardTx(producer common.Address, height uint64, rewardFees uint64) *Tx {
	return NewTx(&BlockReward{RewardFees: rewardFees}, height, producer, database.SymbolWICC, 0)
}

func (br *BlockReward) check(ctx *Context, tx *Tx) error {
	if tx.Fees != 0 {
		return Reject(RejectInvalid, "bad-reward-fees", "reward carries fees %d", tx.Fees)
	}

	if !CheckCoinRange(database.SymbolWICC, br.RewardFees) {
		return Reject(RejectInvalid, "bad-reward-outofrange", "reward %d", br.RewardFees)
	}

	acct, exists, err := ctx.Cache.Accounts.GetAccount(tx.From)
	if err != nil {
		return err
	}
	if !exists || !acct.IsRegistered() {
		return Reject(RejectInvalid, "bad-reward-producer", "producer %s is not registered", tx.From)
	}

	return nil
}

func (br *BlockReward) execute(ctx *Context, tx *Tx) error {
	switch ctx.Index {
	case RewardIndex:
		return nil

	case RewardMatureIndex:
		acct, err := tx.sender(ctx)
		if err != nil {
			return err
		}

		if err := acct.OperateBalance(database.SymbolWICC, database.AddFree, br.RewardFees); err != nil {
			return balanceReject("reward-operate-failed", err)
		}
		if err := ctx.Cache.Accounts.SaveAccount(acct); err != nil {
			return err
		}

		receipt := database.Receipt{
			To:     acct.Address,
			Symbol: database.SymbolWICC,
			Amount: br.RewardFees,
			Code:   database.ReceiptBlockReward,
		}
		return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), []database.Receipt{receipt})
	}

	return Reject(RejectInvalid, "bad-reward-index", "reward at index %d", ctx.Index)
}
