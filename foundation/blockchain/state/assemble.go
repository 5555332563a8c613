package state

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/dpos"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// Limits applied to the configured block size.
const (
	minBlockSize    = 1000
	blockSizeMargin = 1000
)

// CreateNewBlock assembles a candidate block on top of the tip from the
// mempool. The reward transaction is a placeholder until
// CreateBlockRewardTx names the producer and signs the block.
func (s *State) CreateNewBlock(now time.Time) (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createNewBlock(now)
}

func (s *State) createNewBlock(now time.Time) (*chain.Block, error) {
	tip := s.tipHeader()
	height := tip.Height + 1
	fuelRate := s.nextFuelRate()
	blockTime := max(uint64(now.Unix()), tip.Time+1)

	maxSize := max(minBlockSize, min(s.params.MaxBlockSize-blockSizeMargin, s.params.BlockMaxSize))

	reward := chain.NewBlockRewardTx(common.Address{}, height, 0)

	block := chain.Block{
		Header: chain.BlockHeader{
			Version:       chain.BlockVersion,
			PrevBlockHash: s.tipHash(),
			Height:        height,
			Time:          blockTime,
			FuelRate:      fuelRate,
		},
		Txs: []*chain.Tx{reward},
	}

	ctx := s.chainContext(blockTime, fuelRate)
	cw := s.cw.Child()

	totalSize := block.Size()
	var totalRunStep, totalFuel, rewardFees uint64

	for _, entry := range s.mempool.PriorityTxs(height, fuelRate, s.params.TxCacheHeight) {
		tx := entry.Tx

		if tx.FeeSymbol != database.SymbolWICC {
			s.evHandler("state: CreateNewBlock: skip: fee symbol %s: %s", tx.FeeSymbol, tx)
			continue
		}

		if totalSize+entry.Size >= maxSize {
			s.evHandler("state: CreateNewBlock: skip: exceed max block size: %s", tx)
			continue
		}

		txCW := cw.Child()
		txCtx := ctx.WithCache(txCW).WithState(&chain.ValidationState{})
		txCtx.Index = len(block.Txs)

		if err := packTx(txCtx, tx); err != nil {
			s.evHandler("state: CreateNewBlock: skip: failed to pack %s: %s", tx, err)
			s.metrics.txRejected(rejectReason(err))
			continue
		}

		if totalRunStep+tx.RunStep >= s.params.MaxRunStep {
			s.evHandler("state: CreateNewBlock: skip: exceed max block run steps: %s", tx)
			continue
		}

		fuel := tx.Fuel(fuelRate)
		invariant(tx.Fees >= fuel, "tx %s fees %d below fuel %d", tx, tx.Fees, fuel)

		if err := txCW.Flush(); err != nil {
			return nil, err
		}

		totalSize += entry.Size
		totalRunStep += tx.RunStep
		totalFuel += fuel
		rewardFees += tx.Fees - fuel

		block.Txs = append(block.Txs, tx)
	}

	reward.Payload.(*chain.BlockReward).RewardFees = rewardFees
	block.Header.Fuel = totalFuel
	block.Header.MerkleRoot = block.BuildMerkleRoot()

	s.metrics.txsPacked.Add(float64(len(block.Txs) - 1))
	s.evHandler("state: CreateNewBlock: height[%d] txs[%d] size[%d] fuel[%d] fuelRate[%d]", height, len(block.Txs), totalSize, totalFuel, fuelRate)

	return &block, nil
}

// packTx checks and executes the transaction against the context.
func packTx(ctx *chain.Context, tx *chain.Tx) error {
	if err := tx.Check(ctx); err != nil {
		return err
	}
	return tx.Execute(ctx)
}

// =============================================================================

// CurrentDelegate returns the account of the delegate that owns the slot
// of the time for the block after the tip.
func (s *State) CurrentDelegate(now time.Time) (database.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentDelegate(s.cw, s.tipHeader().Height+1, uint64(now.Unix()))
}

// currentDelegate shuffles the top delegates for the height and returns
// the account owning the slot of the unix time.
func (s *State) currentDelegate(cw *database.CacheWrapper, height uint64, unixTime uint64) (database.Account, error) {
	delegates, err := cw.Delegates.GetTopDelegateList(s.params.TotalDelegates)
	if err != nil {
		invariant(!errors.Is(err, database.ErrDelegateCount), "top delegates at height %d: %s", height, err)
		return database.Account{}, err
	}

	regID, ok := dpos.CurrentDelegate(unixTime, s.params.BlockInterval, dpos.Shuffle(height, delegates))
	if !ok {
		return database.Account{}, fmt.Errorf("no delegate for time %d", unixTime)
	}

	acct, exists, err := cw.Accounts.GetAccountByRegID(regID)
	if err != nil {
		return database.Account{}, err
	}
	if !exists {
		return database.Account{}, fmt.Errorf("delegate %s has no account", regID)
	}

	return acct, nil
}

// checkDoubleProduction rejects a delegate producing the block after its
// own within one block interval. The first block after genesis is exempt.
func (s *State) checkDoubleProduction(cw *database.CacheWrapper, hdr chain.BlockHeader, blockTime uint64, delegate database.RegID) error {
	if hdr.Height == 1 && hdr.PrevBlockHash == s.genesisHash() {
		return nil
	}

	prev, err := s.blocks.GetBlock(hdr.PrevBlockHash)
	if err != nil {
		return err
	}

	prevReward, _, err := prev.RewardTx()
	if err != nil {
		return err
	}

	prevDelegate, exists, err := cw.Accounts.GetAccount(prevReward.From)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("previous delegate %s has no account", prevReward.From)
	}

	if blockTime < prev.Header.Time+s.params.BlockInterval && prevDelegate.RegID == delegate {
		return fmt.Errorf("delegate %s at height %d: %w", delegate, hdr.Height, ErrDoubleProduction)
	}

	return nil
}

// CreateBlockRewardTx names the delegate as the producer of the block,
// stamps the nonce, merkle root and time, and signs the block with the
// delegate's key from the wallet.
func (s *State) CreateBlockRewardTx(now time.Time, delegate database.Account, block *chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentTime := uint64(now.Unix())

	if err := s.checkDoubleProduction(s.cw, block.Header, currentTime, delegate.RegID); err != nil {
		return err
	}

	reward, _, err := block.RewardTx()
	if err != nil {
		return err
	}
	reward.From = delegate.Address
	reward.ValidHeight = block.Header.Height

	block.Header.Nonce = rand.Uint64N(s.params.MaxNonce)
	block.Header.MerkleRoot = block.BuildMerkleRoot()
	block.Header.Time = currentTime

	signer, err := s.blockSigner(delegate)
	if err != nil {
		return err
	}

	sig, err := s.wallet.Sign(signer, block.SignatureHash())
	if err != nil {
		return err
	}
	block.Header.Signature = sig

	return nil
}

// blockSigner returns the wallet address that signs blocks for the
// delegate: the miner key when one is registered and held, otherwise the
// owner key.
func (s *State) blockSigner(delegate database.Account) (common.Address, error) {
	if len(delegate.MinerPubKey) > 0 {
		addr, err := signature.ToAddress(delegate.MinerPubKey)
		if err == nil && s.wallet.HasKey(addr) {
			return addr, nil
		}
	}

	if !s.wallet.HasKey(delegate.Address) {
		return common.Address{}, fmt.Errorf("delegate %s: %w", delegate.Address, wallet.ErrNoKey)
	}

	return delegate.Address, nil
}

// CanProduce reports whether the wallet holds a key that signs blocks for
// the delegate.
func (s *State) CanProduce(delegate database.Account) bool {
	_, err := s.blockSigner(delegate)
	return err == nil
}

// rejectReason returns the reason of a validation error.
func rejectReason(err error) string {
	if ve := chain.GetValidationError(err); ve != nil {
		return ve.Reason
	}
	return ""
}
