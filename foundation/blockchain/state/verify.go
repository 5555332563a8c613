package state

import (
	"errors"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// VerifyRewardTx checks that the block was produced by the delegate owning
// its slot and signed with that delegate's key. With needRunTx the
// transactions are replayed on an overlay of the cache wrapper to check
// the run step budget and the fuel in the header. The cache wrapper is
// never changed.
func (s *State) VerifyRewardTx(block *chain.Block, cw *database.CacheWrapper, needRunTx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.verifyRewardTx(block, cw, needRunTx)
}

func (s *State) verifyRewardTx(block *chain.Block, cw *database.CacheWrapper, needRunTx bool) error {
	hdr := block.Header

	delegate, err := s.currentDelegate(cw, hdr.Height, hdr.Time)
	if err != nil {
		return chain.Reject(chain.RejectInvalid, "bad-delegate", "current delegate at height %d: %s", hdr.Height, err)
	}

	if hdr.Nonce > s.params.MaxNonce {
		return chain.Reject(chain.RejectInvalid, "bad-nonce", "nonce %d above %d", hdr.Nonce, s.params.MaxNonce)
	}

	if hdr.MerkleRoot != block.BuildMerkleRoot() {
		return chain.Reject(chain.RejectInvalid, "bad-merkle-root", "%s", block)
	}

	spCW := cw.Child()

	if err := s.checkDoubleProduction(spCW, hdr, hdr.Time, delegate.RegID); err != nil {
		if errors.Is(err, ErrDoubleProduction) {
			return chain.Reject(chain.RejectInvalid, "double-production", "%s", err)
		}
		return err
	}

	reward, _, err := block.RewardTx()
	if err != nil {
		return chain.Reject(chain.RejectInvalid, "bad-reward-tx", "%s: %s", block, err)
	}

	producer, exists, err := spCW.Accounts.GetAccount(reward.From)
	if err != nil {
		return err
	}
	if !exists {
		return chain.Reject(chain.RejectInvalid, "bad-reward-producer", "producer %s not found", reward.From)
	}

	if producer.RegID != delegate.RegID {
		return chain.Reject(chain.RejectInvalid, "bad-delegate", "delegate should be %s, got %s", delegate.RegID, producer.RegID)
	}

	if n := len(hdr.Signature); n == 0 || n > signature.MaxSignatureSize {
		return chain.Reject(chain.RejectInvalid, "bad-blk-sig-size", "signature size %d", n)
	}

	digest := block.SignatureHash()
	if !signature.Verify(producer.OwnerPubKey, digest, hdr.Signature) &&
		!signature.Verify(producer.MinerPubKey, digest, hdr.Signature) {
		return chain.Reject(chain.RejectInvalid, "bad-blk-signature", "%s", block)
	}

	if reward.Version != chain.InitTxVersion {
		return chain.Reject(chain.RejectInvalid, "bad-reward-version", "version %d", reward.Version)
	}

	if !needRunTx {
		return nil
	}

	ctx := s.chainContext(hdr.Time, hdr.FuelRate)
	ctx.Height = hdr.Height

	var totalRunStep, totalFuel uint64
	seen := make(map[common.Hash]struct{}, len(block.Txs))

	for i, tx := range block.Txs[1:] {
		txID := tx.Hash()

		if _, exists := seen[txID]; exists {
			return chain.Reject(chain.RejectDuplicate, "duplicate-tx", "%s repeated in block", tx)
		}
		seen[txID] = struct{}{}

		blockHash, err := spCW.Txs.HaveTx(txID)
		if err != nil {
			return err
		}
		if blockHash != (common.Hash{}) {
			return chain.Reject(chain.RejectDuplicate, "duplicate-tx", "%s in block %s", tx, blockHash.Hex())
		}

		txCtx := ctx.WithCache(spCW).WithState(&chain.ValidationState{})
		txCtx.Index = i + 1

		if err := packTx(txCtx, tx); err != nil {
			return err
		}

		totalRunStep += tx.RunStep
		if totalRunStep > s.params.MaxRunStep {
			return chain.Reject(chain.RejectInvalid, "bad-blk-runstep", "run steps %d exceed %d", totalRunStep, s.params.MaxRunStep)
		}

		totalFuel += tx.Fuel(hdr.FuelRate)
	}

	if totalFuel != hdr.Fuel {
		return chain.Reject(chain.RejectInvalid, "bad-blk-fuel", "total fuel %d, header %d", totalFuel, hdr.Fuel)
	}

	return nil
}
