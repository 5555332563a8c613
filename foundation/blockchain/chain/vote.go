package chain

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

// MaxVoteCandidates is the most candidates one vote transaction can touch.
const MaxVoteCandidates = 22

// VoteOp adds or withdraws votes for one candidate.
type VoteOp struct {
	Candidate database.RegID
	Add       bool
	Votes     uint64
}

// DelegateVote moves the sender's free base coins into votes for delegate
// candidates, or back.
type DelegateVote struct {
	Votes []VoteOp
}

// TxType implements the Payload interface.
func (*DelegateVote) TxType() TxType { return DelegateVoteTx }

func (*DelegateVote) payload() {}

func (dv *DelegateVote) check(ctx *Context, tx *Tx) error {
	if len(dv.Votes) == 0 || len(dv.Votes) > MaxVoteCandidates {
		return Reject(RejectInvalid, "bad-operator-vote-size", "vote count %d", len(dv.Votes))
	}

	seen := make(map[database.RegID]struct{}, len(dv.Votes))
	for i, op := range dv.Votes {
		if _, exists := seen[op.Candidate]; exists {
			return Reject(RejectInvalid, "duplicate-candidate", "vote[%d]: candidate %s", i, op.Candidate)
		}
		seen[op.Candidate] = struct{}{}

		if op.Votes == 0 || !CheckCoinRange(database.SymbolWICC, op.Votes) {
			return Reject(RejectInvalid, "bad-vote-amount", "vote[%d]: votes %d", i, op.Votes)
		}

		exists, err := candidateExists(ctx, op.Candidate)
		if err != nil {
			return err
		}
		if !exists {
			return Reject(RejectInvalid, "candidate-not-exist", "vote[%d]: candidate %s", i, op.Candidate)
		}
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	if _, err := tx.checkSigner(ctx, false); err != nil {
		return err
	}

	return nil
}

func (dv *DelegateVote) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	tx.register(ctx, &src)
	if err := tx.payFees(&src); err != nil {
		return err
	}

	receipts := make([]database.Receipt, 0, len(dv.Votes))
	for i, op := range dv.Votes {
		cast := src.CandidateVotes(op.Candidate)

		switch op.Add {
		case true:
			if err := src.OperateBalance(database.SymbolWICC, database.Vote, op.Votes); err != nil {
				return balanceReject("insufficient-vote-coins", err)
			}
			src.SetCandidateVotes(op.Candidate, cast+op.Votes)

		default:
			if cast < op.Votes {
				return Reject(RejectInvalid, "revoke-votes-exceed", "vote[%d]: cast %d, revoke %d", i, cast, op.Votes)
			}
			if err := src.OperateBalance(database.SymbolWICC, database.Unvote, op.Votes); err != nil {
				return balanceReject("operate-unvote-failed", err)
			}
			src.SetCandidateVotes(op.Candidate, cast-op.Votes)
		}

		// A vote for oneself moves the received votes on the sender.
		candidate := &src
		if op.Candidate != src.RegID {
			acct, exists, err := ctx.Cache.Accounts.GetAccountByRegID(op.Candidate)
			if err != nil {
				return err
			}
			if !exists {
				return Reject(RejectInvalid, "candidate-not-exist", "vote[%d]: candidate %s", i, op.Candidate)
			}
			candidate = &acct
		}

		received := candidate.ReceivedVotes
		switch op.Add {
		case true:
			candidate.ReceivedVotes += op.Votes
		default:
			if received < op.Votes {
				return Reject(RejectInvalid, "received-votes-underflow", "vote[%d]: received %d", i, received)
			}
			candidate.ReceivedVotes -= op.Votes
		}

		if err := ctx.Cache.Delegates.SetCandidateVotes(op.Candidate, received, candidate.ReceivedVotes); err != nil {
			return err
		}

		if candidate != &src {
			if err := ctx.Cache.Accounts.SaveAccount(*candidate); err != nil {
				return err
			}
		}

		receipts = append(receipts, database.Receipt{
			From:   src.Address,
			To:     candidate.Address,
			Symbol: database.SymbolWICC,
			Amount: op.Votes,
			Code:   database.ReceiptDelegateVote,
		})
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}

func candidateExists(ctx *Context, regID database.RegID) (bool, error) {
	_, exists, err := ctx.Cache.Accounts.GetAccountByRegID(regID)
	return exists, err
}
