package database

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ethereum/go-ethereum/common"
)

// Set of error variables for balance operations.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// BalanceOp identifies how a token balance is changed.
type BalanceOp uint8

// Set of balance operations.
const (
	AddFree BalanceOp = iota + 1
	SubFree
	Stake
	Unstake
	Vote
	Unvote
)

// TokenBalance is the balance an account holds in one token.
type TokenBalance struct {
	Symbol string
	Free   uint64
	Staked uint64
	Voted  uint64
}

// CandidateVote is the amount of votes an account gave a delegate
// candidate.
type CandidateVote struct {
	Candidate RegID
	Votes     uint64
}

// Account represents information stored in the database for an individual
// account.
type Account struct {
	Address       common.Address
	RegID         RegID
	OwnerPubKey   []byte
	MinerPubKey   []byte
	Tokens        []TokenBalance
	ReceivedVotes uint64
	Votes         []CandidateVote
}

// NewAccount constructs a new account value for use.
func NewAccount(address common.Address) Account {
	return Account{
		Address: address,
	}
}

// IsEmpty reports whether the account is a tombstone.
func (a *Account) IsEmpty() bool {
	return a.Address == (common.Address{})
}

// SetEmpty turns the account into a tombstone.
func (a *Account) SetEmpty() {
	*a = Account{}
}

// IsRegistered reports whether the account has a registration id.
func (a *Account) IsRegistered() bool {
	return !a.RegID.IsEmpty()
}

// Balance returns the balance held in the specified token.
func (a *Account) Balance(symbol string) TokenBalance {
	for _, tb := range a.Tokens {
		if tb.Symbol == symbol {
			return tb
		}
	}
	return TokenBalance{Symbol: symbol}
}

// Free returns the spendable amount of the specified token.
func (a *Account) Free(symbol string) uint64 {
	return a.Balance(symbol).Free
}

// OperateBalance applies the operation for the amount to the token
// balance. Nothing changes when an error is returned.
func (a *Account) OperateBalance(symbol string, op BalanceOp, amount uint64) error {
	tb := a.Balance(symbol)

	move := func(from, to *uint64) error {
		if *from < amount {
			return fmt.Errorf("%s %s: have %d, need %d: %w", a.Address, symbol, *from, amount, ErrInsufficientBalance)
		}
		if to != nil && *to > math.MaxUint64-amount {
			return fmt.Errorf("%s %s: %w", a.Address, symbol, ErrBalanceOverflow)
		}
		*from -= amount
		if to != nil {
			*to += amount
		}
		return nil
	}

	var err error
	switch op {
	case AddFree:
		if tb.Free > math.MaxUint64-amount {
			return fmt.Errorf("%s %s: %w", a.Address, symbol, ErrBalanceOverflow)
		}
		tb.Free += amount
	case SubFree:
		err = move(&tb.Free, nil)
	case Stake:
		err = move(&tb.Free, &tb.Staked)
	case Unstake:
		err = move(&tb.Staked, &tb.Free)
	case Vote:
		err = move(&tb.Free, &tb.Voted)
	case Unvote:
		err = move(&tb.Voted, &tb.Free)
	default:
		return fmt.Errorf("unknown balance op %d", op)
	}
	if err != nil {
		return err
	}

	a.setBalance(tb)
	return nil
}

// CandidateVotes returns the votes the account gave the candidate.
func (a *Account) CandidateVotes(candidate RegID) uint64 {
	for _, v := range a.Votes {
		if v.Candidate == candidate {
			return v.Votes
		}
	}
	return 0
}

// SetCandidateVotes records the votes the account gives the candidate.
// Zero votes removes the candidate.
func (a *Account) SetCandidateVotes(candidate RegID, votes uint64) {
	out := make([]CandidateVote, 0, len(a.Votes)+1)
	for _, v := range a.Votes {
		if v.Candidate != candidate {
			out = append(out, v)
		}
	}
	if votes > 0 {
		out = append(out, CandidateVote{Candidate: candidate, Votes: votes})
	}

	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Candidate.Bytes()) < string(out[j].Candidate.Bytes())
	})
	a.Votes = out
}

// setBalance stores the token balance keeping tokens sorted by symbol so
// the encoding is deterministic. The slice is always rebuilt since the
// account value may share it with a copy held by a cache layer.
func (a *Account) setBalance(tb TokenBalance) {
	tokens := make([]TokenBalance, 0, len(a.Tokens)+1)

	var replaced bool
	for _, t := range a.Tokens {
		if t.Symbol == tb.Symbol {
			t = tb
			replaced = true
		}
		tokens = append(tokens, t)
	}

	if !replaced {
		tokens = append(tokens, tb)
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	}

	a.Tokens = tokens
}

// =============================================================================

// ToAddress converts a hex-encoded string to an address and validates the
// hex-encoded string is formatted correctly.
func ToAddress(hex string) (common.Address, error) {
	if !common.IsHexAddress(hex) {
		return common.Address{}, errors.New("invalid account format")
	}

	return common.HexToAddress(hex), nil
}

// =============================================================================

// AccountCache maintains the accounts keyed by address along with the
// registration id index.
type AccountCache struct {
	accounts *kvcache.Cache[common.Address, Account]
	regIDs   *kvcache.Cache[RegID, common.Address]
}

// NewAccountCache constructs the account tables backed by the store.
func NewAccountCache(store kvcache.Store) *AccountCache {
	return &AccountCache{
		accounts: kvcache.New[common.Address, Account](prefixAccount, kvcache.AddressKey{}, kvcache.RLP[Account]{}, store),
		regIDs:   kvcache.New[RegID, common.Address](prefixRegID, regIDKey{}, kvcache.RLP[common.Address]{}, store),
	}
}

// Child constructs an overlay over the account tables.
func (ac *AccountCache) Child() *AccountCache {
	return &AccountCache{
		accounts: ac.accounts.Child(),
		regIDs:   ac.regIDs.Child(),
	}
}

// GetAccount returns the account for the address.
func (ac *AccountCache) GetAccount(address common.Address) (Account, bool, error) {
	return ac.accounts.Get(address)
}

// GetAccountByRegID returns the account registered with the id.
func (ac *AccountCache) GetAccountByRegID(regID RegID) (Account, bool, error) {
	address, exists, err := ac.regIDs.Get(regID)
	if err != nil || !exists {
		return Account{}, false, err
	}

	return ac.accounts.Get(address)
}

// HaveAccount reports whether an account exists for the address.
func (ac *AccountCache) HaveAccount(address common.Address) (bool, error) {
	return ac.accounts.Has(address)
}

// SaveAccount stores the account and indexes its registration id.
func (ac *AccountCache) SaveAccount(account Account) error {
	if account.IsEmpty() {
		return errors.New("save account: empty address")
	}

	if err := ac.accounts.Set(account.Address, account); err != nil {
		return err
	}

	if account.IsRegistered() {
		return ac.regIDs.Set(account.RegID, account.Address)
	}

	return nil
}

// EraseAccount removes the account and its registration id index.
func (ac *AccountCache) EraseAccount(address common.Address) error {
	account, exists, err := ac.accounts.Get(address)
	if err != nil || !exists {
		return err
	}

	if account.IsRegistered() {
		if err := ac.regIDs.Erase(account.RegID); err != nil {
			return err
		}
	}

	return ac.accounts.Erase(address)
}

// Flush commits the account tables.
func (ac *AccountCache) Flush() error {
	if err := ac.accounts.Flush(); err != nil {
		return err
	}
	return ac.regIDs.Flush()
}

// SetUndoLog sets the undo log for the account tables.
func (ac *AccountCache) SetUndoLog(undo *kvcache.UndoLog) {
	ac.accounts.SetUndoLog(undo)
	ac.regIDs.SetUndoLog(undo)
}

// Undo restores the account tables from the log.
func (ac *AccountCache) Undo(undo *kvcache.UndoLog) error {
	if err := ac.accounts.Undo(undo); err != nil {
		return err
	}
	return ac.regIDs.Undo(undo)
}

// Size returns the pending serialized size of the account tables.
func (ac *AccountCache) Size() int {
	return ac.accounts.Size() + ac.regIDs.Size()
}

// Clear drops the pending changes of this layer.
func (ac *AccountCache) Clear() {
	ac.accounts.Clear()
	ac.regIDs.Clear()
}
