package state

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// TipHeader returns the header of the last connected block and its hash.
func (s *State) TipHeader() (chain.BlockHeader, common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tipHeader(), s.tipHash()
}

// QueryAccount returns the account with the address.
func (s *State) QueryAccount(address common.Address) (database.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cw.Accounts.GetAccount(address)
}

// QueryBlockByHeight returns the connected block at the height.
func (s *State) QueryBlockByHeight(height uint64) (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blocks.GetBlockByHeight(height)
}

// QueryActiveDelegates returns the delegates elected by the last connected
// block.
func (s *State) QueryActiveDelegates() ([]database.RegID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cw.Delegates.GetActiveDelegates()
}

// QueryTxLocation returns the hash of the block that confirmed the
// transaction, or the zero hash.
func (s *State) QueryTxLocation(txID common.Hash) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cw.Txs.HaveTx(txID)
}

// QueryReceipts returns the receipts the transaction emitted.
func (s *State) QueryReceipts(txID common.Hash) ([]database.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cw.Receipts.GetTxReceipts(txID)
}
