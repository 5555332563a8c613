// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultUndoBlocks is the number of recent blocks that can be
// disconnected when the configuration does not say otherwise.
const defaultUndoBlocks = 100

// Set of error variables for chain processing.
var (
	ErrNoUndo           = errors.New("no undo log for the tip block")
	ErrGenesisTip       = errors.New("the genesis block can not be disconnected")
	ErrStaleBlock       = errors.New("block does not extend the current tip")
	ErrDoubleProduction = errors.New("delegate already produced a block in this slot")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block production.
type Worker interface {
	Shutdown()
	StartMining(targetHeight int64) error
	StopMining()
	IsMining() bool
	SignalShareTx(tx *chain.Tx)
}

// =============================================================================

// Storage is the ordered key value store holding the chain state and the
// connected blocks.
type Storage interface {
	kvcache.Store
	Close() error
}

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis    genesis.Genesis
	Storage    Storage
	Wallet     *wallet.Wallet
	Host       string
	KnownPeers *peer.PeerSet
	VM         chain.VM
	Registerer prometheus.Registerer
	UndoBlocks int
	EvHandler  EventHandler
}

// indexEntry is a connected block header and its hash.
type indexEntry struct {
	hash   common.Hash
	header chain.BlockHeader
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	genesis   genesis.Genesis
	params    genesis.Params
	host      string
	evHandler EventHandler
	vm        chain.VM

	storage    Storage
	blocks     *chain.BlockStore
	cw         *database.CacheWrapper
	undo       *lru.Cache
	index      []indexEntry
	mempool    *mempool.Mempool
	wallet     *wallet.Wallet
	knownPeers *peer.PeerSet
	metrics    *Metrics

	minedMu sync.Mutex
	mined   minedRing

	Worker Worker
}

// New constructs a new blockchain for data management. An empty store is
// initialized from the genesis, otherwise the connected blocks are loaded.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	undoBlocks := cfg.UndoBlocks
	if undoBlocks <= 0 {
		undoBlocks = defaultUndoBlocks
	}

	undo, err := lru.New(undoBlocks)
	if err != nil {
		return nil, err
	}

	vm := cfg.VM
	if vm == nil {
		vm = chain.StorageVM{}
	}

	wlt := cfg.Wallet
	if wlt == nil {
		wlt = wallet.New()
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	s := State{
		genesis:    cfg.Genesis,
		params:     cfg.Genesis.Params,
		host:       cfg.Host,
		evHandler:  ev,
		vm:         vm,
		storage:    cfg.Storage,
		blocks:     chain.NewBlockStore(cfg.Storage),
		cw:         database.NewCacheWrapper(cfg.Storage),
		undo:       undo,
		wallet:     wlt,
		knownPeers: knownPeers,
		metrics:    NewMetrics(cfg.Registerer),
	}

	_, exists, err := s.blocks.Tip()
	if err != nil {
		return nil, err
	}

	switch exists {
	case true:
		err = s.loadChain()
	default:
		err = s.initGenesis()
	}
	if err != nil {
		return nil, err
	}

	s.mempool = mempool.New(s.cw)

	tip := s.tipHeader()
	s.metrics.tipHeight.Set(float64(tip.Height))
	s.metrics.fuelRate.Set(float64(tip.FuelRate))

	ev("state: New: chain loaded: height[%d] hash[%s]", tip.Height, s.tipHash().Hex())

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// initGenesis funds the genesis accounts, ranks the genesis delegates and
// writes the genesis block.
func (s *State) initGenesis() error {
	for i, ga := range s.genesis.Accounts {
		pubKey := common.FromHex(ga.PubKey)

		addr, err := signature.ToAddress(pubKey)
		if err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}

		acct := database.NewAccount(addr)
		acct.RegID = database.NewRegID(0, uint16(i+1))
		acct.OwnerPubKey = pubKey
		acct.ReceivedVotes = ga.Votes
		if err := acct.OperateBalance(database.SymbolWICC, database.AddFree, ga.Balance); err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}

		if err := s.cw.Accounts.SaveAccount(acct); err != nil {
			return err
		}

		if ga.Votes > 0 {
			if err := s.cw.Delegates.SetCandidateVotes(acct.RegID, 0, ga.Votes); err != nil {
				return err
			}
		}

		s.evHandler("state: initGenesis: account: %s regid[%s] balance[%d] votes[%d]", addr, acct.RegID, ga.Balance, ga.Votes)
	}

	if err := s.rotateDelegates(s.cw); err != nil {
		return err
	}

	block := chain.Block{
		Header: chain.BlockHeader{
			Version:  chain.BlockVersion,
			Height:   0,
			Time:     uint64(s.genesis.Date.Unix()),
			FuelRate: s.params.InitFuelRate,
		},
	}
	block.Header.MerkleRoot = block.BuildMerkleRoot()

	ops, err := chain.WriteOps(&block)
	if err != nil {
		return err
	}

	if err := s.cw.Commit(ops...); err != nil {
		return err
	}

	s.index = append(s.index, indexEntry{hash: block.Hash(), header: block.Header})

	return nil
}

// loadChain rebuilds the header index from the connected blocks.
func (s *State) loadChain() error {
	iter := s.blocks.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		if block.Header.Height != uint64(len(s.index)) {
			return fmt.Errorf("block %s stored at height %d", block, len(s.index))
		}

		s.index = append(s.index, indexEntry{hash: block.Hash(), header: block.Header})
	}

	if len(s.index) == 0 {
		return errors.New("tip is set but no blocks are stored")
	}

	return nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database file is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Params returns the consensus parameters.
func (s *State) Params() genesis.Params {
	return s.params
}

// Host returns a copy of host information.
func (s *State) Host() string {
	return s.host
}

// KnownPeers retrieves a copy of the known peer list without this node.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to
// the known peer list.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer provides the ability to remove a peer from
// the known peer list.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}

// KnownPeerInfos returns what is known about every peer.
func (s *State) KnownPeerInfos() []peer.Info {
	return s.knownPeers.Infos()
}

// PeerSucceeded records the status the peer answered with.
func (s *State) PeerSucceeded(p peer.Peer, status peer.PeerStatus) {
	s.knownPeers.Succeeded(p, status)
}

// PeerFailed counts a failed exchange with the peer and returns the
// failures in a row.
func (s *State) PeerFailed(p peer.Peer) int {
	return s.knownPeers.Failed(p)
}

// PeerCount returns the number of known peers.
func (s *State) PeerCount() int {
	return s.knownPeers.Count()
}

// Wallet returns the key store used to sign produced blocks.
func (s *State) Wallet() *wallet.Wallet {
	return s.wallet
}

// Mempool returns the mempool.
func (s *State) Mempool() *mempool.Mempool {
	return s.mempool
}

// Events passes the event to the configured event handler.
func (s *State) Events(v string, args ...any) {
	s.evHandler(v, args...)
}

// =============================================================================

// tipHeader returns the header of the last connected block. The caller
// holds the lock or owns the state exclusively.
func (s *State) tipHeader() chain.BlockHeader {
	return s.index[len(s.index)-1].header
}

func (s *State) tipHash() common.Hash {
	return s.index[len(s.index)-1].hash
}

// genesisHash returns the hash of the block at height zero.
func (s *State) genesisHash() common.Hash {
	return s.index[0].hash
}

// rotateDelegates makes the top ranked candidates the active delegates.
func (s *State) rotateDelegates(cw *database.CacheWrapper) error {
	top, err := cw.Delegates.GetTopDelegateList(s.params.TotalDelegates)
	if err != nil {
		return err
	}
	return cw.Delegates.SetActiveDelegates(top)
}

// chainContext returns the context for executing transactions in the block
// after the tip.
func (s *State) chainContext(blockTime uint64, fuelRate uint64) chain.Context {
	tip := s.tipHeader()

	return chain.Context{
		Height:         tip.Height + 1,
		FuelRate:       fuelRate,
		BlockTime:      blockTime,
		PrevBlockTime:  tip.Time,
		BcoinPrice:     s.params.BcoinPrice,
		VM:             s.vm,
		TotalDelegates: s.params.TotalDelegates,
		TxCacheHeight:  s.params.TxCacheHeight,
	}
}
