package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrBlockNotFound is returned when a block is not in the store.
var ErrBlockNotFound = errors.New("block not found")

// BlockStore persists connected blocks next to the chain state: the block
// by hash, the hash by height and the hash of the tip.
type BlockStore struct {
	store kvcache.Store
}

// NewBlockStore constructs a block store over the backing store.
func NewBlockStore(store kvcache.Store) *BlockStore {
	return &BlockStore{
		store: store,
	}
}

func blockKey(hash common.Hash) []byte {
	return append(database.PrefixBlock.Bytes(), hash.Bytes()...)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(database.PrefixHeight.Bytes(), height)
}

// Write stores the block and makes it the tip.
func (bs *BlockStore) Write(block *Block) error {
	ops, err := WriteOps(block)
	if err != nil {
		return err
	}

	return bs.store.WriteBatch(ops)
}

// Remove deletes the block and makes its parent the tip.
func (bs *BlockStore) Remove(block *Block) error {
	return bs.store.WriteBatch(RemoveOps(block))
}

// WriteOps returns the store writes that record the block and make it the
// tip, for callers committing them with other state.
func WriteOps(block *Block) ([]kvcache.Op, error) {
	data, err := rlp.EncodeToBytes(block)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}

	hash := block.Hash()
	ops := []kvcache.Op{
		{Key: blockKey(hash), Value: data},
		{Key: heightKey(block.Header.Height), Value: hash.Bytes()},
		{Key: database.PrefixTip.Bytes(), Value: hash.Bytes()},
	}

	return ops, nil
}

// RemoveOps returns the store writes that delete the block and make its
// parent the tip.
func RemoveOps(block *Block) []kvcache.Op {
	return []kvcache.Op{
		{Key: blockKey(block.Hash()), Delete: true},
		{Key: heightKey(block.Header.Height), Delete: true},
		{Key: database.PrefixTip.Bytes(), Value: block.Header.PrevBlockHash.Bytes()},
	}
}

// GetBlock returns the block with the hash.
func (bs *BlockStore) GetBlock(hash common.Hash) (*Block, error) {
	data, exists, err := bs.store.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", hash.Hex(), ErrBlockNotFound)
	}

	var block Block
	if err := rlp.DecodeBytes(data, &block); err != nil {
		return nil, fmt.Errorf("decode block %s: %w", hash.Hex(), err)
	}

	return &block, nil
}

// GetBlockByHeight returns the connected block at the height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*Block, error) {
	data, exists, err := bs.store.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("height %d: %w", height, ErrBlockNotFound)
	}

	return bs.GetBlock(common.BytesToHash(data))
}

// Tip returns the hash of the last connected block.
func (bs *BlockStore) Tip() (common.Hash, bool, error) {
	data, exists, err := bs.store.Get(database.PrefixTip.Bytes())
	if err != nil || !exists {
		return common.Hash{}, false, err
	}

	return common.BytesToHash(data), true, nil
}

// ForEach returns an iterator to walk the connected blocks by height.
func (bs *BlockStore) ForEach() *BlockIterator {
	return &BlockIterator{
		store: bs,
		iter:  bs.store.NewIterator(database.PrefixHeight.Bytes()),
	}
}

// =============================================================================

// BlockIterator walks the connected blocks in height order.
type BlockIterator struct {
	store *BlockStore
	iter  kvcache.Iterator
	eoc   bool
}

// Next retrieves the next block from the store. Once the end of the chain
// is reached Done reports true.
func (bi *BlockIterator) Next() (*Block, error) {
	if bi.eoc {
		return nil, errors.New("end of chain")
	}

	if !bi.iter.Next() {
		bi.eoc = true
		err := bi.iter.Error()
		bi.iter.Release()
		return nil, err
	}

	return bi.store.GetBlock(common.BytesToHash(bi.iter.Value()))
}

// Done returns the end of chain value.
func (bi *BlockIterator) Done() bool {
	return bi.eoc
}
