package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/merkle"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockVersion is the version stamped on every produced block.
const BlockVersion = 1

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Version       uint32
	PrevBlockHash common.Hash
	MerkleRoot    common.Hash
	Height        uint64
	Time          uint64
	Nonce         uint64
	FuelRate      uint64
	Fuel          uint64
	Signature     []byte
}

// Block represents a group of transactions batched together. The first
// transaction is always the block reward.
type Block struct {
	Header BlockHeader
	Txs    []*Tx
}

// Hash returns the unique hash for the block: the hash of the signed
// header.
func (b *Block) Hash() common.Hash {
	data, err := rlp.EncodeToBytes(b.Header)
	if err != nil {
		return signature.ZeroHash
	}
	return signature.Hash(data)
}

// SignatureHash returns the digest the producer signs, the hash of the
// header without its signature.
func (b *Block) SignatureHash() common.Hash {
	hdr := b.Header
	hdr.Signature = nil

	data, err := rlp.EncodeToBytes(hdr)
	if err != nil {
		return signature.ZeroHash
	}
	return signature.Hash(data)
}

// TxHashes returns the ids of the transactions in block order.
func (b *Block) TxHashes() []common.Hash {
	hashes := make([]common.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// BuildMerkleRoot returns the merkle root of the block's transactions.
func (b *Block) BuildMerkleRoot() common.Hash {
	return merkle.Root(b.TxHashes())
}

// RewardTx returns the reward transaction of the block.
func (b *Block) RewardTx() (*Tx, *BlockReward, error) {
	if len(b.Txs) == 0 {
		return nil, nil, errors.New("block has no transactions")
	}

	tx := b.Txs[0]
	reward, ok := tx.Payload.(*BlockReward)
	if !ok {
		return nil, nil, fmt.Errorf("first transaction is %s", tx.Type)
	}

	return tx, reward, nil
}

// TotalFuel returns the fuel of every transaction at the block's fuel
// rate. The run steps must be known, so the block has been executed.
func (b *Block) TotalFuel() uint64 {
	var fuel uint64
	for _, tx := range b.Txs {
		if tx.IsReward() {
			continue
		}
		fuel += tx.Fuel(b.Header.FuelRate)
	}
	return fuel
}

// TotalFees returns the fees of every transaction in the block.
func (b *Block) TotalFees() uint64 {
	var fees uint64
	for _, tx := range b.Txs {
		fees += tx.Fees
	}
	return fees
}

// Size returns the serialized size of the block in bytes.
func (b *Block) Size() int {
	data, err := rlp.EncodeToBytes(b)
	if err != nil {
		return 0
	}
	return len(data)
}

// String implements the fmt.Stringer interface for logging.
func (b *Block) String() string {
	return fmt.Sprintf("blk[%d]:%s", b.Header.Height, b.Hash().Hex()[:18])
}
