package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
)

// EncodeBlock returns the hex encoded wire form of the block.
func EncodeBlock(block *Block) (string, error) {
	data, err := rlp.EncodeToBytes(block)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(data), nil
}

// DecodeBlock decodes a block from its hex encoded wire form.
func DecodeBlock(s string) (*Block, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode block hex: %w", err)
	}

	var block Block
	if err := rlp.DecodeBytes(data, &block); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}

	return &block, nil
}

// EncodeTx returns the hex encoded wire form of the transaction.
func EncodeTx(tx *Tx) (string, error) {
	data, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(data), nil
}

// DecodeTx decodes a transaction from its hex encoded wire form.
func DecodeTx(s string) (*Tx, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode tx hex: %w", err)
	}

	var tx Tx
	if err := rlp.DecodeBytes(data, &tx); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}

	return &tx, nil
}
