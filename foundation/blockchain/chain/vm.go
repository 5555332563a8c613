package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/rlp"
)

// ErrContractFailed is returned by a VM when the contract itself fails, as
// opposed to the node failing to run it.
var ErrContractFailed = errors.New("contract execution failed")

// StorageOp writes one value into the storage of the invoked contract. An
// empty value erases the key.
type StorageOp struct {
	Key   string
	Value []byte
}

// EncodeStorageArgs builds the invoke arguments understood by StorageVM.
func EncodeStorageArgs(ops ...StorageOp) ([]byte, error) {
	return rlp.EncodeToBytes(ops)
}

// StorageVM is the built in VM. It interprets the invoke arguments as a
// list of storage writes into the contract's data. Every write costs 100
// steps plus one step per argument byte.
type StorageVM struct{}

// Run implements the VM interface.
func (StorageVM) Run(ctx *Context, contractID database.RegID, contract database.Contract, tx *Tx, args []byte) (uint64, error) {
	var ops []StorageOp
	if err := rlp.DecodeBytes(args, &ops); err != nil {
		return uint64(len(args)), fmt.Errorf("decode args: %v: %w", err, ErrContractFailed)
	}

	runStep := uint64(len(args)) + 100*uint64(len(ops))

	for i, op := range ops {
		if op.Key == "" {
			return runStep, fmt.Errorf("op[%d]: empty key: %w", i, ErrContractFailed)
		}

		if err := ctx.Cache.Contracts.SetData(contractID, op.Key, op.Value); err != nil {
			return runStep, err
		}
	}

	return runStep, nil
}
