package database

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
)

// VMType identifies the virtual machine a contract runs on.
type VMType uint8

// Set of supported virtual machines.
const (
	VMLua VMType = iota + 1
	VMWasm
)

// Contract is the deployed code of a contract account.
type Contract struct {
	VMType VMType
	Code   []byte
	Memo   string
}

// IsEmpty reports whether the contract is a tombstone.
func (c *Contract) IsEmpty() bool {
	return len(c.Code) == 0
}

// SetEmpty turns the contract into a tombstone.
func (c *Contract) SetEmpty() {
	*c = Contract{}
}

// ContractDataKey addresses one value in the storage of a contract.
type ContractDataKey struct {
	Contract RegID
	Key      string
}

type contractDataKeyCodec struct{}

func (contractDataKeyCodec) EncodeKey(key ContractDataKey) []byte {
	return append(key.Contract.Bytes(), key.Key...)
}

func (contractDataKeyCodec) DecodeKey(data []byte) (ContractDataKey, error) {
	if len(data) < 6 {
		return ContractDataKey{}, fmt.Errorf("contract data key: invalid length %d", len(data))
	}

	regID, err := regIDFromBytes(data[:6])
	if err != nil {
		return ContractDataKey{}, err
	}

	return ContractDataKey{Contract: regID, Key: string(data[6:])}, nil
}

// =============================================================================

// ContractCache maintains contract code by registration id and the key
// value storage of every contract.
type ContractCache struct {
	contracts *kvcache.Cache[RegID, Contract]
	data      *kvcache.Cache[ContractDataKey, []byte]
}

// NewContractCache constructs the contract tables backed by the store.
func NewContractCache(store kvcache.Store) *ContractCache {
	return &ContractCache{
		contracts: kvcache.New[RegID, Contract](prefixContract, regIDKey{}, kvcache.RLP[Contract]{}, store),
		data:      kvcache.New[ContractDataKey, []byte](prefixContractData, contractDataKeyCodec{}, kvcache.RLP[[]byte]{}, store),
	}
}

// Child constructs an overlay over the contract tables.
func (cc *ContractCache) Child() *ContractCache {
	return &ContractCache{
		contracts: cc.contracts.Child(),
		data:      cc.data.Child(),
	}
}

// GetContract returns the contract deployed under the id.
func (cc *ContractCache) GetContract(regID RegID) (Contract, bool, error) {
	return cc.contracts.Get(regID)
}

// HaveContract reports whether a contract is deployed under the id.
func (cc *ContractCache) HaveContract(regID RegID) (bool, error) {
	return cc.contracts.Has(regID)
}

// SaveContract stores the contract under the id.
func (cc *ContractCache) SaveContract(regID RegID, contract Contract) error {
	return cc.contracts.Set(regID, contract)
}

// GetData returns a value from the storage of the contract.
func (cc *ContractCache) GetData(regID RegID, key string) ([]byte, bool, error) {
	return cc.data.Get(ContractDataKey{Contract: regID, Key: key})
}

// SetData stores a value in the storage of the contract. An empty value
// erases the key.
func (cc *ContractCache) SetData(regID RegID, key string, value []byte) error {
	if len(value) == 0 {
		return cc.EraseData(regID, key)
	}
	return cc.data.Set(ContractDataKey{Contract: regID, Key: key}, append([]byte(nil), value...))
}

// EraseData removes a value from the storage of the contract.
func (cc *ContractCache) EraseData(regID RegID, key string) error {
	return cc.data.Erase(ContractDataKey{Contract: regID, Key: key})
}

// Flush commits the contract tables.
func (cc *ContractCache) Flush() error {
	if err := cc.contracts.Flush(); err != nil {
		return err
	}
	return cc.data.Flush()
}

// SetUndoLog sets the undo log for the contract tables.
func (cc *ContractCache) SetUndoLog(undo *kvcache.UndoLog) {
	cc.contracts.SetUndoLog(undo)
	cc.data.SetUndoLog(undo)
}

// Undo restores the contract tables from the log.
func (cc *ContractCache) Undo(undo *kvcache.UndoLog) error {
	if err := cc.contracts.Undo(undo); err != nil {
		return err
	}
	return cc.data.Undo(undo)
}

// Size returns the pending serialized size of the contract tables.
func (cc *ContractCache) Size() int {
	return cc.contracts.Size() + cc.data.Size()
}

// Clear drops the pending changes of this layer.
func (cc *ContractCache) Clear() {
	cc.contracts.Clear()
	cc.data.Clear()
}
