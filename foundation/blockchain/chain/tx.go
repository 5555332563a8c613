// Package chain defines the transactions and blocks of the chain and the
// interface every transaction implements to check and execute itself
// against a cache wrapper.
package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Payload is the body specific to one kind of transaction. The set of
// payloads is closed to this package.
type Payload interface {
	TxType() TxType
	payload()
}

// newPayload returns an empty payload for decoding the transaction type.
func newPayload(txType TxType) (Payload, error) {
	switch txType {
	case BlockRewardTx:
		return &BlockReward{}, nil
	case UCoinTransferTx:
		return &CoinTransfer{}, nil
	case AssetIssueTx:
		return &AssetIssue{}, nil
	case AssetUpdateTx:
		return &AssetUpdate{}, nil
	case DelegateVoteTx:
		return &DelegateVote{}, nil
	case CDPStakeTx:
		return &CDPStake{}, nil
	case CDPRedeemTx:
		return &CDPRedeem{}, nil
	case UContractDeployTx:
		return &ContractDeploy{}, nil
	case UContractInvokeTx:
		return &ContractInvoke{}, nil
	}

	return nil, fmt.Errorf("unsupported transaction type %s", txType)
}

// =============================================================================

// Tx is the envelope shared by every transaction.
type Tx struct {
	Type        TxType
	Version     uint32
	ValidHeight uint64
	From        common.Address
	PubKey      []byte
	FeeSymbol   string
	Fees        uint64
	Payload     Payload
	Signature   []byte

	// RunStep is the number of steps the last execution consumed. It is
	// never serialized.
	RunStep uint64
}

// NewTx constructs a transaction for the payload.
func NewTx(payload Payload, validHeight uint64, from common.Address, feeSymbol string, fees uint64) *Tx {
	return &Tx{
		Type:        payload.TxType(),
		Version:     InitTxVersion,
		ValidHeight: validHeight,
		From:        from,
		FeeSymbol:   feeSymbol,
		Fees:        fees,
		Payload:     payload,
	}
}

// txRLP is the wire form of a transaction. The payload is encoded on its
// own so the envelope can be decoded before the payload type is known.
type txRLP struct {
	Type        uint8
	Version     uint32
	ValidHeight uint64
	From        common.Address
	PubKey      []byte
	FeeSymbol   string
	Fees        uint64
	Payload     []byte
	Signature   []byte
}

func (tx *Tx) wire(withSignature bool) (txRLP, error) {
	if tx.Payload == nil {
		return txRLP{}, errors.New("transaction has no payload")
	}

	payload, err := rlp.EncodeToBytes(tx.Payload)
	if err != nil {
		return txRLP{}, fmt.Errorf("encode payload: %w", err)
	}

	w := txRLP{
		Type:        uint8(tx.Type),
		Version:     tx.Version,
		ValidHeight: tx.ValidHeight,
		From:        tx.From,
		PubKey:      tx.PubKey,
		FeeSymbol:   tx.FeeSymbol,
		Fees:        tx.Fees,
		Payload:     payload,
	}
	if withSignature {
		w.Signature = tx.Signature
	}

	return w, nil
}

// EncodeRLP implements the rlp.Encoder interface.
func (tx *Tx) EncodeRLP(w io.Writer) error {
	data, err := tx.wire(true)
	if err != nil {
		return err
	}
	return rlp.Encode(w, data)
}

// DecodeRLP implements the rlp.Decoder interface.
func (tx *Tx) DecodeRLP(s *rlp.Stream) error {
	var data txRLP
	if err := s.Decode(&data); err != nil {
		return err
	}

	payload, err := newPayload(TxType(data.Type))
	if err != nil {
		return err
	}
	if err := rlp.DecodeBytes(data.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", TxType(data.Type), err)
	}

	*tx = Tx{
		Type:        TxType(data.Type),
		Version:     data.Version,
		ValidHeight: data.ValidHeight,
		From:        data.From,
		PubKey:      data.PubKey,
		FeeSymbol:   data.FeeSymbol,
		Fees:        data.Fees,
		Payload:     payload,
		Signature:   data.Signature,
	}

	return nil
}

// Hash returns the transaction id: the hash of the transaction without its
// signature.
func (tx *Tx) Hash() common.Hash {
	data, err := tx.wire(false)
	if err != nil {
		return signature.ZeroHash
	}

	b, err := rlp.EncodeToBytes(data)
	if err != nil {
		return signature.ZeroHash
	}

	return signature.Hash(b)
}

// SignatureHash returns the digest the sender signs.
func (tx *Tx) SignatureHash() common.Hash {
	return tx.Hash()
}

// Size returns the serialized size of the transaction in bytes.
func (tx *Tx) Size() int {
	b, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return 0
	}
	return len(b)
}

// Sign uses the specified private key to sign the transaction.
func (tx *Tx) Sign(privateKey *ecdsa.PrivateKey) error {
	sig, err := signature.Sign(tx.SignatureHash(), privateKey)
	if err != nil {
		return err
	}

	tx.Signature = sig
	return nil
}

// Fuel returns the fuel charged for the steps of the last execution at the
// specified fuel rate.
func (tx *Tx) Fuel(fuelRate uint64) uint64 {
	return (tx.RunStep + 99) / 100 * fuelRate
}

// Priority returns the priority score used to order the mempool. Smaller
// transactions rank higher.
func (tx *Tx) Priority() float64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	return 1000 / float64(size)
}

// IsValidHeight reports whether the transaction may be included at the
// current height given the transaction cache window.
func (tx *Tx) IsValidHeight(curHeight uint64, cacheHeight uint64) bool {
	half := cacheHeight / 2

	if tx.ValidHeight > curHeight+half {
		return false
	}
	if tx.ValidHeight+half < curHeight {
		return false
	}

	return true
}

// IsReward reports whether this is a block reward transaction.
func (tx *Tx) IsReward() bool {
	return tx.Type == BlockRewardTx
}

// String implements the fmt.Stringer interface for logging.
func (tx *Tx) String() string {
	return fmt.Sprintf("%s:%s", tx.Type, tx.Hash().Hex()[:18])
}

// =============================================================================

// Check validates the transaction against the context without changing
// any cache. The failure is also recorded in the context state.
func (tx *Tx) Check(ctx *Context) (err error) {
	defer func() { ctx.State.Record(err) }()

	if err := tx.checkEnvelope(ctx); err != nil {
		return err
	}

	switch p := tx.Payload.(type) {
	case *BlockReward:
		return p.check(ctx, tx)
	case *CoinTransfer:
		return p.check(ctx, tx)
	case *AssetIssue:
		return p.check(ctx, tx)
	case *AssetUpdate:
		return p.check(ctx, tx)
	case *DelegateVote:
		return p.check(ctx, tx)
	case *CDPStake:
		return p.check(ctx, tx)
	case *CDPRedeem:
		return p.check(ctx, tx)
	case *ContractDeploy:
		return p.check(ctx, tx)
	case *ContractInvoke:
		return p.check(ctx, tx)
	}

	return Reject(RejectInvalid, "bad-tx-type", "unsupported payload %T", tx.Payload)
}

// Execute applies the transaction to the context cache wrapper. A failure
// may leave partial writes in the wrapper, so callers execute against an
// overlay they can drop. A panic raised while executing, such as from a
// virtual machine, is returned as a rejection.
func (tx *Tx) Execute(ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Reject(RejectInvalid, "tx-execute-panic", "%s: %v", tx, r)
		}
		ctx.State.Record(err)
	}()

	switch p := tx.Payload.(type) {
	case *BlockReward:
		return p.execute(ctx, tx)
	case *CoinTransfer:
		return p.execute(ctx, tx)
	case *AssetIssue:
		return p.execute(ctx, tx)
	case *AssetUpdate:
		return p.execute(ctx, tx)
	case *DelegateVote:
		return p.execute(ctx, tx)
	case *CDPStake:
		return p.execute(ctx, tx)
	case *CDPRedeem:
		return p.execute(ctx, tx)
	case *ContractDeploy:
		return p.execute(ctx, tx)
	case *ContractInvoke:
		return p.execute(ctx, tx)
	}

	return Reject(RejectInvalid, "bad-tx-type", "unsupported payload %T", tx.Payload)
}

func (tx *Tx) checkEnvelope(ctx *Context) error {
	if tx.Version != InitTxVersion {
		return Reject(RejectInvalid, "bad-tx-version", "version %d", tx.Version)
	}

	if tx.Payload == nil || tx.Payload.TxType() != tx.Type {
		return Reject(RejectMalformed, "bad-tx-type", "type %s does not match payload %T", tx.Type, tx.Payload)
	}

	if len(tx.Signature) > signature.MaxSignatureSize {
		return Reject(RejectInvalid, "bad-tx-sig-size", "signature size %d", len(tx.Signature))
	}

	if !tx.IsReward() && !tx.IsValidHeight(ctx.Height, ctx.cacheHeight()) {
		return Reject(RejectInvalid, "tx-invalid-height", "valid height %d, current height %d", tx.ValidHeight, ctx.Height)
	}

	return nil
}

// =============================================================================

// checkFee validates the fee symbol, its range and that the fees cover
// count times the minimum fee.
func (tx *Tx) checkFee(count uint64) error {
	minFee, exists := MinFee(tx.Type, tx.FeeSymbol)
	if !exists {
		return Reject(RejectInvalid, "bad-tx-fee-symbol", "fee symbol %q", tx.FeeSymbol)
	}

	if !CheckCoinRange(tx.FeeSymbol, tx.Fees) {
		return Reject(RejectInvalid, "bad-tx-fee-outofrange", "fees %d", tx.Fees)
	}

	if tx.Fees < minFee*count {
		return Reject(RejectInsufficientFee, "bad-tx-fee-toosmall", "fees %d, minimum %d", tx.Fees, minFee*count)
	}

	return nil
}

// checkSigner resolves the sending account and verifies the signature
// against its owner key, or against the key carried by the transaction for
// an account that has not registered yet.
func (tx *Tx) checkSigner(ctx *Context, requireRegistered bool) (database.Account, error) {
	acct, exists, err := ctx.Cache.Accounts.GetAccount(tx.From)
	if err != nil {
		return database.Account{}, err
	}
	if !exists {
		return database.Account{}, Reject(RejectInvalid, "bad-getaccount", "account %s not found", tx.From)
	}

	if requireRegistered && !acct.IsRegistered() {
		return database.Account{}, Reject(RejectInvalid, "account-unregistered", "account %s", tx.From)
	}

	pubKey := acct.OwnerPubKey
	if len(pubKey) == 0 {
		pubKey = tx.PubKey

		addr, err := signature.ToAddress(pubKey)
		if err != nil || addr != tx.From {
			return database.Account{}, Reject(RejectInvalid, "bad-publickey", "public key does not match %s", tx.From)
		}
	}

	if !signature.Verify(pubKey, tx.SignatureHash(), tx.Signature) {
		return database.Account{}, Reject(RejectInvalid, "bad-tx-signature", "%s", tx)
	}

	return acct, nil
}

// sender loads the sending account for execution.
func (tx *Tx) sender(ctx *Context) (database.Account, error) {
	acct, exists, err := ctx.Cache.Accounts.GetAccount(tx.From)
	if err != nil {
		return database.Account{}, err
	}
	if !exists {
		return database.Account{}, Reject(RejectInvalid, "bad-read-accountdb", "account %s not found", tx.From)
	}
	return acct, nil
}

// register assigns a registration id and owner key to an account spending
// for the first time.
func (tx *Tx) register(ctx *Context, acct *database.Account) {
	if acct.IsRegistered() {
		return
	}

	acct.RegID = ctx.nextRegID()
	if len(acct.OwnerPubKey) == 0 {
		acct.OwnerPubKey = tx.PubKey
	}
}

// payFees takes the fees from the sending account.
func (tx *Tx) payFees(acct *database.Account) error {
	if err := acct.OperateBalance(tx.FeeSymbol, database.SubFree, tx.Fees); err != nil {
		return balanceReject("insufficient-funds", err)
	}
	return nil
}

// balanceReject turns a balance operation failure into a rejection.
func balanceReject(reason string, err error) error {
	return Reject(RejectInvalid, reason, "%s", err)
}
