package chain

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

// TxType identifies the kind of a transaction on the wire.
type TxType uint8

// Set of transaction types.
const (
	BlockRewardTx     TxType = 1
	AccountRegisterTx TxType = 2
	DelegateVoteTx    TxType = 3
	LContractInvokeTx TxType = 4
	LContractDeployTx TxType = 5
	UCoinTransferTx   TxType = 11
	UCoinTransferMTx  TxType = 12
	UCoinStakeTx      TxType = 13
	UContractDeployTx TxType = 21
	UContractInvokeTx TxType = 22
	AssetIssueTx      TxType = 31
	AssetUpdateTx     TxType = 32
	CDPStakeTx        TxType = 41
	CDPRedeemTx       TxType = 42
)

var txTypeNames = map[TxType]string{
	BlockRewardTx:     "BLOCK_REWARD_TX",
	AccountRegisterTx: "ACCOUNT_REGISTER_TX",
	DelegateVoteTx:    "DELEGATE_VOTE_TX",
	LContractInvokeTx: "LCONTRACT_INVOKE_TX",
	LContractDeployTx: "LCONTRACT_DEPLOY_TX",
	UCoinTransferTx:   "UCOIN_TRANSFER_TX",
	UCoinTransferMTx:  "UCOIN_TRANSFER_MTX",
	UCoinStakeTx:      "UCOIN_STAKE_TX",
	UContractDeployTx: "UCONTRACT_DEPLOY_TX",
	UContractInvokeTx: "UCONTRACT_INVOKE_TX",
	AssetIssueTx:      "ASSET_ISSUE_TX",
	AssetUpdateTx:     "ASSET_UPDATE_TX",
	CDPStakeTx:        "CDP_STAKE_TX",
	CDPRedeemTx:       "CDP_REDEEM_TX",
}

// String implements the fmt.Stringer interface.
func (t TxType) String() string {
	if name, exists := txTypeNames[t]; exists {
		return name
	}
	return fmt.Sprintf("TX_TYPE(%d)", uint8(t))
}

// =============================================================================

// Chain wide transaction limits.
const (
	InitTxVersion       = 1
	TxCacheHeight       = 500
	MaxTransferSize     = 100
	MaxMemoSize         = 100
	DustAmountThreshold = 10_000
	MaxAssetNameLen     = 32
	MinAssetSymbolLen   = 6
	MaxAssetSymbolLen   = 7
	MaxAssetTotalSupply = 90_000_000_000 * database.COIN
	AssetIssueFee       = 550 * database.COIN
	AssetUpdateFee      = 110 * database.COIN
	MaxContractCodeSize = 64 * 1024
	MaxContractMemoSize = 100
	MaxContractArgsSize = 4 * 1024
)

// Upper bounds for amounts of the built in tokens.
const (
	BaseCoinMaxMoney   = 210_000_000 * database.COIN
	StableCoinMaxMoney = BaseCoinMaxMoney * 10
	FundCoinMaxMoney   = BaseCoinMaxMoney * 100
)

// minFees is the minimum fee per transaction type, the same for every fee
// symbol.
var minFees = map[TxType]uint64{
	BlockRewardTx:     0,
	AccountRegisterTx: database.COIN / 10,
	DelegateVoteTx:    database.COIN / 100,
	LContractInvokeTx: database.COIN / 100,
	LContractDeployTx: database.COIN,
	UCoinTransferTx:   database.COIN / 1000,
	UCoinTransferMTx:  database.COIN / 10,
	UCoinStakeTx:      database.COIN / 100,
	UContractDeployTx: database.COIN,
	UContractInvokeTx: database.COIN / 100,
	AssetIssueTx:      database.COIN / 100,
	AssetUpdateTx:     database.COIN / 100,
	CDPStakeTx:        database.COIN / 100,
	CDPRedeemTx:       database.COIN / 100,
}

var feeSymbols = map[string]bool{
	database.SymbolWICC: true,
	database.SymbolWUSD: true,
}

// IsFeeSymbol reports whether fees may be paid in the symbol.
func IsFeeSymbol(symbol string) bool {
	return feeSymbols[symbol]
}

// MinFee returns the minimum fee for the transaction type paid in the
// symbol.
func MinFee(txType TxType, symbol string) (uint64, bool) {
	if !IsFeeSymbol(symbol) {
		return 0, false
	}

	fee, exists := minFees[txType]
	return fee, exists
}

// CheckCoinRange reports whether the amount is within the money supply of
// the symbol.
func CheckCoinRange(symbol string, amount uint64) bool {
	switch symbol {
	case database.SymbolWICC:
		return amount <= BaseCoinMaxMoney
	case database.SymbolWUSD:
		return amount <= StableCoinMaxMoney
	case database.SymbolWGRT:
		return amount <= FundCoinMaxMoney
	}
	return amount <= MaxAssetTotalSupply
}
