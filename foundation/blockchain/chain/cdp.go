package chain

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// Collateral parameters, scaled by database.RatioBoost.
const (
	StartingCollateralRatio    = 19_000
	GlobalCollateralRatioFloor = 8_000
	GlobalCollateralCeiling    = 52_500_000 * database.COIN
)

// CDPStake opens a CDP, or adds to one the sender owns, staking base coins
// and minting stable coins against them. A zero CDPID opens a new CDP.
type CDPStake struct {
	CDPID         common.Hash
	BcoinSymbol   string
	ScoinSymbol   string
	BcoinsToStake uint64
	ScoinsToMint  uint64
}

// TxType implements the Payload interface.
func (*CDPStake) TxType() TxType { return CDPStakeTx }

func (*CDPStake) payload() {}

func (cs *CDPStake) check(ctx *Context, tx *Tx) error {
	if ctx.BcoinPrice == 0 {
		return Reject(RejectInvalid, "price-unavailable", "no base coin price at height %d", ctx.Height)
	}

	if cs.BcoinSymbol != database.SymbolWICC || cs.ScoinSymbol != database.SymbolWUSD {
		return Reject(RejectInvalid, "invalid-cdp-symbol", "pair %s/%s", cs.BcoinSymbol, cs.ScoinSymbol)
	}

	if !CheckCoinRange(cs.BcoinSymbol, cs.BcoinsToStake) || !CheckCoinRange(cs.ScoinSymbol, cs.ScoinsToMint) {
		return Reject(RejectInvalid, "cdp-amount-outofrange", "stake %d mint %d", cs.BcoinsToStake, cs.ScoinsToMint)
	}

	if cs.CDPID == (common.Hash{}) && (cs.BcoinsToStake == 0 || cs.ScoinsToMint == 0) {
		return Reject(RejectInvalid, "invalid-cdp-amount", "new cdp must stake and mint")
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	src, err := tx.checkSigner(ctx, true)
	if err != nil {
		return err
	}

	_, _, err = cs.apply(ctx, tx, src)
	return err
}

// apply returns the stored CDP, if any, and the CDP after staking.
func (cs *CDPStake) apply(ctx *Context, tx *Tx, src database.Account) (database.CDP, database.CDP, error) {
	var old database.CDP
	cdp := database.CDP{
		ID:          tx.Hash(),
		Owner:       src.RegID,
		BcoinSymbol: cs.BcoinSymbol,
		ScoinSymbol: cs.ScoinSymbol,
	}

	if cs.CDPID != (common.Hash{}) {
		stored, exists, err := ctx.Cache.CDPs.GetCDP(cs.CDPID)
		if err != nil {
			return old, cdp, err
		}
		if !exists {
			return old, cdp, Reject(RejectInvalid, "cdp-not-exist", "cdp %s", cs.CDPID.Hex())
		}
		if stored.Owner != src.RegID {
			return old, cdp, Reject(RejectInvalid, "cdp-permission-denied", "cdp %s owned by %s", cs.CDPID.Hex(), stored.Owner)
		}
		old, cdp = stored, stored
	}

	reached, err := ctx.Cache.CDPs.CheckGlobalCollateralCeilingReached(cs.BcoinsToStake, GlobalCollateralCeiling)
	if err != nil {
		return old, cdp, err
	}
	if reached {
		return old, cdp, Reject(RejectInvalid, "global-ceiling-reached", "staking %d", cs.BcoinsToStake)
	}

	if old.TotalOwedScoins > 0 || cs.ScoinsToMint > 0 {
		floor, err := ctx.Cache.CDPs.CheckGlobalCollateralRatioFloorReached(ctx.BcoinPrice, GlobalCollateralRatioFloor)
		if err != nil {
			return old, cdp, err
		}
		if floor {
			return old, cdp, Reject(RejectInvalid, "global-collateral-floor-reached", "price %d", ctx.BcoinPrice)
		}
	}

	cdp.TotalStakedBcoins += cs.BcoinsToStake
	cdp.TotalOwedScoins += cs.ScoinsToMint

	if ratio := cdp.CollateralRatio(ctx.BcoinPrice); ratio < StartingCollateralRatio {
		return old, cdp, Reject(RejectInvalid, "cdp-ratio-toosmall", "collateral ratio %d below %d", ratio, StartingCollateralRatio)
	}

	return old, cdp, nil
}

func (cs *CDPStake) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	old, cdp, err := cs.apply(ctx, tx, src)
	if err != nil {
		return err
	}

	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := src.OperateBalance(cs.BcoinSymbol, database.Stake, cs.BcoinsToStake); err != nil {
		return balanceReject("insufficient-bcoins", err)
	}
	if err := src.OperateBalance(cs.ScoinSymbol, database.AddFree, cs.ScoinsToMint); err != nil {
		return balanceReject("operate-mint-failed", err)
	}

	switch old.IsEmpty() {
	case true:
		err = ctx.Cache.CDPs.NewCDP(ctx.Height, cdp)
	default:
		err = ctx.Cache.CDPs.UpdateCDP(old, cdp)
	}
	if err != nil {
		return err
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	receipts := []database.Receipt{
		{From: src.Address, Symbol: cs.BcoinSymbol, Amount: cs.BcoinsToStake, Code: database.ReceiptCDPStake},
		{To: src.Address, Symbol: cs.ScoinSymbol, Amount: cs.ScoinsToMint, Code: database.ReceiptCDPMint},
	}
	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}

// =============================================================================

// CDPRedeem repays stable coins owed by a CDP and releases staked base
// coins. Repaying everything closes the CDP and releases all of its stake.
type CDPRedeem struct {
	CDPID          common.Hash
	ScoinsToRepay  uint64
	BcoinsToRedeem uint64
}

// TxType implements the Payload interface.
func (*CDPRedeem) TxType() TxType { return CDPRedeemTx }

func (*CDPRedeem) payload() {}

func (cr *CDPRedeem) check(ctx *Context, tx *Tx) error {
	if ctx.BcoinPrice == 0 {
		return Reject(RejectInvalid, "price-unavailable", "no base coin price at height %d", ctx.Height)
	}

	if cr.ScoinsToRepay == 0 && cr.BcoinsToRedeem == 0 {
		return Reject(RejectInvalid, "invalid-cdp-amount", "nothing to redeem")
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	src, err := tx.checkSigner(ctx, true)
	if err != nil {
		return err
	}

	_, _, err = cr.apply(ctx, src)
	return err
}

// apply returns the stored CDP and the CDP after redeeming. An empty
// result means the CDP closes.
func (cr *CDPRedeem) apply(ctx *Context, src database.Account) (database.CDP, database.CDP, error) {
	old, exists, err := ctx.Cache.CDPs.GetCDP(cr.CDPID)
	if err != nil {
		return old, old, err
	}
	if !exists {
		return old, old, Reject(RejectInvalid, "cdp-not-exist", "cdp %s", cr.CDPID.Hex())
	}
	if old.Owner != src.RegID {
		return old, old, Reject(RejectInvalid, "cdp-permission-denied", "cdp %s owned by %s", cr.CDPID.Hex(), old.Owner)
	}

	if cr.ScoinsToRepay > old.TotalOwedScoins {
		return old, old, Reject(RejectInvalid, "scoins-repay-exceed", "repay %d, owed %d", cr.ScoinsToRepay, old.TotalOwedScoins)
	}
	if cr.BcoinsToRedeem > old.TotalStakedBcoins {
		return old, old, Reject(RejectInvalid, "bcoins-redeem-exceed", "redeem %d, staked %d", cr.BcoinsToRedeem, old.TotalStakedBcoins)
	}

	floor, err := ctx.Cache.CDPs.CheckGlobalCollateralRatioFloorReached(ctx.BcoinPrice, GlobalCollateralRatioFloor)
	if err != nil {
		return old, old, err
	}
	if floor {
		return old, old, Reject(RejectInvalid, "global-collateral-floor-reached", "price %d", ctx.BcoinPrice)
	}

	cdp := old
	cdp.TotalOwedScoins -= cr.ScoinsToRepay
	cdp.TotalStakedBcoins -= cr.BcoinsToRedeem

	if cdp.TotalOwedScoins == 0 {
		return old, database.CDP{}, nil
	}

	if ratio := cdp.CollateralRatio(ctx.BcoinPrice); ratio < StartingCollateralRatio {
		return old, cdp, Reject(RejectInvalid, "cdp-ratio-toosmall", "collateral ratio %d below %d", ratio, StartingCollateralRatio)
	}

	return old, cdp, nil
}

func (cr *CDPRedeem) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	old, cdp, err := cr.apply(ctx, src)
	if err != nil {
		return err
	}

	release := cr.BcoinsToRedeem
	if cdp.IsEmpty() {
		release = old.TotalStakedBcoins
	}

	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := src.OperateBalance(old.ScoinSymbol, database.SubFree, cr.ScoinsToRepay); err != nil {
		return balanceReject("insufficient-scoins", err)
	}
	if err := src.OperateBalance(old.BcoinSymbol, database.Unstake, release); err != nil {
		return balanceReject("operate-release-failed", err)
	}

	switch cdp.IsEmpty() {
	case true:
		if err := ctx.Cache.CDPs.EraseCDP(old); err != nil {
			return err
		}
		if err := ctx.Cache.ClosedCDPs.AddClosedCDP(old.ID, tx.Hash(), database.CloseByRedeem); err != nil {
			return err
		}
	default:
		if err := ctx.Cache.CDPs.UpdateCDP(old, cdp); err != nil {
			return err
		}
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	receipts := []database.Receipt{
		{From: src.Address, Symbol: old.ScoinSymbol, Amount: cr.ScoinsToRepay, Code: database.ReceiptCDPRepay},
		{To: src.Address, Symbol: old.BcoinSymbol, Amount: release, Code: database.ReceiptCDPRelease},
	}
	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}
