package chain

import (
	"errors"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// AssetUpdateType selects the field an asset update changes.
type AssetUpdateType uint8

// Set of asset update types.
const (
	UpdateOwner AssetUpdateType = iota + 1
	UpdateName
	UpdateMint
)

// AssetIssue issues a new user token owned by a registered account.
type AssetIssue struct {
	Symbol      string
	Name        string
	Owner       database.RegID
	TotalSupply uint64
	Mintable    bool
}

// TxType implements the Payload interface.
func (*AssetIssue) TxType() TxType { return AssetIssueTx }

func (*AssetIssue) payload() {}

func (ai *AssetIssue) check(ctx *Context, tx *Tx) error {
	if err := checkAssetSymbol(ai.Symbol); err != nil {
		return err
	}

	exists, err := ctx.Cache.Assets.HasAsset(ai.Symbol)
	if err != nil {
		return err
	}
	if exists {
		return Reject(RejectDuplicate, "asset-existed", "asset %s already issued", ai.Symbol)
	}

	if err := checkAssetName(ai.Name); err != nil {
		return err
	}

	if ai.TotalSupply == 0 || ai.TotalSupply > MaxAssetTotalSupply {
		return Reject(RejectInvalid, "invalid-total-supply", "total supply %d", ai.TotalSupply)
	}

	if _, err := matureOwner(ctx, ai.Owner); err != nil {
		return err
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	if _, err := tx.checkSigner(ctx, true); err != nil {
		return err
	}

	return nil
}

func (ai *AssetIssue) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := src.OperateBalance(database.SymbolWICC, database.SubFree, AssetIssueFee); err != nil {
		return balanceReject("insufficient-issue-fee", err)
	}

	owner := &src
	if ai.Owner != src.RegID {
		acct, err := matureOwner(ctx, ai.Owner)
		if err != nil {
			return err
		}
		owner = &acct
	}

	if err := owner.OperateBalance(ai.Symbol, database.AddFree, ai.TotalSupply); err != nil {
		return balanceReject("operate-owner-failed", err)
	}

	receipts, err := payAssetFee(ctx, src.Address, AssetIssueFee, database.ReceiptAssetIssueFee, &src, owner)
	if err != nil {
		return err
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}
	if owner != &src {
		if err := ctx.Cache.Accounts.SaveAccount(*owner); err != nil {
			return err
		}
	}

	asset := database.Asset{
		Symbol:      ai.Symbol,
		Name:        ai.Name,
		Owner:       ai.Owner,
		TotalSupply: ai.TotalSupply,
		Mintable:    ai.Mintable,
	}
	if err := ctx.Cache.Assets.SaveAsset(asset); err != nil {
		return err
	}

	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}

// =============================================================================

// AssetUpdate changes the owner or name of a mintable asset, or mints more
// of it to the owner.
type AssetUpdate struct {
	Symbol     string
	UpdateType AssetUpdateType
	Owner      database.RegID
	Name       string
	MintAmount uint64
}

// TxType implements the Payload interface.
func (*AssetUpdate) TxType() TxType { return AssetUpdateTx }

func (*AssetUpdate) payload() {}

func (au *AssetUpdate) check(ctx *Context, tx *Tx) error {
	asset, exists, err := ctx.Cache.Assets.GetAsset(au.Symbol)
	if err != nil {
		return err
	}
	if !exists {
		return Reject(RejectInvalid, "asset-not-exist", "asset %s", au.Symbol)
	}

	if !asset.Mintable {
		return Reject(RejectInvalid, "asset-not-mintable", "asset %s", au.Symbol)
	}

	switch au.UpdateType {
	case UpdateOwner:
		if au.Owner == asset.Owner {
			return Reject(RejectInvalid, "asset-same-owner", "asset %s already owned by %s", au.Symbol, au.Owner)
		}
		if _, err := matureOwner(ctx, au.Owner); err != nil {
			return err
		}

	case UpdateName:
		if err := checkAssetName(au.Name); err != nil {
			return err
		}

	case UpdateMint:
		if au.MintAmount == 0 || au.MintAmount > MaxAssetTotalSupply-asset.TotalSupply {
			return Reject(RejectInvalid, "invalid-mint-amount", "mint %d onto supply %d", au.MintAmount, asset.TotalSupply)
		}

	default:
		return Reject(RejectInvalid, "invalid-update-type", "update type %d", au.UpdateType)
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	src, err := tx.checkSigner(ctx, true)
	if err != nil {
		return err
	}

	if src.RegID != asset.Owner {
		return Reject(RejectInvalid, "asset-permission-denied", "%s does not own %s", src.RegID, au.Symbol)
	}

	return nil
}

func (au *AssetUpdate) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	asset, exists, err := ctx.Cache.Assets.GetAsset(au.Symbol)
	if err != nil {
		return err
	}
	if !exists {
		return Reject(RejectInvalid, "asset-not-exist", "asset %s", au.Symbol)
	}

	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := src.OperateBalance(database.SymbolWICC, database.SubFree, AssetUpdateFee); err != nil {
		return balanceReject("insufficient-update-fee", err)
	}

	switch au.UpdateType {
	case UpdateOwner:
		asset.Owner = au.Owner

	case UpdateName:
		asset.Name = au.Name

	case UpdateMint:
		asset.TotalSupply += au.MintAmount
		if err := src.OperateBalance(au.Symbol, database.AddFree, au.MintAmount); err != nil {
			return balanceReject("operate-owner-failed", err)
		}
	}

	receipts, err := payAssetFee(ctx, src.Address, AssetUpdateFee, database.ReceiptAssetUpdateFee, &src)
	if err != nil {
		return err
	}

	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}
	if err := ctx.Cache.Assets.SaveAsset(asset); err != nil {
		return err
	}

	return ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), receipts)
}

// =============================================================================

// payAssetFee splits the fee evenly among the top delegates, the remainder
// going to the first one. Delegates among the held accounts are credited
// in place, since the caller saves those itself.
func payAssetFee(ctx *Context, payer common.Address, fee uint64, code database.ReceiptCode, held ...*database.Account) ([]database.Receipt, error) {
	if ctx.TotalDelegates <= 0 {
		return nil, Reject(RejectInvalid, "no-delegates", "delegate count %d", ctx.TotalDelegates)
	}

	delegates, err := ctx.Cache.Delegates.GetTopDelegateList(ctx.TotalDelegates)
	if err != nil {
		if errors.Is(err, database.ErrDelegateCount) {
			return nil, Reject(RejectInvalid, "get-delegates-failed", "%s", err)
		}
		return nil, err
	}

	share := fee / uint64(len(delegates))
	receipts := make([]database.Receipt, 0, len(delegates))

	for i, regID := range delegates {
		amount := share
		if i == 0 {
			amount += fee % uint64(len(delegates))
		}

		var target *database.Account
		for _, acct := range held {
			if acct.RegID == regID {
				target = acct
				break
			}
		}

		if target == nil {
			acct, exists, err := ctx.Cache.Accounts.GetAccountByRegID(regID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, Reject(RejectInvalid, "delegate-not-exist", "delegate %s", regID)
			}

			if err := acct.OperateBalance(database.SymbolWICC, database.AddFree, amount); err != nil {
				return nil, balanceReject("operate-delegate-failed", err)
			}
			if err := ctx.Cache.Accounts.SaveAccount(acct); err != nil {
				return nil, err
			}
			target = &acct
		} else {
			if err := target.OperateBalance(database.SymbolWICC, database.AddFree, amount); err != nil {
				return nil, balanceReject("operate-delegate-failed", err)
			}
		}

		receipts = append(receipts, database.Receipt{
			From:   payer,
			To:     target.Address,
			Symbol: database.SymbolWICC,
			Amount: amount,
			Code:   code,
		})
	}

	return receipts, nil
}

// matureOwner returns the account registered with the id, which must have
// matured.
func matureOwner(ctx *Context, regID database.RegID) (database.Account, error) {
	acct, exists, err := ctx.Cache.Accounts.GetAccountByRegID(regID)
	if err != nil {
		return database.Account{}, err
	}
	if !exists {
		return database.Account{}, Reject(RejectInvalid, "owner-not-exist", "owner %s", regID)
	}

	if !regID.IsMature(ctx.Height) {
		return database.Account{}, Reject(RejectInvalid, "owner-regid-immature", "owner %s at height %d", regID, ctx.Height)
	}

	return acct, nil
}

func checkAssetSymbol(symbol string) error {
	if len(symbol) < MinAssetSymbolLen || len(symbol) > MaxAssetSymbolLen {
		return Reject(RejectInvalid, "invalid-asset-symbol", "symbol %q length %d", symbol, len(symbol))
	}

	for _, c := range symbol {
		if c < 'A' || c > 'Z' {
			return Reject(RejectInvalid, "invalid-asset-symbol", "symbol %q", symbol)
		}
	}

	if database.IsBuiltinSymbol(symbol) {
		return Reject(RejectInvalid, "asset-symbol-reserved", "symbol %q", symbol)
	}

	return nil
}

func checkAssetName(name string) error {
	if name == "" || len(name) > MaxAssetNameLen {
		return Reject(RejectInvalid, "invalid-asset-name", "name length %d", len(name))
	}
	return nil
}
