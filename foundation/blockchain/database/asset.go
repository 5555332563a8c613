package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
)

// COIN is the number of sawi in one coin. Every amount is an integer
// count of sawi.
const COIN uint64 = 100_000_000

// ErrUnsupportedSymbol is returned for a symbol that is neither built in
// nor issued.
var ErrUnsupportedSymbol = errors.New("unsupported coin symbol")

// Built in token symbols.
const (
	SymbolWICC = "WICC"
	SymbolWUSD = "WUSD"
	SymbolWGRT = "WGRT"
)

var builtinSymbols = map[string]bool{
	SymbolWICC: true,
	SymbolWUSD: true,
	SymbolWGRT: true,
}

// IsBuiltinSymbol reports whether the symbol is one of the chain's own
// tokens.
func IsBuiltinSymbol(symbol string) bool {
	return builtinSymbols[symbol]
}

// Asset represents a user issued token.
type Asset struct {
	Symbol      string
	Name        string
	Owner       RegID
	TotalSupply uint64
	Mintable    bool
}

// IsEmpty reports whether the asset is a tombstone.
func (a *Asset) IsEmpty() bool {
	return a.Symbol == ""
}

// SetEmpty turns the asset into a tombstone.
func (a *Asset) SetEmpty() {
	*a = Asset{}
}

// =============================================================================

// AssetCache maintains the issued assets keyed by symbol.
type AssetCache struct {
	assets *kvcache.Cache[string, Asset]
}

// NewAssetCache constructs the asset table backed by the store.
func NewAssetCache(store kvcache.Store) *AssetCache {
	return &AssetCache{
		assets: kvcache.New[string, Asset](prefixAsset, kvcache.StringKey{}, kvcache.RLP[Asset]{}, store),
	}
}

// Child constructs an overlay over the asset table.
func (ac *AssetCache) Child() *AssetCache {
	return &AssetCache{
		assets: ac.assets.Child(),
	}
}

// GetAsset returns the asset for the symbol.
func (ac *AssetCache) GetAsset(symbol string) (Asset, bool, error) {
	return ac.assets.Get(symbol)
}

// HasAsset reports whether the symbol has been issued.
func (ac *AssetCache) HasAsset(symbol string) (bool, error) {
	return ac.assets.Has(symbol)
}

// SaveAsset stores the asset.
func (ac *AssetCache) SaveAsset(asset Asset) error {
	return ac.assets.Set(asset.Symbol, asset)
}

// CheckTransferCoinSymbol validates the symbol can be transferred. Built
// in tokens always can, anything else must have been issued.
func (ac *AssetCache) CheckTransferCoinSymbol(symbol string) error {
	if IsBuiltinSymbol(symbol) {
		return nil
	}

	exists, err := ac.assets.Has(symbol)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%q: %w", symbol, ErrUnsupportedSymbol)
	}

	return nil
}

// Flush commits the asset table.
func (ac *AssetCache) Flush() error { return ac.assets.Flush() }

// SetUndoLog sets the undo log for the asset table.
func (ac *AssetCache) SetUndoLog(undo *kvcache.UndoLog) { ac.assets.SetUndoLog(undo) }

// Undo restores the asset table from the log.
func (ac *AssetCache) Undo(undo *kvcache.UndoLog) error { return ac.assets.Undo(undo) }

// Size returns the pending serialized size of the asset table.
func (ac *AssetCache) Size() int { return ac.assets.Size() }

// Clear drops the pending changes of the asset table.
func (ac *AssetCache) Clear() { ac.assets.Clear() }
