package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RatioBoost scales collateral ratios and PriceBoost scales prices, so a
// ratio of 1.5 is stored as 15000 and a price of 0.2 as 2000.
const (
	RatioBoost = 10_000
	PriceBoost = 10_000
)

// ErrCDPNotFound is returned when a CDP id does not resolve.
var ErrCDPNotFound = errors.New("cdp not found")

// CDP is a collateralized debt position: base coins staked against stable
// coins owed.
type CDP struct {
	ID                common.Hash
	Owner             RegID
	BlockHeight       uint64
	BcoinSymbol       string
	ScoinSymbol       string
	TotalStakedBcoins uint64
	TotalOwedScoins   uint64
}

// IsEmpty reports whether the CDP is a tombstone.
func (c *CDP) IsEmpty() bool {
	return c.ID == (common.Hash{})
}

// SetEmpty turns the CDP into a tombstone.
func (c *CDP) SetEmpty() {
	*c = CDP{}
}

// RatioBase returns the collateral ratio at a price of one, the value the
// ratio ranking is ordered by.
func (c CDP) RatioBase() uint64 {
	return mulDiv(c.TotalStakedBcoins, RatioBoost, c.TotalOwedScoins)
}

// CollateralRatio returns the collateral ratio at the specified price.
func (c CDP) CollateralRatio(price uint64) uint64 {
	return mulDiv(c.TotalStakedBcoins, price, c.TotalOwedScoins)
}

// mulDiv returns a*b/d saturating at the maximum uint64. Division by zero
// saturates as well: nothing owed means an unbounded ratio.
func mulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return math.MaxUint64
	}

	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))

	if !x.IsUint64() {
		return math.MaxUint64
	}
	return x.Uint64()
}

// =============================================================================

type ratioKey struct {
	Ratio  uint64
	Height uint64
	ID     common.Hash
}

type ratioKeyCodec struct{}

func (ratioKeyCodec) EncodeKey(key ratioKey) []byte {
	b := binary.BigEndian.AppendUint64(make([]byte, 0, 48), key.Ratio)
	b = binary.BigEndian.AppendUint64(b, key.Height)
	return append(b, key.ID.Bytes()...)
}

func (ratioKeyCodec) DecodeKey(data []byte) (ratioKey, error) {
	if len(data) != 48 {
		return ratioKey{}, fmt.Errorf("ratio key: invalid length %d", len(data))
	}

	return ratioKey{
		Ratio:  binary.BigEndian.Uint64(data[:8]),
		Height: binary.BigEndian.Uint64(data[8:16]),
		ID:     common.BytesToHash(data[16:]),
	}, nil
}

func ratioKeyOf(cdp CDP) ratioKey {
	return ratioKey{Ratio: cdp.RatioBase(), Height: cdp.BlockHeight, ID: cdp.ID}
}

// =============================================================================

// CDPCache maintains the CDPs by id, by owner and by collateral ratio,
// along with the global staked and owed totals.
type CDPCache struct {
	globalStaked *kvcache.Single[uint64]
	globalOwed   *kvcache.Single[uint64]
	cdps         *kvcache.Cache[common.Hash, CDP]
	owners       *kvcache.Cache[RegID, []common.Hash]
	ratios       *kvcache.Cache[ratioKey, CDP]
}

// NewCDPCache constructs the CDP tables backed by the store.
func NewCDPCache(store kvcache.Store) *CDPCache {
	return &CDPCache{
		globalStaked: kvcache.NewSingle[uint64](prefixCDPGlobalStaked, kvcache.RLP[uint64]{}, store),
		globalOwed:   kvcache.NewSingle[uint64](prefixCDPGlobalOwed, kvcache.RLP[uint64]{}, store),
		cdps:         kvcache.New[common.Hash, CDP](prefixCDP, kvcache.HashKey{}, kvcache.RLP[CDP]{}, store),
		owners:       kvcache.New[RegID, []common.Hash](prefixRegIDCDP, regIDKey{}, kvcache.RLP[[]common.Hash]{}, store),
		ratios:       kvcache.New[ratioKey, CDP](prefixCDPRatio, ratioKeyCodec{}, kvcache.RLP[CDP]{}, store),
	}
}

// Child constructs an overlay over the CDP tables.
func (cc *CDPCache) Child() *CDPCache {
	return &CDPCache{
		globalStaked: cc.globalStaked.Child(),
		globalOwed:   cc.globalOwed.Child(),
		cdps:         cc.cdps.Child(),
		owners:       cc.owners.Child(),
		ratios:       cc.ratios.Child(),
	}
}

// NewCDP stores a new CDP opened at the specified height.
func (cc *CDPCache) NewCDP(height uint64, cdp CDP) error {
	cdp.BlockHeight = height

	if err := cc.cdps.Set(cdp.ID, cdp); err != nil {
		return err
	}

	ids, _, err := cc.owners.Get(cdp.Owner)
	if err != nil {
		return err
	}
	if err := cc.owners.Set(cdp.Owner, append(append([]common.Hash(nil), ids...), cdp.ID)); err != nil {
		return err
	}

	if err := cc.ratios.Set(ratioKeyOf(cdp), cdp); err != nil {
		return err
	}

	return cc.adjustGlobals(0, 0, cdp.TotalStakedBcoins, cdp.TotalOwedScoins)
}

// UpdateCDP replaces the old state of a CDP with the new one.
func (cc *CDPCache) UpdateCDP(oldCDP CDP, newCDP CDP) error {
	if err := cc.cdps.Set(newCDP.ID, newCDP); err != nil {
		return err
	}

	if err := cc.ratios.Erase(ratioKeyOf(oldCDP)); err != nil {
		return err
	}
	if err := cc.ratios.Set(ratioKeyOf(newCDP), newCDP); err != nil {
		return err
	}

	return cc.adjustGlobals(oldCDP.TotalStakedBcoins, oldCDP.TotalOwedScoins, newCDP.TotalStakedBcoins, newCDP.TotalOwedScoins)
}

// EraseCDP removes the CDP from every table and the global totals.
func (cc *CDPCache) EraseCDP(cdp CDP) error {
	if err := cc.cdps.Erase(cdp.ID); err != nil {
		return err
	}

	ids, _, err := cc.owners.Get(cdp.Owner)
	if err != nil {
		return err
	}

	remaining := make([]common.Hash, 0, len(ids))
	for _, id := range ids {
		if id != cdp.ID {
			remaining = append(remaining, id)
		}
	}

	switch len(remaining) {
	case 0:
		err = cc.owners.Erase(cdp.Owner)
	default:
		err = cc.owners.Set(cdp.Owner, remaining)
	}
	if err != nil {
		return err
	}

	if err := cc.ratios.Erase(ratioKeyOf(cdp)); err != nil {
		return err
	}

	return cc.adjustGlobals(cdp.TotalStakedBcoins, cdp.TotalOwedScoins, 0, 0)
}

// GetCDP returns the CDP with the id.
func (cc *CDPCache) GetCDP(id common.Hash) (CDP, bool, error) {
	return cc.cdps.Get(id)
}

// GetCDPList returns the CDPs owned by the registration id.
func (cc *CDPCache) GetCDPList(owner RegID) ([]CDP, error) {
	ids, _, err := cc.owners.Get(owner)
	if err != nil {
		return nil, err
	}

	cdps := make([]CDP, 0, len(ids))
	for _, id := range ids {
		cdp, exists, err := cc.cdps.Get(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("owner %s cdp %s: %w", owner, id, ErrCDPNotFound)
		}
		cdps = append(cdps, cdp)
	}

	return cdps, nil
}

// GetCDPListByCollateralRatio returns the CDPs whose collateral ratio at
// the price is below the specified ratio, lowest ratio first.
func (cc *CDPCache) GetCDPListByCollateralRatio(collateralRatio uint64, price uint64) ([]CDP, error) {
	end := ratioKey{Ratio: mulDiv(collateralRatio, PriceBoost, price)}

	entries, err := cc.ratios.Below(end)
	if err != nil {
		return nil, err
	}

	cdps := make([]CDP, len(entries))
	for i, entry := range entries {
		cdps[i] = entry.Value
	}

	return cdps, nil
}

// GetGlobalItem returns the global staked base coins and owed stable
// coins.
func (cc *CDPCache) GetGlobalItem() (staked uint64, owed uint64, err error) {
	if staked, _, err = cc.globalStaked.Get(); err != nil {
		return 0, 0, err
	}
	if owed, _, err = cc.globalOwed.Get(); err != nil {
		return 0, 0, err
	}
	return staked, owed, nil
}

// GetGlobalCollateralRatio returns the collateral ratio of all CDPs
// together at the price.
func (cc *CDPCache) GetGlobalCollateralRatio(price uint64) (uint64, error) {
	staked, owed, err := cc.GetGlobalItem()
	if err != nil {
		return 0, err
	}

	return mulDiv(staked, price, owed), nil
}

// CheckGlobalCollateralRatioFloorReached reports whether the global
// collateral ratio has fallen below the limit.
func (cc *CDPCache) CheckGlobalCollateralRatioFloorReached(price uint64, limit uint64) (bool, error) {
	ratio, err := cc.GetGlobalCollateralRatio(price)
	if err != nil {
		return false, err
	}

	return ratio < limit, nil
}

// CheckGlobalCollateralCeilingReached reports whether staking more base
// coins would pass the global ceiling.
func (cc *CDPCache) CheckGlobalCollateralCeilingReached(newBcoinsToStake uint64, ceiling uint64) (bool, error) {
	staked, _, err := cc.GetGlobalItem()
	if err != nil {
		return false, err
	}

	return staked > ceiling || newBcoinsToStake > ceiling-staked, nil
}

func (cc *CDPCache) adjustGlobals(oldStaked, oldOwed, newStaked, newOwed uint64) error {
	staked, owed, err := cc.GetGlobalItem()
	if err != nil {
		return err
	}

	if staked+newStaked < oldStaked || owed+newOwed < oldOwed {
		return fmt.Errorf("cdp global totals underflow: staked %d owed %d", staked, owed)
	}

	if err := cc.globalStaked.Set(staked + newStaked - oldStaked); err != nil {
		return err
	}
	return cc.globalOwed.Set(owed + newOwed - oldOwed)
}

// Flush commits the CDP tables.
func (cc *CDPCache) Flush() error {
	for _, flush := range []func() error{
		cc.globalStaked.Flush,
		cc.globalOwed.Flush,
		cc.cdps.Flush,
		cc.owners.Flush,
		cc.ratios.Flush,
	} {
		if err := flush(); err != nil {
			return err
		}
	}
	return nil
}

// SetUndoLog sets the undo log for the CDP tables.
func (cc *CDPCache) SetUndoLog(undo *kvcache.UndoLog) {
	cc.globalStaked.SetUndoLog(undo)
	cc.globalOwed.SetUndoLog(undo)
	cc.cdps.SetUndoLog(undo)
	cc.owners.SetUndoLog(undo)
	cc.ratios.SetUndoLog(undo)
}

// Undo restores the CDP tables from the log.
func (cc *CDPCache) Undo(undo *kvcache.UndoLog) error {
	for _, fn := range []func(*kvcache.UndoLog) error{
		cc.globalStaked.Undo,
		cc.globalOwed.Undo,
		cc.cdps.Undo,
		cc.owners.Undo,
		cc.ratios.Undo,
	} {
		if err := fn(undo); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the pending serialized size of the CDP tables.
func (cc *CDPCache) Size() int {
	return cc.globalStaked.Size() + cc.globalOwed.Size() + cc.cdps.Size() + cc.owners.Size() + cc.ratios.Size()
}

// Clear drops the pending changes of the CDP tables.
func (cc *CDPCache) Clear() {
	cc.globalStaked.Clear()
	cc.globalOwed.Clear()
	cc.cdps.Clear()
	cc.owners.Clear()
	cc.ratios.Clear()
}

// =============================================================================

// CDPCloseType records how a CDP was closed.
type CDPCloseType uint8

// Set of CDP close types.
const (
	CloseByRedeem CDPCloseType = iota
	CloseByManualLiquidate
	CloseByForceLiquidate
)

// ClosedCDP links a closed CDP and the transaction that closed it. Ref is
// the transaction id in the by-CDP table and the CDP id in the by-tx
// table.
type ClosedCDP struct {
	Ref       common.Hash
	CloseType CDPCloseType
}

// IsEmpty reports whether the entry is a tombstone.
func (c *ClosedCDP) IsEmpty() bool {
	return c.Ref == (common.Hash{})
}

// SetEmpty turns the entry into a tombstone.
func (c *ClosedCDP) SetEmpty() {
	*c = ClosedCDP{}
}

// ClosedCDPCache indexes closed CDPs by CDP id and by closing transaction.
type ClosedCDPCache struct {
	byCDP *kvcache.Cache[common.Hash, ClosedCDP]
	byTx  *kvcache.Cache[common.Hash, ClosedCDP]
}

// NewClosedCDPCache constructs the closed CDP tables backed by the store.
func NewClosedCDPCache(store kvcache.Store) *ClosedCDPCache {
	return &ClosedCDPCache{
		byCDP: kvcache.New[common.Hash, ClosedCDP](prefixClosedCDPTx, kvcache.HashKey{}, kvcache.RLP[ClosedCDP]{}, store),
		byTx:  kvcache.New[common.Hash, ClosedCDP](prefixClosedTxCDP, kvcache.HashKey{}, kvcache.RLP[ClosedCDP]{}, store),
	}
}

// Child constructs an overlay over the closed CDP tables.
func (cc *ClosedCDPCache) Child() *ClosedCDPCache {
	return &ClosedCDPCache{
		byCDP: cc.byCDP.Child(),
		byTx:  cc.byTx.Child(),
	}
}

// AddClosedCDP records both indexes for a closed CDP.
func (cc *ClosedCDPCache) AddClosedCDP(cdpID common.Hash, txID common.Hash, closeType CDPCloseType) error {
	if err := cc.byCDP.Set(cdpID, ClosedCDP{Ref: txID, CloseType: closeType}); err != nil {
		return err
	}
	return cc.byTx.Set(txID, ClosedCDP{Ref: cdpID, CloseType: closeType})
}

// GetClosedCDPByID returns the closing transaction of the CDP.
func (cc *ClosedCDPCache) GetClosedCDPByID(cdpID common.Hash) (ClosedCDP, bool, error) {
	return cc.byCDP.Get(cdpID)
}

// GetClosedCDPByTxID returns the CDP closed by the transaction.
func (cc *ClosedCDPCache) GetClosedCDPByTxID(txID common.Hash) (ClosedCDP, bool, error) {
	return cc.byTx.Get(txID)
}

// Flush commits the closed CDP tables.
func (cc *ClosedCDPCache) Flush() error {
	if err := cc.byCDP.Flush(); err != nil {
		return err
	}
	return cc.byTx.Flush()
}

// SetUndoLog sets the undo log for the closed CDP tables.
func (cc *ClosedCDPCache) SetUndoLog(undo *kvcache.UndoLog) {
	cc.byCDP.SetUndoLog(undo)
	cc.byTx.SetUndoLog(undo)
}

// Undo restores the closed CDP tables from the log.
func (cc *ClosedCDPCache) Undo(undo *kvcache.UndoLog) error {
	if err := cc.byCDP.Undo(undo); err != nil {
		return err
	}
	return cc.byTx.Undo(undo)
}

// Size returns the pending serialized size of the closed CDP tables.
func (cc *ClosedCDPCache) Size() int {
	return cc.byCDP.Size() + cc.byTx.Size()
}

// Clear drops the pending changes of the closed CDP tables.
func (cc *ClosedCDPCache) Clear() {
	cc.byCDP.Clear()
	cc.byTx.Clear()
}
