package chain

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

// Index values for the block reward transaction. A reward executes once as
// the first transaction of its block and once more when it matures.
const (
	RewardIndex       = 0
	RewardMatureIndex = -1
)

// VM runs contract code. Implementations must be deterministic and report
// the number of steps consumed, which is charged as fuel.
type VM interface {
	Run(ctx *Context, contractID database.RegID, contract database.Contract, tx *Tx, args []byte) (runStep uint64, err error)
}

// Context carries everything a transaction needs to check and execute
// itself inside a block.
type Context struct {
	Height         uint64
	Index          int
	FuelRate       uint64
	BlockTime      uint64
	PrevBlockTime  uint64
	BcoinPrice     uint64
	Cache          *database.CacheWrapper
	State          *ValidationState
	VM             VM
	TotalDelegates int
	TxCacheHeight  uint64
}

// WithCache returns a copy of the context executing against the cache
// wrapper.
func (ctx Context) WithCache(cw *database.CacheWrapper) *Context {
	ctx.Cache = cw
	return &ctx
}

// WithState returns a copy of the context reporting into the state.
func (ctx Context) WithState(vs *ValidationState) *Context {
	ctx.State = vs
	return &ctx
}

func (ctx *Context) cacheHeight() uint64 {
	if ctx.TxCacheHeight == 0 {
		return TxCacheHeight
	}
	return ctx.TxCacheHeight
}

// nextRegID returns the registration id a transaction at this position
// assigns to an account registering itself.
func (ctx *Context) nextRegID() database.RegID {
	index := ctx.Index
	if index < 0 {
		index = 0
	}
	return database.NewRegID(uint32(ctx.Height), uint16(index))
}
