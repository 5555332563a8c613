package database

import "github.com/ardanlabs/dpos/foundation/blockchain/kvcache"

// Table prefixes for every domain table sharing the store.
var (
	prefixAccount         = kvcache.RegisterPrefix(1, "account")
	prefixRegID           = kvcache.RegisterPrefix(2, "regid")
	prefixAsset           = kvcache.RegisterPrefix(3, "asset")
	prefixCDP             = kvcache.RegisterPrefix(4, "cdp")
	prefixRegIDCDP        = kvcache.RegisterPrefix(5, "regid-cdp")
	prefixCDPRatio        = kvcache.RegisterPrefix(6, "cdp-ratio")
	prefixCDPGlobalStaked = kvcache.RegisterPrefix(7, "cdp-global-staked")
	prefixCDPGlobalOwed   = kvcache.RegisterPrefix(8, "cdp-global-owed")
	prefixClosedCDPTx     = kvcache.RegisterPrefix(9, "closed-cdp-tx")
	prefixClosedTxCDP     = kvcache.RegisterPrefix(10, "closed-tx-cdp")
	prefixVoteRank        = kvcache.RegisterPrefix(11, "vote-rank")
	prefixActiveDelegates = kvcache.RegisterPrefix(12, "active-delegates")
	prefixContract        = kvcache.RegisterPrefix(13, "contract")
	prefixContractData    = kvcache.RegisterPrefix(14, "contract-data")
	prefixTxIndex         = kvcache.RegisterPrefix(15, "tx-index")
	prefixReceipt         = kvcache.RegisterPrefix(16, "receipt")
	prefixTxLog           = kvcache.RegisterPrefix(17, "tx-log")
)

// Prefixes used outside of the cache tables, by the block store.
var (
	PrefixBlock  = kvcache.RegisterPrefix(64, "block")
	PrefixHeight = kvcache.RegisterPrefix(65, "height")
	PrefixTip    = kvcache.RegisterPrefix(66, "tip")
)
