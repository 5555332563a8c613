package mempool_test

import (
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	height = 200
	fees   = database.COIN / 1000
)

type user struct {
	pk   *ecdsa.PrivateKey
	addr common.Address
	pub  []byte
}

func newUser(t *testing.T) user {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}

	return user{
		pk:   pk,
		addr: crypto.PubkeyToAddress(pk.PublicKey),
		pub:  signature.PublicKeyBytes(pk.PublicKey),
	}
}

func (u user) account(index uint16, wicc uint64) database.Account {
	acct := database.NewAccount(u.addr)
	acct.RegID = database.NewRegID(1, index)
	acct.OwnerPubKey = u.pub
	acct.OperateBalance(database.SymbolWICC, database.AddFree, wicc)
	return acct
}

func (u user) transfer(t *testing.T, to common.Address, amount uint64, memo string) *chain.Tx {
	t.Helper()

	payload := chain.CoinTransfer{
		Transfers: []chain.Transfer{{To: to, Symbol: database.SymbolWICC, Amount: amount}},
		Memo:      memo,
	}

	tx := chain.NewTx(&payload, height, u.addr, database.SymbolWICC, fees)
	tx.PubKey = u.pub
	if err := tx.Sign(u.pk); err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return tx
}

func newBase(t *testing.T) *database.CacheWrapper {
	t.Helper()

	strg, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}
	t.Cleanup(func() { strg.Close() })

	return database.NewCacheWrapper(strg)
}

func newContext() chain.Context {
	return chain.Context{
		Height:     height,
		FuelRate:   1,
		BcoinPrice: database.PriceBoost,
		VM:         chain.StorageVM{},
	}
}

func add(mp *mempool.Mempool, tx *chain.Tx) error {
	return mp.AddUnchecked(newContext(), mempool.NewEntry(tx, height, time.Now()))
}

func reason(err error) string {
	if ve := chain.GetValidationError(err); ve != nil {
		return ve.Reason
	}
	return ""
}

// =============================================================================

func Test_Admission(t *testing.T) {
	t.Log("Given the need to accept transactions into the mempool.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a sender spends more than it has across transactions.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))

			mp := mempool.New(base)

			tx1 := bill.transfer(t, ed.addr, 3*database.COIN, "")
			tx2 := bill.transfer(t, ed.addr, 6*database.COIN, "")
			tx3 := bill.transfer(t, ed.addr, 5*database.COIN, "")

			require.NoError(add(mp, tx1))
			require.NoError(add(mp, tx2))
			t.Logf("\t%s\tTest %d:\tShould be able to add transactions the balance covers.", success, testID)

			err := add(mp, tx3)
			require.Equal("insufficient-account-coins", reason(err))
			require.False(mp.Exists(tx3.Hash()))
			t.Logf("\t%s\tTest %d:\tShould reject the transaction the pool state can not cover.", success, testID)

			require.NoError(mp.CheckTx(newContext(), bill.transfer(t, ed.addr, database.COIN/2, "")))
			t.Logf("\t%s\tTest %d:\tShould be able to check a transaction the pool state covers.", success, testID)

			acct, _, err := base.Accounts.GetAccount(bill.addr)
			require.NoError(err)
			require.Equal(10*database.COIN, acct.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould leave the chain state untouched.", success, testID)

			require.Equal("tx-already-in-mempool", reason(add(mp, tx1)))
			t.Logf("\t%s\tTest %d:\tShould reject a transaction already in the pool.", success, testID)

			require.Equal(2, mp.Count())
			require.Equal(uint64(2), mp.UpdatedTxNum())
			t.Logf("\t%s\tTest %d:\tShould count only the accepted transactions.", success, testID)

			got, exists := mp.Lookup(tx2.Hash())
			require.True(exists)
			require.Equal(tx2.Hash(), got.Hash())
			t.Logf("\t%s\tTest %d:\tShould be able to look up an accepted transaction.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a reward or confirmed transaction is submitted.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))

			mp := mempool.New(base)

			reward := chain.NewBlockRewardTx(bill.addr, height, 0)
			require.Equal("tx-coinbase-to-mempool", reason(add(mp, reward)))
			t.Logf("\t%s\tTest %d:\tShould reject the block reward.", success, testID)

			tx := bill.transfer(t, ed.addr, database.COIN, "")
			require.NoError(base.Txs.AddBlockTxs(common.Hash{1}, height-1, []common.Hash{tx.Hash()}))
			require.Equal("tx-duplicate-confirmed", reason(add(mp, tx)))
			t.Logf("\t%s\tTest %d:\tShould reject a confirmed transaction.", success, testID)
		}
	}
}

func Test_Rescan(t *testing.T) {
	t.Log("Given the need to revalidate the mempool after the chain moves.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block spends part of a sender's balance.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))

			mp := mempool.New(base)

			tx1 := bill.transfer(t, ed.addr, 3*database.COIN, "")
			tx2 := bill.transfer(t, ed.addr, 6*database.COIN, "")
			require.NoError(add(mp, tx1))
			require.NoError(add(mp, tx2))

			require.NoError(base.Accounts.SaveAccount(bill.account(1, 8*database.COIN)))

			removed := mp.Rescan(newContext(), base)
			require.Len(removed, 1)
			require.Equal(tx2.Hash(), removed[0].Hash())
			t.Logf("\t%s\tTest %d:\tShould evict the transaction the balance no longer covers.", success, testID)

			require.True(mp.Exists(tx1.Hash()))
			require.Equal(1, mp.Count())
			require.Equal(uint64(3), mp.UpdatedTxNum())
			t.Logf("\t%s\tTest %d:\tShould keep the transaction that still passes.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the chain height moves past the valid height window.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))

			mp := mempool.New(base)

			tx := bill.transfer(t, ed.addr, database.COIN, "")
			require.NoError(add(mp, tx))

			require.Empty(mp.PriorityTxs(height+chain.TxCacheHeight, 1, chain.TxCacheHeight))
			t.Logf("\t%s\tTest %d:\tShould not offer the expired transaction for a block.", success, testID)

			ctx := newContext()
			ctx.Height = height + chain.TxCacheHeight
			removed := mp.Rescan(ctx, base)
			require.Len(removed, 1)
			require.Zero(mp.Count())
			t.Logf("\t%s\tTest %d:\tShould evict the expired transaction.", success, testID)
		}
	}
}

func Test_RemoveClear(t *testing.T) {
	t.Log("Given the need to take transactions out of the mempool.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen removing and clearing transactions.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))

			mp := mempool.New(base)

			tx1 := bill.transfer(t, ed.addr, 3*database.COIN, "")
			tx2 := bill.transfer(t, ed.addr, 6*database.COIN, "")
			require.NoError(add(mp, tx1))
			require.NoError(add(mp, tx2))

			require.True(mp.Remove(tx1.Hash()))
			require.False(mp.Remove(tx1.Hash()))
			require.True(mp.Exists(tx2.Hash()))
			require.Equal(uint64(3), mp.UpdatedTxNum())
			t.Logf("\t%s\tTest %d:\tShould remove only the named transaction.", success, testID)

			tx3 := bill.transfer(t, ed.addr, 2*database.COIN, "")
			require.Equal("insufficient-account-coins", reason(add(mp, tx3)))
			t.Logf("\t%s\tTest %d:\tShould keep the effects of the removed transaction until a rescan.", success, testID)

			mp.Clear()
			require.Zero(mp.Count())
			require.Equal(uint64(4), mp.UpdatedTxNum())
			require.NoError(add(mp, tx3))
			t.Logf("\t%s\tTest %d:\tShould reset the pool state on clear.", success, testID)
		}
	}
}

func Test_PriorityTxs(t *testing.T) {
	t.Log("Given the need to order the mempool for a block.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen transactions differ in size.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			mp := mempool.New(base)
			ed := newUser(t)

			memos := []string{strings.Repeat("m", 60), "", strings.Repeat("m", 20)}

			var txs []*chain.Tx
			for _, memo := range memos {
				u := newUser(t)
				require.NoError(base.Accounts.SaveAccount(u.account(uint16(len(txs)+1), 10*database.COIN)))

				tx := u.transfer(t, ed.addr, database.COIN, memo)
				require.NoError(add(mp, tx))
				txs = append(txs, tx)
			}

			got := mp.PriorityTxs(height, 1, chain.TxCacheHeight)
			require.Len(got, 3)
			require.Equal(txs[1].Hash(), got[0].Tx.Hash())
			require.Equal(txs[2].Hash(), got[1].Tx.Hash())
			require.Equal(txs[0].Hash(), got[2].Tx.Hash())
			t.Logf("\t%s\tTest %d:\tShould order the smaller transactions first.", success, testID)

			for i := 1; i < len(got); i++ {
				require.GreaterOrEqual(got[i-1].Priority, got[i].Priority)
			}
			t.Logf("\t%s\tTest %d:\tShould never rank a lower priority ahead.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the chain uses a short valid height window.", testID)
		{
			require := require.New(t)

			base := newBase(t)
			mp := mempool.New(base)
			bill := newUser(t)
			ed := newUser(t)
			require.NoError(base.Accounts.SaveAccount(bill.account(1, 10*database.COIN)))
			require.NoError(add(mp, bill.transfer(t, ed.addr, database.COIN, "")))

			require.Len(mp.PriorityTxs(height+10, 1, 20), 1)
			require.Empty(mp.PriorityTxs(height+11, 1, 20))
			t.Logf("\t%s\tTest %d:\tShould expire the transaction at the edge of the window.", success, testID)

			require.Len(mp.PriorityTxs(height+11, 1, chain.TxCacheHeight), 1)
			t.Logf("\t%s\tTest %d:\tShould keep the transaction inside a wider window.", success, testID)
		}
	}
}
