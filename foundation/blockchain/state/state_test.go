package state_test

import (
	"crypto/ecdsa"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
	"github.com/ardanlabs/dpos/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	fees     = database.COIN / 1000
	interval = 10 * time.Second
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

func (u user) sign(t *testing.T, tx *chain.Tx) *chain.Tx {
	t.Helper()

	tx.PubKey = u.pub
	if err := tx.Sign(u.pk); err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return tx
}

func (u user) transfer(t *testing.T, to common.Address, amount uint64) *chain.Tx {
	t.Helper()

	payload := chain.CoinTransfer{
		Transfers: []chain.Transfer{{To: to, Symbol: database.SymbolWICC, Amount: amount}},
	}

	return u.sign(t, chain.NewTx(&payload, 1, u.addr, database.SymbolWICC, fees))
}

// newGenesis returns a chain where the delegate is the only producer and
// holds 100 coins.
func newGenesis(delegate user) genesis.Genesis {
	g := genesis.Default()
	g.Params.RewardMaturity = 2
	g.Accounts = []genesis.Account{
		{PubKey: hexutil.Encode(delegate.pub), Balance: 100 * database.COIN, Votes: 1},
	}
	return g
}

type node struct {
	*state.State
	wallet *wallet.Wallet
	t0     time.Time
}

// at returns the time the number of block intervals after genesis.
func (n node) at(intervals int) time.Time {
	return n.t0.Add(time.Duration(intervals) * interval)
}

func newNode(t *testing.T, g genesis.Genesis, delegate user, vm chain.VM, reg prometheus.Registerer) node {
	t.Helper()

	strg, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}

	return newNodeOn(t, strg, g, delegate, vm, reg)
}

func newNodeOn(t *testing.T, strg state.Storage, g genesis.Genesis, delegate user, vm chain.VM, reg prometheus.Registerer) node {
	t.Helper()

	wlt := wallet.New()
	wlt.Add(delegate.pk)

	st, err := state.New(state.Config{
		Genesis:    g,
		Storage:    strg,
		Wallet:     wlt,
		Host:       "localhost:9080",
		VM:         vm,
		Registerer: reg,
		EvHandler:  func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	return node{State: st, wallet: wlt, t0: g.Date}
}

// build assembles and signs a block the way the production loop does.
func build(n node, at time.Time) (*chain.Block, error) {
	block, err := n.CreateNewBlock(at)
	if err != nil {
		return nil, err
	}

	delegate, err := n.CurrentDelegate(at)
	if err != nil {
		return nil, err
	}

	if err := n.CreateBlockRewardTx(at, delegate, block); err != nil {
		return nil, err
	}

	return block, nil
}

func produce(t *testing.T, n node, at time.Time) *chain.Block {
	t.Helper()

	block, err := build(n, at)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to build a block: %v", failed, err)
	}

	if err := n.CheckWork(block); err != nil {
		t.Fatalf("\t%s\tShould be able to submit the block: %v", failed, err)
	}

	return block
}

func reason(err error) string {
	if ve := chain.GetValidationError(err); ve != nil {
		return ve.Reason
	}
	return ""
}

func balance(t *testing.T, n node, addr common.Address) uint64 {
	t.Helper()

	acct, _, err := n.QueryAccount(addr)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to query the account: %v", failed, err)
	}
	return acct.Free(database.SymbolWICC)
}

// =============================================================================

func Test_ProduceBlocks(t *testing.T) {
	t.Log("Given the need to produce blocks in the delegate's slots.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the only delegate produces consecutive blocks.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			reg := prometheus.NewRegistry()
			n := newNode(t, newGenesis(bill), bill, nil, reg)

			blk1 := produce(t, n, n.at(1))
			hdr, hash := n.TipHeader()
			require.Equal(uint64(1), hdr.Height)
			require.Equal(blk1.Hash(), hash)
			t.Logf("\t%s\tTest %d:\tShould extend genesis without the double production check.", success, testID)

			_, err := build(n, n.at(1).Add(5*time.Second))
			require.ErrorIs(err, state.ErrDoubleProduction)
			t.Logf("\t%s\tTest %d:\tShould refuse a second block inside the same interval.", success, testID)

			blk2 := produce(t, n, n.at(2))
			require.Equal(blk1.Hash(), blk2.Header.PrevBlockHash)
			t.Logf("\t%s\tTest %d:\tShould produce once the interval has passed.", success, testID)

			mined := n.MinedBlocks(0)
			require.Len(mined, 2)
			require.Equal(blk2.Hash(), mined[0].Hash)
			require.Equal(blk1.Hash(), mined[1].Hash)
			require.Len(n.MinedBlocks(1), 1)
			t.Logf("\t%s\tTest %d:\tShould record the mined blocks newest first.", success, testID)

			require.Equal(2.0, counter(t, reg, "dpos_blocks_produced_total"))
			require.Equal(2.0, counter(t, reg, "dpos_blocks_connected_total"))
			t.Logf("\t%s\tTest %d:\tShould count the produced blocks.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a block no longer extends the tip.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			n := newNode(t, newGenesis(bill), bill, nil, nil)

			stale, err := build(n, n.at(1))
			require.NoError(err)

			produce(t, n, n.at(1))

			require.ErrorIs(n.CheckWork(stale), state.ErrStaleBlock)
			t.Logf("\t%s\tTest %d:\tShould drop the stale block.", success, testID)
		}
	}
}

func Test_BlockTransactions(t *testing.T) {
	t.Log("Given the need to pack mempool transactions into blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a transfer is submitted and packed.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			ed := newUser(t)
			n := newNode(t, newGenesis(bill), bill, nil, nil)

			tx := bill.transfer(t, ed.addr, 10*database.COIN)
			require.NoError(n.SubmitTx(tx))
			require.Equal(1, n.Mempool().Count())
			t.Logf("\t%s\tTest %d:\tShould accept the transfer into the mempool.", success, testID)

			require.Equal("tx-already-in-mempool", reason(n.SubmitTx(tx)))
			t.Logf("\t%s\tTest %d:\tShould reject the same transfer twice.", success, testID)

			blk1 := produce(t, n, n.at(1))
			require.Len(blk1.Txs, 2)
			require.Equal(tx.Hash(), blk1.Txs[1].Hash())
			require.Zero(n.Mempool().Count())
			t.Logf("\t%s\tTest %d:\tShould pack the transfer and clear it from the mempool.", success, testID)

			_, reward, err := blk1.RewardTx()
			require.NoError(err)
			require.Equal(fees, reward.RewardFees)
			require.Equal(bill.addr, blk1.Txs[0].From)
			t.Logf("\t%s\tTest %d:\tShould reward the producer with the fees.", success, testID)

			require.Equal(10*database.COIN, balance(t, n, ed.addr))
			require.Equal(90*database.COIN-fees, balance(t, n, bill.addr))
			t.Logf("\t%s\tTest %d:\tShould move the balances.", success, testID)

			loc, err := n.QueryTxLocation(tx.Hash())
			require.NoError(err)
			require.Equal(blk1.Hash(), loc)
			t.Logf("\t%s\tTest %d:\tShould index the transfer under its block.", success, testID)

			require.Equal("tx-duplicate-confirmed", reason(n.SubmitTx(tx)))
			t.Logf("\t%s\tTest %d:\tShould reject the confirmed transfer.", success, testID)

			produce(t, n, n.at(2))
			require.Equal(90*database.COIN-fees, balance(t, n, bill.addr))
			t.Logf("\t%s\tTest %d:\tShould hold back the reward before it matures.", success, testID)

			produce(t, n, n.at(3))
			require.Equal(90*database.COIN, balance(t, n, bill.addr))
			t.Logf("\t%s\tTest %d:\tShould pay the reward once it matures.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the mempool holds more than the block size allows.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			g := newGenesis(bill)
			g.Params.BlockMaxSize = 1000
			n := newNode(t, g, bill, nil, nil)

			const total = 20
			for range total {
				require.NoError(n.SubmitTx(bill.transfer(t, newUser(t).addr, database.COIN)))
			}

			blk := produce(t, n, n.at(1))
			packed := len(blk.Txs) - 1
			require.Positive(packed)
			require.Less(packed, total)
			require.Equal(total-packed, n.Mempool().Count())
			t.Logf("\t%s\tTest %d:\tShould pack only what fits and keep the rest.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen contract calls exceed the run step budget.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			g := newGenesis(bill)
			g.Params.MaxRunStep = 1000
			n := newNode(t, g, bill, stepVM{steps: 600}, nil)

			deploy := chain.ContractDeploy{VMType: database.VMLua, Code: []byte("code")}
			require.NoError(n.SubmitTx(bill.sign(t, chain.NewTx(&deploy, 1, bill.addr, database.SymbolWICC, database.COIN))))
			produce(t, n, n.at(1))

			contract := database.NewRegID(1, 1)
			for i := range 2 {
				invoke := chain.ContractInvoke{Contract: contract, Args: []byte{byte(i)}}
				require.NoError(n.SubmitTx(bill.sign(t, chain.NewTx(&invoke, 1, bill.addr, database.SymbolWICC, database.COIN/100))))
			}

			blk := produce(t, n, n.at(2))
			require.Len(blk.Txs, 2)
			require.Equal(1, n.Mempool().Count())
			t.Logf("\t%s\tTest %d:\tShould pack only the calls the budget covers.", success, testID)

			fuel := uint64(6) * g.Params.InitFuelRate
			require.Equal(fuel, blk.Header.Fuel)

			_, reward, err := blk.RewardTx()
			require.NoError(err)
			require.Equal(database.COIN/100-fuel, reward.RewardFees)
			t.Logf("\t%s\tTest %d:\tShould burn the fuel out of the reward.", success, testID)
		}
	}
}

func Test_RemoteBlocks(t *testing.T) {
	t.Log("Given the need to validate blocks produced by another node.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block spends what the local mempool also spends.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			ed := newUser(t)
			g := newGenesis(bill)

			remote := newNode(t, g, bill, nil, nil)
			local := newNode(t, g, bill, nil, nil)

			require.NoError(remote.SubmitTx(bill.transfer(t, ed.addr, 90*database.COIN)))
			blk := produce(t, remote, remote.at(1))

			pending := bill.transfer(t, ed.addr, 50*database.COIN)
			require.NoError(local.SubmitTx(pending))

			nonce := *blk
			nonce.Header.Nonce = g.Params.MaxNonce + 1
			require.Equal("bad-nonce", reason(local.ProcessBlock(&nonce)))
			t.Logf("\t%s\tTest %d:\tShould reject a nonce above the limit.", success, testID)

			forged := *blk
			forged.Header.Signature = append([]byte(nil), blk.Header.Signature...)
			forged.Header.Signature[0] ^= 0xff
			require.Equal("bad-blk-signature", reason(local.ProcessBlock(&forged)))
			t.Logf("\t%s\tTest %d:\tShould reject a forged signature.", success, testID)

			require.NoError(local.ProcessBlock(blk))
			hdr, _ := local.TipHeader()
			require.Equal(uint64(1), hdr.Height)
			t.Logf("\t%s\tTest %d:\tShould connect the valid block.", success, testID)

			require.False(local.Mempool().Exists(pending.Hash()))
			require.Zero(local.Mempool().Count())
			t.Logf("\t%s\tTest %d:\tShould evict the transfer the balance no longer covers.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a delegate signs two blocks in one interval.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			n := newNode(t, newGenesis(bill), bill, nil, nil)

			produce(t, n, n.at(1))

			blk, err := build(n, n.at(2))
			require.NoError(err)

			blk.Header.Time = uint64(n.at(1).Add(5 * time.Second).Unix())
			blk.Header.Signature, err = n.wallet.Sign(bill.addr, blk.SignatureHash())
			require.NoError(err)

			require.Equal("double-production", reason(n.ProcessBlock(blk)))
			t.Logf("\t%s\tTest %d:\tShould reject the second block.", success, testID)
		}
	}
}

func Test_DisconnectTip(t *testing.T) {
	t.Log("Given the need to roll back the tip block.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the tip holds a transfer.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			ed := newUser(t)
			n := newNode(t, newGenesis(bill), bill, nil, nil)

			_, genesisHash := n.TipHeader()

			tx := bill.transfer(t, ed.addr, 10*database.COIN)
			require.NoError(n.SubmitTx(tx))
			blk := produce(t, n, n.at(1))

			got, err := n.DisconnectTip()
			require.NoError(err)
			require.Equal(blk.Hash(), got.Hash())
			t.Logf("\t%s\tTest %d:\tShould disconnect the tip.", success, testID)

			hdr, hash := n.TipHeader()
			require.Zero(hdr.Height)
			require.Equal(genesisHash, hash)
			t.Logf("\t%s\tTest %d:\tShould make genesis the tip again.", success, testID)

			require.Equal(100*database.COIN, balance(t, n, bill.addr))
			_, exists, err := n.QueryAccount(ed.addr)
			require.NoError(err)
			require.False(exists)
			t.Logf("\t%s\tTest %d:\tShould restore the balances.", success, testID)

			loc, err := n.QueryTxLocation(tx.Hash())
			require.NoError(err)
			require.Equal(common.Hash{}, loc)
			require.True(n.Mempool().Exists(tx.Hash()))
			t.Logf("\t%s\tTest %d:\tShould return the transfer to the mempool.", success, testID)

			_, err = n.DisconnectTip()
			require.ErrorIs(err, state.ErrGenesisTip)
			t.Logf("\t%s\tTest %d:\tShould never disconnect genesis.", success, testID)

			again := produce(t, n, n.at(2))
			require.Len(again.Txs, 2)
			t.Logf("\t%s\tTest %d:\tShould pack the transfer into the next block.", success, testID)
		}
	}
}

// faultyStore fails every batch write while fail is set.
type faultyStore struct {
	*storage.Storage
	fail atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (fs *faultyStore) WriteBatch(ops []kvcache.Op) error {
	if fs.fail.Load() {
		return errDiskFull
	}
	return fs.Storage.WriteBatch(ops)
}

func Test_StoreFailure(t *testing.T) {
	t.Log("Given the need to survive a store that fails to write.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the store fails while connecting a block.", testID)
		{
			require := require.New(t)

			strg, err := storage.NewMemory()
			require.NoError(err)
			store := faultyStore{Storage: strg}

			bill := newUser(t)
			ed := newUser(t)
			n := newNodeOn(t, &store, newGenesis(bill), bill, nil, nil)

			_, genesisHash := n.TipHeader()

			tx := bill.transfer(t, ed.addr, 10*database.COIN)
			require.NoError(n.SubmitTx(tx))

			blk, err := build(n, n.at(1))
			require.NoError(err)

			store.fail.Store(true)
			err = n.CheckWork(blk)
			require.ErrorIs(err, errDiskFull)
			require.Nil(chain.GetValidationError(err))
			t.Logf("\t%s\tTest %d:\tShould return the store error.", success, testID)

			hdr, hash := n.TipHeader()
			require.Zero(hdr.Height)
			require.Equal(genesisHash, hash)
			t.Logf("\t%s\tTest %d:\tShould keep the tip.", success, testID)

			require.Equal(100*database.COIN, balance(t, n, bill.addr))
			_, exists, err := n.QueryAccount(ed.addr)
			require.NoError(err)
			require.False(exists)

			loc, err := n.QueryTxLocation(tx.Hash())
			require.NoError(err)
			require.Equal(common.Hash{}, loc)
			t.Logf("\t%s\tTest %d:\tShould leave the chain state as it was.", success, testID)

			store.fail.Store(false)
			require.NoError(n.CheckWork(blk))

			hdr, hash = n.TipHeader()
			require.Equal(uint64(1), hdr.Height)
			require.Equal(blk.Hash(), hash)
			require.Equal(10*database.COIN, balance(t, n, ed.addr))
			require.Equal(90*database.COIN-fees, balance(t, n, bill.addr))
			t.Logf("\t%s\tTest %d:\tShould connect the same block once the store recovers.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the store fails while disconnecting the tip.", testID)
		{
			require := require.New(t)

			strg, err := storage.NewMemory()
			require.NoError(err)
			store := faultyStore{Storage: strg}

			bill := newUser(t)
			ed := newUser(t)
			n := newNodeOn(t, &store, newGenesis(bill), bill, nil, nil)

			require.NoError(n.SubmitTx(bill.transfer(t, ed.addr, 10*database.COIN)))
			blk := produce(t, n, n.at(1))

			store.fail.Store(true)
			_, err = n.DisconnectTip()
			require.ErrorIs(err, errDiskFull)

			_, hash := n.TipHeader()
			require.Equal(blk.Hash(), hash)
			require.Equal(10*database.COIN, balance(t, n, ed.addr))
			t.Logf("\t%s\tTest %d:\tShould keep the tip and its state.", success, testID)

			store.fail.Store(false)
			got, err := n.DisconnectTip()
			require.NoError(err)
			require.Equal(blk.Hash(), got.Hash())

			_, exists, err := n.QueryAccount(ed.addr)
			require.NoError(err)
			require.False(exists)
			t.Logf("\t%s\tTest %d:\tShould disconnect once the store recovers.", success, testID)
		}
	}
}

func Test_Reload(t *testing.T) {
	t.Log("Given the need to restart a node over its store.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen blocks were connected before the restart.", testID)
		{
			require := require.New(t)

			bill := newUser(t)
			g := newGenesis(bill)
			path := filepath.Join(t.TempDir(), "chain")

			open := func() *state.State {
				strg, err := storage.New(path)
				require.NoError(err)

				wlt := wallet.New()
				wlt.Add(bill.pk)

				st, err := state.New(state.Config{Genesis: g, Storage: strg, Wallet: wlt})
				require.NoError(err)
				return st
			}

			st := open()
			n := node{State: st, t0: g.Date}
			produce(t, n, n.at(1))
			blk := produce(t, n, n.at(2))
			require.NoError(st.Shutdown())

			st = open()
			defer st.Shutdown()

			hdr, hash := st.TipHeader()
			require.Equal(uint64(2), hdr.Height)
			require.Equal(blk.Hash(), hash)
			require.Equal(g.Params.InitFuelRate, st.FuelRate())
			t.Logf("\t%s\tTest %d:\tShould load the chain from the store.", success, testID)

			n = node{State: st, t0: g.Date}
			produce(t, n, n.at(3))
			t.Logf("\t%s\tTest %d:\tShould keep producing on the loaded tip.", success, testID)
		}
	}
}

// =============================================================================

// stepVM is a virtual machine consuming a fixed number of steps per call.
type stepVM struct {
	steps uint64
}

func (vm stepVM) Run(ctx *chain.Context, contractID database.RegID, contract database.Contract, tx *chain.Tx, args []byte) (uint64, error) {
	return vm.steps, nil
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to gather the metrics: %v", failed, err)
	}

	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	t.Fatalf("\t%s\tShould find the metric %s: %v", failed, name, errors.New("not gathered"))
	return 0
}
