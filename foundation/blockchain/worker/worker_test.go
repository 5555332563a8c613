package worker_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
	"github.com/ardanlabs/dpos/foundation/blockchain/wallet"
	"github.com/ardanlabs/dpos/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newState(t *testing.T, network string, withKey bool, peers ...string) *state.State {
	t.Helper()

	strg, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}

	return newStateOn(t, strg, network, withKey, peers...)
}

func newStateOn(t *testing.T, strg state.Storage, network string, withKey bool, peers ...string) *state.State {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}

	g := genesis.Default()
	g.Params.Network = network
	g.Params.BlockInterval = 1
	g.Accounts = []genesis.Account{
		{PubKey: hexutil.Encode(signature.PublicKeyBytes(pk.PublicKey)), Balance: database.COIN, Votes: 1},
	}

	wlt := wallet.New()
	if withKey {
		wlt.Add(pk)
	}

	peerSet := peer.NewPeerSet()
	for _, host := range peers {
		peerSet.Add(peer.New(host))
	}

	st, err := state.New(state.Config{
		Genesis:    g,
		Storage:    strg,
		Wallet:     wlt,
		Host:       "localhost:9080",
		KnownPeers: peerSet,
		EvHandler:  func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	return st
}

func Test_Mining(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Log("Given the need to produce blocks up to a target height.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining two blocks on a regression test chain.", testID)
		{
			st := newState(t, genesis.NetworkRegtest, true)
			w := worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })

			if err := w.StartMining(0); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a target height of zero.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a target height of zero.", success, testID)

			if err := w.StartMining(2); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start mining : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start mining.", success, testID)

			deadline := time.Now().Add(10 * time.Second)
			for {
				if hdr, _ := st.TipHeader(); hdr.Height >= 2 && !w.IsMining() {
					break
				}
				if time.Now().After(deadline) {
					hdr, _ := st.TipHeader()
					t.Fatalf("\t%s\tTest %d:\tShould reach the target height : height[%d] mining[%v]", failed, testID, hdr.Height, w.IsMining())
				}
				time.Sleep(50 * time.Millisecond)
			}
			t.Logf("\t%s\tTest %d:\tShould reach the target height and stop.", success, testID)

			if got := len(st.MinedBlocks(0)); got != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould record two mined blocks : got %d", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould record two mined blocks.", success, testID)

			st.Shutdown()
			t.Logf("\t%s\tTest %d:\tShould shut down without leaking goroutines.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the node has no peers outside regression test.", testID)
		{
			st := newState(t, genesis.NetworkTest, true)
			w := worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })

			if err := w.StartMining(1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start mining : %v", failed, testID, err)
			}

			time.Sleep(300 * time.Millisecond)

			if hdr, _ := st.TipHeader(); hdr.Height != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not produce without peers : height[%d]", failed, testID, hdr.Height)
			}
			t.Logf("\t%s\tTest %d:\tShould not produce without peers.", success, testID)

			w.StopMining()
			st.Shutdown()
			t.Logf("\t%s\tTest %d:\tShould stop waiting on shutdown.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the wallet holds no key.", testID)
		{
			st := newState(t, genesis.NetworkRegtest, false)
			w := worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })

			if err := w.StartMining(1); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to mine without a key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to mine without a key.", success, testID)

			st.Shutdown()
		}
	}
}

// faultyStore fails every read while fail is set.
type faultyStore struct {
	*storage.Storage
	fail atomic.Bool
}

func (fs *faultyStore) Get(key []byte) ([]byte, bool, error) {
	if fs.fail.Load() {
		return nil, false, errors.New("read failed")
	}
	return fs.Storage.Get(key)
}

func Test_MiningRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Log("Given the need to keep producing through transient errors.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the slot owner can not be read for a while.", testID)
		{
			strg, err := storage.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the store : %v", failed, testID, err)
			}
			store := faultyStore{Storage: strg}

			st := newStateOn(t, &store, genesis.NetworkRegtest, true)

			var mu sync.Mutex
			var delegateErrors int
			evHandler := func(v string, args ...any) {
				if strings.Contains(v, "current delegate") {
					mu.Lock()
					delegateErrors++
					mu.Unlock()
				}
				t.Logf(v, args...)
			}

			w := worker.Run(st, evHandler)

			store.fail.Store(true)
			if err := w.StartMining(1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start mining : %v", failed, testID, err)
			}

			time.Sleep(500 * time.Millisecond)

			mu.Lock()
			got := delegateErrors
			mu.Unlock()
			if got == 0 || got > 10 {
				t.Fatalf("\t%s\tTest %d:\tShould retry at the poll interval : errors[%d]", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould retry at the poll interval.", success, testID)

			if !w.IsMining() {
				t.Fatalf("\t%s\tTest %d:\tShould keep mining after the error.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep mining after the error.", success, testID)

			store.fail.Store(false)

			deadline := time.Now().Add(10 * time.Second)
			for {
				if hdr, _ := st.TipHeader(); hdr.Height >= 1 && !w.IsMining() {
					break
				}
				if time.Now().After(deadline) {
					hdr, _ := st.TipHeader()
					t.Fatalf("\t%s\tTest %d:\tShould produce once reads work again : height[%d]", failed, testID, hdr.Height)
				}
				time.Sleep(50 * time.Millisecond)
			}
			t.Logf("\t%s\tTest %d:\tShould produce once reads work again.", success, testID)

			st.Shutdown()
		}
	}
}

func Test_ProposeBlock(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	t.Log("Given the need to share produced blocks with the known peers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer is known.", testID)
		{
			require := require.New(t)

			var mu sync.Mutex
			var heights []uint64

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/node/block/propose" {
					w.WriteHeader(http.StatusNotFound)
					return
				}

				var req worker.BlockRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}

				block, err := chain.DecodeBlock(req.Block)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}

				mu.Lock()
				heights = append(heights, block.Header.Height)
				mu.Unlock()
			}))
			defer srv.Close()

			st := newState(t, genesis.NetworkRegtest, true, strings.TrimPrefix(srv.URL, "http://"))
			w := worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })

			require.NoError(w.StartMining(1))

			require.Eventually(func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(heights) == 1
			}, 10*time.Second, 50*time.Millisecond)

			mu.Lock()
			require.Equal([]uint64{1}, heights)
			mu.Unlock()
			t.Logf("\t%s\tTest %d:\tShould propose the produced block to the peer.", success, testID)

			st.Shutdown()
			http.DefaultClient.CloseIdleConnections()
		}

		testID++
		t.Logf("\tTest %d:\tWhen a peer answers with an error body that is not JSON.", testID)
		{
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("boom"))
			}))
			defer srv.Close()

			var mu sync.Mutex
			var events []string
			evHandler := func(v string, args ...any) {
				mu.Lock()
				events = append(events, fmt.Sprintf(v, args...))
				mu.Unlock()
				t.Logf(v, args...)
			}

			st := newState(t, genesis.NetworkRegtest, true, strings.TrimPrefix(srv.URL, "http://"))
			w := worker.Run(st, evHandler)

			if err := w.StartMining(1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start mining : %v", failed, testID, err)
			}

			logged := func(substr string) bool {
				mu.Lock()
				defer mu.Unlock()
				for _, ev := range events {
					if strings.Contains(ev, substr) {
						return true
					}
				}
				return false
			}

			failure := "proposeBlock: " + strings.TrimPrefix(srv.URL, "http://") + ": ERROR: status 500"

			deadline := time.Now().Add(10 * time.Second)
			for !logged(failure) {
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest %d:\tShould report the status of the failed proposal.", failed, testID)
				}
				time.Sleep(50 * time.Millisecond)
			}
			t.Logf("\t%s\tTest %d:\tShould report the status of the failed proposal.", success, testID)

			if !logged("decode error body") {
				t.Fatalf("\t%s\tTest %d:\tShould log the body that could not be decoded.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould log the body that could not be decoded.", success, testID)

			st.Shutdown()
			http.DefaultClient.CloseIdleConnections()
		}
	}
}
