// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/dpos/business/web/errs"
	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/events"
	"github.com/ardanlabs/dpos/foundation/nameservice"
	"github.com/ardanlabs/dpos/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide node events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// Clients can listen to some packages only: /v1/events?pkg=state&pkg=worker
	ch := h.Evts.Acquire(v.TraceID, r.URL.Query()["pkg"]...)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Tx string `json:"tx"`
	}
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tx, err := chain.DecodeTx(req.Tx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", web.GetTraceID(ctx), "tx", tx, "from", tx.From, "fees", tx.Fees)
	if err := h.State.SubmitTx(tx); err != nil {
		return errs.FromValidation(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     tx.Hash().Hex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Status returns the tip of the chain and the production state.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip, hash := h.State.TipHeader()

	st := status{
		TipHash:   hash.Hex(),
		TipHeight: tip.Height,
		TipTime:   tip.Time,
		FuelRate:  h.State.FuelRate(),
		Mempool:   h.State.Mempool().Count(),
		Peers:     h.State.KnownPeerInfos(),
		Mining:    h.State.Worker != nil && h.State.Worker.IsMining(),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Account returns the balances and registration of an address.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr := web.Param(r, "address")
	if !common.IsHexAddress(addr) {
		return errs.NewTrusted(fmt.Errorf("invalid address %q", addr), http.StatusBadRequest)
	}
	address := common.HexToAddress(addr)

	acct, exists, err := h.State.QueryAccount(address)
	if err != nil {
		return err
	}
	if !exists {
		return errs.NewTrusted(fmt.Errorf("account %s not found", address), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toAccount(acct, h.NS.Lookup(address)), http.StatusOK)
}

// BlockByHeight returns the connected block at the height. The value
// "latest" returns the tip.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	heightStr := web.Param(r, "height")

	var height uint64
	switch heightStr {
	case "latest":
		tip, _ := h.State.TipHeader()
		height = tip.Height

	default:
		var err error
		if height, err = strconv.ParseUint(heightStr, 10, 64); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	blk, err := h.State.QueryBlockByHeight(height)
	if err != nil {
		if errors.Is(err, chain.ErrBlockNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, toBlock(blk, h.fromName), http.StatusOK)
}

// Delegates returns the active delegates.
func (h Handlers) Delegates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	regIDs, err := h.State.QueryActiveDelegates()
	if err != nil {
		return err
	}

	list := make([]string, len(regIDs))
	for i, regID := range regIDs {
		list[i] = regID.String()
	}

	return web.Respond(ctx, w, list, http.StatusOK)
}

// MinedBlocks returns the newest blocks this node produced.
func (h Handlers) MinedBlocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	count, err := strconv.Atoi(web.Param(r, "count"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, h.State.MinedBlocks(count), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	entries := h.State.Mempool().Entries()

	txs := make([]tx, len(entries))
	for i, entry := range entries {
		txs[i] = toTx(entry.Tx, h.fromName(entry.Tx))
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// Tx returns where a transaction is and the receipts it emitted.
func (h Handlers) Tx(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txID := common.HexToHash(web.Param(r, "txid"))

	if t, exists := h.State.Mempool().Lookup(txID); exists {
		view := toTx(t, h.fromName(t))
		return web.Respond(ctx, w, txInfo{Tx: &view, Pending: true}, http.StatusOK)
	}

	blockHash, err := h.State.QueryTxLocation(txID)
	if err != nil {
		return err
	}
	if blockHash == (common.Hash{}) {
		return errs.NewTrusted(fmt.Errorf("tx %s not found", txID.Hex()), http.StatusNotFound)
	}

	rcpts, err := h.State.QueryReceipts(txID)
	if err != nil {
		return err
	}

	info := txInfo{
		Block:    blockHash.Hex(),
		Receipts: make([]receipt, len(rcpts)),
	}
	for i, rc := range rcpts {
		info.Receipts[i] = receipt{
			From:   rc.From.Hex(),
			To:     rc.To.Hex(),
			Symbol: rc.Symbol,
			Amount: rc.Amount,
			Code:   rc.Code.String(),
		}
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

func (h Handlers) fromName(t *chain.Tx) string {
	return h.NS.Lookup(t.From)
}
