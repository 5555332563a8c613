// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/ardanlabs/dpos/business/web/errs"
	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/worker"
	"github.com/ardanlabs/dpos/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitNodeTransaction adds a transaction shared by a peer to the mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req worker.TxRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tx, err := chain.DecodeTx(req.Tx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add node tran", "traceid", web.GetTraceID(ctx), "tx", tx, "from", tx.From)
	if err := h.State.SubmitNodeTx(tx); err != nil {
		return errs.FromValidation(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and if
// that passes, connects the block to the local chain.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req worker.BlockRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, err := chain.DecodeBlock(req.Block)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.ProcessBlock(block); err != nil {
		return errs.FromValidation(err, http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// DisconnectTip removes the tip block from the chain and returns its
// transactions to the mempool.
func (h Handlers) DisconnectTip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.DisconnectTip()
	if err != nil {
		if errors.Is(err, state.ErrGenesisTip) || errors.Is(err, state.ErrNoUndo) {
			return errs.NewTrusted(err, http.StatusConflict)
		}
		return err
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
		Height uint64 `json:"height"`
	}{
		Status: "disconnected",
		Hash:   block.Hash().Hex(),
		Height: block.Header.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if pr.Host == "" {
		return errs.NewTrusted(errors.New("peer host is required"), http.StatusBadRequest)
	}

	if !h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", web.GetTraceID(ctx), "host", pr.Host)
	}

	return web.Respond(ctx, w, nil, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip, hash := h.State.TipHeader()

	status := peer.PeerStatus{
		TipHash:    hash,
		TipHeight:  tip.Height,
		KnownPeers: h.State.KnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// StartMining starts block production until the chain grows by the target
// height.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		TargetHeight int64 `json:"target_height"`
	}
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if h.State.Worker == nil {
		return errs.NewTrusted(errors.New("node has no worker"), http.StatusConflict)
	}

	if err := h.State.Worker.StartMining(req.TargetHeight); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining started",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StopMining stops block production.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.State.Worker != nil {
		h.State.Worker.StopMining()
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining stopped",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
