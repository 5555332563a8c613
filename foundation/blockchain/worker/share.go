package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
)

// BlockRequest is the body posted to a peer proposing a block.
type BlockRequest struct {
	Block string `json:"block"`
}

// TxRequest is the body posted to a peer sharing a transaction.
type TxRequest struct {
	Tx string `json:"tx"`
}

// shareTxOperations handles sharing new user transactions.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.runShareTxOperation(tx)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// runShareTxOperation sends the transaction to every known peer.
func (w *Worker) runShareTxOperation(tx *chain.Tx) {
	w.evHandler("worker: runShareTxOperation: started: %s", tx)
	defer w.evHandler("worker: runShareTxOperation: completed")

	encoded, err := chain.EncodeTx(tx)
	if err != nil {
		w.evHandler("worker: runShareTxOperation: ERROR: %s", err)
		return
	}

	for _, peer := range w.state.KnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", nodeURL(peer))
		if err := w.send(http.MethodPost, url, TxRequest{Tx: encoded}); err != nil {
			w.evHandler("worker: runShareTxOperation: %s: ERROR: %s", peer.Host, err)
		}
	}
}

// proposeBlock sends a block this node produced to every known peer.
func (w *Worker) proposeBlock(block *chain.Block) {
	w.evHandler("worker: proposeBlock: started: %s", block)
	defer w.evHandler("worker: proposeBlock: completed")

	encoded, err := chain.EncodeBlock(block)
	if err != nil {
		w.evHandler("worker: proposeBlock: ERROR: %s", err)
		return
	}

	for _, peer := range w.state.KnownPeers() {
		url := fmt.Sprintf("%s/block/propose", nodeURL(peer))
		if err := w.send(http.MethodPost, url, BlockRequest{Block: encoded}); err != nil {
			w.evHandler("worker: proposeBlock: %s: ERROR: %s", peer.Host, err)
		}
	}
}

// =============================================================================

// nodeURL returns the base of the private node api of the peer.
func nodeURL(p peer.Peer) string {
	return fmt.Sprintf("http://%s/v1/node", p.Host)
}

// send is a helper function to send an HTTP request to a node.
func (w *Worker) send(method string, url string, dataSend any) error {
	ctx, cancel := context.WithTimeout(context.Background(), peerTimeout)
	defer cancel()

	var body bytes.Buffer
	if dataSend != nil {
		if err := json.NewEncoder(&body).Encode(dataSend); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var msg struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			w.evHandler("worker: send: %s: decode error body: %s", url, err)
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg.Error)
	}

	return nil
}
