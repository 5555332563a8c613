package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
)

// peerTimeout bounds one exchange with a peer.
const peerTimeout = 5 * time.Second

// maxPeerFailures is the number of failed probes in a row after which a
// peer is dropped from the known peer list.
const maxPeerFailures = 3

// peerOperations handles checking the known peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation probes every known peer. A peer failing too many
// probes in a row is dropped. The production loop stops outside regtest
// once no peer is left.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, peer := range w.state.KnownPeers() {
		status, err := probe(peer)
		if err != nil {
			failures := w.state.PeerFailed(peer)
			w.evHandler("worker: runPeersOperation: probe: %s: failures[%d]: ERROR: %s", peer.Host, failures, err)

			if failures >= maxPeerFailures {
				w.evHandler("worker: runPeersOperation: removing peer %s", peer.Host)
				w.state.RemoveKnownPeer(peer)
			}
			continue
		}

		w.state.PeerSucceeded(peer, status)
		w.evHandler("worker: runPeersOperation: probe: %s: height[%d]", peer.Host, status.TipHeight)
	}
}

// probe asks the peer for its status.
func probe(p peer.Peer) (peer.PeerStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), peerTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/status", nodeURL(p))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return peer.PeerStatus{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return peer.PeerStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return peer.PeerStatus{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var status peer.PeerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return peer.PeerStatus{}, fmt.Errorf("decode status: %w", err)
	}

	return status, nil
}
