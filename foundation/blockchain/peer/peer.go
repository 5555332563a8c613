// Package peer maintains the set of nodes blocks and transactions are
// relayed to. The block producer will not produce while the set is empty
// unless the node runs a regression test chain.
package peer

import (
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus is what a node reports about itself on its status endpoint.
type PeerStatus struct {
	TipHash    common.Hash `json:"tip_hash"`
	TipHeight  uint64      `json:"tip_height"`
	KnownPeers []Peer      `json:"known_peers"`
}

// Info is what this node last learned about a peer.
type Info struct {
	Peer
	TipHeight uint64 `json:"tip_height"`
	Failures  int    `json:"failures"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]*Info
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]*Info),
	}
}

// Add adds a new node to the set. It reports false when the node is
// already known.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}

	ps.set[peer] = &Info{Peer: peer}
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers other than the host, ordered by host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	slices.SortFunc(peers, func(a, b Peer) int {
		return strings.Compare(a.Host, b.Host)
	})

	return peers
}

// Infos returns what is known about every peer, ordered by host.
func (ps *PeerSet) Infos() []Info {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	infos := make([]Info, 0, len(ps.set))
	for _, info := range ps.set {
		infos = append(infos, *info)
	}

	slices.SortFunc(infos, func(a, b Info) int {
		return strings.Compare(a.Host, b.Host)
	})

	return infos
}

// Succeeded records the status a peer answered with and clears its
// failures. It reports false when the peer is not in the set.
func (ps *PeerSet) Succeeded(peer Peer, status PeerStatus) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	info, exists := ps.set[peer]
	if !exists {
		return false
	}

	info.TipHeight = status.TipHeight
	info.Failures = 0
	return true
}

// Failed counts a failed exchange with the peer and returns the failures
// in a row. A peer not in the set returns zero.
func (ps *PeerSet) Failed(peer Peer) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	info, exists := ps.set[peer]
	if !exists {
		return 0
	}

	info.Failures++
	return info.Failures
}
