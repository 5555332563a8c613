package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
)

// ErrDelegateCount is returned when fewer candidates than the configured
// delegate count hold votes.
var ErrDelegateCount = errors.New("not enough delegate candidates")

// voteKey orders candidates by votes descending and then by registration
// id ascending.
type voteKey struct {
	Votes uint64
	RegID RegID
}

type voteKeyCodec struct{}

func (voteKeyCodec) EncodeKey(key voteKey) []byte {
	b := binary.BigEndian.AppendUint64(make([]byte, 0, 14), ^key.Votes)
	return append(b, key.RegID.Bytes()...)
}

func (voteKeyCodec) DecodeKey(data []byte) (voteKey, error) {
	if len(data) != 14 {
		return voteKey{}, fmt.Errorf("vote key: invalid length %d", len(data))
	}

	regID, err := regIDFromBytes(data[8:])
	if err != nil {
		return voteKey{}, err
	}

	return voteKey{Votes: ^binary.BigEndian.Uint64(data[:8]), RegID: regID}, nil
}

// =============================================================================

// DelegateCache maintains the vote ranking of delegate candidates and the
// persisted list of active delegates.
type DelegateCache struct {
	ranking *kvcache.Cache[voteKey, RegID]
	active  *kvcache.Single[[]RegID]
}

// NewDelegateCache constructs the delegate tables backed by the store.
func NewDelegateCache(store kvcache.Store) *DelegateCache {
	return &DelegateCache{
		ranking: kvcache.New[voteKey, RegID](prefixVoteRank, voteKeyCodec{}, kvcache.RLP[RegID]{}, store),
		active:  kvcache.NewSingle[[]RegID](prefixActiveDelegates, kvcache.RLP[[]RegID]{}, store),
	}
}

// Child constructs an overlay over the delegate tables.
func (dc *DelegateCache) Child() *DelegateCache {
	return &DelegateCache{
		ranking: dc.ranking.Child(),
		active:  dc.active.Child(),
	}
}

// SetCandidateVotes moves the candidate in the ranking from its old vote
// count to the new one.
func (dc *DelegateCache) SetCandidateVotes(regID RegID, oldVotes uint64, newVotes uint64) error {
	if oldVotes == newVotes {
		return nil
	}

	if oldVotes > 0 {
		if err := dc.ranking.Erase(voteKey{Votes: oldVotes, RegID: regID}); err != nil {
			return err
		}
	}

	if newVotes > 0 {
		return dc.ranking.Set(voteKey{Votes: newVotes, RegID: regID}, regID)
	}

	return nil
}

// GetTopDelegateList returns the n candidates with the most votes.
func (dc *DelegateCache) GetTopDelegateList(n int) ([]RegID, error) {
	keys, err := dc.ranking.TopN(n)
	if err != nil {
		return nil, err
	}

	if len(keys) != n {
		return nil, fmt.Errorf("have %d, want %d: %w", len(keys), n, ErrDelegateCount)
	}

	delegates := make([]RegID, len(keys))
	for i, key := range keys {
		delegates[i] = key.RegID
	}

	return delegates, nil
}

// GetActiveDelegates returns the persisted active delegate list.
func (dc *DelegateCache) GetActiveDelegates() ([]RegID, error) {
	delegates, _, err := dc.active.Get()
	return delegates, err
}

// SetActiveDelegates persists the active delegate list.
func (dc *DelegateCache) SetActiveDelegates(delegates []RegID) error {
	seen := make(map[RegID]struct{}, len(delegates))
	for _, regID := range delegates {
		if _, exists := seen[regID]; exists {
			return fmt.Errorf("duplicate delegate %s", regID)
		}
		seen[regID] = struct{}{}
	}

	return dc.active.Set(append([]RegID(nil), delegates...))
}

// Flush commits the delegate tables.
func (dc *DelegateCache) Flush() error {
	if err := dc.ranking.Flush(); err != nil {
		return err
	}
	return dc.active.Flush()
}

// SetUndoLog sets the undo log for the delegate tables.
func (dc *DelegateCache) SetUndoLog(undo *kvcache.UndoLog) {
	dc.ranking.SetUndoLog(undo)
	dc.active.SetUndoLog(undo)
}

// Undo restores the delegate tables from the log.
func (dc *DelegateCache) Undo(undo *kvcache.UndoLog) error {
	if err := dc.ranking.Undo(undo); err != nil {
		return err
	}
	return dc.active.Undo(undo)
}

// Size returns the pending serialized size of the delegate tables.
func (dc *DelegateCache) Size() int {
	return dc.ranking.Size() + dc.active.Size()
}

// Clear drops the pending changes of the delegate tables.
func (dc *DelegateCache) Clear() {
	dc.ranking.Clear()
	dc.active.Clear()
}
