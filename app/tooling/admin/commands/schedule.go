package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ardanlabs/dpos/foundation/blockchain/dpos"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
)

// Schedule prints the producing delegate for the slots following the
// genesis block, using the delegates the genesis elects.
//
//	admin schedule <genesis file> [blocks]
func Schedule(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: admin schedule <genesis file> [blocks]")
	}

	g, err := genesis.Load(args[2])
	if err != nil {
		return err
	}

	blocks := uint64(g.Params.TotalDelegates)
	if len(args) > 3 {
		if blocks, err = strconv.ParseUint(args[3], 10, 64); err != nil {
			return err
		}
	}

	strg, err := storage.NewMemory()
	if err != nil {
		return err
	}

	st, err := state.New(state.Config{Genesis: g, Storage: strg})
	if err != nil {
		strg.Close()
		return err
	}
	defer st.Shutdown()

	delegates, err := st.QueryActiveDelegates()
	if err != nil {
		return err
	}

	start := uint64(g.Date.Unix()) + g.Params.BlockInterval
	for h := uint64(1); h <= blocks; h++ {
		unixTime := start + (h-1)*g.Params.BlockInterval
		shuffled := dpos.Shuffle(h, delegates)

		delegate, _ := dpos.CurrentDelegate(unixTime, g.Params.BlockInterval, shuffled)
		fmt.Printf("height[%d] slot[%d] delegate[%s]\n", h, dpos.SlotIndex(unixTime, g.Params.BlockInterval), delegate)
	}

	return nil
}
