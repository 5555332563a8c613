package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
)

// Chain prints the blocks connected in a node database.
//
//	admin chain <database path>
func Chain(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: admin chain <database path>")
	}

	strg, err := storage.New(args[2])
	if err != nil {
		return err
	}
	defer strg.Close()

	iter := chain.NewBlockStore(strg).ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		fmt.Printf("%s time[%s] txs[%d] fuel[%d] fuelRate[%d] fees[%d]\n",
			block,
			time.Unix(int64(block.Header.Time), 0).UTC().Format(time.RFC3339),
			len(block.Txs),
			block.Header.Fuel,
			block.Header.FuelRate,
			block.TotalFees(),
		)
	}

	return nil
}
