// Package commands contains the functionality for the set of commands
// currently supported by the CLI tooling.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Genesis writes a genesis file where every key in the accounts folder is a
// funded delegate candidate.
//
//	admin genesis <accounts folder> <genesis file> [network]
func Genesis(args []string) error {
	if len(args) < 4 {
		return errors.New("usage: admin genesis <accounts folder> <genesis file> [network]")
	}

	files, err := filepath.Glob(filepath.Join(args[2], "*.ecdsa"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no keys found in %s", args[2])
	}

	g := genesis.Default()
	g.Date = time.Now().UTC().Truncate(time.Second)
	if len(args) > 4 {
		g.Params.Network = args[4]
	}
	g.Params.TotalDelegates = len(files)

	for _, file := range files {
		pk, err := crypto.LoadECDSA(file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		g.Accounts = append(g.Accounts, genesis.Account{
			PubKey:  hexutil.Encode(signature.PublicKeyBytes(pk.PublicKey)),
			Balance: 1_000_000 * database.COIN,
			Votes:   1_000 * database.COIN,
		})
	}

	if err := g.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(args[3], data, 0600); err != nil {
		return err
	}

	fmt.Printf("genesis written to %s with %d delegates\n", args[3], len(files))

	return nil
}
