// Package nameservice reads a folder of producer keys and creates a name
// service lookup for their addresses.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	accounts map[common.Address]string
	paths    map[string]string
}

// New constructs a name service with the addresses of every .ecdsa key
// file found under the root folder. The file name is the account name.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[common.Address]string),
		paths:    make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(path.Base(fileName), ".ecdsa")
		ns.accounts[crypto.PubkeyToAddress(privateKey.PublicKey)] = name
		ns.paths[name] = fileName

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address.
func (ns *NameService) Lookup(address common.Address) string {
	name, exists := ns.accounts[address]
	if !exists {
		return address.Hex()
	}
	return name
}

// KeyPath returns the path of the key file for the named account.
func (ns *NameService) KeyPath(name string) (string, bool) {
	p, exists := ns.paths[name]
	return p, exists
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[common.Address]string {
	cpy := make(map[common.Address]string, len(ns.accounts))
	for address, name := range ns.accounts {
		cpy[address] = name
	}
	return cpy
}
