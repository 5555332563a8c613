package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair and print the address and genesis public key",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	path := getPrivateKeyPath()

	// Never replace a key that may already own funds or a delegate seat.
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("key file %s already exists", path)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		log.Fatal(err)
	}

	fmt.Println("address:", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
	fmt.Println("pub_key:", hexutil.Encode(signature.PublicKeyBytes(privateKey.PublicKey)))
}
