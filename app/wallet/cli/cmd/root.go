// Package cmd contains wallet app
package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	accountName string
	accountPath string
	url         string
)

const (
	keyExtension = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private.ecdsa", "Path to the private key.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Simple wallet for the dpos node",
}

// Execute runs the wallet command named on the command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	if !strings.HasSuffix(accountName, keyExtension) {
		accountName += keyExtension
	}

	return filepath.Join(accountPath, accountName)
}

func loadPrivateKey() (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(getPrivateKeyPath())
}

// =============================================================================

// tipHeight returns the height of the node's tip.
func tipHeight() (uint64, error) {
	var status struct {
		TipHeight uint64 `json:"tip_height"`
	}
	if err := get(fmt.Sprintf("%s/v1/status", url), &status); err != nil {
		return 0, err
	}
	return status.TipHeight, nil
}

// submit signs the transaction and posts it to the node.
func submit(privateKey *ecdsa.PrivateKey, tx *chain.Tx) (string, error) {
	tx.PubKey = signature.PublicKeyBytes(privateKey.PublicKey)
	if err := tx.Sign(privateKey); err != nil {
		return "", err
	}

	encoded, err := chain.EncodeTx(tx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(struct {
		Tx string `json:"tx"`
	}{
		Tx: encoded,
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
	}

	return result.ID, nil
}

func get(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var msg struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&msg)
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg.Error)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
