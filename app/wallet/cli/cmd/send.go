package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to     string
	symbol string
	value  uint64
	fees   uint64
	memo   string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a coin transfer",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().StringVarP(&symbol, "symbol", "s", database.SymbolWICC, "Token to send.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send in sawi.")
	sendCmd.Flags().Uint64VarP(&fees, "fees", "f", database.COIN/1000, "Fees paid in WICC sawi.")
	sendCmd.Flags().StringVarP(&memo, "memo", "m", "", "Memo stored with the transfer.")
}

func sendRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	if !common.IsHexAddress(to) {
		log.Fatalf("invalid address %q", to)
	}

	height, err := tipHeight()
	if err != nil {
		log.Fatal(err)
	}

	payload := chain.CoinTransfer{
		Transfers: []chain.Transfer{{To: common.HexToAddress(to), Symbol: symbol, Amount: value}},
		Memo:      memo,
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	id, err := submit(privateKey, chain.NewTx(&payload, height, from, database.SymbolWICC, fees))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(id)
}
