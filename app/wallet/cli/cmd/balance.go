package cmd

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type token struct {
	Symbol string `json:"symbol"`
	Free   uint64 `json:"free"`
	Staked uint64 `json:"staked"`
	Voted  uint64 `json:"voted"`
}

type account struct {
	Address       string  `json:"address"`
	RegID         string  `json:"regid"`
	Tokens        []token `json:"tokens"`
	ReceivedVotes uint64  `json:"received_votes"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	fmt.Println("For Account:", address.Hex())

	var acct account
	if err := get(fmt.Sprintf("%s/v1/accounts/%s", url, address.Hex()), &acct); err != nil {
		log.Fatal(err)
	}

	if acct.RegID != "" {
		fmt.Println("RegID:", acct.RegID)
	}
	for _, tb := range acct.Tokens {
		fmt.Printf("%-6s free[%d] staked[%d] voted[%d]\n", tb.Symbol, tb.Free, tb.Staked, tb.Voted)
	}
}
