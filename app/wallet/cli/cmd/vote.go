package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	candidate string
	votes     uint64
	revoke    bool
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Vote for a delegate candidate",
	Run:   voteRun,
}

func init() {
	rootCmd.AddCommand(voteCmd)
	voteCmd.Flags().StringVarP(&candidate, "candidate", "c", "", "Registration id of the candidate.")
	voteCmd.Flags().Uint64VarP(&votes, "votes", "v", 0, "Votes in WICC sawi.")
	voteCmd.Flags().BoolVarP(&revoke, "revoke", "r", false, "Withdraw the votes instead.")
	voteCmd.Flags().Uint64VarP(&fees, "fees", "f", database.COIN/1000, "Fees paid in WICC sawi.")
}

func voteRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	regID, err := database.ParseRegID(candidate)
	if err != nil {
		log.Fatal(err)
	}

	height, err := tipHeight()
	if err != nil {
		log.Fatal(err)
	}

	payload := chain.DelegateVote{
		Votes: []chain.VoteOp{{Candidate: regID, Add: !revoke, Votes: votes}},
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	id, err := submit(privateKey, chain.NewTx(&payload, height, from, database.SymbolWICC, fees))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(id)
}
