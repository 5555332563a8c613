package genesis_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pubKey = "0x0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func Test_Validate(t *testing.T) {
	type table struct {
		name   string
		change func(g *genesis.Genesis)
		errMsg string
	}

	tt := []table{
		{name: "valid", change: func(g *genesis.Genesis) {}},
		{name: "network", change: func(g *genesis.Genesis) { g.Params.Network = "moon" }, errMsg: "network"},
		{name: "fuel", change: func(g *genesis.Genesis) { g.Params.MinFuelRate = 500 }, errMsg: "min_fuel_rate"},
		{name: "pubkey", change: func(g *genesis.Genesis) { g.Accounts[0].PubKey = "kennedy" }, errMsg: "pub_key"},
		{name: "delegates", change: func(g *genesis.Genesis) { g.Params.TotalDelegates = 2 }, errMsg: "delegate candidates"},
	}

	t.Log("Given the need to validate the genesis values.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen checking a %s genesis.", testID, tst.name)
			{
				f := func(t *testing.T) {
					g := genesis.Default()
					g.Accounts = []genesis.Account{{PubKey: pubKey, Balance: 1_000, Votes: 1}}
					tst.change(&g)

					err := g.Validate()
					if tst.errMsg == "" {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould pass validation : %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould pass validation.", success, testID)
						return
					}

					if err == nil || !strings.Contains(err.Error(), tst.errMsg) {
						t.Fatalf("\t%s\tTest %d:\tShould fail naming %q : %v", failed, testID, tst.errMsg, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail naming %q.", success, testID, tst.errMsg)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Load(t *testing.T) {
	t.Log("Given the need to load a genesis file.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen reading a file written from the default.", testID)
		{
			g := genesis.Default()
			g.Accounts = []genesis.Account{{PubKey: pubKey, Balance: 1_000, Votes: 1}}

			data, err := json.Marshal(g)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to marshal the genesis : %v", failed, testID, err)
			}

			path := filepath.Join(t.TempDir(), "genesis.json")
			if err := os.WriteFile(path, data, 0600); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to write the file : %v", failed, testID, err)
			}

			got, err := genesis.Load(path)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to load the file : %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to load the file.", success, testID)

			if got.Params != g.Params || got.Delegates() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get back the same values : %+v", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get back the same values.", success, testID)
		}
	}
}
