package chain_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const height = 200

type user struct {
	pk   *ecdsa.PrivateKey
	addr common.Address
	pub  []byte
}

func newUser(t *testing.T) user {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}

	return user{
		pk:   pk,
		addr: crypto.PubkeyToAddress(pk.PublicKey),
		pub:  signature.PublicKeyBytes(pk.PublicKey),
	}
}

func (u user) account(regID database.RegID, wicc uint64) database.Account {
	acct := database.NewAccount(u.addr)
	acct.RegID = regID
	acct.OperateBalance(database.SymbolWICC, database.AddFree, wicc)
	return acct
}

func (u user) tx(t *testing.T, payload chain.Payload, fees uint64) *chain.Tx {
	t.Helper()

	tx := chain.NewTx(payload, height, u.addr, database.SymbolWICC, fees)
	tx.PubKey = u.pub
	if err := tx.Sign(u.pk); err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return tx
}

func newContext(t *testing.T) *chain.Context {
	t.Helper()

	strg, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}
	t.Cleanup(func() { strg.Close() })

	return &chain.Context{
		Height:         height,
		Index:          1,
		FuelRate:       1,
		BcoinPrice:     database.PriceBoost,
		Cache:          database.NewCacheWrapper(strg),
		State:          &chain.ValidationState{},
		VM:             chain.StorageVM{},
		TotalDelegates: 2,
	}
}

func run(ctx *chain.Context, tx *chain.Tx) error {
	if err := tx.Check(ctx); err != nil {
		return err
	}
	return tx.Execute(ctx)
}

func reason(err error) string {
	if ve := chain.GetValidationError(err); ve != nil {
		return ve.Reason
	}
	return ""
}

// =============================================================================

func Test_TxEncoding(t *testing.T) {
	t.Log("Given the need to move transactions over the wire.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen encoding a signed transfer.", testID)
		{
			require := require.New(t)

			kennedy := newUser(t)
			transfer := &chain.CoinTransfer{
				Transfers: []chain.Transfer{{To: newUser(t).addr, Symbol: database.SymbolWICC, Amount: database.COIN}},
				Memo:      "lunch",
			}
			tx := kennedy.tx(t, transfer, database.COIN/1000)

			data, err := rlp.EncodeToBytes(tx)
			require.NoError(err)
			require.Equal(len(data), tx.Size())

			var got chain.Tx
			require.NoError(rlp.DecodeBytes(data, &got))
			t.Logf("\t%s\tTest %d:\tShould be able to decode the transaction.", success, testID)

			require.Equal(tx.Hash(), got.Hash())
			require.Equal(chain.UCoinTransferTx, got.Type)
			require.Equal(transfer, got.Payload)
			t.Logf("\t%s\tTest %d:\tShould get back the same transaction.", success, testID)

			require.True(signature.Verify(kennedy.pub, got.SignatureHash(), got.Signature))
			t.Logf("\t%s\tTest %d:\tShould verify the decoded signature.", success, testID)

			got.Signature = nil
			require.Equal(tx.Hash(), got.Hash())
			t.Logf("\t%s\tTest %d:\tShould not include the signature in the id.", success, testID)
		}
	}
}

func Test_ValidHeight(t *testing.T) {
	type table struct {
		valid uint64
		cur   uint64
		exp   bool
	}

	tt := []table{
		{valid: 100, cur: 100, exp: true},
		{valid: 350, cur: 100, exp: true},
		{valid: 351, cur: 100, exp: false},
		{valid: 100, cur: 350, exp: true},
		{valid: 100, cur: 351, exp: false},
	}

	t.Log("Given the need to expire transactions outside the cache window.")
	{
		for testID, tst := range tt {
			tx := chain.NewTx(&chain.CoinTransfer{}, tst.valid, common.Address{}, database.SymbolWICC, 0)
			if got := tx.IsValidHeight(tst.cur, chain.TxCacheHeight); got != tst.exp {
				t.Fatalf("\t%s\tTest %d:\tShould get %v for valid height %d at %d.", failed, testID, tst.exp, tst.valid, tst.cur)
			}
			t.Logf("\t%s\tTest %d:\tShould get %v for valid height %d at %d.", success, testID, tst.exp, tst.valid, tst.cur)
		}
	}
}

func Test_CoinTransfer(t *testing.T) {
	t.Log("Given the need to transfer coins between accounts.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen an unregistered account spends for the first time.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			pavel := newUser(t)
			ceasar := newUser(t)

			require.NoError(ctx.Cache.Accounts.SaveAccount(pavel.account(database.RegID{}, 10*database.COIN)))

			fees := database.COIN / 1000
			transfer := &chain.CoinTransfer{
				Transfers: []chain.Transfer{{To: ceasar.addr, Symbol: database.SymbolWICC, Amount: 3 * database.COIN}},
			}
			tx := pavel.tx(t, transfer, fees)

			require.NoError(run(ctx, tx))
			require.True(ctx.State.IsValid())
			t.Logf("\t%s\tTest %d:\tShould be able to execute the transfer.", success, testID)

			src, _, err := ctx.Cache.Accounts.GetAccount(pavel.addr)
			require.NoError(err)
			require.Equal(database.NewRegID(height, 1), src.RegID)
			require.Equal(pavel.pub, src.OwnerPubKey)
			require.Equal(7*database.COIN-fees, src.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould register the sender and debit it.", success, testID)

			dest, exists, err := ctx.Cache.Accounts.GetAccount(ceasar.addr)
			require.NoError(err)
			require.True(exists)
			require.Equal(3*database.COIN, dest.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould create and credit the receiver.", success, testID)

			receipts, err := ctx.Cache.Receipts.GetTxReceipts(tx.Hash())
			require.NoError(err)
			require.Len(receipts, 1)
			require.Equal(database.ReceiptTransfer, receipts[0].Code)
			t.Logf("\t%s\tTest %d:\tShould emit a receipt.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transfer breaks the rules.", testID)
		{
			ctx := newContext(t)
			pavel := newUser(t)
			ceasar := newUser(t)
			bill := newUser(t)

			require.NoError(t, ctx.Cache.Accounts.SaveAccount(pavel.account(database.NewRegID(1, 1), 10*database.COIN)))

			send := func(amount uint64, symbol string) *chain.CoinTransfer {
				return &chain.CoinTransfer{Transfers: []chain.Transfer{{To: ceasar.addr, Symbol: symbol, Amount: amount}}}
			}

			forged := pavel.tx(t, send(database.COIN, database.SymbolWICC), database.COIN)
			forged.Signature = bill.tx(t, send(database.COIN, database.SymbolWICC), database.COIN).Signature

			wrongKey := pavel.tx(t, send(database.COIN, database.SymbolWICC), database.COIN)
			wrongKey.PubKey = bill.pub
			wrongKey.Sign(bill.pk)

			tt := []struct {
				name   string
				tx     *chain.Tx
				reason string
			}{
				{"dust", pavel.tx(t, send(chain.DustAmountThreshold-1, database.SymbolWICC), database.COIN), "invalid-coin-amount"},
				{"symbol", pavel.tx(t, send(database.COIN, "NOPE"), database.COIN), "invalid-coin-symbol"},
				{"fee", pavel.tx(t, send(database.COIN, database.SymbolWICC), 1), "bad-tx-fee-toosmall"},
				{"signature", forged, "bad-tx-signature"},
				{"publickey", wrongKey, "bad-publickey"},
				{"balance", pavel.tx(t, send(20*database.COIN, database.SymbolWICC), database.COIN), "insufficient-account-coins"},
			}

			for _, tst := range tt {
				state := &chain.ValidationState{}
				err := run(ctx.WithCache(ctx.Cache.Child()).WithState(state), tst.tx)
				if reason(err) != tst.reason {
					t.Fatalf("\t%s\tTest %d:\tShould reject a %s failure with %q : %v", failed, testID, tst.name, tst.reason, err)
				}
				if state.RejectReason() != tst.reason {
					t.Fatalf("\t%s\tTest %d:\tShould record the %s failure : %q", failed, testID, tst.name, state.RejectReason())
				}
				t.Logf("\t%s\tTest %d:\tShould reject a %s failure.", success, testID, tst.name)
			}
		}
	}
}

func Test_BlockReward(t *testing.T) {
	t.Log("Given the need to pay the block producer.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the reward is executed in and after its block.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			miner := newUser(t)
			require.NoError(ctx.Cache.Accounts.SaveAccount(miner.account(database.NewRegID(0, 1), 0)))

			tx := chain.NewBlockRewardTx(miner.addr, height, 5*database.COIN)
			require.NoError(tx.Check(ctx))

			ctx.Index = chain.RewardIndex
			require.NoError(tx.Execute(ctx))

			acct, _, err := ctx.Cache.Accounts.GetAccount(miner.addr)
			require.NoError(err)
			require.Zero(acct.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould not pay an immature reward.", success, testID)

			ctx.Index = chain.RewardMatureIndex
			require.NoError(tx.Execute(ctx))

			acct, _, err = ctx.Cache.Accounts.GetAccount(miner.addr)
			require.NoError(err)
			require.Equal(5*database.COIN, acct.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould pay the reward once mature.", success, testID)

			ctx.Index = 3
			require.Equal("bad-reward-index", reason(tx.Execute(ctx)))
			t.Logf("\t%s\tTest %d:\tShould reject the reward anywhere else.", success, testID)
		}
	}
}

func Test_DelegateVote(t *testing.T) {
	t.Log("Given the need to vote for delegates.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen votes are cast and revoked.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			kennedy := newUser(t)
			pavel := newUser(t)
			pavelID := database.NewRegID(0, 2)

			require.NoError(ctx.Cache.Accounts.SaveAccount(kennedy.account(database.NewRegID(0, 1), 1000*database.COIN)))
			require.NoError(ctx.Cache.Accounts.SaveAccount(pavel.account(pavelID, 0)))

			fees := database.COIN / 100
			vote := &chain.DelegateVote{Votes: []chain.VoteOp{{Candidate: pavelID, Add: true, Votes: 100 * database.COIN}}}
			require.NoError(run(ctx, kennedy.tx(t, vote, fees)))

			top, err := ctx.Cache.Delegates.GetTopDelegateList(1)
			require.NoError(err)
			require.Equal([]database.RegID{pavelID}, top)

			src, _, _ := ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(900*database.COIN-fees, src.Free(database.SymbolWICC))
			require.Equal(100*database.COIN, src.Balance(database.SymbolWICC).Voted)
			t.Logf("\t%s\tTest %d:\tShould rank the candidate and lock the votes.", success, testID)

			revoke := &chain.DelegateVote{Votes: []chain.VoteOp{{Candidate: pavelID, Votes: 40 * database.COIN}}}
			require.NoError(run(ctx, kennedy.tx(t, revoke, fees)))

			cand, _, _ := ctx.Cache.Accounts.GetAccount(pavel.addr)
			require.Equal(60*database.COIN, cand.ReceivedVotes)

			src, _, _ = ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(60*database.COIN, src.CandidateVotes(pavelID))
			t.Logf("\t%s\tTest %d:\tShould release revoked votes.", success, testID)

			tooMany := &chain.DelegateVote{Votes: []chain.VoteOp{{Candidate: pavelID, Votes: 61 * database.COIN}}}
			require.Equal("revoke-votes-exceed", reason(run(ctx.WithCache(ctx.Cache.Child()), kennedy.tx(t, tooMany, fees))))
			t.Logf("\t%s\tTest %d:\tShould not revoke more than was cast.", success, testID)
		}
	}
}

func Test_AssetIssue(t *testing.T) {
	t.Log("Given the need to issue user assets.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a delegate issues an asset.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			kennedy := newUser(t)
			pavel := newUser(t)
			kennedyID := database.NewRegID(0, 1)
			pavelID := database.NewRegID(0, 2)

			require.NoError(ctx.Cache.Accounts.SaveAccount(kennedy.account(kennedyID, 1000*database.COIN)))
			require.NoError(ctx.Cache.Accounts.SaveAccount(pavel.account(pavelID, 0)))
			require.NoError(ctx.Cache.Delegates.SetCandidateVotes(kennedyID, 0, 10))
			require.NoError(ctx.Cache.Delegates.SetCandidateVotes(pavelID, 0, 5))

			fees := database.COIN / 100
			issue := &chain.AssetIssue{Symbol: "DPOSTKN", Name: "dpos token", Owner: kennedyID, TotalSupply: 1000 * database.COIN, Mintable: true}
			tx := kennedy.tx(t, issue, fees)
			require.NoError(run(ctx, tx))
			t.Logf("\t%s\tTest %d:\tShould be able to issue the asset.", success, testID)

			src, _, _ := ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(1000*database.COIN, src.Free("DPOSTKN"))
			require.Equal(1000*database.COIN-chain.AssetIssueFee-fees+chain.AssetIssueFee/2, src.Free(database.SymbolWICC))

			del, _, _ := ctx.Cache.Accounts.GetAccount(pavel.addr)
			require.Equal(chain.AssetIssueFee/2, del.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould split the issue fee among the delegates.", success, testID)

			receipts, err := ctx.Cache.Receipts.GetTxReceipts(tx.Hash())
			require.NoError(err)
			require.Len(receipts, 2)
			t.Logf("\t%s\tTest %d:\tShould emit a receipt per delegate.", success, testID)

			again := &chain.AssetIssue{Symbol: "DPOSTKN", Name: "again", Owner: kennedyID, TotalSupply: database.COIN}
			require.Equal("asset-existed", reason(run(ctx.WithCache(ctx.Cache.Child()), kennedy.tx(t, again, fees))))
			t.Logf("\t%s\tTest %d:\tShould not issue the same symbol twice.", success, testID)

			mint := &chain.AssetUpdate{Symbol: "DPOSTKN", UpdateType: chain.UpdateMint, MintAmount: 5 * database.COIN}
			require.NoError(run(ctx, kennedy.tx(t, mint, fees)))

			asset, _, _ := ctx.Cache.Assets.GetAsset("DPOSTKN")
			require.Equal(1005*database.COIN, asset.TotalSupply)
			t.Logf("\t%s\tTest %d:\tShould mint more of a mintable asset.", success, testID)

			steal := &chain.AssetUpdate{Symbol: "DPOSTKN", UpdateType: chain.UpdateName, Name: "mine now"}
			require.Equal("asset-permission-denied", reason(run(ctx.WithCache(ctx.Cache.Child()), pavel.tx(t, steal, fees))))
			t.Logf("\t%s\tTest %d:\tShould only let the owner update the asset.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the asset fields are invalid.", testID)
		{
			ctx := newContext(t)
			kennedy := newUser(t)
			young := database.NewRegID(height-10, 1)
			require.NoError(t, ctx.Cache.Accounts.SaveAccount(kennedy.account(young, 1000*database.COIN)))

			tt := []struct {
				issue  chain.AssetIssue
				reason string
			}{
				{chain.AssetIssue{Symbol: "DPOS", Name: "n", Owner: young, TotalSupply: 1}, "invalid-asset-symbol"},
				{chain.AssetIssue{Symbol: "DPOStkn", Name: "n", Owner: young, TotalSupply: 1}, "invalid-asset-symbol"},
				{chain.AssetIssue{Symbol: "DPOSTKN", Name: "", Owner: young, TotalSupply: 1}, "invalid-asset-name"},
				{chain.AssetIssue{Symbol: "DPOSTKN", Name: "n", Owner: young, TotalSupply: chain.MaxAssetTotalSupply + 1}, "invalid-total-supply"},
				{chain.AssetIssue{Symbol: "DPOSTKN", Name: "n", Owner: young, TotalSupply: 1}, "owner-regid-immature"},
			}

			for i, tst := range tt {
				issue := tst.issue
				if got := reason(kennedy.tx(t, &issue, database.COIN).Check(ctx)); got != tst.reason {
					t.Fatalf("\t%s\tTest %d:\tShould reject case %d with %q : got %q", failed, testID, i, tst.reason, got)
				}
				t.Logf("\t%s\tTest %d:\tShould reject case %d with %q.", success, testID, i, tst.reason)
			}
		}
	}
}

func Test_CDP(t *testing.T) {
	t.Log("Given the need to borrow stable coins against base coins.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a CDP is opened and fully redeemed.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			kennedy := newUser(t)
			kennedyID := database.NewRegID(0, 1)
			require.NoError(ctx.Cache.Accounts.SaveAccount(kennedy.account(kennedyID, 1000*database.COIN)))

			fees := database.COIN / 100
			stake := func(mint uint64) *chain.CDPStake {
				return &chain.CDPStake{
					BcoinSymbol:   database.SymbolWICC,
					ScoinSymbol:   database.SymbolWUSD,
					BcoinsToStake: 380 * database.COIN,
					ScoinsToMint:  mint,
				}
			}

			require.Equal("cdp-ratio-toosmall", reason(run(ctx.WithCache(ctx.Cache.Child()), kennedy.tx(t, stake(201*database.COIN), fees))))
			t.Logf("\t%s\tTest %d:\tShould not open a CDP below the starting ratio.", success, testID)

			stakeTx := kennedy.tx(t, stake(200*database.COIN), fees)
			require.NoError(run(ctx, stakeTx))

			cdp, exists, err := ctx.Cache.CDPs.GetCDP(stakeTx.Hash())
			require.NoError(err)
			require.True(exists)
			require.Equal(uint64(height), cdp.BlockHeight)
			require.Equal(uint64(chain.StartingCollateralRatio), cdp.CollateralRatio(ctx.BcoinPrice))

			src, _, _ := ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(380*database.COIN, src.Balance(database.SymbolWICC).Staked)
			require.Equal(200*database.COIN, src.Free(database.SymbolWUSD))
			t.Logf("\t%s\tTest %d:\tShould open the CDP and mint stable coins.", success, testID)

			redeem := &chain.CDPRedeem{CDPID: stakeTx.Hash(), ScoinsToRepay: 200 * database.COIN}
			redeemTx := kennedy.tx(t, redeem, fees)
			require.NoError(run(ctx, redeemTx))

			_, exists, err = ctx.Cache.CDPs.GetCDP(stakeTx.Hash())
			require.NoError(err)
			require.False(exists)

			closed, exists, err := ctx.Cache.ClosedCDPs.GetClosedCDPByID(stakeTx.Hash())
			require.NoError(err)
			require.True(exists)
			require.Equal(redeemTx.Hash(), closed.Ref)
			require.Equal(database.CloseByRedeem, closed.CloseType)

			src, _, _ = ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(1000*database.COIN-2*fees, src.Free(database.SymbolWICC))
			require.Zero(src.Balance(database.SymbolWICC).Staked)
			t.Logf("\t%s\tTest %d:\tShould close the repaid CDP and release the stake.", success, testID)

			staked, owed, err := ctx.Cache.CDPs.GetGlobalItem()
			require.NoError(err)
			require.Zero(staked)
			require.Zero(owed)
			t.Logf("\t%s\tTest %d:\tShould clear the global totals.", success, testID)
		}
	}
}

func Test_Contract(t *testing.T) {
	t.Log("Given the need to deploy and invoke contracts.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a contract writes to its storage.", testID)
		{
			require := require.New(t)

			ctx := newContext(t)
			kennedy := newUser(t)
			require.NoError(ctx.Cache.Accounts.SaveAccount(kennedy.account(database.NewRegID(0, 1), 100*database.COIN)))

			deploy := &chain.ContractDeploy{VMType: database.VMLua, Code: []byte("mylib = require 'mylib'")}
			deployTx := kennedy.tx(t, deploy, database.COIN)
			require.NoError(run(ctx, deployTx))

			contractAcct, exists, err := ctx.Cache.Accounts.GetAccount(chain.ContractAddress(deployTx.Hash()))
			require.NoError(err)
			require.True(exists)
			contractID := contractAcct.RegID
			t.Logf("\t%s\tTest %d:\tShould create the contract account %s.", success, testID, contractID)

			args, err := chain.EncodeStorageArgs(chain.StorageOp{Key: "owner", Value: []byte("kennedy")})
			require.NoError(err)

			fees := database.COIN / 100
			ctx.Index = 2
			invoke := &chain.ContractInvoke{Contract: contractID, Args: args, Symbol: database.SymbolWICC, Amount: database.COIN}
			invokeTx := kennedy.tx(t, invoke, fees)
			require.NoError(run(ctx, invokeTx))
			require.Equal(uint64(len(args)+100), invokeTx.RunStep)

			value, exists, err := ctx.Cache.Contracts.GetData(contractID, "owner")
			require.NoError(err)
			require.True(exists)
			require.Equal([]byte("kennedy"), value)

			contractAcct, _, _ = ctx.Cache.Accounts.GetAccount(contractAcct.Address)
			require.Equal(database.COIN, contractAcct.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould run the contract and send it the amount.", success, testID)

			bad := &chain.ContractInvoke{Contract: contractID, Args: []byte("xx"), Symbol: database.SymbolWICC, Amount: database.COIN}
			badTx := kennedy.tx(t, bad, fees)
			require.NoError(run(ctx, badTx))

			execLog, exists, err := ctx.Cache.Logs.GetExecLog(badTx.Hash())
			require.NoError(err)
			require.True(exists)
			require.NotEmpty(execLog.Message)

			contractAcct, _, _ = ctx.Cache.Accounts.GetAccount(contractAcct.Address)
			require.Equal(database.COIN, contractAcct.Free(database.SymbolWICC))

			src, _, _ := ctx.Cache.Accounts.GetAccount(kennedy.addr)
			require.Equal(100*database.COIN-database.COIN-database.COIN-2*fees, src.Free(database.SymbolWICC))
			t.Logf("\t%s\tTest %d:\tShould keep only the fees of a failing contract.", success, testID)

			ctx.FuelRate = database.COIN
			require.Equal("fuel-exceeds-fees", reason(run(ctx.WithCache(ctx.Cache.Child()), kennedy.tx(t, invoke, fees))))
			t.Logf("\t%s\tTest %d:\tShould reject a run that burns more fuel than its fees.", success, testID)
		}
	}
}

func Test_BlockStore(t *testing.T) {
	t.Log("Given the need to persist connected blocks.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen blocks are written and removed.", testID)
		{
			require := require.New(t)

			strg, err := storage.NewMemory()
			require.NoError(err)
			defer strg.Close()

			bs := chain.NewBlockStore(strg)
			miner := newUser(t)

			var prev common.Hash
			var blocks []*chain.Block
			for h := uint64(1); h <= 3; h++ {
				b := chain.Block{
					Header: chain.BlockHeader{Version: chain.BlockVersion, PrevBlockHash: prev, Height: h, Time: 1000 + h*10, FuelRate: 1},
					Txs:    []*chain.Tx{chain.NewBlockRewardTx(miner.addr, h, 0)},
				}
				b.Header.MerkleRoot = b.BuildMerkleRoot()

				require.NoError(bs.Write(&b))
				blocks = append(blocks, &b)
				prev = b.Hash()
			}

			tip, exists, err := bs.Tip()
			require.NoError(err)
			require.True(exists)
			require.Equal(prev, tip)
			t.Logf("\t%s\tTest %d:\tShould track the tip.", success, testID)

			var heights []uint64
			iter := bs.ForEach()
			for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
				require.NoError(err)
				require.Equal(block.Header.MerkleRoot, block.BuildMerkleRoot())
				heights = append(heights, block.Header.Height)
			}
			require.Equal([]uint64{1, 2, 3}, heights)
			t.Logf("\t%s\tTest %d:\tShould iterate the blocks in height order.", success, testID)

			require.NoError(bs.Remove(blocks[2]))

			tip, _, err = bs.Tip()
			require.NoError(err)
			require.Equal(blocks[1].Hash(), tip)

			_, err = bs.GetBlockByHeight(3)
			require.ErrorIs(err, chain.ErrBlockNotFound)
			t.Logf("\t%s\tTest %d:\tShould move the tip back on removal.", success, testID)
		}
	}
}

func Test_BlockWire(t *testing.T) {
	t.Log("Given the need to share blocks between nodes.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block is hex encoded.", testID)
		{
			require := require.New(t)

			miner := newUser(t)
			transfer := &chain.CoinTransfer{
				Transfers: []chain.Transfer{{To: newUser(t).addr, Symbol: database.SymbolWICC, Amount: database.COIN}},
			}

			b := chain.Block{
				Header: chain.BlockHeader{Version: chain.BlockVersion, Height: 7, Time: 1070, FuelRate: 1, Signature: []byte{1, 2, 3}},
				Txs: []*chain.Tx{
					chain.NewBlockRewardTx(miner.addr, 7, 0),
					miner.tx(t, transfer, database.COIN/1000),
				},
			}
			b.Header.MerkleRoot = b.BuildMerkleRoot()

			s, err := chain.EncodeBlock(&b)
			require.NoError(err)

			got, err := chain.DecodeBlock(s)
			require.NoError(err)
			require.Equal(b.Hash(), got.Hash())
			require.Equal(b.Header.MerkleRoot, got.BuildMerkleRoot())
			require.Len(got.Txs, 2)
			t.Logf("\t%s\tTest %d:\tShould decode the same block.", success, testID)

			txHex, err := chain.EncodeTx(b.Txs[1])
			require.NoError(err)

			tx, err := chain.DecodeTx(txHex)
			require.NoError(err)
			require.Equal(b.Txs[1].Hash(), tx.Hash())
			t.Logf("\t%s\tTest %d:\tShould decode the same transaction.", success, testID)

			_, err = chain.DecodeBlock("0xzz")
			require.Error(err)
			t.Logf("\t%s\tTest %d:\tShould reject bad hex.", success, testID)
		}
	}
}
