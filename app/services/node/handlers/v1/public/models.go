package public

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/peer"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type token struct {
	Symbol string `json:"symbol"`
	Free   uint64 `json:"free"`
	Staked uint64 `json:"staked"`
	Voted  uint64 `json:"voted"`
}

type vote struct {
	Candidate string `json:"candidate"`
	Votes     uint64 `json:"votes"`
}

type account struct {
	Address       string  `json:"address"`
	Name          string  `json:"name"`
	RegID         string  `json:"regid,omitempty"`
	OwnerPubKey   string  `json:"owner_pubkey,omitempty"`
	MinerPubKey   string  `json:"miner_pubkey,omitempty"`
	Tokens        []token `json:"tokens"`
	ReceivedVotes uint64  `json:"received_votes"`
	Votes         []vote  `json:"votes,omitempty"`
}

func toAccount(acct database.Account, name string) account {
	a := account{
		Address:       acct.Address.Hex(),
		Name:          name,
		Tokens:        make([]token, len(acct.Tokens)),
		ReceivedVotes: acct.ReceivedVotes,
	}

	if acct.IsRegistered() {
		a.RegID = acct.RegID.String()
	}
	if len(acct.OwnerPubKey) > 0 {
		a.OwnerPubKey = hexutil.Encode(acct.OwnerPubKey)
	}
	if len(acct.MinerPubKey) > 0 {
		a.MinerPubKey = hexutil.Encode(acct.MinerPubKey)
	}

	for i, tb := range acct.Tokens {
		a.Tokens[i] = token{Symbol: tb.Symbol, Free: tb.Free, Staked: tb.Staked, Voted: tb.Voted}
	}
	for _, cv := range acct.Votes {
		a.Votes = append(a.Votes, vote{Candidate: cv.Candidate.String(), Votes: cv.Votes})
	}

	return a
}

type tx struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ValidHeight uint64 `json:"valid_height"`
	From        string `json:"from"`
	FromName    string `json:"from_name"`
	FeeSymbol   string `json:"fee_symbol"`
	Fees        uint64 `json:"fees"`
}

type block struct {
	Hash       string `json:"hash"`
	PrevHash   string `json:"prev_hash"`
	MerkleRoot string `json:"merkle_root"`
	Height     uint64 `json:"height"`
	Time       uint64 `json:"time"`
	Nonce      uint64 `json:"nonce"`
	FuelRate   uint64 `json:"fuel_rate"`
	Fuel       uint64 `json:"fuel"`
	Txs        []tx   `json:"txs"`
}

func toBlock(b *chain.Block, lookup func(tx *chain.Tx) string) block {
	blk := block{
		Hash:       b.Hash().Hex(),
		PrevHash:   b.Header.PrevBlockHash.Hex(),
		MerkleRoot: b.Header.MerkleRoot.Hex(),
		Height:     b.Header.Height,
		Time:       b.Header.Time,
		Nonce:      b.Header.Nonce,
		FuelRate:   b.Header.FuelRate,
		Fuel:       b.Header.Fuel,
		Txs:        make([]tx, len(b.Txs)),
	}

	for i, t := range b.Txs {
		blk.Txs[i] = toTx(t, lookup(t))
	}

	return blk
}

func toTx(t *chain.Tx, fromName string) tx {
	return tx{
		ID:          t.Hash().Hex(),
		Type:        t.Type.String(),
		ValidHeight: t.ValidHeight,
		From:        t.From.Hex(),
		FromName:    fromName,
		FeeSymbol:   t.FeeSymbol,
		Fees:        t.Fees,
	}
}

type receipt struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Amount uint64 `json:"amount"`
	Code   string `json:"code"`
}

type txInfo struct {
	Tx       *tx       `json:"tx,omitempty"`
	Pending  bool      `json:"pending"`
	Block    string    `json:"block,omitempty"`
	Receipts []receipt `json:"receipts,omitempty"`
}

type status struct {
	TipHash   string      `json:"tip_hash"`
	TipHeight uint64      `json:"tip_height"`
	TipTime   uint64      `json:"tip_time"`
	FuelRate  uint64      `json:"fuel_rate"`
	Mempool   int         `json:"mempool"`
	Peers     []peer.Info `json:"peers"`
	Mining    bool        `json:"mining"`
}
