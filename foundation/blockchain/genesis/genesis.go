// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Set of networks a node can join.
const (
	NetworkMain    = "main"
	NetworkTest    = "test"
	NetworkRegtest = "regtest"
)

// Params are the consensus constants every node of the chain must share.
type Params struct {
	Network        string `json:"network" validate:"required,oneof=main test regtest"`
	BlockInterval  uint64 `json:"block_interval" validate:"required"` // Seconds per production slot.
	MaxBlockSize   int    `json:"max_block_size" validate:"gte=2000"` // Hard limit on a serialized block.
	BlockMaxSize   int    `json:"block_max_size" validate:"required"` // Size this node assembles up to.
	MaxRunStep     uint64 `json:"max_run_step" validate:"required"`
	InitFuelRate   uint64 `json:"init_fuel_rate" validate:"required"`
	MinFuelRate    uint64 `json:"min_fuel_rate" validate:"required,ltefield=InitFuelRate"`
	FuelWindow     int    `json:"fuel_window" validate:"required"` // Blocks averaged for the fuel rate.
	TotalDelegates int    `json:"total_delegates" validate:"required"`
	MaxNonce       uint64 `json:"max_nonce" validate:"required"`
	TxCacheHeight  uint64 `json:"tx_cache_height" validate:"required"`
	RewardMaturity uint64 `json:"reward_maturity"` // Blocks before a reward is paid.
	BcoinPrice     uint64 `json:"bcoin_price" validate:"required"`
}

// Account is an account funded by the genesis block. Accounts holding votes
// are the first delegate candidates.
type Account struct {
	PubKey  string `json:"pub_key" validate:"required,hexadecimal"`
	Balance uint64 `json:"balance"`
	Votes   uint64 `json:"votes"`
}

// Genesis represents the genesis file.
type Genesis struct {
	Date     time.Time `json:"date"`
	ChainID  uint16    `json:"chain_id"`
	Params   Params    `json:"params"`
	Accounts []Account `json:"accounts" validate:"dive"`
}

// Default returns the parameters of a single node regression test chain.
// The caller adds the accounts.
func Default() Genesis {
	return Genesis{
		Date:    time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID: 1,
		Params: Params{
			Network:        NetworkRegtest,
			BlockInterval:  10,
			MaxBlockSize:   4_000_000,
			BlockMaxSize:   750_000,
			MaxRunStep:     12_000_000,
			InitFuelRate:   100,
			MinFuelRate:    1,
			FuelWindow:     50,
			TotalDelegates: 1,
			MaxNonce:       1000,
			TxCacheHeight:  500,
			RewardMaturity: 100,
			BcoinPrice:     10_000,
		},
	}
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Delegates returns the number of accounts holding votes.
func (g Genesis) Delegates() int {
	var n int
	for _, acct := range g.Accounts {
		if acct.Votes > 0 {
			n++
		}
	}
	return n
}

// Validate checks the genesis values and that there are enough delegate
// candidates to fill the active set.
func (g Genesis) Validate() error {
	if err := check(g); err != nil {
		return err
	}

	if n := g.Delegates(); n < g.Params.TotalDelegates {
		return fmt.Errorf("genesis has %d delegate candidates, need %d", n, g.Params.TotalDelegates)
	}

	return nil
}

// =============================================================================

// validate holds the settings and caches for validating struct values.
var validate *validator.Validate

// translator is a cache of locale and translation information.
var translator ut.Translator

func init() {
	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// check validates the value against its validate tags and translates the
// failures into one error.
func check(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return err
	}

	msgs := make([]string, len(verrors))
	for i, verror := range verrors {
		msgs[i] = fmt.Sprintf("%s: %s", verror.Namespace(), verror.Translate(translator))
	}

	return fmt.Errorf("invalid genesis: %s", strings.Join(msgs, "; "))
}
