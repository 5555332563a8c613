package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// ContractDeploy stores contract code under a new contract account.
type ContractDeploy struct {
	VMType database.VMType
	Code   []byte
	Memo   string
}

// TxType implements the Payload interface.
func (*ContractDeploy) TxType() TxType { return UContractDeployTx }

func (*ContractDeploy) payload() {}

// ContractAddress returns the address of the account a deploy transaction
// creates.
func ContractAddress(deployTx common.Hash) common.Address {
	return common.BytesToAddress(deployTx.Bytes())
}

func (cd *ContractDeploy) check(ctx *Context, tx *Tx) error {
	if cd.VMType != database.VMLua && cd.VMType != database.VMWasm {
		return Reject(RejectInvalid, "invalid-vm-type", "vm type %d", cd.VMType)
	}

	if len(cd.Code) == 0 || len(cd.Code) > MaxContractCodeSize {
		return Reject(RejectInvalid, "contract-code-size", "code size %d", len(cd.Code))
	}

	if len(cd.Memo) > MaxContractMemoSize {
		return Reject(RejectInvalid, "contract-memo-size", "memo size %d", len(cd.Memo))
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	if _, err := tx.checkSigner(ctx, false); err != nil {
		return err
	}

	return nil
}

func (cd *ContractDeploy) execute(ctx *Context, tx *Tx) error {
	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	tx.register(ctx, &src)
	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	address := ContractAddress(tx.Hash())
	exists, err := ctx.Cache.Accounts.HaveAccount(address)
	if err != nil {
		return err
	}
	if exists {
		return Reject(RejectDuplicate, "contract-account-existed", "account %s", address)
	}

	// The contract takes the id of the deploy transaction. When the sender
	// registered in this same transaction it already holds that id, so the
	// contract is registered at the next index instead.
	regID := ctx.nextRegID()
	if regID == src.RegID {
		regID.Index++
	}

	contractAcct := database.NewAccount(address)
	contractAcct.RegID = regID
	if err := ctx.Cache.Accounts.SaveAccount(contractAcct); err != nil {
		return err
	}

	contract := database.Contract{
		VMType: cd.VMType,
		Code:   append([]byte(nil), cd.Code...),
		Memo:   cd.Memo,
	}
	return ctx.Cache.Contracts.SaveContract(regID, contract)
}

// =============================================================================

// ContractInvoke runs a deployed contract, optionally sending it an amount
// of one token first.
type ContractInvoke struct {
	Contract database.RegID
	Args     []byte
	Symbol   string
	Amount   uint64
}

// TxType implements the Payload interface.
func (*ContractInvoke) TxType() TxType { return UContractInvokeTx }

func (*ContractInvoke) payload() {}

func (ci *ContractInvoke) check(ctx *Context, tx *Tx) error {
	if len(ci.Args) > MaxContractArgsSize {
		return Reject(RejectInvalid, "contract-args-size", "args size %d", len(ci.Args))
	}

	if ci.Amount > 0 {
		if err := ctx.Cache.Assets.CheckTransferCoinSymbol(ci.Symbol); err != nil {
			if errors.Is(err, database.ErrUnsupportedSymbol) {
				return Reject(RejectInvalid, "invalid-coin-symbol", "%s", err)
			}
			return err
		}
		if !CheckCoinRange(ci.Symbol, ci.Amount) {
			return Reject(RejectInvalid, "bad-coin-amount-outofrange", "amount %d", ci.Amount)
		}
	}

	exists, err := ctx.Cache.Contracts.HaveContract(ci.Contract)
	if err != nil {
		return err
	}
	if !exists {
		return Reject(RejectInvalid, "contract-not-exist", "contract %s", ci.Contract)
	}

	if err := tx.checkFee(1); err != nil {
		return err
	}

	if _, err := tx.checkSigner(ctx, false); err != nil {
		return err
	}

	return nil
}

// execute charges the fees, then runs the transfer and the contract in an
// overlay. A failing contract keeps the fees, records an execution log and
// leaves everything else untouched.
func (ci *ContractInvoke) execute(ctx *Context, tx *Tx) error {
	if ctx.VM == nil {
		return Reject(RejectInvalid, "vm-unavailable", "no virtual machine configured")
	}

	src, err := tx.sender(ctx)
	if err != nil {
		return err
	}

	tx.register(ctx, &src)
	if err := tx.payFees(&src); err != nil {
		return err
	}
	if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
		return err
	}

	contract, exists, err := ctx.Cache.Contracts.GetContract(ci.Contract)
	if err != nil {
		return err
	}
	if !exists {
		return Reject(RejectInvalid, "contract-not-exist", "contract %s", ci.Contract)
	}

	run := ctx.WithCache(ctx.Cache.Child())
	runStep, runErr := ci.run(run, tx, src, contract)

	tx.RunStep = runStep
	if fuel := tx.Fuel(ctx.FuelRate); fuel > tx.Fees {
		return Reject(RejectInsufficientFee, "fuel-exceeds-fees", "fuel %d, fees %d", fuel, tx.Fees)
	}

	if runErr != nil {
		if !IsValidationError(runErr) && !errors.Is(runErr, ErrContractFailed) {
			return runErr
		}

		execLog := database.ExecLog{
			Code:    uint16(RejectInvalid),
			Message: runErr.Error(),
		}
		return ctx.Cache.Logs.SetExecLog(tx.Hash(), execLog)
	}

	return run.Cache.Flush()
}

func (ci *ContractInvoke) run(ctx *Context, tx *Tx, src database.Account, contract database.Contract) (uint64, error) {
	if ci.Amount > 0 {
		if err := src.OperateBalance(ci.Symbol, database.SubFree, ci.Amount); err != nil {
			return 0, balanceReject("insufficient-account-coins", err)
		}
		if err := ctx.Cache.Accounts.SaveAccount(src); err != nil {
			return 0, err
		}

		dest, exists, err := ctx.Cache.Accounts.GetAccountByRegID(ci.Contract)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, Reject(RejectInvalid, "contract-account-not-exist", "contract %s", ci.Contract)
		}

		if err := dest.OperateBalance(ci.Symbol, database.AddFree, ci.Amount); err != nil {
			return 0, balanceReject("operate-add-account-failed", err)
		}
		if err := ctx.Cache.Accounts.SaveAccount(dest); err != nil {
			return 0, err
		}

		receipt := database.Receipt{
			From:   src.Address,
			To:     dest.Address,
			Symbol: ci.Symbol,
			Amount: ci.Amount,
			Code:   database.ReceiptContractTransfer,
		}
		if err := ctx.Cache.Receipts.SetTxReceipts(tx.Hash(), []database.Receipt{receipt}); err != nil {
			return 0, err
		}
	}

	runStep, err := ctx.VM.Run(ctx, ci.Contract, contract, tx, ci.Args)
	if err != nil {
		return runStep, fmt.Errorf("contract %s: %w", ci.Contract, err)
	}

	return runStep, nil
}
