// Package dex builds and submits NFT position manager transactions and
// decodes their result events.
package dex

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rangePilot/internal/chain"
	"rangePilot/internal/model"
	"rangePilot/internal/workflow"
)

// mintGasAllowance stands in for the mint leg when estimating a workflow
// up front: the mint cannot be simulated before the withdrawal has landed.
const mintGasAllowance = 350000

const txDeadlineWindow = 10 * time.Minute

// maxUint128 is the collect-all sentinel for the position manager.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Config identifies the pool and manager the executor drives.
type Config struct {
	Manager        common.Address
	Token0         common.Address
	Token1         common.Address
	FeeTier        uint32
	Decimals0      uint8
	Decimals1      uint8
	ConfirmTimeout time.Duration
	StepGasLimit   uint64
}

// Executor implements the workflow executor against a live chain.
type Executor struct {
	client *chain.Client
	cfg    Config
	logger *zap.Logger
}

func NewExecutor(client *chain.Client, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{client: client, cfg: cfg, logger: logger}
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type increaseParams struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

type decreaseParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// EstimateWorkflowGas sums estimates for the withdraw and collect legs plus
// a fixed allowance for the mint.
func (e *Executor) EstimateWorkflowGas(ctx context.Context, pos model.LiquidityPosition) (uint64, error) {
	withdrawData, err := e.packDecrease(pos)
	if err != nil {
		return 0, err
	}
	collectData, err := e.packCollect(pos)
	if err != nil {
		return 0, err
	}

	var total uint64 = mintGasAllowance
	for _, calldata := range [][]byte{withdrawData, collectData} {
		from := e.client.From()
		estimate, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &e.cfg.Manager,
			Data: calldata,
		})
		if err != nil {
			return 0, fmt.Errorf("estimate gas: %w", err)
		}
		total += estimate
	}
	return total, nil
}

// PositionFees reads the fees currently owed to the position from the
// manager's positions getter. Read-only; the ledger decides what to do with
// the numbers.
func (e *Executor) PositionFees(ctx context.Context, pos model.LiquidityPosition) (float64, float64, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return 0, 0, err
	}
	tokenID, err := tokenIDFromPosition(pos)
	if err != nil {
		return 0, 0, err
	}

	calldata, err := managerABI.Pack("positions", tokenID)
	if err != nil {
		return 0, 0, fmt.Errorf("pack positions: %w", err)
	}

	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.cfg.Manager, Data: calldata}, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("positions call: %w", err)
	}

	values, err := managerABI.Unpack("positions", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("unpack positions: %w", err)
	}

	owed0, owed1, err := owedFromPositionsOutput(values)
	if err != nil {
		return 0, 0, err
	}
	return e.amount0ToFloat(owed0), e.amount1ToFloat(owed1), nil
}

// owedFromPositionsOutput pulls tokensOwed0/1, the last two fields of the
// positions tuple.
func owedFromPositionsOutput(values []interface{}) (*big.Int, *big.Int, error) {
	if len(values) != 12 {
		return nil, nil, fmt.Errorf("unexpected positions arity: %d", len(values))
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return nil, nil, err
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return nil, nil, err
	}
	return owed0, owed1, nil
}

// Withdraw removes the position's full liquidity and waits for confirmation.
func (e *Executor) Withdraw(ctx context.Context, pos model.LiquidityPosition) (workflow.StepResult, error) {
	calldata, err := e.packDecrease(pos)
	if err != nil {
		return workflow.StepResult{}, err
	}

	receipt, hash, err := e.submitAndConfirm(ctx, calldata)
	if err != nil {
		return workflow.StepResult{}, err
	}

	_, amount0, amount1, err := e.decodeLiquidityEvent(receipt, "DecreaseLiquidity")
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("decode withdraw result: %w", err)
	}

	result := workflow.StepResult{
		TxHash:  hash,
		Amount0: e.amount0ToFloat(amount0),
		Amount1: e.amount1ToFloat(amount1),
		GasUsed: receipt.GasUsed,
	}
	e.logger.Info("withdraw confirmed",
		zap.String("tx", hash),
		zap.Float64("amount0", result.Amount0),
		zap.Float64("amount1", result.Amount1),
	)
	return result, nil
}

// Collect claims everything owed to the position and waits for confirmation.
func (e *Executor) Collect(ctx context.Context, pos model.LiquidityPosition) (workflow.StepResult, error) {
	calldata, err := e.packCollect(pos)
	if err != nil {
		return workflow.StepResult{}, err
	}

	receipt, hash, err := e.submitAndConfirm(ctx, calldata)
	if err != nil {
		return workflow.StepResult{}, err
	}

	amount0, amount1, err := e.decodeCollectEvent(receipt)
	if err != nil {
		return workflow.StepResult{}, fmt.Errorf("decode collect result: %w", err)
	}

	result := workflow.StepResult{
		TxHash:  hash,
		Amount0: e.amount0ToFloat(amount0),
		Amount1: e.amount1ToFloat(amount1),
		GasUsed: receipt.GasUsed,
	}
	e.logger.Info("collect confirmed",
		zap.String("tx", hash),
		zap.Float64("amount0", result.Amount0),
		zap.Float64("amount1", result.Amount1),
	)
	return result, nil
}

// Mint opens a new position for the plan's tick range.
func (e *Executor) Mint(ctx context.Context, _ model.LiquidityPosition, plan model.RebalancePlan, amount0, amount1 float64) (workflow.MintResult, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return workflow.MintResult{}, err
	}

	calldata, err := managerABI.Pack("mint", mintParams{
		Token0:         e.cfg.Token0,
		Token1:         e.cfg.Token1,
		Fee:            big.NewInt(int64(e.cfg.FeeTier)),
		TickLower:      big.NewInt(int64(plan.TickLower)),
		TickUpper:      big.NewInt(int64(plan.TickUpper)),
		Amount0Desired: e.amount0ToRaw(amount0),
		Amount1Desired: e.amount1ToRaw(amount1),
		Amount0Min:     big.NewInt(0),
		Amount1Min:     big.NewInt(0),
		Recipient:      e.client.From(),
		Deadline:       txDeadline(),
	})
	if err != nil {
		return workflow.MintResult{}, fmt.Errorf("pack mint: %w", err)
	}

	receipt, hash, err := e.submitAndConfirm(ctx, calldata)
	if err != nil {
		return workflow.MintResult{}, err
	}

	tokenID, liquidity, executed0, executed1, err := e.decodeIncreaseEvent(receipt)
	if err != nil {
		return workflow.MintResult{}, fmt.Errorf("decode mint result: %w", err)
	}

	result := workflow.MintResult{
		StepResult: workflow.StepResult{TxHash: hash, GasUsed: receipt.GasUsed},
		TokenID:    tokenID.String(),
		Liquidity:  liquidity.String(),
		Executed0:  e.amount0ToFloat(executed0),
		Executed1:  e.amount1ToFloat(executed1),
	}
	e.logger.Info("mint confirmed",
		zap.String("tx", hash),
		zap.String("token_id", result.TokenID),
		zap.String("liquidity", result.Liquidity),
	)
	return result, nil
}

// Compound adds amounts to the existing position without changing its range.
func (e *Executor) Compound(ctx context.Context, pos model.LiquidityPosition, amount0, amount1 float64) (workflow.MintResult, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return workflow.MintResult{}, err
	}

	tokenID, err := tokenIDFromPosition(pos)
	if err != nil {
		return workflow.MintResult{}, err
	}

	calldata, err := managerABI.Pack("increaseLiquidity", increaseParams{
		TokenId:        tokenID,
		Amount0Desired: e.amount0ToRaw(amount0),
		Amount1Desired: e.amount1ToRaw(amount1),
		Amount0Min:     big.NewInt(0),
		Amount1Min:     big.NewInt(0),
		Deadline:       txDeadline(),
	})
	if err != nil {
		return workflow.MintResult{}, fmt.Errorf("pack increaseLiquidity: %w", err)
	}

	receipt, hash, err := e.submitAndConfirm(ctx, calldata)
	if err != nil {
		return workflow.MintResult{}, err
	}

	_, liquidity, executed0, executed1, err := e.decodeIncreaseEvent(receipt)
	if err != nil {
		return workflow.MintResult{}, fmt.Errorf("decode compound result: %w", err)
	}

	return workflow.MintResult{
		StepResult: workflow.StepResult{TxHash: hash, GasUsed: receipt.GasUsed},
		TokenID:    pos.ID,
		Liquidity:  liquidity.String(),
		Executed0:  e.amount0ToFloat(executed0),
		Executed1:  e.amount1ToFloat(executed1),
	}, nil
}

func (e *Executor) submitAndConfirm(ctx context.Context, calldata []byte) (*types.Receipt, string, error) {
	hash, err := e.client.SubmitCall(ctx, e.cfg.Manager, calldata, e.cfg.StepGasLimit)
	if err != nil {
		return nil, "", err
	}
	receipt, err := e.client.AwaitConfirmation(ctx, hash, e.cfg.ConfirmTimeout)
	if err != nil {
		return nil, hash.Hex(), err
	}
	return receipt, hash.Hex(), nil
}

func (e *Executor) packDecrease(pos model.LiquidityPosition) ([]byte, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	tokenID, err := tokenIDFromPosition(pos)
	if err != nil {
		return nil, err
	}
	liquidity, ok := new(big.Int).SetString(pos.LiquidityAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: liquidity amount %q", model.ErrInvalidInput, pos.LiquidityAmount)
	}

	calldata, err := managerABI.Pack("decreaseLiquidity", decreaseParams{
		TokenId:    tokenID,
		Liquidity:  liquidity,
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   txDeadline(),
	})
	if err != nil {
		return nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}
	return calldata, nil
}

func (e *Executor) packCollect(pos model.LiquidityPosition) ([]byte, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}
	tokenID, err := tokenIDFromPosition(pos)
	if err != nil {
		return nil, err
	}

	calldata, err := managerABI.Pack("collect", collectParams{
		TokenId:    tokenID,
		Recipient:  e.client.From(),
		Amount0Max: maxUint128,
		Amount1Max: maxUint128,
	})
	if err != nil {
		return nil, fmt.Errorf("pack collect: %w", err)
	}
	return calldata, nil
}

// decodeLiquidityEvent extracts (liquidity, amount0, amount1) from a
// DecreaseLiquidity or IncreaseLiquidity event in the receipt.
func (e *Executor) decodeLiquidityEvent(receipt *types.Receipt, name string) (*big.Int, *big.Int, *big.Int, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, nil, nil, err
	}
	event, ok := managerABI.Events[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("unknown event %s", name)
	}

	log := findLog(receipt, e.cfg.Manager, event.ID)
	if log == nil {
		return nil, nil, nil, fmt.Errorf("%s event not found in receipt", name)
	}

	values, err := managerABI.Unpack(name, log.Data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unpack %s: %w", name, err)
	}
	if len(values) != 3 {
		return nil, nil, nil, fmt.Errorf("unexpected %s arity: %d", name, len(values))
	}

	liquidity, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, nil, err
	}
	amount0, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, nil, err
	}
	amount1, err := asBigInt(values[2])
	if err != nil {
		return nil, nil, nil, err
	}
	return liquidity, amount0, amount1, nil
}

func (e *Executor) decodeIncreaseEvent(receipt *types.Receipt) (*big.Int, *big.Int, *big.Int, *big.Int, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	event := managerABI.Events["IncreaseLiquidity"]

	log := findLog(receipt, e.cfg.Manager, event.ID)
	if log == nil {
		return nil, nil, nil, nil, fmt.Errorf("IncreaseLiquidity event not found in receipt")
	}
	if len(log.Topics) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("IncreaseLiquidity missing token id topic")
	}
	tokenID := new(big.Int).SetBytes(log.Topics[1].Bytes())

	liquidity, amount0, amount1, err := e.decodeLiquidityEvent(receipt, "IncreaseLiquidity")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return tokenID, liquidity, amount0, amount1, nil
}

func (e *Executor) decodeCollectEvent(receipt *types.Receipt) (*big.Int, *big.Int, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, nil, err
	}
	event := managerABI.Events["Collect"]

	log := findLog(receipt, e.cfg.Manager, event.ID)
	if log == nil {
		return nil, nil, fmt.Errorf("Collect event not found in receipt")
	}

	values, err := managerABI.Unpack("Collect", log.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack Collect: %w", err)
	}
	if len(values) != 3 {
		return nil, nil, fmt.Errorf("unexpected Collect arity: %d", len(values))
	}

	amount0, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, err
	}
	amount1, err := asBigInt(values[2])
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func findLog(receipt *types.Receipt, address common.Address, topic0 common.Hash) *types.Log {
	for _, log := range receipt.Logs {
		if log.Address == address && len(log.Topics) > 0 && log.Topics[0] == topic0 {
			return log
		}
	}
	return nil
}

func tokenIDFromPosition(pos model.LiquidityPosition) (*big.Int, error) {
	tokenID, ok := new(big.Int).SetString(pos.ID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: token id %q", model.ErrInvalidInput, pos.ID)
	}
	return tokenID, nil
}

func txDeadline() *big.Int {
	return big.NewInt(time.Now().Add(txDeadlineWindow).Unix())
}

func (e *Executor) amount0ToFloat(raw *big.Int) float64 {
	return rawToFloat(raw, e.cfg.Decimals0)
}

func (e *Executor) amount1ToFloat(raw *big.Int) float64 {
	return rawToFloat(raw, e.cfg.Decimals1)
}

func (e *Executor) amount0ToRaw(amount float64) *big.Int {
	return floatToRaw(amount, e.cfg.Decimals0)
}

func (e *Executor) amount1ToRaw(amount float64) *big.Int {
	return floatToRaw(amount, e.cfg.Decimals1)
}

func rawToFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	).Float64()
	return value
}

func floatToRaw(amount float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(
		new(big.Float).SetFloat64(amount),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	)
	raw, _ := scaled.Int(nil)
	return raw
}

func asBigInt(value interface{}) (*big.Int, error) {
	typed, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T", value)
	}
	return typed, nil
}
