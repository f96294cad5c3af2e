// Package simulator implements the dry-run pipeline (C8): it gates a Pair
// against the router's market price, builds the Arb contract's
// TakeOrdersConfig/Task calldata, dry-runs the trade twice against the Arb
// contract to size a gas-coverage headroom, recompiles a final bounty
// bytecode, and reports the estimated (ETH-denominated) profit -- without
// ever broadcasting a transaction.
package simulator

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rainsolver/solver/internal/chain"
	"github.com/rainsolver/solver/internal/evaluable"
	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/router"
	"github.com/rainsolver/solver/pkg/fixedfloat"
)

// Kind is the closed error taxonomy spec.md §7 assigns to simulation
// failures.
type Kind string

const (
	KindNoOpportunity Kind = "NoOpportunity"
	KindFetchFailed   Kind = "FetchFailed"
	KindTimeout       Kind = "Timeout"
	KindFatal         Kind = "Fatal"
)

// Error carries a Kind plus the pipeline stage it failed at. The ratio gate
// keeps the stage name "RouteProcessor" even though the gate itself lives
// here in the simulator, not in a router backend -- spec.md §9 Open
// Question 2 preserves this naming as-is.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("simulator: %s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// ContractSimulator is the narrow on-chain surface the simulator needs;
// internal/chain.Client satisfies it structurally.
type ContractSimulator interface {
	SimulateContract(ctx context.Context, to string, data []byte, block *uint64, overrides map[string]chain.StateOverride) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGasLimit(ctx context.Context, to string, data []byte) (uint64, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// PriceOracle supplies eth_price_18 (spec.md §4.8): the ETH-denominated
// price of one unit of token, 18-decimal fixed point. No concrete
// implementation lives in this package -- cmd/solver wires one against the
// router façade's own GetMarketPrice against a configured reference token.
type PriceOracle interface {
	EthPrice18(ctx context.Context, token string) (*big.Int, error)
}

// Config configures a Simulator. The winning Route (and its Params, already
// filled in by router.Facade.GetTradeParams) is passed into Simulate per
// call; the Facade itself is the reactor's concern, not the simulator's.
type Config struct {
	Chain              ContractSimulator
	Compiler           evaluable.Compiler
	PriceOracle        PriceOracle
	ArbAddress         string // the Arb contract arb3/arb4 is called against, not the Orderbook
	MaxRatioMode       bool   // spec.md line 205's "maxRatio" config option
	GasCoveragePct     float64 // e.g. 1.1 = 110% of the dry-run gas cost
	GasLimitMultiplier float64
	GasPriceMultiplier float64
}

// Simulator runs the dry-run pipeline for one Pair/Route combination.
type Simulator struct {
	chain              ContractSimulator
	compiler           evaluable.Compiler
	priceOracle        PriceOracle
	arbAddress         string
	maxRatioMode       bool
	gasCoveragePct     float64
	gasLimitMultiplier float64
	gasPriceMultiplier float64
}

// New builds a Simulator, defaulting the multipliers the teacher's gas
// optimizer also defaults (a 1.1 safety margin on the estimated gas limit).
func New(cfg Config) *Simulator {
	if cfg.GasCoveragePct == 0 {
		cfg.GasCoveragePct = 1.0
	}
	if cfg.GasLimitMultiplier == 0 {
		cfg.GasLimitMultiplier = 1.1
	}
	if cfg.GasPriceMultiplier == 0 {
		cfg.GasPriceMultiplier = 1.0
	}
	return &Simulator{
		chain:              cfg.Chain,
		compiler:           cfg.Compiler,
		priceOracle:        cfg.PriceOracle,
		arbAddress:         cfg.ArbAddress,
		maxRatioMode:       cfg.MaxRatioMode,
		gasCoveragePct:     cfg.GasCoveragePct,
		gasLimitMultiplier: cfg.GasLimitMultiplier,
		gasPriceMultiplier: cfg.GasPriceMultiplier,
	}
}

// Request is the simulator's full input contract per spec.md §4.8: the pair
// and winning route, the signer entitled to the bounty, whether a partial
// fill is acceptable, and the native risk cap on how much sell_token this
// round is willing to commit.
type Request struct {
	Pair       *ordertype.Pair
	Route      *router.Route
	Signer     string
	IsPartial  bool
	MaxInput18 *big.Int // 18-decimal; scaled to sell_decimals internally
}

// Result is one pair's simulation outcome.
type Result struct {
	Pair             *ordertype.Pair
	Route            *router.Route
	MarketRatio18    *big.Int
	EstimatedProfit  decimal.Decimal // ETH-denominated, 18-decimal (wei) -- spec.md §4.8 step 8
	GasLimit         uint64
	GasPrice         *big.Int
	EstimatedGasCost *big.Int
	OppBlockNumber   uint64
	FinalBytecode    []byte
	TxData           []byte // rawtx: the final arb3/arb4 calldata a broadcaster would send as-is
}

// --- ABI mirrors -----------------------------------------------------------
//
// arb3 takes a V3-shaped order (decimals+uint256 vaultId per IO); arb4 takes
// a V5-shaped order (bytes32 vaultId, no decimals field) and a Float-typed
// (bytes32) maximumIORatio, per spec.md §6.1's v3/v5 split. Both share the
// same {interpreter, store, bytecode} Task/Evaluable shape.

type abiEvaluableV2 struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

type abiIOV3 struct {
	Token    common.Address
	Decimals uint8
	VaultId  *big.Int
}

type abiOrderV3 struct {
	Owner        common.Address
	Nonce        [32]byte
	Evaluable    abiEvaluableV2
	ValidInputs  []abiIOV3
	ValidOutputs []abiIOV3
}

type abiSignedContextV2 struct {
	Signer    common.Address
	Context   []*big.Int
	Signature []byte
}

type abiTakeOrderV3 struct {
	Order         abiOrderV3
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
	SignedContext []abiSignedContextV2
}

type abiTakeOrdersConfigV3 struct {
	MinimumInput   *big.Int
	MaximumInput   *big.Int
	MaximumIORatio *big.Int
	Orders         []abiTakeOrderV3
	Data           []byte
}

type abiIOV5 struct {
	Token   common.Address
	VaultId [32]byte
}

type abiOrderV5 struct {
	Owner        common.Address
	Nonce        [32]byte
	Evaluable    abiEvaluableV2
	ValidInputs  []abiIOV5
	ValidOutputs []abiIOV5
}

type abiTakeOrderV5 struct {
	Order         abiOrderV5
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
	SignedContext []abiSignedContextV2
}

type abiTakeOrdersConfigV5 struct {
	MinimumInput   *big.Int
	MaximumInput   *big.Int
	MaximumIORatio [32]byte
	Orders         []abiTakeOrderV5
	Data           []byte
}

const arbABIJSON = `[
  {"constant":false,"inputs":[
     {"name":"orderBook","type":"address"},
     {"name":"takeOrders","type":"tuple","components":[
        {"name":"minimumInput","type":"uint256"},{"name":"maximumInput","type":"uint256"},{"name":"maximumIORatio","type":"uint256"},
        {"name":"orders","type":"tuple[]","components":[
           {"name":"order","type":"tuple","components":[
              {"name":"owner","type":"address"},{"name":"nonce","type":"bytes32"},
              {"name":"evaluable","type":"tuple","components":[
                {"name":"interpreter","type":"address"},{"name":"store","type":"address"},{"name":"bytecode","type":"bytes"}]},
              {"name":"validInputs","type":"tuple[]","components":[
                {"name":"token","type":"address"},{"name":"decimals","type":"uint8"},{"name":"vaultId","type":"uint256"}]},
              {"name":"validOutputs","type":"tuple[]","components":[
                {"name":"token","type":"address"},{"name":"decimals","type":"uint8"},{"name":"vaultId","type":"uint256"}]}
           ]},
           {"name":"inputIOIndex","type":"uint256"},{"name":"outputIOIndex","type":"uint256"},
           {"name":"signedContext","type":"tuple[]","components":[
              {"name":"signer","type":"address"},{"name":"context","type":"uint256[]"},{"name":"signature","type":"bytes"}]}
        ]},
        {"name":"data","type":"bytes"}
     ]},
     {"name":"task","type":"tuple","components":[
        {"name":"interpreter","type":"address"},{"name":"store","type":"address"},{"name":"bytecode","type":"bytes"}]}
  ],"name":"arb3","outputs":[],"type":"function"},
  {"constant":false,"inputs":[
     {"name":"orderBook","type":"address"},
     {"name":"takeOrders","type":"tuple","components":[
        {"name":"minimumInput","type":"uint256"},{"name":"maximumInput","type":"uint256"},{"name":"maximumIORatio","type":"bytes32"},
        {"name":"orders","type":"tuple[]","components":[
           {"name":"order","type":"tuple","components":[
              {"name":"owner","type":"address"},{"name":"nonce","type":"bytes32"},
              {"name":"evaluable","type":"tuple","components":[
                {"name":"interpreter","type":"address"},{"name":"store","type":"address"},{"name":"bytecode","type":"bytes"}]},
              {"name":"validInputs","type":"tuple[]","components":[
                {"name":"token","type":"address"},{"name":"vaultId","type":"bytes32"}]},
              {"name":"validOutputs","type":"tuple[]","components":[
                {"name":"token","type":"address"},{"name":"vaultId","type":"bytes32"}]}
           ]},
           {"name":"inputIOIndex","type":"uint256"},{"name":"outputIOIndex","type":"uint256"},
           {"name":"signedContext","type":"tuple[]","components":[
              {"name":"signer","type":"address"},{"name":"context","type":"uint256[]"},{"name":"signature","type":"bytes"}]}
        ]},
        {"name":"data","type":"bytes"}
     ]},
     {"name":"task","type":"tuple","components":[
        {"name":"interpreter","type":"address"},{"name":"store","type":"address"},{"name":"bytecode","type":"bytes"}]}
  ],"name":"arb4","outputs":[],"type":"function"}
]`

var arbABI abi.ABI

func init() {
	var err error
	arbABI, err = abi.JSON(strings.NewReader(arbABIJSON))
	if err != nil {
		panic(fmt.Errorf("simulator: parse arb abi: %w", err))
	}
}

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func maxFloatBytes32() [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func floatBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return out, fmt.Errorf("simulator: decode float: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("simulator: float must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func toABIEvaluable(e ordertype.Evaluable) abiEvaluableV2 {
	return abiEvaluableV2{
		Interpreter: common.HexToAddress(e.Interpreter),
		Store:       common.HexToAddress(e.Store),
		Bytecode:    e.Bytecode,
	}
}

func toABISignedContext(scs []ordertype.SignedContext) []abiSignedContextV2 {
	out := make([]abiSignedContextV2, len(scs))
	for i, sc := range scs {
		out[i] = abiSignedContextV2{Signer: common.HexToAddress(sc.Signer), Context: sc.Context, Signature: sc.Signature}
	}
	return out
}

// encodeArbCall builds the arb3 (order version V3) or arb4 (V5) calldata
// for pair's order, per spec.md §6.1. maximumIORatio is always supplied as
// an 18-decimal integer; for arb4 it is re-encoded as the protocol's Float.
func encodeArbCall(arbAddress string, pair *ordertype.Pair, maximumInput, maximumIORatio18 *big.Int, useMaxRatio bool, routeData, taskBytecode []byte) ([]byte, error) {
	t := pair.TakeOrder.Struct
	order := t.Order
	task := abiEvaluableV2{
		Interpreter: common.HexToAddress(order.Evaluable.Interpreter),
		Store:       common.HexToAddress(order.Evaluable.Store),
		Bytecode:    taskBytecode,
	}

	if order.Version == ordertype.OrderVersionV5 {
		toIOs := func(ios []ordertype.IOV5) []abiIOV5 {
			out := make([]abiIOV5, len(ios))
			for i, io := range ios {
				out[i] = abiIOV5{Token: common.HexToAddress(io.Token), VaultId: io.VaultID}
			}
			return out
		}
		var ratio [32]byte
		var err error
		if useMaxRatio {
			ratio = maxFloatBytes32()
		} else {
			encoded, encErr := fixedfloat.EncodeFloat(maximumIORatio18, fixedfloat.Decimals18)
			if encErr != nil {
				return nil, fmt.Errorf("simulator: encode maximumIORatio float: %w", encErr)
			}
			ratio, err = floatBytes32(encoded)
			if err != nil {
				return nil, err
			}
		}

		takeOrders := abiTakeOrdersConfigV5{
			MinimumInput:   big.NewInt(1),
			MaximumInput:   maximumInput,
			MaximumIORatio: ratio,
			Orders: []abiTakeOrderV5{{
				Order: abiOrderV5{
					Owner:        common.HexToAddress(order.Owner),
					Nonce:        order.Nonce,
					Evaluable:    toABIEvaluable(order.Evaluable),
					ValidInputs:  toIOs(order.ValidInputsV5),
					ValidOutputs: toIOs(order.ValidOutputsV5),
				},
				InputIOIndex:  new(big.Int).SetUint64(uint64(t.InputIOIndex)),
				OutputIOIndex: new(big.Int).SetUint64(uint64(t.OutputIOIndex)),
				SignedContext: toABISignedContext(t.SignedContext),
			}},
			Data: routeData,
		}
		return arbABI.Pack("arb4", common.HexToAddress(pair.Orderbook), takeOrders, task)
	}

	toIOs := func(ios []ordertype.IOV3) []abiIOV3 {
		out := make([]abiIOV3, len(ios))
		for i, io := range ios {
			out[i] = abiIOV3{Token: common.HexToAddress(io.Token), Decimals: io.Decimals, VaultId: io.VaultID}
		}
		return out
	}
	ratio := maximumIORatio18
	if useMaxRatio {
		ratio = maxUint256()
	}
	takeOrders := abiTakeOrdersConfigV3{
		MinimumInput:   big.NewInt(1),
		MaximumInput:   maximumInput,
		MaximumIORatio: ratio,
		Orders: []abiTakeOrderV3{{
			Order: abiOrderV3{
				Owner:        common.HexToAddress(order.Owner),
				Nonce:        order.Nonce,
				Evaluable:    toABIEvaluable(order.Evaluable),
				ValidInputs:  toIOs(order.ValidInputsV3),
				ValidOutputs: toIOs(order.ValidOutputsV3),
			},
			InputIOIndex:  new(big.Int).SetUint64(uint64(t.InputIOIndex)),
			OutputIOIndex: new(big.Int).SetUint64(uint64(t.OutputIOIndex)),
			SignedContext: toABISignedContext(t.SignedContext),
		}},
		Data: routeData,
	}
	return arbABI.Pack("arb3", common.HexToAddress(pair.Orderbook), takeOrders, task)
}

// bountyEnsureSource builds the opaque expression-language source the
// out-of-scope compiler turns into the Task's bytecode: an assertion that
// the bounty the transaction collects, priced via ethPrice18, meets
// minBounty. The third argument is always the literal 0; only minBounty
// changes across the three recompiles of spec.md §4.8 steps 5/7/8.
func bountyEnsureSource(ethPrice18, minBounty *big.Int, signer string) string {
	return fmt.Sprintf("bounty-ensure(%s %s 0 %s)", ethPrice18.String(), minBounty.String(), signer)
}

// buildBytecode compiles the Task's bytecode for one bounty threshold.
// A nil Compiler means no bounty enforcement is wired: the bytecode stays
// empty (0x). A gas coverage of 0 does not disable the bounty for a
// Simulator built by New, which replaces a zero GasCoveragePct with 1.0.
func (s *Simulator) buildBytecode(ctx context.Context, ethPrice18, minBounty *big.Int, signer string) ([]byte, error) {
	if s.gasCoveragePct == 0 || s.compiler == nil {
		return nil, nil
	}
	bytecode, err := s.compiler.Compile(ctx, bountyEnsureSource(ethPrice18, minBounty, signer))
	if err != nil {
		return nil, err
	}
	return bytecode, nil
}

// Simulate runs the full nine-step dry-run pipeline of spec.md §4.8 for
// req.Pair against req.Route.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	pair, route := req.Pair, req.Route

	marketRatio18, err := s.ratioGate(ctx, pair, route)
	if err != nil {
		return nil, err
	}

	var ethPrice18 *big.Int
	if s.priceOracle != nil {
		ethPrice18, err = s.priceOracle.EthPrice18(ctx, pair.BuyToken)
		if err != nil {
			return nil, newError(KindFetchFailed, "EthPriceOracle", err)
		}
	} else {
		ethPrice18 = big.NewInt(0)
	}

	block, err := s.chain.GetBlockNumber(ctx)
	if err != nil {
		return nil, newError(KindFetchFailed, "GetBlockNumber", err)
	}

	maximumInput := maxUint256()
	if req.IsPartial && req.MaxInput18 != nil {
		maximumInput = fixedfloat.ScaleFrom18(req.MaxInput18, pair.SellDecimals)
	}

	// Stage 1: no bounty constraint yet, just probing gas/output.
	bytecode1, err := s.buildBytecode(ctx, ethPrice18, big.NewInt(0), req.Signer)
	if err != nil {
		return nil, newError(KindFatal, "CompileStage1", err)
	}
	calldata1, err := encodeArbCall(s.arbAddress, pair, maximumInput, marketRatio18, s.maxRatioMode, route.Params, bytecode1)
	if err != nil {
		return nil, newError(KindFatal, "EncodeArbCall", err)
	}
	if _, err := s.chain.SimulateContract(ctx, s.arbAddress, calldata1, &block, nil); err != nil {
		return nil, newError(KindNoOpportunity, "DryRunStage1", err)
	}

	gasLimit, err := s.chain.EstimateGasLimit(ctx, s.arbAddress, calldata1)
	if err != nil {
		return nil, newError(KindFetchFailed, "EstimateGas", err)
	}
	gasLimit = uint64(float64(gasLimit) * s.gasLimitMultiplier)

	gasPrice, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, newError(KindFetchFailed, "SuggestGasPrice", err)
	}
	gasPrice = scaleGasPrice(gasPrice, s.gasPriceMultiplier)

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))

	// Headroom recompute: gas_coverage_percentage * 1.03.
	headroom := s.gasCoveragePct * 1.03
	headroomBounty := scaleGasPrice(gasCost, headroom)

	bytecode2, err := s.buildBytecode(ctx, ethPrice18, headroomBounty, req.Signer)
	if err != nil {
		return nil, newError(KindFatal, "CompileStage2", err)
	}
	calldata2, err := encodeArbCall(s.arbAddress, pair, maximumInput, marketRatio18, s.maxRatioMode, route.Params, bytecode2)
	if err != nil {
		return nil, newError(KindFatal, "EncodeArbCallStage2", err)
	}
	if _, err := s.chain.SimulateContract(ctx, s.arbAddress, calldata2, &block, nil); err != nil {
		return nil, newError(KindNoOpportunity, "DryRunStage2", err)
	}

	// Final bytecode: the non-headroom bounty. Per spec.md §4.8 step 8 this
	// updates the transaction data but is never re-simulated.
	finalBounty := scaleGasPrice(gasCost, s.gasCoveragePct)
	bytecodeFinal, err := s.buildBytecode(ctx, ethPrice18, finalBounty, req.Signer)
	if err != nil {
		return nil, newError(KindFatal, "CompileFinal", err)
	}
	calldataFinal, err := encodeArbCall(s.arbAddress, pair, maximumInput, marketRatio18, s.maxRatioMode, route.Params, bytecodeFinal)
	if err != nil {
		return nil, newError(KindFatal, "EncodeArbCallFinal", err)
	}

	estimatedProfit := estimateProfit18(pair, route, ethPrice18)

	return &Result{
		Pair:             pair,
		Route:            route,
		MarketRatio18:    marketRatio18,
		EstimatedProfit:  estimatedProfit,
		GasLimit:         gasLimit,
		GasPrice:         gasPrice,
		EstimatedGasCost: gasCost,
		OppBlockNumber:   block,
		FinalBytecode:    bytecodeFinal,
		TxData:           calldataFinal,
	}, nil
}

// estimateProfit18 implements spec.md §4.8 step 8's
// estimated_profit = (amount_out_at_market - amount_in*order_ratio) * eth_price_18 / 1e18,
// in 18-decimal fixed point throughout, yielding an ETH-denominated
// (wei-scale) profit.
func estimateProfit18(pair *ordertype.Pair, route *router.Route, ethPrice18 *big.Int) decimal.Decimal {
	amountIn18 := fixedfloat.ScaleTo18(pair.TakeOrder.Quote.MaxOutput, pair.SellDecimals)
	costAtOrderRatio18 := new(big.Int).Div(new(big.Int).Mul(amountIn18, pair.TakeOrder.Quote.Ratio), pow10(fixedfloat.Decimals18))
	amountOutAtMarket18 := fixedfloat.ScaleTo18(route.AmountOut, pair.BuyDecimals)

	diff18 := new(big.Int).Sub(amountOutAtMarket18, costAtOrderRatio18)
	profitRaw := new(big.Int).Div(new(big.Int).Mul(diff18, ethPrice18), pow10(fixedfloat.Decimals18))

	return decimal.NewFromBigInt(profitRaw, -int32(fixedfloat.Decimals18))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ratioGate rejects a pair whose order demands a worse price than the
// router's live market quote, returning the market's 18-decimal ratio for
// the caller to reuse as maximum_io_ratio. Kept tagged "RouteProcessor" per
// spec.md §9 Open Question 2 -- a historical naming artifact preserved, not
// corrected.
func (s *Simulator) ratioGate(ctx context.Context, pair *ordertype.Pair, route *router.Route) (*big.Int, error) {
	if pair.TakeOrder.Quote == nil {
		return nil, newError(KindNoOpportunity, "RouteProcessor", fmt.Errorf("pair has no live quote"))
	}
	if route == nil || route.AmountOut == nil || route.AmountOut.Sign() <= 0 {
		return nil, newError(KindNoOpportunity, "RouteProcessor", fmt.Errorf("route has no output"))
	}

	// route.AmountOut is the BuyToken amount quoted for selling
	// pair.TakeOrder.Quote.MaxOutput of SellToken (the amount FindBestRoute
	// was asked to price), so this is a buy-per-sell price in both legs.
	marketRatio, err := fixedfloat.CalculatePrice18(pair.TakeOrder.Quote.MaxOutput, route.AmountOut, pair.SellDecimals, pair.BuyDecimals)
	if err != nil {
		return nil, newError(KindFatal, "RouteProcessor", err)
	}

	if pair.TakeOrder.Quote.Ratio.Cmp(marketRatio) > 0 {
		return nil, newError(KindNoOpportunity, "RouteProcessor", fmt.Errorf(
			"order ratio %s exceeds market ratio %s", pair.TakeOrder.Quote.Ratio, marketRatio))
	}
	return marketRatio, nil
}

func scaleGasPrice(v *big.Int, multiplier float64) *big.Int {
	if multiplier == 1.0 {
		return new(big.Int).Set(v)
	}
	f := new(big.Float).SetInt(v)
	f.Mul(f, big.NewFloat(multiplier))
	out, _ := f.Int(nil)
	return out
}
