// Package chain is the concrete on-chain adapter (§6.3): one Client per
// network, backing the narrow TokenInfoReader/OrderQuoter/ERC20BalanceReader
// contracts the order manager and simulator consume, plus the raw
// ReadContract/SimulateContract/GetBlockNumber surface the router and
// simulator use directly.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/pkg/fixedfloat"
	"github.com/rainsolver/solver/pkg/observability"
)

const erc20ABIJSON = `[
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// orderbookABIJSON carries only the quote2 view the order manager needs.
// quote2(TakeOrderStruct) returns (bool exists, bytes32 outputMax, bytes32 ioRatio),
// the last two as packed Floats.
const orderbookABIJSON = `[
  {"constant":true,"inputs":[{"name":"takeOrder","type":"tuple","components":[
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
  ]}],"name":"quote2","outputs":[
     {"name":"exists","type":"bool"},{"name":"outputMax","type":"bytes32"},{"name":"ioRatio","type":"bytes32"}
  ],"type":"function"}
]`

var (
	erc20ABI     abi.ABI
	orderbookABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Errorf("chain: parse erc20 abi: %w", err))
	}
	orderbookABI, err = abi.JSON(strings.NewReader(orderbookABIJSON))
	if err != nil {
		panic(fmt.Errorf("chain: parse orderbook abi: %w", err))
	}
}

// Client is the single-chain RPC adapter. It is safe for concurrent reads;
// it performs no writes (signing/broadcast live in internal/wallet, out of
// scope here per spec.md §6.3).
type Client struct {
	eth    *ethclient.Client
	logger *observability.Logger
}

// New wraps an already-dialed ethclient.Client.
func New(eth *ethclient.Client, logger *observability.Logger) *Client {
	return &Client{eth: eth, logger: logger}
}

// GetBlockNumber returns the latest block the node has.
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// SuggestGasPrice and EstimateGasLimit back the simulator's headroom
// calculation, mirroring gas_optimizer.go's EstimateGas inputs without
// pulling in its strategy-bucket machinery (the simulator needs one
// number, not four strategies).
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) EstimateGasLimit(ctx context.Context, to string, data []byte) (uint64, error) {
	addr := common.HexToAddress(to)
	return c.eth.EstimateGas(ctx, ethereum.CallMsg{To: &addr, Data: data})
}

// ReadContract performs a plain eth_call against the latest (or a pinned)
// block and returns the raw return data.
func (c *Client) ReadContract(ctx context.Context, to string, data []byte, block *uint64) ([]byte, error) {
	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{To: &addr, Data: data}
	blockNumber := blockNumberArg(block)
	out, err := c.eth.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to, err)
	}
	return out, nil
}

// SimulateContract performs an eth_call with a state override map applied
// on top of the target block, the primitive the simulator's two-stage
// dry-run (§4.8) needs to probe a TakeOrders call without broadcasting it.
// go-ethereum's ethclient has no override-aware CallContract, so this drops
// to the underlying JSON-RPC client directly.
func (c *Client) SimulateContract(ctx context.Context, to string, data []byte, block *uint64, overrides map[string]StateOverride) ([]byte, error) {
	addr := common.HexToAddress(to)
	callArg := map[string]interface{}{
		"to":   addr,
		"data": hexString(data),
	}
	var result string
	err := c.eth.Client().CallContext(ctx, &result, "eth_call", callArg, blockNumberTag(block), overrides)
	if err != nil {
		return nil, fmt.Errorf("chain: simulate %s: %w", to, err)
	}
	raw, err := hexDecode(result)
	if err != nil {
		return nil, fmt.Errorf("chain: decode simulate result: %w", err)
	}
	return raw, nil
}

// StateOverride is one account's eth_call state override entry.
type StateOverride struct {
	Balance *big.Int            `json:"balance,omitempty"`
	Nonce   *uint64             `json:"nonce,omitempty"`
	Code    []byte              `json:"code,omitempty"`
	State   map[string][32]byte `json:"state,omitempty"`
}

func blockNumberArg(block *uint64) *big.Int {
	if block == nil {
		return nil
	}
	return new(big.Int).SetUint64(*block)
}

func blockNumberTag(block *uint64) string {
	if block == nil {
		return "latest"
	}
	return fmt.Sprintf("0x%x", *block)
}

func hexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 0 {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// ERC20Decimals implements ordermanager.TokenInfoReader.
func (c *Client) ERC20Decimals(ctx context.Context, token string) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: pack decimals: %w", err)
	}
	res, err := c.ReadContract(ctx, token, data, nil)
	if err != nil {
		return 0, err
	}
	var out uint8
	if err := erc20ABI.UnpackIntoInterface(&out, "decimals", res); err != nil {
		return 0, fmt.Errorf("chain: unpack decimals: %w", err)
	}
	return out, nil
}

// ERC20Symbol implements ordermanager.TokenInfoReader.
func (c *Client) ERC20Symbol(ctx context.Context, token string) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("chain: pack symbol: %w", err)
	}
	res, err := c.ReadContract(ctx, token, data, nil)
	if err != nil {
		return "", err
	}
	var out string
	if err := erc20ABI.UnpackIntoInterface(&out, "symbol", res); err != nil {
		return "", fmt.Errorf("chain: unpack symbol: %w", err)
	}
	return out, nil
}

// ERC20BalanceOf implements ordermanager.ERC20BalanceReader.
func (c *Client) ERC20BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	res, err := c.ReadContract(ctx, token, data, nil)
	if err != nil {
		return nil, err
	}
	out := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&out, "balanceOf", res); err != nil {
		return nil, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	return out, nil
}

// abiIO .. abiTakeOrder mirror ordertype's V3 IO, Evaluable, Order,
// SignedContext and TakeOrderStruct for ABI packing.
type abiIO struct {
	Token    common.Address
	Decimals uint8
	VaultId  *big.Int
}

type abiEvaluable struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

type abiOrder struct {
	Owner        common.Address
	Nonce        [32]byte
	Evaluable    abiEvaluable
	ValidInputs  []abiIO
	ValidOutputs []abiIO
}

type abiSignedContext struct {
	Signer    common.Address
	Context   []*big.Int
	Signature []byte
}

type abiTakeOrder struct {
	Order         abiOrder
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
	SignedContext []abiSignedContext
}

// Quote2 implements ordermanager.OrderQuoter by ABI-encoding a V3-shaped
// TakeOrderStruct and calling the orderbook's quote2 view. outputMax and
// ioRatio come back as the protocol's opaque 32-byte packed Float
// (spec.md §4.1/§6.1), not a plain uint256 -- each is unpacked through
// fixedfloat.DecodeFloat; outputMax is handed to the caller as its Value(),
// ioRatio as an 18-decimal fixed-point integer (ordertype.Quote.Ratio).
func (c *Client) Quote2(ctx context.Context, orderbook string, t ordertype.TakeOrderStruct, block *uint64) (bool, *big.Int, *big.Int, error) {
	order := t.Order
	toABIIOs := func(ios []ordertype.IOV3) []abiIO {
		out := make([]abiIO, len(ios))
		for i, io := range ios {
			out[i] = abiIO{Token: common.HexToAddress(io.Token), Decimals: io.Decimals, VaultId: io.VaultID}
		}
		return out
	}
	signedCtx := make([]abiSignedContext, len(t.SignedContext))
	for i, sc := range t.SignedContext {
		signedCtx[i] = abiSignedContext{Signer: common.HexToAddress(sc.Signer), Context: sc.Context, Signature: sc.Signature}
	}

	arg := abiTakeOrder{
		Order: abiOrder{
			Owner:        common.HexToAddress(order.Owner),
			Nonce:        order.Nonce,
			Evaluable:    abiEvaluable{Interpreter: common.HexToAddress(order.Evaluable.Interpreter), Store: common.HexToAddress(order.Evaluable.Store), Bytecode: order.Evaluable.Bytecode},
			ValidInputs:  toABIIOs(order.ValidInputsV3),
			ValidOutputs: toABIIOs(order.ValidOutputsV3),
		},
		InputIOIndex:  new(big.Int).SetUint64(uint64(t.InputIOIndex)),
		OutputIOIndex: new(big.Int).SetUint64(uint64(t.OutputIOIndex)),
		SignedContext: signedCtx,
	}

	data, err := orderbookABI.Pack("quote2", arg)
	if err != nil {
		return false, nil, nil, fmt.Errorf("chain: pack quote2: %w", err)
	}
	res, err := c.ReadContract(ctx, orderbook, data, block)
	if err != nil {
		return false, nil, nil, err
	}

	unpacked, err := orderbookABI.Unpack("quote2", res)
	if err != nil {
		return false, nil, nil, fmt.Errorf("chain: unpack quote2: %w", err)
	}
	if len(unpacked) != 3 {
		return false, nil, nil, fmt.Errorf("chain: quote2 returned %d values, want 3", len(unpacked))
	}
	exists, _ := unpacked[0].(bool)
	outputMaxRaw, _ := unpacked[1].([32]byte)
	ioRatioRaw, _ := unpacked[2].([32]byte)

	outputMaxFloat, err := fixedfloat.DecodeFloat(hex.EncodeToString(outputMaxRaw[:]))
	if err != nil {
		return false, nil, nil, fmt.Errorf("chain: decode outputMax float: %w", err)
	}
	ioRatioFloat, err := fixedfloat.DecodeFloat(hex.EncodeToString(ioRatioRaw[:]))
	if err != nil {
		return false, nil, nil, fmt.Errorf("chain: decode ioRatio float: %w", err)
	}

	ioRatio18 := fixedfloat.PackedFloat{Exponent: ioRatioFloat.Exponent + fixedfloat.Decimals18, Magnitude: ioRatioFloat.Magnitude}.Value()
	return exists, outputMaxFloat.Value(), ioRatio18, nil
}
