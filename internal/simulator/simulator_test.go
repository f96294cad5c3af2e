package simulator

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/chain"
	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/router"
)

// fakeChain answers SimulateContract calls in sequence from results, and
// returns fixed values for the gas/block helpers.
type fakeChain struct {
	results     [][]byte
	call        int
	gasLimit    uint64
	gasPrice    *big.Int
	block       uint64
	simErr      error
	estimateErr error
}

func (f *fakeChain) SimulateContract(ctx context.Context, to string, data []byte, block *uint64, overrides map[string]chain.StateOverride) ([]byte, error) {
	if f.simErr != nil {
		return nil, f.simErr
	}
	out := f.results[f.call]
	f.call++
	return out, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeChain) EstimateGasLimit(ctx context.Context, to string, data []byte) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.gasLimit, nil
}

func (f *fakeChain) GetBlockNumber(ctx context.Context) (uint64, error) {
	return f.block, nil
}

type fakeCompiler struct {
	bytecode []byte
	err      error
}

func (c *fakeCompiler) Compile(ctx context.Context, source string) ([]byte, error) {
	return c.bytecode, c.err
}

type fakePriceOracle struct {
	price18 *big.Int
	err     error
}

func (p *fakePriceOracle) EthPrice18(ctx context.Context, token string) (*big.Int, error) {
	return p.price18, p.err
}

func testPair(ratio *big.Int) *ordertype.Pair {
	return &ordertype.Pair{
		Orderbook:    "0xorderbook",
		BuyToken:     "0xbuy",
		BuyDecimals:  18,
		SellToken:    "0xsell",
		SellDecimals: 18,
		TakeOrder: &ordertype.TakeOrderDetails{
			ID: "0xhash",
			Struct: ordertype.TakeOrderStruct{
				Order: ordertype.Order{
					Version: ordertype.OrderVersionV3,
					Owner:   "0xowner",
				},
			},
			Quote: &ordertype.Quote{
				MaxOutput: big.NewInt(1000),
				Ratio:     ratio,
			},
		},
	}
}

func TestSimulateHappyPath(t *testing.T) {
	fc := &fakeChain{
		results:  [][]byte{{}, {}},
		gasLimit: 100_000,
		gasPrice: big.NewInt(10),
		block:    42,
	}
	sim := New(Config{
		Chain:       fc,
		Compiler:    &fakeCompiler{bytecode: []byte{0xAA}},
		PriceOracle: &fakePriceOracle{price18: big.NewInt(3_000_000_000_000_000_000)}, // 3 ETH/buy_token
	})

	pair := testPair(big.NewInt(1e18 / 2)) // ratio 0.5, well under market
	route := &router.Route{Backend: "agg", AmountOut: big.NewInt(2000), Params: []byte{0x01}}

	result, err := sim.Simulate(context.Background(), Request{Pair: pair, Route: route, Signer: "0xsigner"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, result.FinalBytecode)
	assert.NotEmpty(t, result.TxData)
	assert.True(t, result.GasLimit > fc.gasLimit) // multiplier applied
	assert.Equal(t, 2, fc.call)                   // two dry runs, no third re-simulate of the final bytecode
	assert.True(t, result.EstimatedProfit.IsPositive())
}

func TestSimulateRatioGateRejectsWorseThanMarket(t *testing.T) {
	fc := &fakeChain{gasPrice: big.NewInt(1), block: 1}
	sim := New(Config{Chain: fc})

	// market ratio for (maxOutput=1000 sell -> amountOut=2000 buy) is 2.0
	// (2e18); an order ratio above that demands a worse price than the
	// market offers and must be rejected before any dry run.
	pair := testPair(new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)))
	route := &router.Route{Backend: "agg", AmountOut: big.NewInt(2000)}

	_, err := sim.Simulate(context.Background(), Request{Pair: pair, Route: route})
	require.Error(t, err)
	simErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNoOpportunity, simErr.Kind)
	assert.Equal(t, "RouteProcessor", simErr.Stage)
	assert.Equal(t, 0, fc.call) // never reached the chain
}

func TestSimulateDryRunFailureIsNoOpportunity(t *testing.T) {
	fc := &fakeChain{simErr: assertErr, gasPrice: big.NewInt(1), block: 1}
	sim := New(Config{Chain: fc})

	pair := testPair(big.NewInt(1))
	route := &router.Route{Backend: "agg", AmountOut: big.NewInt(2000)}

	_, err := sim.Simulate(context.Background(), Request{Pair: pair, Route: route})
	require.Error(t, err)
	simErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNoOpportunity, simErr.Kind)
	assert.Equal(t, "DryRunStage1", simErr.Stage)
}

func TestSimulateMaxRatioModeEncodesSentinel(t *testing.T) {
	fc := &fakeChain{
		results:  [][]byte{{}, {}},
		gasLimit: 50_000,
		gasPrice: big.NewInt(5),
		block:    7,
	}
	sim := New(Config{Chain: fc, MaxRatioMode: true})

	pair := testPair(big.NewInt(1))
	route := &router.Route{Backend: "agg", AmountOut: big.NewInt(2000)}

	result, err := sim.Simulate(context.Background(), Request{Pair: pair, Route: route})
	require.NoError(t, err)
	assert.NotNil(t, result.MarketRatio18)
	// maximumInput (uncapped) and the max-ratio sentinel are two adjacent
	// all-ones uint256 words in the arb3 calldata.
	assert.True(t, bytes.Contains(result.TxData, bytes.Repeat([]byte{0xFF}, 64)))
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
