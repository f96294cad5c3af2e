package reactor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/counterparty"
	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/router"
	"github.com/rainsolver/solver/internal/simulator"
	"github.com/rainsolver/solver/internal/wallet"
)

type fakeManager struct {
	pairs      []*ordertype.Pair
	quoteErr   error
	downscaled bool
}

func (f *fakeManager) ResetLimits()                                     {}
func (f *fakeManager) DownscaleProtection(ctx context.Context, reset bool) { f.downscaled = true }
func (f *fakeManager) GetNextRoundOrders() []*ordertype.Pair             { return f.pairs }
func (f *fakeManager) QuoteOrder(ctx context.Context, pair *ordertype.Pair, block *uint64) error {
	if f.quoteErr != nil {
		return f.quoteErr
	}
	pair.TakeOrder.Quote = &ordertype.Quote{MaxOutput: big.NewInt(1000), Ratio: big.NewInt(1)}
	return nil
}

type fakeRouter struct {
	route   *router.Route
	findErr error
	params  []byte
}

func (f *fakeRouter) FindBestRoute(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*router.Route, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.route, nil
}

func (f *fakeRouter) GetTradeParams(ctx context.Context, route *router.Route, tokenIn, tokenOut string, amountIn *big.Int) ([]byte, error) {
	return f.params, nil
}

type fakeSimulator struct {
	result *simulator.Result
	err    error
}

func (f *fakeSimulator) Simulate(ctx context.Context, req simulator.Request) (*simulator.Result, error) {
	return f.result, f.err
}

type fakeCounterparty struct{ candidates []counterparty.Candidate }

func (f *fakeCounterparty) FindAll(pair *ordertype.Pair) []counterparty.Candidate { return f.candidates }

type fakeSigner struct{}

func (fakeSigner) Submit(ctx context.Context, tx wallet.RawTransaction) (wallet.SubmitResult, error) {
	return wallet.SubmitResult{TxHash: tx.To}, nil
}

func decimalPositive() decimal.Decimal {
	return decimal.NewFromInt(42)
}

func testPair() *ordertype.Pair {
	return &ordertype.Pair{
		Orderbook: "0xob", BuyToken: "0xbuy", BuyDecimals: 18,
		SellToken: "0xsell", SellDecimals: 18,
		TakeOrder: &ordertype.TakeOrderDetails{ID: "0xhash"},
	}
}

func TestRunRoundSubmitsProfitableOutcome(t *testing.T) {
	pair := testPair()
	mgr := &fakeManager{pairs: []*ordertype.Pair{pair}}
	rtr := &fakeRouter{route: &router.Route{Backend: "agg", AmountOut: big.NewInt(2000)}}
	sim := &fakeSimulator{result: &simulator.Result{
		Pair: pair, EstimatedProfit: decimalPositive(), GasPrice: big.NewInt(1), GasLimit: 100,
	}}
	pool := wallet.NewPool([]wallet.Signer{fakeSigner{}})

	r := New(Config{Manager: mgr, Router: rtr, Simulator: sim, Wallet: pool, MaxConcurrentPairs: 4})
	report := r.RunRound(context.Background())

	require.Len(t, report.Outcomes, 1)
	assert.NoError(t, report.Outcomes[0].Err)
	assert.Equal(t, 1, report.Opportunities)
	assert.Equal(t, 1, report.Submitted)
	assert.True(t, report.Outcomes[0].Submitted)
}

func TestRunRoundNoRouteFallsBackToCounterparty(t *testing.T) {
	pair := testPair()
	mgr := &fakeManager{pairs: []*ordertype.Pair{pair}}
	rtr := &fakeRouter{findErr: router.ErrNoRouteFound}
	sim := &fakeSimulator{}
	cp := &fakeCounterparty{candidates: []counterparty.Candidate{{Via: "intra", Pairs: []*ordertype.Pair{pair}}}}

	r := New(Config{Manager: mgr, Router: rtr, Simulator: sim, Counterparty: cp, MaxConcurrentPairs: 4})
	report := r.RunRound(context.Background())

	require.Len(t, report.Outcomes, 1)
	assert.Error(t, report.Outcomes[0].Err)
	assert.Equal(t, simulator.KindNoOpportunity, report.Outcomes[0].ErrKind)
	assert.Equal(t, 0, report.Opportunities)
}

func TestRunRoundQuoteFailureIsNonFatal(t *testing.T) {
	pair := testPair()
	mgr := &fakeManager{pairs: []*ordertype.Pair{pair}, quoteErr: errors.New("rpc down")}
	rtr := &fakeRouter{}
	sim := &fakeSimulator{}

	r := New(Config{Manager: mgr, Router: rtr, Simulator: sim, MaxConcurrentPairs: 4})
	report := r.RunRound(context.Background())

	require.Len(t, report.Outcomes, 1)
	assert.Error(t, report.Outcomes[0].Err)
	assert.Equal(t, simulator.KindFetchFailed, report.Outcomes[0].ErrKind)
}

func TestRunRoundReportsDurationAndErrorCount(t *testing.T) {
	pair := testPair()
	mgr := &fakeManager{pairs: []*ordertype.Pair{pair}, quoteErr: errors.New("rpc down")}
	r := New(Config{Manager: mgr, Router: &fakeRouter{}, Simulator: &fakeSimulator{}, MaxConcurrentPairs: 4})

	report := r.RunRound(context.Background())
	assert.Equal(t, 1, report.Errors)
	assert.True(t, report.Duration >= 0)
}

func TestRunRoundInvokesOnRound(t *testing.T) {
	mgr := &fakeManager{}
	var got *Report
	r := New(Config{
		Manager: mgr, Router: &fakeRouter{}, Simulator: &fakeSimulator{},
		OnRound: func(report *Report) { got = report },
	})

	report := r.RunRound(context.Background())
	r.onRound(report) // Start calls this after logging; RunRound itself doesn't
	require.NotNil(t, got)
	assert.Equal(t, report.RoundID, got.RoundID)
}

func TestRunRoundRunsDownscaleEveryNRounds(t *testing.T) {
	mgr := &fakeManager{}
	r := New(Config{Manager: mgr, Router: &fakeRouter{}, Simulator: &fakeSimulator{}, DownscaleEveryN: 2})

	r.RunRound(context.Background())
	assert.False(t, mgr.downscaled)
	r.RunRound(context.Background())
	assert.True(t, mgr.downscaled)
}
