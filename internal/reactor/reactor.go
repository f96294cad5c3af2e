// Package reactor is the solver's main loop (§5): one round scheduler
// drains the sync loops, pulls this round's Pairs from the Order Manager,
// and fans them out -- bounded by a configurable concurrency limit -- to
// the router/simulator pipeline, collecting a Report per round.
package reactor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rainsolver/solver/internal/counterparty"
	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/router"
	"github.com/rainsolver/solver/internal/simulator"
	"github.com/rainsolver/solver/internal/syncloop"
	"github.com/rainsolver/solver/internal/wallet"
	"github.com/rainsolver/solver/pkg/observability"
)

// Manager is the narrow slice of ordermanager.Manager the reactor drives
// directly -- sync/decode/indexing stay behind the Sync Loop and
// Counterparty Finder's own narrow interfaces.
type Manager interface {
	ResetLimits()
	DownscaleProtection(ctx context.Context, reset bool)
	GetNextRoundOrders() []*ordertype.Pair
	QuoteOrder(ctx context.Context, pair *ordertype.Pair, block *uint64) error
}

// RouteFinder is the narrow slice of router.Facade the reactor needs per
// pair: a best route, then that route's broadcast-ready params.
type RouteFinder interface {
	FindBestRoute(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*router.Route, error)
	GetTradeParams(ctx context.Context, route *router.Route, tokenIn, tokenOut string, amountIn *big.Int) ([]byte, error)
}

// Simulator is the narrow slice of simulator.Simulator the reactor calls.
type Simulator interface {
	Simulate(ctx context.Context, req simulator.Request) (*simulator.Result, error)
}

// CounterpartyFinder is the narrow slice of counterparty.Finder the
// reactor calls when the router leg turns up nothing -- logged as a
// candidate count, not yet executed as a Clear (spec.md §4.8 only
// specifies the TakeOrdersConfig/route path; a Clear-path simulator is a
// distinct, unspecified pipeline and is out of scope here).
type CounterpartyFinder interface {
	FindAll(pair *ordertype.Pair) []counterparty.Candidate
}

// Config configures a Reactor.
type Config struct {
	Manager      Manager
	Router       RouteFinder
	Simulator    Simulator
	Counterparty CounterpartyFinder
	Wallet       *wallet.Pool
	Loops        []*syncloop.Loop
	Logger       *observability.Logger
	Registry     *prometheus.Registry
	Tracer       oteltrace.Tracer // optional; nil disables the per-round span

	RoundInterval      time.Duration
	RoundTimeout       time.Duration
	MaxConcurrentPairs int
	DownscaleEveryN    int // run downscale protection every N rounds; 0 disables

	SignerAddress    string   // the bounty recipient passed into every Simulate call
	AllowPartialFill bool     // spec.md §4.8's is_partial flag
	MaxInput18       *big.Int // 18-decimal risk cap on sell_token committed per pair; nil means uncapped

	// OnRound, if set, is called after every completed round with its
	// Report -- cmd/solver wires this to PerformanceMonitor.RecordRound so
	// round health surfaces the same way across every configured chain.
	OnRound func(*Report)
}

// Reactor drives the solver's round loop.
type Reactor struct {
	manager      Manager
	router       RouteFinder
	simulator    Simulator
	counterparty CounterpartyFinder
	wallet       *wallet.Pool
	loops        []*syncloop.Loop
	logger       *observability.Logger
	tracer       oteltrace.Tracer

	roundInterval      time.Duration
	roundTimeout       time.Duration
	maxConcurrentPairs int
	downscaleEveryN    int
	roundCount         int

	signerAddress    string
	allowPartialFill bool
	maxInput18       *big.Int

	onRound func(*Report)

	metrics *metrics
}

type metrics struct {
	roundsTotal       prometheus.Counter
	pairsTotal        prometheus.Counter
	opportunitiesTotal prometheus.Counter
	submittedTotal    prometheus.Counter
	errorsByKind      *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_rounds_total", Help: "Total number of reactor rounds run.",
		}),
		pairsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_pairs_processed_total", Help: "Total number of pairs processed across all rounds.",
		}),
		opportunitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_opportunities_found_total", Help: "Total number of pairs that cleared simulation with positive profit.",
		}),
		submittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_transactions_submitted_total", Help: "Total number of raw transactions handed to the wallet pool.",
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_pair_errors_total", Help: "Per-pair errors, labeled by the §7 error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.roundsTotal, m.pairsTotal, m.opportunitiesTotal, m.submittedTotal, m.errorsByKind)
	}
	return m
}

// New builds a Reactor.
func New(cfg Config) *Reactor {
	if cfg.RoundInterval == 0 {
		cfg.RoundInterval = 10 * time.Second
	}
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrentPairs == 0 {
		cfg.MaxConcurrentPairs = 16
	}
	return &Reactor{
		manager:            cfg.Manager,
		router:             cfg.Router,
		simulator:          cfg.Simulator,
		counterparty:       cfg.Counterparty,
		wallet:             cfg.Wallet,
		loops:              cfg.Loops,
		logger:             cfg.Logger,
		tracer:             cfg.Tracer,
		roundInterval:      cfg.RoundInterval,
		roundTimeout:       cfg.RoundTimeout,
		maxConcurrentPairs: cfg.MaxConcurrentPairs,
		downscaleEveryN:    cfg.DownscaleEveryN,
		signerAddress:      cfg.SignerAddress,
		allowPartialFill:   cfg.AllowPartialFill,
		maxInput18:         cfg.MaxInput18,
		onRound:            cfg.OnRound,
		metrics:            newMetrics(cfg.Registry),
	}
}

// PairOutcome is one pair's processing result for a round's Report.
type PairOutcome struct {
	Pair    *ordertype.Pair
	Result  *simulator.Result
	Err     error
	ErrKind simulator.Kind // "" when Err is nil; KindFatal for a non-*simulator.Error from Simulate
	Submitted bool
}

// Report is one round's outcome, aggregating every pair's outcome plus the
// sync loops' own per-source reports.
type Report struct {
	RoundID       string
	SyncReports   []*syncloop.Report
	Outcomes      []PairOutcome
	Opportunities int
	Submitted     int
	Errors        int
	Duration      time.Duration
}

// Start runs the round loop until ctx is cancelled. Each tick runs one
// self-contained round on this goroutine, bounded by roundTimeout; rounds
// never overlap. A round that outlasts RoundInterval delays the next one,
// and the ticker drops the ticks missed meanwhile -- acceptable since
// reports are per-round and not assumed contiguous.
func (r *Reactor) Start(ctx context.Context) {
	ticker := time.NewTicker(r.roundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			roundCtx, cancel := context.WithTimeout(ctx, r.roundTimeout)
			report := r.RunRound(roundCtx)
			cancel()
			if r.logger != nil {
				r.logger.Info(ctx, "reactor: round complete", map[string]interface{}{
					"round_id":      report.RoundID,
					"pairs":         len(report.Outcomes),
					"opportunities": report.Opportunities,
					"submitted":     report.Submitted,
				})
			}
			if r.onRound != nil {
				r.onRound(report)
			}
		}
	}
}

// RunRound executes exactly one round: sync, optional downscale, quote +
// route + simulate every pair (bounded fan-out), submit profitable
// outcomes to the wallet pool.
func (r *Reactor) RunRound(ctx context.Context) *Report {
	if r.tracer != nil {
		var span oteltrace.Span
		ctx, span = r.tracer.Start(ctx, "reactor.round")
		defer span.End()
	}

	start := time.Now()
	report := &Report{RoundID: uuid.NewString()}
	defer func() { report.Duration = time.Since(start) }()
	r.metrics.roundsTotal.Inc()

	for _, loop := range r.loops {
		syncReport, err := loop.Run(ctx)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn(ctx, "reactor: sync loop failed", map[string]interface{}{
					"source": loop.Source, "error": err.Error(),
				})
			}
			continue
		}
		report.SyncReports = append(report.SyncReports, syncReport)
	}

	r.roundCount++
	if r.downscaleEveryN > 0 && r.roundCount%r.downscaleEveryN == 0 {
		r.manager.DownscaleProtection(ctx, true)
	}

	pairs := r.manager.GetNextRoundOrders()
	report.Outcomes = make([]PairOutcome, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrentPairs)

	var submitMu sync.Mutex
	var toSubmit []wallet.RawTransaction
	submitIndex := make([]int, 0, len(pairs))

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			outcome := r.processPair(gctx, pair)
			report.Outcomes[i] = outcome
			if outcome.Err == nil && outcome.Result != nil && outcome.Result.EstimatedProfit.IsPositive() {
				submitMu.Lock()
				toSubmit = append(toSubmit, wallet.RawTransaction{
					To:       pair.Orderbook,
					Data:     outcome.Result.TxData,
					GasPrice: outcome.Result.GasPrice,
					GasLimit: outcome.Result.GasLimit,
				})
				submitIndex = append(submitIndex, i)
				submitMu.Unlock()
			}
			return nil // per-pair failures are non-fatal (§7); never abort the round
		})
	}
	_ = g.Wait()

	r.metrics.pairsTotal.Add(float64(len(pairs)))
	for _, outcome := range report.Outcomes {
		if outcome.Err != nil {
			report.Errors++
			r.metrics.errorsByKind.WithLabelValues(string(outcome.ErrKind)).Inc()
			continue
		}
		if outcome.Result != nil && outcome.Result.EstimatedProfit.IsPositive() {
			report.Opportunities++
		}
	}
	r.metrics.opportunitiesTotal.Add(float64(report.Opportunities))

	if r.wallet != nil && len(toSubmit) > 0 {
		results := r.wallet.SubmitAll(ctx, toSubmit)
		for j, res := range results {
			idx := submitIndex[j]
			if res.Err == nil {
				report.Outcomes[idx].Submitted = true
				report.Submitted++
			} else if r.logger != nil {
				r.logger.Warn(ctx, "reactor: submission failed", map[string]interface{}{
					"orderbook": report.Outcomes[idx].Pair.Orderbook, "error": res.Err.Error(),
				})
			}
		}
	}
	r.metrics.submittedTotal.Add(float64(report.Submitted))

	return report
}

// processPair runs the quote -> route -> simulate pipeline for one pair.
// Any FindBestRoute error falls back to logging the Counterparty Finder's
// candidate count for observability; it does not attempt a Clear.
func (r *Reactor) processPair(ctx context.Context, pair *ordertype.Pair) PairOutcome {
	if err := r.manager.QuoteOrder(ctx, pair, nil); err != nil {
		return PairOutcome{Pair: pair, Err: err, ErrKind: simulator.KindFetchFailed}
	}
	if pair.TakeOrder.Quote == nil {
		return PairOutcome{Pair: pair, Err: fmt.Errorf("reactor: no live quote"), ErrKind: simulator.KindNoOpportunity}
	}

	route, err := r.router.FindBestRoute(ctx, pair.SellToken, pair.BuyToken, pair.TakeOrder.Quote.MaxOutput)
	if err != nil {
		if r.counterparty != nil {
			candidates := r.counterparty.FindAll(pair)
			if r.logger != nil && len(candidates) > 0 {
				r.logger.Info(ctx, "reactor: no route, counterparty candidates available", map[string]interface{}{
					"orderbook": pair.Orderbook, "candidates": len(candidates),
				})
			}
		}
		return PairOutcome{Pair: pair, Err: err, ErrKind: simulator.KindNoOpportunity}
	}

	params, err := r.router.GetTradeParams(ctx, route, pair.SellToken, pair.BuyToken, pair.TakeOrder.Quote.MaxOutput)
	if err != nil {
		return PairOutcome{Pair: pair, Err: err, ErrKind: simulator.KindFetchFailed}
	}
	route.Params = params

	result, err := r.simulator.Simulate(ctx, simulator.Request{
		Pair:       pair,
		Route:      route,
		Signer:     r.signerAddress,
		IsPartial:  r.allowPartialFill,
		MaxInput18: r.maxInput18,
	})
	if err != nil {
		kind := simulator.KindFatal
		if simErr, ok := err.(*simulator.Error); ok {
			kind = simErr.Kind
		}
		return PairOutcome{Pair: pair, Err: err, ErrKind: kind}
	}

	return PairOutcome{Pair: pair, Result: result}
}
