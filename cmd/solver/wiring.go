package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rainsolver/solver/internal/chain"
	"github.com/rainsolver/solver/internal/config"
	"github.com/rainsolver/solver/internal/counterparty"
	"github.com/rainsolver/solver/internal/indexer"
	"github.com/rainsolver/solver/internal/ordermanager"
	"github.com/rainsolver/solver/internal/reactor"
	"github.com/rainsolver/solver/internal/router"
	"github.com/rainsolver/solver/internal/simulator"
	"github.com/rainsolver/solver/internal/syncloop"
	"github.com/rainsolver/solver/internal/wallet"
	"github.com/rainsolver/solver/pkg/observability"
)

// chainStack is everything buildChainReactor assembled for one configured
// chain -- the reactor itself plus the pieces main needs to register health
// checks and mount a per-chain metrics registry on /metrics.
type chainStack struct {
	ChainID      string
	Reactor      *reactor.Reactor
	Registry     *prometheus.Registry
	RPCPing      func(ctx context.Context) error
	RouterFacade *router.Facade
}

// buildChainReactor wires one chain's full pipeline: an ethclient-backed
// chain.Client, the order manager it feeds token/balance/quote reads for,
// an indexer sync loop into that manager, a router.Facade racing whatever
// backends the chain config names, a simulator over the same chain client,
// a counterparty finder over the manager, a one-worker wallet pool (see
// signer.go), and finally the reactor tying all of that to a round
// schedule. Each chain gets its own Prometheus registry so two reactors
// never collide registering the same counter name twice; main combines the
// per-chain registries into one /metrics surface via prometheus.Gatherers.
func buildChainReactor(chainID string, cc config.ChainConfig, sc config.SolverConfig, redisClient *redis.Client, logger *observability.Logger, perf *observability.PerformanceMonitor, tracer oteltrace.Tracer) (*chainStack, error) {
	eth, err := ethclient.Dial(cc.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain %s: dial %s: %w", chainID, cc.RPCURL, err)
	}

	chainClient := chain.New(eth, logger)

	manager := ordermanager.New(ordermanager.Config{
		Logger:            logger,
		TokenInfo:         chainClient,
		Balances:          chainClient,
		Quoter:            chainClient,
		OwnerLimits:       sc.OwnerLimitOverrides,
		DefaultOwnerLimit: sc.DefaultOwnerLimit,
		BaseTokens:        sc.BaseTokens,
	})

	var loops []*syncloop.Loop
	if sc.IndexerBaseURL != "" {
		indexerClient := indexer.NewHTTPClient(sc.IndexerBaseURL)
		loops = append(loops, syncloop.NewLoop(chainID+":indexer", indexerClient, manager, logger))
	}

	backends := buildBackends(chainID, cc, sc, chainClient)
	routerFacade := router.New(router.Config{
		Backends:       backends,
		Cache:          redisClient,
		TTL:            sc.RouteCacheTTL,
		RequestsPerSec: sc.BackendRequestsPerSec,
		Logger:         logger,
	})

	var priceOracle simulator.PriceOracle
	if sc.PriceReferenceToken != "" && len(backends) > 0 {
		refBackend := backends[0].Name()
		for _, b := range backends {
			if b.Name() == chainID+":stablecoins" {
				refBackend = b.Name()
				break
			}
		}
		priceOracle = newFacadePriceOracle(routerFacade, refBackend, sc.PriceReferenceToken)
	}

	sim := simulator.New(simulator.Config{
		Chain:          chainClient,
		Compiler:       nil, // no evaluable.Compiler implementation exists; Simulate guards for it
		PriceOracle:    priceOracle,
		ArbAddress:     cc.ArbAddress,
		MaxRatioMode:   sc.MaxRatioMode,
		GasCoveragePct: sc.GasCoveragePercentage,
	})

	finder := counterparty.New(manager)

	walletPool := wallet.NewPool([]wallet.Signer{
		newLoggingSigner(chainID+":signer-0", logger),
	})

	registry := prometheus.NewRegistry()
	perfLogger := observability.NewPerformanceLogger(logger)

	var maxInput18 *big.Int
	if sc.MaxInputWei != "" {
		if v, ok := new(big.Int).SetString(sc.MaxInputWei, 10); ok {
			maxInput18 = v
		}
	}

	r := reactor.New(reactor.Config{
		Manager:            manager,
		Router:             routerFacade,
		Simulator:          sim,
		Counterparty:       finder,
		Wallet:             walletPool,
		Loops:              loops,
		Logger:             logger,
		Registry:           registry,
		Tracer:             tracer,
		RoundInterval:      sc.RoundInterval,
		RoundTimeout:       sc.RoundTimeout,
		MaxConcurrentPairs: sc.MaxConcurrentPairs,
		DownscaleEveryN:    sc.DownscaleEveryNRounds,
		SignerAddress:      cc.SignerAddress,
		AllowPartialFill:   sc.AllowPartialFill,
		MaxInput18:         maxInput18,
		OnRound: func(report *reactor.Report) {
			perfLogger.LogSlowOperation(context.Background(), "round:"+chainID, report.Duration, sc.RoundTimeout, map[string]interface{}{
				"pairs": len(report.Outcomes),
			})
			if perf == nil {
				return
			}
			perf.RecordRound(&observability.RoundMetrics{
				ChainID:       chainID,
				PairsTotal:    len(report.Outcomes),
				Opportunities: report.Opportunities,
				Errors:        report.Errors,
				Duration:      report.Duration,
			})
		},
	})

	return &chainStack{
		ChainID:  chainID,
		Reactor:  r,
		Registry: registry,
		RPCPing: func(ctx context.Context) error {
			_, err := chainClient.GetBlockNumber(ctx)
			return err
		},
		RouterFacade: routerFacade,
	}, nil
}

// buildBackends turns one chain's config into the router.Backend set it
// races each round. A chain with neither an aggregator nor a weighted pool
// configured still gets the stablecoin backend when stablecoin decimals
// are configured globally -- a chain can mix all three kinds.
func buildBackends(chainID string, cc config.ChainConfig, sc config.SolverConfig, chainClient *chain.Client) []router.Backend {
	var backends []router.Backend

	if sc.AggregatorBaseURL != "" {
		backends = append(backends, router.NewAggregatorBackend(chainID+":aggregator", sc.AggregatorBaseURL))
	}
	if cc.WeightedPoolAddress != "" {
		pools := append([]string{cc.WeightedPoolAddress}, cc.WeightedPoolAlternates...)
		backends = append(backends, router.NewWeightedPoolBackend(chainID+":weighted-pool", pools, chainClient))
	}
	if len(sc.StablecoinDecimals) > 0 {
		backends = append(backends, router.NewStablecoinBackend(chainID+":stablecoins", sc.StablecoinDecimals))
	}

	return backends
}
