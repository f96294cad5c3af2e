// Package router implements the routing façade (C7): it races every
// configured Backend for a quote on a (token_in, token_out, amount_in)
// triple, caches the winner (and, just as importantly, caches the absence
// of a route), and reports a single composite error when nothing answers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rainsolver/solver/pkg/observability"
)

// ErrNoRouteFound means every backend answered but none had a viable route.
var ErrNoRouteFound = errors.New("router: no route found")

// ErrFetchFailed means at least one backend errored transport-side (RPC
// timeout, malformed response) rather than cleanly reporting "no route".
var ErrFetchFailed = errors.New("router: fetch failed")

// Route is one backend's answer for a token_in -> token_out swap.
type Route struct {
	Backend   string
	AmountOut *big.Int
	Params    []byte // opaque calldata/params the simulator hands to the contract
}

// Backend is one liquidity source the façade can race.
type Backend interface {
	Name() string
	GetMarketPrice(ctx context.Context, tokenIn, tokenOut string) (*big.Int, error)
	TryQuote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*Route, error)
	GetTradeParams(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) ([]byte, error)
}

// cacheEntry's NoWay flag is an explicit negative-cache marker: "this
// backend was asked and had nothing" is stored as a hit with NoWay=true,
// never as an absent key, so a cache miss always means "never asked" and a
// hit always answers definitively either way.
type cacheEntry struct {
	NoWay     bool
	AmountOut string
	Params    []byte
}

// Facade fans a quote request out to every backend and serves cached
// answers (positive or negative) within TTL.
type Facade struct {
	backends []Backend
	cache    *redis.Client
	ttl      time.Duration
	limiters map[string]*rate.Limiter
	logger   *observability.Logger

	cacheHits   int64 // atomic
	cacheMisses int64 // atomic
}

// Config configures a Facade.
type Config struct {
	Backends        []Backend
	Cache           *redis.Client
	TTL             time.Duration
	RequestsPerSec  float64
	Logger          *observability.Logger
}

// New builds a Facade. A nil Cache disables caching (routes are always
// fetched live); this is intentional for tests and for backends whose
// routes are too ephemeral to cache.
func New(cfg Config) *Facade {
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Second
	}
	limiters := make(map[string]*rate.Limiter, len(cfg.Backends))
	for _, b := range cfg.Backends {
		rps := cfg.RequestsPerSec
		if rps <= 0 {
			rps = 10
		}
		limiters[b.Name()] = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Facade{backends: cfg.Backends, cache: cfg.Cache, ttl: cfg.TTL, limiters: limiters, logger: cfg.Logger}
}

func cacheKey(tokenIn, tokenOut, amountIn, backend string) string {
	return fmt.Sprintf("route:%s:%s:%s:%s", backend, tokenIn, tokenOut, amountIn)
}

// FindBestRoute races every backend (subject to its own rate limiter) and
// returns the route with the largest AmountOut. A backend with a cached
// NoWay entry is skipped without a live call.
func (f *Facade) FindBestRoute(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*Route, error) {
	type result struct {
		route *Route
		err   error
	}

	results := make([]result, len(f.backends))
	g, gctx := errgroup.WithContext(ctx)

	for i, b := range f.backends {
		i, b := i, b
		g.Go(func() error {
			route, err := f.quoteOne(gctx, b, tokenIn, tokenOut, amountIn)
			results[i] = result{route: route, err: err}
			return nil // never abort the group: every backend gets to answer
		})
	}
	_ = g.Wait()

	var best *Route
	var sawFetchFailure bool
	for _, r := range results {
		if r.err != nil {
			if !errors.Is(r.err, ErrNoRouteFound) {
				sawFetchFailure = true
			}
			continue
		}
		if r.route == nil {
			continue
		}
		if best == nil || r.route.AmountOut.Cmp(best.AmountOut) > 0 {
			best = r.route
		}
	}

	if best != nil {
		return best, nil
	}
	if sawFetchFailure {
		return nil, ErrFetchFailed
	}
	return nil, ErrNoRouteFound
}

// GetMarketPrice returns the reference price a specific backend quotes,
// bypassing the route cache -- used by cmd/solver's price oracle, which
// needs a live price rather than a cached trade route.
func (f *Facade) GetMarketPrice(ctx context.Context, backend, tokenIn, tokenOut string) (*big.Int, error) {
	for _, b := range f.backends {
		if b.Name() == backend {
			return b.GetMarketPrice(ctx, tokenIn, tokenOut)
		}
	}
	return nil, fmt.Errorf("router: unknown backend %q", backend)
}

// GetTradeParams asks the winning backend of a prior FindBestRoute call to
// produce the calldata/params the simulator embeds in its TakeOrdersConfig.
func (f *Facade) GetTradeParams(ctx context.Context, route *Route, tokenIn, tokenOut string, amountIn *big.Int) ([]byte, error) {
	for _, b := range f.backends {
		if b.Name() == route.Backend {
			return b.GetTradeParams(ctx, tokenIn, tokenOut, amountIn)
		}
	}
	return nil, fmt.Errorf("router: unknown backend %q", route.Backend)
}

func (f *Facade) quoteOne(ctx context.Context, b Backend, tokenIn, tokenOut string, amountIn *big.Int) (*Route, error) {
	if lim, ok := f.limiters[b.Name()]; ok {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: rate limiter: %v", ErrFetchFailed, b.Name(), err)
		}
	}

	key := cacheKey(tokenIn, tokenOut, amountIn.String(), b.Name())
	if cached, ok := f.getCached(ctx, key); ok {
		if cached.NoWay {
			return nil, ErrNoRouteFound
		}
		out, _ := new(big.Int).SetString(cached.AmountOut, 10)
		return &Route{Backend: b.Name(), AmountOut: out, Params: cached.Params}, nil
	}

	route, err := b.TryQuote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		f.setCached(ctx, key, cacheEntry{NoWay: false}, true)
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, b.Name(), err)
	}
	if route == nil {
		f.setCached(ctx, key, cacheEntry{NoWay: true}, false)
		return nil, ErrNoRouteFound
	}

	f.setCached(ctx, key, cacheEntry{AmountOut: route.AmountOut.String(), Params: route.Params}, false)
	return route, nil
}

// setCached writes a cache entry unless transient indicates a fetch error
// that should not be persisted at all (we never cache transport failures,
// only "no route" and real routes).
func (f *Facade) setCached(ctx context.Context, key string, entry cacheEntry, transient bool) {
	if f.cache == nil || transient {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, key, data, f.ttl).Err(); err != nil && f.logger != nil {
		f.logger.Warn(ctx, "router: cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (f *Facade) getCached(ctx context.Context, key string) (cacheEntry, bool) {
	if f.cache == nil {
		return cacheEntry{}, false
	}
	data, err := f.cache.Get(ctx, key).Bytes()
	if err != nil {
		atomic.AddInt64(&f.cacheMisses, 1)
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		atomic.AddInt64(&f.cacheMisses, 1)
		return cacheEntry{}, false
	}
	atomic.AddInt64(&f.cacheHits, 1)
	return entry, true
}

// CacheStats reports the route cache's lifetime hit rate and Redis's
// reported key count (DBSize) for the whole selected database, feeding
// observability.PerformanceMonitor.RecordCacheMetrics.
func (f *Facade) CacheStats(ctx context.Context) (hitRate float64, size int64) {
	hits := atomic.LoadInt64(&f.cacheHits)
	misses := atomic.LoadInt64(&f.cacheMisses)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	if f.cache != nil {
		if n, err := f.cache.DBSize(ctx).Result(); err == nil {
			size = n
		}
	}
	return hitRate, size
}
