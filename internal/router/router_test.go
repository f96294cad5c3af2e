package router

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	amountOut *big.Int
	err       error
	noRoute   bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) GetMarketPrice(ctx context.Context, tokenIn, tokenOut string) (*big.Int, error) {
	return f.amountOut, f.err
}

func (f *fakeBackend) TryQuote(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*Route, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.noRoute {
		return nil, nil
	}
	return &Route{Backend: f.name, AmountOut: f.amountOut, Params: []byte(f.name)}, nil
}

func (f *fakeBackend) GetTradeParams(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) ([]byte, error) {
	return []byte(f.name), f.err
}

func TestFindBestRoutePicksHighestAmountOut(t *testing.T) {
	facade := New(Config{Backends: []Backend{
		&fakeBackend{name: "a", amountOut: big.NewInt(100)},
		&fakeBackend{name: "b", amountOut: big.NewInt(250)},
		&fakeBackend{name: "c", amountOut: big.NewInt(50)},
	}})

	route, err := facade.FindBestRoute(context.Background(), "0xin", "0xout", big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "b", route.Backend)
	assert.Equal(t, int64(250), route.AmountOut.Int64())
}

func TestFindBestRouteAllNoRouteReturnsNoRouteFound(t *testing.T) {
	facade := New(Config{Backends: []Backend{
		&fakeBackend{name: "a", noRoute: true},
		&fakeBackend{name: "b", noRoute: true},
	}})

	_, err := facade.FindBestRoute(context.Background(), "0xin", "0xout", big.NewInt(1000))
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestFindBestRouteFetchFailureBeatsNoRoute(t *testing.T) {
	facade := New(Config{Backends: []Backend{
		&fakeBackend{name: "a", noRoute: true},
		&fakeBackend{name: "b", err: assertErr},
	}})

	_, err := facade.FindBestRoute(context.Background(), "0xin", "0xout", big.NewInt(1000))
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFindBestRouteSucceedsDespiteOneFailure(t *testing.T) {
	facade := New(Config{Backends: []Backend{
		&fakeBackend{name: "a", err: assertErr},
		&fakeBackend{name: "b", amountOut: big.NewInt(10)},
	}})

	route, err := facade.FindBestRoute(context.Background(), "0xin", "0xout", big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "b", route.Backend)
}

func TestCacheStatsZeroWithCacheDisabled(t *testing.T) {
	facade := New(Config{Backends: []Backend{&fakeBackend{name: "a", amountOut: big.NewInt(1)}}})

	_, err := facade.FindBestRoute(context.Background(), "0xin", "0xout", big.NewInt(1000))
	require.NoError(t, err)

	hitRate, size := facade.CacheStats(context.Background())
	assert.Zero(t, hitRate)
	assert.Zero(t, size)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
