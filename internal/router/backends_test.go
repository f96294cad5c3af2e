package router

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorBackendTryQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req aggregatorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1000", req.AmountIn)
		_ = json.NewEncoder(w).Encode(aggregatorResponse{AmountOut: "1980", Calldata: []byte{0x01}})
	}))
	defer srv.Close()

	backend := NewAggregatorBackend("agg1", srv.URL)
	route, err := backend.TryQuote(context.Background(), "0xin", "0xout", big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "agg1", route.Backend)
	assert.Equal(t, int64(1980), route.AmountOut.Int64())
}

func TestAggregatorBackendNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(aggregatorResponse{NoRoute: true})
	}))
	defer srv.Close()

	backend := NewAggregatorBackend("agg1", srv.URL)
	route, err := backend.TryQuote(context.Background(), "0xin", "0xout", big.NewInt(1000))
	require.NoError(t, err)
	assert.Nil(t, route)
}

func TestStablecoinBackendPegQuote(t *testing.T) {
	backend := NewStablecoinBackend("stable1", map[string]uint8{
		"0xusdc": 6,
		"0xdai":  18,
	})

	// 1 USDC (1_000_000 at 6 decimals) -> DAI (18 decimals): 1_000_000 * 10^12 = 10^18
	route, err := backend.TryQuote(context.Background(), "0xusdc", "0xdai", big.NewInt(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, route)
	want := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000_000_000))
	assert.Equal(t, want.String(), route.AmountOut.String())
}

func TestStablecoinBackendUnregisteredPairIsNoRoute(t *testing.T) {
	backend := NewStablecoinBackend("stable1", map[string]uint8{"0xusdc": 6})
	route, err := backend.TryQuote(context.Background(), "0xusdc", "0xnotregistered", big.NewInt(100))
	require.NoError(t, err)
	assert.Nil(t, route)
}

func TestConstantProductOut(t *testing.T) {
	// reserveIn=1000, reserveOut=2000, amountIn=100 -> 2000*100/1100 = 181
	out := constantProductOut(big.NewInt(1000), big.NewInt(2000), big.NewInt(100))
	assert.Equal(t, int64(181), out.Int64())
}
