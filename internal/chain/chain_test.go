package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// fakeNode answers eth_call / eth_blockNumber with canned hex results,
// enough to exercise Client without a live network.
func fakeNode(t *testing.T, callResult string, blockNumberHex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_call":
			result = callResult
		case "eth_blockNumber":
			result = blockNumberHex
		default:
			http.Error(w, fmt.Sprintf("unexpected method %s", req.Method), http.StatusInternalServerError)
			return
		}

		resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%q}`, string(req.ID), result)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
}

func TestGetBlockNumber(t *testing.T) {
	srv := fakeNode(t, "0x", "0x2a")
	defer srv.Close()

	eth, err := ethclient.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	c := New(eth, nil)

	n, err := c.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)
}

func TestERC20Decimals(t *testing.T) {
	// decimals() ABI-encodes a uint8 left-padded to 32 bytes: 18 => 0x12.
	encoded := "0x" + strings.Repeat("0", 62) + "12"
	srv := fakeNode(t, encoded, "0x1")
	defer srv.Close()

	eth, err := ethclient.DialContext(context.Background(), srv.URL)
	require.NoError(t, err)
	c := New(eth, nil)

	d, err := c.ERC20Decimals(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.Equal(t, uint8(18), d)
}
