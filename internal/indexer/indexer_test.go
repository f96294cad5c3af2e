package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/syncloop"
)

func TestGetUpstreamEventsTranslatesAddOrderAndDeposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"timestamp": 200, "events": [
				{"__typename": "AddOrder", "orderbook": "0xob", "hash": "0xhash", "owner": "0xowner", "active": true},
				{"__typename": "Deposit", "orderbook": "0xob", "owner": "0xowner", "token": "0xusdc", "decimals": 6, "vaultId": "1", "newBalance": "1000000"},
				{"__typename": "SomeNewEventWeDontKnowAbout", "orderbook": "0xob"}
			]}
		]`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	txs, err := client.GetUpstreamEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Len(t, txs[0].Events, 2) // unknown typename skipped

	assert.Equal(t, syncloop.EventAddOrder, txs[0].Events[0].Kind)
	assert.Equal(t, "0xhash", txs[0].Events[0].Order.Hash)

	assert.Equal(t, syncloop.EventDeposit, txs[0].Events[1].Kind)
	assert.Equal(t, int64(1000000), txs[0].Events[1].Vault.NewBalance.Int64())
}

func TestGetUpstreamEventsMalformedBalanceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"timestamp": 1, "events": [
			{"__typename": "Withdrawal", "newBalance": "not-a-number"}
		]}]`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.GetUpstreamEvents(context.Background(), 0)
	assert.Error(t, err)
}
