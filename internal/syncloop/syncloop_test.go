package syncloop

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/ordertype"
)

type fakeSink struct {
	added    []string
	removed  []string
	balances map[string]*big.Int
	failHash string
}

func newFakeSink() *fakeSink {
	return &fakeSink{balances: make(map[string]*big.Int)}
}

func (f *fakeSink) AddOrder(ctx context.Context, sg ordertype.SubgraphOrder) error {
	if sg.Hash == f.failHash {
		return errors.New("boom")
	}
	f.added = append(f.added, sg.Hash)
	return nil
}

func (f *fakeSink) RemoveOrders(ctx context.Context, sgs []ordertype.SubgraphOrder) {
	for _, sg := range sgs {
		f.removed = append(f.removed, sg.Hash)
	}
}

func (f *fakeSink) SetVaultBalance(ctx context.Context, orderbook, owner, token, vaultID string, balance *big.Int, decimals uint8) {
	f.balances[orderbook+"|"+owner+"|"+token+"|"+vaultID] = balance
}

type fakeClient struct {
	batches [][]Transaction
	calls   int
}

func (f *fakeClient) GetUpstreamEvents(ctx context.Context, since int64) ([]Transaction, error) {
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	out := f.batches[f.calls]
	f.calls++
	return out, nil
}

func TestRunAppliesAddRemoveAndVaultEvents(t *testing.T) {
	sink := newFakeSink()
	client := &fakeClient{batches: [][]Transaction{
		{
			{Timestamp: 10, Events: []Event{
				{Kind: EventAddOrder, Order: ordertype.SubgraphOrder{Orderbook: "0xob", Hash: "0xh1"}},
				{Kind: EventDeposit, Vault: ordertype.VaultBalanceChange{
					Orderbook: "0xob", Owner: "0xowner", Token: "0xtok", VaultID: "1", NewBalance: big.NewInt(500),
				}},
				{Kind: EventRemoveOrder, Order: ordertype.SubgraphOrder{Orderbook: "0xob", Hash: "0xh2"}},
			}},
		},
	}}
	loop := NewLoop("indexer-a", client, sink, nil)

	report, err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.LastTimestamp)
	assert.Equal(t, []string{"0xh1"}, sink.added)
	assert.Equal(t, []string{"0xh2"}, sink.removed)
	assert.Equal(t, big.NewInt(500), sink.balances["0xob|0xowner|0xtok|1"])

	st := report.Status["indexer-a"]["0xob"]
	require.NotNil(t, st)
	assert.Equal(t, []string{"0xh1"}, st.Added)
	assert.Equal(t, []string{"0xh2"}, st.Removed)
}

func TestRunRecordsFailedAdds(t *testing.T) {
	sink := newFakeSink()
	sink.failHash = "0xbad"
	client := &fakeClient{batches: [][]Transaction{
		{{Timestamp: 1, Events: []Event{
			{Kind: EventAddOrder, Order: ordertype.SubgraphOrder{Orderbook: "0xob", Hash: "0xbad"}},
		}}},
	}}
	loop := NewLoop("indexer-a", client, sink, nil)

	report, err := loop.Run(context.Background())
	require.NoError(t, err)
	st := report.Status["indexer-a"]["0xob"]
	require.NotNil(t, st)
	assert.Empty(t, st.Added)
	assert.Contains(t, st.FailedAdds, "0xbad")
}

func TestRunAdvancesCheckpointAcrossCalls(t *testing.T) {
	sink := newFakeSink()
	client := &fakeClient{batches: [][]Transaction{
		{{Timestamp: 5, Events: nil}},
		{{Timestamp: 9, Events: nil}},
	}}
	loop := NewLoop("indexer-a", client, sink, nil)

	_, err := loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), loop.lastTimestamp)

	_, err = loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), loop.lastTimestamp)
}
