package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	id    int
	err   error
	calls atomic.Int32
}

func (f *fakeSigner) Submit(ctx context.Context, tx RawTransaction) (SubmitResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return SubmitResult{}, f.err
	}
	return SubmitResult{TxHash: tx.To}, nil
}

func TestSubmitOneRoundRobins(t *testing.T) {
	s0 := &fakeSigner{id: 0}
	s1 := &fakeSigner{id: 1}
	pool := NewPool([]Signer{s0, s1})

	res, err := pool.SubmitOne(context.Background(), RawTransaction{To: "0xaaa"})
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", res.TxHash)

	res, err = pool.SubmitOne(context.Background(), RawTransaction{To: "0xbbb"})
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", res.TxHash)
	assert.Equal(t, int32(1), s0.calls.Load())
	assert.Equal(t, int32(1), s1.calls.Load())
}

func TestSubmitOneNoWorkersErrors(t *testing.T) {
	pool := NewPool(nil)
	_, err := pool.SubmitOne(context.Background(), RawTransaction{To: "0xaaa"})
	assert.Error(t, err)
}

func TestSubmitAllReturnsResultForEveryTx(t *testing.T) {
	pool := NewPool([]Signer{&fakeSigner{id: 0}, &fakeSigner{id: 1, err: errors.New("broadcast failed")}})
	txs := []RawTransaction{
		{To: "0xaaa", GasPrice: big.NewInt(1)},
		{To: "0xbbb", GasPrice: big.NewInt(2)},
		{To: "0xccc", GasPrice: big.NewInt(3)},
	}

	results := pool.SubmitAll(context.Background(), txs)
	require.Len(t, results, 3)
	assert.Equal(t, "0xaaa", results[0].TxHash)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "0xccc", results[2].TxHash)
}

func TestSubmitAllNoWorkersReturnsErrorPerItem(t *testing.T) {
	pool := NewPool(nil)
	results := pool.SubmitAll(context.Background(), []RawTransaction{{To: "0xaaa"}, {To: "0xbbb"}})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
}
