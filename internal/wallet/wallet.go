// Package wallet defines the §6.3 signer/broadcaster boundary: the solver
// core builds a raw transaction and hands it across this interface, but
// never touches a private key or a mempool itself. Key management and
// transaction signing are out of scope per spec.md's Non-goals -- this
// package holds the call contract plus the signer-pool fan-out the
// overview calls for ("a single wallet seed fans out to a pool of signer
// workers that execute in parallel"), not the signing internals.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"
)

// RawTransaction is the unsigned call the core hands to a Signer: the
// arbitrage contract address, ABI-encoded calldata, and the gas price the
// simulator's headroom calculation settled on.
type RawTransaction struct {
	To       string
	Data     []byte
	GasPrice *big.Int
	GasLimit uint64
}

// SubmitResult is what a Signer reports back for one RawTransaction.
type SubmitResult struct {
	TxHash string
	Err    error
}

// Signer signs and broadcasts one RawTransaction. Each worker in a Pool
// wraps its own Signer -- typically the same seed derived to a distinct
// nonce range, but that derivation is entirely the caller's concern.
type Signer interface {
	Submit(ctx context.Context, tx RawTransaction) (SubmitResult, error)
}

// Pool fans submissions out across a fixed set of Signer workers, bounding
// in-flight broadcasts to len(workers) -- the same bounded-concurrency
// shape the reactor uses for per-pair simulation (errgroup with SetLimit),
// just applied to the broadcast leg instead.
type Pool struct {
	workers []Signer
	next    int
}

// NewPool builds a Pool over the given workers. Workers are assigned
// round-robin; a Pool with zero workers is valid but SubmitAll on it always
// returns an error per item.
func NewPool(workers []Signer) *Pool {
	return &Pool{workers: workers}
}

// SubmitOne dispatches a single transaction to the next worker in rotation.
func (p *Pool) SubmitOne(ctx context.Context, tx RawTransaction) (SubmitResult, error) {
	if len(p.workers) == 0 {
		return SubmitResult{}, fmt.Errorf("wallet: no signer workers configured")
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w.Submit(ctx, tx)
}

// SubmitAll dispatches every transaction in txs concurrently, one per
// worker slot, and returns results in the same order as txs. A failure on
// one transaction never cancels the others -- every transaction gets a
// result, matching the round report's per-pair granularity.
func (p *Pool) SubmitAll(ctx context.Context, txs []RawTransaction) []SubmitResult {
	results := make([]SubmitResult, len(txs))
	if len(p.workers) == 0 {
		for i := range txs {
			results[i] = SubmitResult{Err: fmt.Errorf("wallet: no signer workers configured")}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(p.workers))
	for i, tx := range txs {
		i, tx := i, tx
		worker := p.workers[i%len(p.workers)]
		g.Go(func() error {
			res, err := worker.Submit(gctx, tx)
			if err != nil {
				res.Err = err
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
