package main

import (
	"context"
	"fmt"

	"github.com/rainsolver/solver/internal/wallet"
	"github.com/rainsolver/solver/pkg/observability"
)

// loggingSigner stands in for the external signer/broadcaster spec.md's
// §6.3 boundary hands off to: it never holds a key, it just logs the raw
// transaction it would have submitted. A deployment wires a real
// wallet.Signer (HSM, KMS, relayer) in its place; this one exists so
// cmd/solver has a default wallet.Pool to construct without one.
type loggingSigner struct {
	name   string
	logger *observability.Logger
}

func newLoggingSigner(name string, logger *observability.Logger) *loggingSigner {
	return &loggingSigner{name: name, logger: logger}
}

func (s *loggingSigner) Submit(ctx context.Context, tx wallet.RawTransaction) (wallet.SubmitResult, error) {
	s.logger.Warn(ctx, "signer stub: transaction not broadcast", map[string]interface{}{
		"signer":    s.name,
		"to":        tx.To,
		"gas_price": tx.GasPrice.String(),
		"gas_limit": tx.GasLimit,
		"data_len":  len(tx.Data),
	})
	return wallet.SubmitResult{}, fmt.Errorf("signer %s: no broadcaster configured", s.name)
}
