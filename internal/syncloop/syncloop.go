// Package syncloop implements the Sync Loop (C6): it drains upstream
// indexer events and applies them to an OrderSink, turning at-least-once
// delivery into an idempotent state transition.
package syncloop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/pkg/observability"
)

// OrderSink is the narrow slice of ordermanager.Manager the sync loop
// drives. Defined here, not imported from ordermanager, so ordermanager
// never needs to import syncloop back (spec.md §5's dependency direction).
type OrderSink interface {
	AddOrder(ctx context.Context, sg ordertype.SubgraphOrder) error
	RemoveOrders(ctx context.Context, sgs []ordertype.SubgraphOrder)
	SetVaultBalance(ctx context.Context, orderbook, owner, token, vaultID string, balance *big.Int, decimals uint8)
}

// EventKind discriminates Event.
type EventKind int

const (
	EventAddOrder EventKind = iota
	EventRemoveOrder
	EventDeposit
	EventWithdrawal
	EventClear
	EventTakeOrder
)

// Event is one upstream state-change record. Only the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind  EventKind
	Order ordertype.SubgraphOrder     // EventAddOrder / EventRemoveOrder
	Vault ordertype.VaultBalanceChange // EventDeposit/Withdrawal/Clear/TakeOrder
}

// Transaction groups the events observed in one upstream block/poll tick.
type Transaction struct {
	Timestamp int64
	Events    []Event
}

// IndexerClient is the upstream feed the sync loop drains.
type IndexerClient interface {
	GetUpstreamEvents(ctx context.Context, sinceTimestamp int64) ([]Transaction, error)
}

// OrderbookSyncStatus records what happened to one orderbook's orders
// during a Run, per spec.md §4.6's "sync_status[source][orderbook]" shape.
type OrderbookSyncStatus struct {
	Added       []string
	Removed     []string
	FailedAdds  map[string]error
}

// Report is the outcome of one Run call.
type Report struct {
	BatchID       string
	LastTimestamp int64
	Status        map[string]map[string]*OrderbookSyncStatus // source -> orderbook -> status
}

func newReport() *Report {
	return &Report{BatchID: uuid.NewString(), Status: make(map[string]map[string]*OrderbookSyncStatus)}
}

func (r *Report) statusFor(source, orderbook string) *OrderbookSyncStatus {
	bySource, ok := r.Status[source]
	if !ok {
		bySource = make(map[string]*OrderbookSyncStatus)
		r.Status[source] = bySource
	}
	st, ok := bySource[orderbook]
	if !ok {
		st = &OrderbookSyncStatus{FailedAdds: make(map[string]error)}
		bySource[orderbook] = st
	}
	return st
}

// Loop drains one IndexerClient into one OrderSink.
type Loop struct {
	Source string // logical name of the upstream source, used as sync_status's first key
	Client IndexerClient
	Sink   OrderSink
	Logger *observability.Logger

	lastTimestamp int64
}

// NewLoop builds a Loop starting from timestamp 0 (replay everything the
// client has).
func NewLoop(source string, client IndexerClient, sink OrderSink, logger *observability.Logger) *Loop {
	return &Loop{Source: source, Client: client, Sink: sink, Logger: logger}
}

// Run fetches every transaction since the loop's last checkpoint and applies
// it to the sink. Event application is idempotent (AddOrder/RemoveOrders/
// SetVaultBalance all tolerate replays), so at-least-once delivery from the
// indexer never double-counts state.
func (l *Loop) Run(ctx context.Context) (*Report, error) {
	txs, err := l.Client.GetUpstreamEvents(ctx, l.lastTimestamp)
	if err != nil {
		return nil, fmt.Errorf("syncloop: fetch upstream events: %w", err)
	}

	report := newReport()
	report.LastTimestamp = l.lastTimestamp

	for _, tx := range txs {
		for _, ev := range tx.Events {
			l.applyEvent(ctx, ev, report)
		}
		if tx.Timestamp > report.LastTimestamp {
			report.LastTimestamp = tx.Timestamp
		}
	}
	l.lastTimestamp = report.LastTimestamp
	return report, nil
}

func (l *Loop) applyEvent(ctx context.Context, ev Event, report *Report) {
	switch ev.Kind {
	case EventAddOrder:
		st := report.statusFor(l.Source, ev.Order.Orderbook)
		if err := l.Sink.AddOrder(ctx, ev.Order); err != nil {
			st.FailedAdds[ev.Order.Hash] = err
			if l.Logger != nil {
				l.Logger.Warn(ctx, "syncloop: add_order failed", map[string]interface{}{
					"orderbook": ev.Order.Orderbook, "hash": ev.Order.Hash, "error": err.Error(),
				})
			}
			return
		}
		st.Added = append(st.Added, ev.Order.Hash)

	case EventRemoveOrder:
		st := report.statusFor(l.Source, ev.Order.Orderbook)
		l.Sink.RemoveOrders(ctx, []ordertype.SubgraphOrder{ev.Order})
		st.Removed = append(st.Removed, ev.Order.Hash)

	case EventDeposit, EventWithdrawal, EventClear, EventTakeOrder:
		v := ev.Vault
		l.Sink.SetVaultBalance(ctx, v.Orderbook, v.Owner, v.Token, v.VaultID, v.NewBalance, v.Decimals)
	}
}
