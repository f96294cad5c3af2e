// Package indexer implements the §6.2 upstream event source: an HTTP poll
// client that fetches transactions since a checkpoint and translates the
// wire `__typename`-discriminated event shape into syncloop's Transaction/
// Event types. The indexer's own internals (subgraph schema, pagination,
// GraphQL vs REST) are out of scope per spec.md's Non-goals -- only the
// translation into the solver's own types lives here.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/syncloop"
)

// Client is the collaborator syncloop.Loop drains; defined as an alias so
// any indexer.Client is usable directly as a syncloop.IndexerClient.
type Client = syncloop.IndexerClient

// wireEvent mirrors the upstream transport's per-event JSON shape: every
// event carries a __typename discriminator and enough fields to rebuild
// either a vault balance or an order record (§4.6), with the unused half
// of the fields simply omitted by the source.
type wireEvent struct {
	Typename string `json:"__typename"`

	Orderbook   string            `json:"orderbook"`
	Owner       string            `json:"owner"`
	Hash        string            `json:"hash"`
	Active      bool              `json:"active"`
	Bytes       []byte            `json:"bytes"`
	VersionHint uint8             `json:"versionHint"`
	ValidInputs []wireIO          `json:"validInputs"`
	ValidOutputs []wireIO         `json:"validOutputs"`

	Token      string `json:"token"`
	Decimals   uint8  `json:"decimals"`
	VaultID    string `json:"vaultId"`
	NewBalance string `json:"newBalance"` // decimal string, native decimals
}

type wireIO struct {
	Token       string  `json:"token"`
	Decimals    *uint8  `json:"decimals"`
	VaultID     string  `json:"vaultId"`
	PackedFloat string  `json:"packedFloat"`
}

type wireTransaction struct {
	Timestamp int64       `json:"timestamp"`
	Events    []wireEvent `json:"events"`
}

// HTTPClient polls one indexer endpoint's /transactions?since= route.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient against the given indexer base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// GetUpstreamEvents implements syncloop.IndexerClient.
func (c *HTTPClient) GetUpstreamEvents(ctx context.Context, sinceTimestamp int64) ([]syncloop.Transaction, error) {
	url := fmt.Sprintf("%s/transactions?since=%d", c.baseURL, sinceTimestamp)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("indexer: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer: status %d", resp.StatusCode)
	}

	var wireTxs []wireTransaction
	if err := json.NewDecoder(resp.Body).Decode(&wireTxs); err != nil {
		return nil, fmt.Errorf("indexer: decode response: %w", err)
	}

	out := make([]syncloop.Transaction, 0, len(wireTxs))
	for _, wtx := range wireTxs {
		tx := syncloop.Transaction{Timestamp: wtx.Timestamp}
		for _, we := range wtx.Events {
			ev, ok, err := translateEvent(we)
			if err != nil {
				return nil, fmt.Errorf("indexer: translate event %s: %w", we.Typename, err)
			}
			if ok {
				tx.Events = append(tx.Events, ev)
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

// translateEvent converts one wire event into a syncloop.Event. ok is false
// for a __typename this client doesn't recognize, which is silently skipped
// rather than failing the whole batch -- an upstream schema addition should
// never stall the sync loop.
func translateEvent(we wireEvent) (syncloop.Event, bool, error) {
	switch we.Typename {
	case "AddOrder":
		return syncloop.Event{Kind: syncloop.EventAddOrder, Order: toSubgraphOrder(we)}, true, nil
	case "RemoveOrder":
		return syncloop.Event{Kind: syncloop.EventRemoveOrder, Order: toSubgraphOrder(we)}, true, nil
	case "Deposit":
		v, err := toVaultChange(we)
		return syncloop.Event{Kind: syncloop.EventDeposit, Vault: v}, true, err
	case "Withdrawal":
		v, err := toVaultChange(we)
		return syncloop.Event{Kind: syncloop.EventWithdrawal, Vault: v}, true, err
	case "Clear":
		v, err := toVaultChange(we)
		return syncloop.Event{Kind: syncloop.EventClear, Vault: v}, true, err
	case "TakeOrder":
		v, err := toVaultChange(we)
		return syncloop.Event{Kind: syncloop.EventTakeOrder, Vault: v}, true, err
	default:
		return syncloop.Event{}, false, nil
	}
}

func toSubgraphOrder(we wireEvent) ordertype.SubgraphOrder {
	return ordertype.SubgraphOrder{
		Orderbook:    we.Orderbook,
		Hash:         we.Hash,
		Owner:        we.Owner,
		Active:       we.Active,
		Bytes:        we.Bytes,
		VersionHint:  ordertype.OrderVersion(we.VersionHint),
		ValidInputs:  toSubgraphIOs(we.ValidInputs),
		ValidOutputs: toSubgraphIOs(we.ValidOutputs),
	}
}

func toSubgraphIOs(ios []wireIO) []ordertype.SubgraphIO {
	out := make([]ordertype.SubgraphIO, len(ios))
	for i, io := range ios {
		out[i] = ordertype.SubgraphIO{Token: io.Token, Decimals: io.Decimals, VaultID: io.VaultID, PackedFloat: io.PackedFloat}
	}
	return out
}

func toVaultChange(we wireEvent) (ordertype.VaultBalanceChange, error) {
	balance, ok := new(big.Int).SetString(we.NewBalance, 10)
	if !ok {
		return ordertype.VaultBalanceChange{}, fmt.Errorf("malformed balance %q", we.NewBalance)
	}
	return ordertype.VaultBalanceChange{
		Orderbook:  we.Orderbook,
		Owner:      we.Owner,
		Token:      we.Token,
		Decimals:   we.Decimals,
		VaultID:    we.VaultID,
		NewBalance: balance,
	}, nil
}
