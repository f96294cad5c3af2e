// Package counterparty is the thin orchestration layer (C9) between the
// reactor's per-round dispatch and the Order Manager's index lookups: for a
// given Pair it gathers every opposing order the solver could clear
// against -- same-orderbook, cross-orderbook, and base-token hops -- into
// one ranked candidate list.
package counterparty

import (
	"github.com/rainsolver/solver/internal/pairindex"
	"github.com/rainsolver/solver/internal/ordertype"
)

// Manager is the narrow slice of ordermanager.Manager this package depends
// on; kept as an interface so counterparty never imports ordermanager
// directly (mirrors the syncloop.OrderSink inversion).
type Manager interface {
	GetCounterpartyOrders(pair *ordertype.Pair, source pairindex.Source) [][]*ordertype.Pair
	GetCounterpartyOrdersAgainstBaseTokens(pair *ordertype.Pair) map[string][]*ordertype.Pair
}

// Candidate is one ranked counterparty list the solver can try clearing
// pair against, tagged with how it was reached.
type Candidate struct {
	Via   string // "intra", "inter", or the base token address hopped through
	Pairs []*ordertype.Pair
}

// Finder fans a single Pair out to every counterparty source.
type Finder struct {
	manager Manager
}

// New builds a Finder over the given Manager.
func New(manager Manager) *Finder {
	return &Finder{manager: manager}
}

// FindAll gathers every counterparty candidate for pair: first the direct
// same-orderbook and cross-orderbook matches (spec.md §4.9's primary
// lookup), then anything reachable by hopping through a registered base
// token. Each returned Candidate.Pairs is already sorted by the Order
// Manager: ascending ratio, then descending max output.
func (f *Finder) FindAll(pair *ordertype.Pair) []Candidate {
	var out []Candidate

	if intra := f.manager.GetCounterpartyOrders(pair, pairindex.IntraOrderbook); len(intra) > 0 {
		out = append(out, flatten("intra", intra)...)
	}
	if inter := f.manager.GetCounterpartyOrders(pair, pairindex.InterOrderbook); len(inter) > 0 {
		out = append(out, flatten("inter", inter)...)
	}

	baseHops := f.manager.GetCounterpartyOrdersAgainstBaseTokens(pair)
	for token, pairs := range baseHops {
		if len(pairs) == 0 {
			continue
		}
		out = append(out, Candidate{Via: token, Pairs: pairs})
	}

	return out
}

// flatten turns SortedList's [][]*Pair (one sorted list for the pair's own
// orderbook, or one per other orderbook in map order) into one Candidate
// per non-empty list, keeping the lists in the order given.
func flatten(via string, groups [][]*ordertype.Pair) []Candidate {
	out := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		out = append(out, Candidate{Via: via, Pairs: g})
	}
	return out
}
