// Package pairindex implements the symmetric, four-level nested index (C3)
// that lets the Order Manager look up counterparties in O(1) and produce a
// descending-by-ratio view of them.
package pairindex

import (
	"sort"

	"github.com/rainsolver/solver/internal/ordertype"
)

// Source selects whether SortedList draws from the same orderbook (Intra)
// or from every other orderbook present in the index (Inter).
type Source int

const (
	IntraOrderbook Source = iota
	InterOrderbook
)

// hashList is the index's leaf: an insertion-ordered, O(1)-lookup set of
// pairs at one (orderbook, output, input) key. Go map iteration order is
// randomized per run, so the leaf can't be a bare map if SortedList is to
// return a stable order across repeat calls -- order is a parallel slice
// of hashes that sortInPlace rewrites directly, and every later read walks
// that slice instead of ranging over byHash.
type hashList struct {
	order  []string
	byHash map[string]*ordertype.Pair
	dirty  bool // true when order no longer reflects the last sort
}

func newHashList() *hashList {
	return &hashList{byHash: make(map[string]*ordertype.Pair)}
}

func (h *hashList) set(hash string, pair *ordertype.Pair) {
	if _, ok := h.byHash[hash]; !ok {
		h.order = append(h.order, hash)
	}
	h.byHash[hash] = pair
	h.dirty = true
}

func (h *hashList) delete(hash string) {
	if _, ok := h.byHash[hash]; !ok {
		return
	}
	delete(h.byHash, hash)
	for i, k := range h.order {
		if k == hash {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *hashList) len() int { return len(h.byHash) }

// list returns pairs in whatever order is currently persisted -- insertion
// order until the first sortInPlace, the last sorted order after that.
func (h *hashList) list() []*ordertype.Pair {
	out := make([]*ordertype.Pair, 0, len(h.order))
	for _, hash := range h.order {
		out = append(out, h.byHash[hash])
	}
	return out
}

// reorder persists pairs' current sequence as the leaf's order, so the next
// list() call (from any caller, not just the one that just sorted) returns
// this exact sequence without re-deriving it.
func (h *hashList) reorder(pairs []*ordertype.Pair) {
	order := make([]string, len(pairs))
	for i, p := range pairs {
		order[i] = p.TakeOrder.ID
	}
	h.order = order
}

// Index is the four-level nested mapping orderbook -> output -> input ->
// hash -> *Pair described in spec.md §4.3. An Index is single-writer; all
// reads happen through the same goroutine that writes (the reactor), so no
// internal locking is needed -- matching spec.md §5's "no lock held across a
// suspension point" design, since Index never suspends.
type Index struct {
	// byOrderbook[ob][output][input] = hashList
	byOrderbook map[string]map[string]map[string]*hashList
}

// New builds an empty Index.
func New() *Index {
	return &Index{byOrderbook: make(map[string]map[string]map[string]*hashList)}
}

// Add inserts pair under (orderbook, output, input, hash), creating any
// missing levels. The orderbook level is created even if this is the first
// pair ever seen for it.
func (idx *Index) Add(orderbook, hash, output, input string, pair *ordertype.Pair) {
	ob := idx.ensureOrderbook(orderbook)
	byInput, ok := ob[output]
	if !ok {
		byInput = make(map[string]*hashList)
		ob[output] = byInput
	}
	byHash, ok := byInput[input]
	if !ok {
		byHash = newHashList()
		byInput[input] = byHash
	}
	byHash.set(hash, pair)
}

// ensureOrderbook returns (creating if necessary) the orderbook level. It is
// also used to guarantee an orderbook level exists even with zero pairs, so
// Remove's "never delete the orderbook level" rule has somewhere to land.
func (idx *Index) ensureOrderbook(orderbook string) map[string]map[string]*hashList {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		ob = make(map[string]map[string]*hashList)
		idx.byOrderbook[orderbook] = ob
	}
	return ob
}

// EnsureOrderbook makes sure the orderbook level exists without adding any pair.
func (idx *Index) EnsureOrderbook(orderbook string) {
	idx.ensureOrderbook(orderbook)
}

// Get looks up a single pair.
func (idx *Index) Get(orderbook, output, input, hash string) (*ordertype.Pair, bool) {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		return nil, false
	}
	byInput, ok := ob[output]
	if !ok {
		return nil, false
	}
	byHash, ok := byInput[input]
	if !ok {
		return nil, false
	}
	p, ok := byHash.byHash[hash]
	return p, ok
}

// Remove deletes the (orderbook, output, input, hash) entry, pruning empty
// parent levels -- except it never deletes the orderbook level itself, so a
// remove never forgets that an orderbook has been seen.
func (idx *Index) Remove(orderbook, hash, output, input string) {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		return
	}
	byInput, ok := ob[output]
	if !ok {
		return
	}
	byHash, ok := byInput[input]
	if !ok {
		return
	}
	byHash.delete(hash)
	if byHash.len() == 0 {
		delete(byInput, input)
	}
	if len(byInput) == 0 {
		delete(ob, output)
	}
}

// Orderbooks returns every orderbook key currently tracked (including empty
// ones created via EnsureOrderbook/Add).
func (idx *Index) Orderbooks() []string {
	out := make([]string, 0, len(idx.byOrderbook))
	for ob := range idx.byOrderbook {
		out = append(out, ob)
	}
	return out
}

// OutputKeys returns the "output" (first-level) keys present for an orderbook.
func (idx *Index) OutputKeys(orderbook string) []string {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ob))
	for k := range ob {
		out = append(out, k)
	}
	return out
}

// InputKeysForOutput returns the "input" (second-level) keys present under
// (orderbook, output), i.e. every token reachable by hopping through output.
func (idx *Index) InputKeysForOutput(orderbook, output string) []string {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		return nil
	}
	byInput, ok := ob[output]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byInput))
	for k := range byInput {
		out = append(out, k)
	}
	return out
}

// leaf returns the hashList at (orderbook, output, input), or nil.
func (idx *Index) leaf(orderbook, output, input string) *hashList {
	ob, ok := idx.byOrderbook[orderbook]
	if !ok {
		return nil
	}
	byInput, ok := ob[output]
	if !ok {
		return nil
	}
	return byInput[input]
}

// less implements the descending comparator of spec.md §4.3: ascending
// quote.ratio first (smaller ratio is the better price for the taker), then
// descending quote.max_output; a pair with no quote yet sorts last.
func less(a, b *ordertype.Pair) bool {
	aq, bq := a.TakeOrder.Quote, b.TakeOrder.Quote
	if aq == nil && bq == nil {
		return false
	}
	if aq == nil {
		return false
	}
	if bq == nil {
		return true
	}
	if c := aq.Ratio.Cmp(bq.Ratio); c != 0 {
		return c < 0
	}
	return aq.MaxOutput.Cmp(bq.MaxOutput) > 0
}

// sortInPlace stably sorts the leaf per less() and persists the resulting
// order onto the leaf itself, so subsequent SortedList calls on an unchanged
// leaf return that same sequence directly instead of re-deriving a sort
// order from Go's randomized map iteration every time -- the persisted-sort
// behavior spec.md §4.3 requires.
func (idx *Index) sortInPlace(orderbook, output, input string) []*ordertype.Pair {
	hl := idx.leaf(orderbook, output, input)
	if hl == nil {
		return nil
	}
	if !hl.dirty {
		return hl.list()
	}

	pairs := hl.list()
	sort.SliceStable(pairs, func(i, j int) bool { return less(pairs[i], pairs[j]) })
	hl.reorder(pairs)
	hl.dirty = false
	return pairs
}

// SortedList returns a descending-ratio view per Source:
//   - IntraOrderbook: the single list at (orderbook, output, input).
//   - InterOrderbook: one list per *other* orderbook that has an entry at
//     (output, input), in arbitrary (map) orderbook order.
func (idx *Index) SortedList(orderbook, output, input string, source Source) [][]*ordertype.Pair {
	if source == IntraOrderbook {
		list := idx.sortInPlace(orderbook, output, input)
		if list == nil {
			return nil
		}
		return [][]*ordertype.Pair{list}
	}

	var out [][]*ordertype.Pair
	for ob := range idx.byOrderbook {
		if ob == orderbook {
			continue
		}
		list := idx.sortInPlace(ob, output, input)
		if len(list) > 0 {
			out = append(out, list)
		}
	}
	return out
}
