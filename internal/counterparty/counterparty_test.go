package counterparty

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/pairindex"
)

type fakeManager struct {
	intra    [][]*ordertype.Pair
	inter    [][]*ordertype.Pair
	baseHops map[string][]*ordertype.Pair
}

func (f *fakeManager) GetCounterpartyOrders(pair *ordertype.Pair, source pairindex.Source) [][]*ordertype.Pair {
	if source == pairindex.IntraOrderbook {
		return f.intra
	}
	return f.inter
}

func (f *fakeManager) GetCounterpartyOrdersAgainstBaseTokens(pair *ordertype.Pair) map[string][]*ordertype.Pair {
	return f.baseHops
}

func pairWithRatio(ratio int64) *ordertype.Pair {
	return &ordertype.Pair{TakeOrder: &ordertype.TakeOrderDetails{Quote: &ordertype.Quote{Ratio: big.NewInt(ratio)}}}
}

func TestFindAllCombinesIntraInterAndBaseHops(t *testing.T) {
	fm := &fakeManager{
		intra: [][]*ordertype.Pair{{pairWithRatio(3)}, {pairWithRatio(1)}},
		inter: [][]*ordertype.Pair{{pairWithRatio(2)}},
		baseHops: map[string][]*ordertype.Pair{
			"0xusdc": {pairWithRatio(5)},
		},
	}
	finder := New(fm)

	candidates := finder.FindAll(&ordertype.Pair{})
	assert.Len(t, candidates, 4)

	var vias []string
	for _, c := range candidates {
		vias = append(vias, c.Via)
	}
	assert.Contains(t, vias, "intra")
	assert.Contains(t, vias, "inter")
	assert.Contains(t, vias, "0xusdc")
}

func TestFindAllSkipsEmptyGroups(t *testing.T) {
	fm := &fakeManager{
		intra:    [][]*ordertype.Pair{{}, {pairWithRatio(1)}},
		baseHops: map[string][]*ordertype.Pair{"0xusdc": {}},
	}
	finder := New(fm)

	candidates := finder.FindAll(&ordertype.Pair{})
	assert.Len(t, candidates, 1)
	assert.Equal(t, "intra", candidates[0].Via)
}
