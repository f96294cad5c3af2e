package ordermanager

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainsolver/solver/internal/ordertype"
)

// --- local V3 order ABI encoder, independent of internal/decode's unexported types ---

type testIOV3 struct {
	Token    gethcommon.Address
	Decimals uint8
	VaultId  *big.Int
}

type testEvaluable struct {
	Interpreter gethcommon.Address
	Store       gethcommon.Address
	Bytecode    []byte
}

var orderV3Type abi.Type

func init() {
	var err error
	orderV3Type, err = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "nonce", Type: "bytes32"},
		{Name: "evaluable", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "interpreter", Type: "address"},
			{Name: "store", Type: "address"},
			{Name: "bytecode", Type: "bytes"},
		}},
		{Name: "validInputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
		{Name: "validOutputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
	})
	if err != nil {
		panic(err)
	}
}

func encodeTestOrder(t *testing.T, owner string, inputs, outputs []testIOV3) []byte {
	t.Helper()
	args := abi.Arguments{{Type: orderV3Type}}
	data, err := args.Pack(struct {
		Owner        gethcommon.Address
		Nonce        [32]byte
		Evaluable    testEvaluable
		ValidInputs  []testIOV3
		ValidOutputs []testIOV3
	}{
		Owner: gethcommon.HexToAddress(owner),
		Nonce: [32]byte{1},
		Evaluable: testEvaluable{
			Interpreter: gethcommon.HexToAddress("0x01"),
			Store:       gethcommon.HexToAddress("0x02"),
			Bytecode:    []byte{0xde, 0xad},
		},
		ValidInputs:  inputs,
		ValidOutputs: outputs,
	})
	require.NoError(t, err)
	return data
}

func sgOrder(t *testing.T, orderbook, owner, hash, sellToken, buyToken string, sellVault, buyVault int64) ordertype.SubgraphOrder {
	bytes := encodeTestOrder(t, owner,
		[]testIOV3{{Token: gethcommon.HexToAddress(buyToken), Decimals: 6, VaultId: big.NewInt(buyVault)}},
		[]testIOV3{{Token: gethcommon.HexToAddress(sellToken), Decimals: 18, VaultId: big.NewInt(sellVault)}},
	)
	return ordertype.SubgraphOrder{
		Orderbook:   orderbook,
		Hash:        hash,
		Owner:       owner,
		Active:      true,
		Bytes:       bytes,
		VersionHint: ordertype.OrderVersionV3,
		ValidInputs: []ordertype.SubgraphIO{
			{Token: buyToken, VaultID: big.NewInt(buyVault).String()},
		},
		ValidOutputs: []ordertype.SubgraphIO{
			{Token: sellToken, VaultID: big.NewInt(sellVault).String()},
		},
	}
}

const (
	addrSell = "0x5e11000000000000000000000000000000000001"
	addrBuy  = "0xb070000000000000000000000000000000000002"
	addrSame = "0x5a3e000000000000000000000000000000000003"
)

func newTestManager() *Manager {
	return New(Config{DefaultOwnerLimit: 3})
}

func TestAddOrderBuildsPairsAndIndexes(t *testing.T) {
	m := newTestManager()
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSell, addrBuy, 1, 2)

	err := m.AddOrder(context.Background(), sg)
	require.NoError(t, err)

	md := m.GetCurrentMetadata()
	assert.Equal(t, 1, md.TotalOrders)
	assert.Equal(t, 1, md.TotalPairs)

	// The pair is reachable through the oi index keyed (sell, buy), per the
	// order's own sell/buy perspective.
	lists := m.oiIndex.SortedList("0xob", addrSell, addrBuy, 0)
	require.Len(t, lists, 1)
	require.Len(t, lists[0], 1)
	pair := lists[0][0]
	assert.Equal(t, addrSell, pair.SellToken)
	assert.Equal(t, addrBuy, pair.BuyToken)

	// Invariant 4: vault auto-created with the pair, balance starts at zero.
	assert.Equal(t, int64(0), m.vaultBalance("0xob", "0xowner1", addrSell, big.NewInt(1).String()).Int64())
}

func TestAddOrderIsIdempotentOnReAdd(t *testing.T) {
	m := newTestManager()
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSell, addrBuy, 1, 2)

	require.NoError(t, m.AddOrder(context.Background(), sg))
	require.NoError(t, m.AddOrder(context.Background(), sg))

	md := m.GetCurrentMetadata()
	assert.Equal(t, 1, md.TotalOrders)
	assert.Equal(t, 1, md.TotalPairs)
}

func TestRemoveOrdersClearsIndexes(t *testing.T) {
	m := newTestManager()
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSell, addrBuy, 1, 2)
	require.NoError(t, m.AddOrder(context.Background(), sg))

	m.RemoveOrders(context.Background(), []ordertype.SubgraphOrder{sg})

	md := m.GetCurrentMetadata()
	assert.Equal(t, 0, md.TotalOrders)
	lists := m.oiIndex.SortedList("0xob", addrSell, addrBuy, 0)
	assert.Nil(t, lists)
}

func TestQuotedPairSharedAcrossIndexes(t *testing.T) {
	m := newTestManager()
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSell, addrBuy, 1, 2)
	require.NoError(t, m.AddOrder(context.Background(), sg))

	oiLists := m.oiIndex.SortedList("0xob", addrSell, addrBuy, 0)
	ioLists := m.ioIndex.SortedList("0xob", addrBuy, addrSell, 0)
	require.Len(t, oiLists, 1)
	require.Len(t, ioLists, 1)

	pair := oiLists[0][0]
	pair.TakeOrder.Quote = &ordertype.Quote{MaxOutput: big.NewInt(100), Ratio: big.NewInt(1)}

	// Same allocation reachable via the mirrored index: no re-quote needed.
	assert.Same(t, pair, ioLists[0][0])
	assert.NotNil(t, ioLists[0][0].TakeOrder.Quote)
	assert.Equal(t, int64(100), ioLists[0][0].TakeOrder.Quote.MaxOutput.Int64())
}

// TestRoundSchedulerRotation reproduces spec.md's worked example of an owner
// with 4 orders and a limit of 3, across 4 rounds, including the wraparound
// clamp of last_index %= max(N,1).
func TestRoundSchedulerRotation(t *testing.T) {
	prof := ordertype.NewOwnerProfile(3)
	for _, h := range []string{"h1", "h2", "h3", "h4"} {
		prof.Orders.Set(h, &ordertype.OrderProfile{
			Active: true,
			TakeOrders: []*ordertype.Pair{
				{TakeOrder: &ordertype.TakeOrderDetails{ID: h}},
			},
		})
	}

	want := [][]string{
		{"h1", "h2", "h3"},
		{"h4", "h1", "h2"},
		{"h3", "h4", "h1"},
		{"h2", "h3", "h4"},
	}
	for i, w := range want {
		got := nextSliceForOwner(prof)
		ids := make([]string, len(got))
		for j, p := range got {
			ids[j] = p.TakeOrder.ID
		}
		assert.Equal(t, w, ids, "round %d", i)
	}
}

func TestAddOrderRejectsSelfPair(t *testing.T) {
	m := newTestManager()
	// sell == buy: order has no tradeable pair, AddOrder succeeds with zero pairs.
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSame, addrSame, 1, 2)
	err := m.AddOrder(context.Background(), sg)
	require.NoError(t, err)

	md := m.GetCurrentMetadata()
	assert.Equal(t, 1, md.TotalOrders)
	assert.Equal(t, 0, md.TotalPairs)
}

func TestResetLimitsKeepsAdminOverridesSticky(t *testing.T) {
	m := New(Config{DefaultOwnerLimit: 3, OwnerLimits: map[string]uint32{"0xowner1": 99}})
	sg := sgOrder(t, "0xOB", "0xOwner1", "0xHash1", addrSell, addrBuy, 1, 2)
	require.NoError(t, m.AddOrder(context.Background(), sg))

	m.ResetLimits()

	prof, ok := m.ownerProfile("0xob", "0xowner1", false)
	require.True(t, ok)
	assert.Equal(t, uint32(99), prof.Limit)
}

func TestDownscaleBucketThresholds(t *testing.T) {
	assert.Equal(t, 4, downscaleBucket(10))
	assert.Equal(t, 3, downscaleBucket(30))
	assert.Equal(t, 2, downscaleBucket(60))
	assert.Equal(t, 1, downscaleBucket(90))
}
