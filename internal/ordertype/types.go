// Package ordertype defines the solver's in-memory data model: tokens,
// vaults, orders (V3/V5), and the Pair the Order Manager schedules rounds
// over. All identifiers are normalized to lowercase on construction, and all
// monetary integers are treated as unsigned 256-bit (math/big.Int never goes
// negative in this package).
package ordertype

import (
	"fmt"
	"math/big"
	"strings"
)

// Lower lowercases an address/hash the way every identifier in the solver's
// state is normalized on ingest.
func Lower(s string) string {
	return strings.ToLower(s)
}

// Token is interned per-process in a watched-tokens table.
type Token struct {
	Address  string
	Symbol   string
	Decimals uint8
}

// Vault is identified by (orderbook, owner, token.address, id) and is never
// removed from the vault map once observed; Balance is overwritten on each
// sync event and stored in the token's native decimals.
type Vault struct {
	ID      *big.Int
	Token   Token
	Balance *big.Int
}

// OrderVersion distinguishes the ABI shape an order was decoded from.
type OrderVersion uint8

const (
	OrderVersionV3 OrderVersion = iota + 1
	OrderVersionV5
)

// Evaluable is the interpreter/store/bytecode triple every order carries.
type Evaluable struct {
	Interpreter string
	Store       string
	Bytecode    []byte
}

// IOV3 is one entry of a V3 order's valid_inputs/valid_outputs: decimals are
// carried on the order itself.
type IOV3 struct {
	Token    string
	Decimals uint8
	VaultID  *big.Int
}

// IOV5 is one entry of a V5 order's valid_inputs/valid_outputs: the vault id
// is a bytes32 and decimals are resolved from the token registry, not carried
// on the order.
type IOV5 struct {
	Token   string
	VaultID [32]byte
}

// Order is the tagged V3/V5 union produced by the decoder (C2).
type Order struct {
	Version      OrderVersion
	Owner        string
	Nonce        [32]byte
	Evaluable    Evaluable
	ValidInputsV3  []IOV3
	ValidOutputsV3 []IOV3
	ValidInputsV5  []IOV5
	ValidOutputsV5 []IOV5
}

// IOCount returns (numInputs, numOutputs) regardless of version.
func (o Order) IOCount() (int, int) {
	if o.Version == OrderVersionV5 {
		return len(o.ValidInputsV5), len(o.ValidOutputsV5)
	}
	return len(o.ValidInputsV3), len(o.ValidOutputsV3)
}

// inputToken and outputToken return the lowercase token address at the given
// input/output index.
func (o Order) inputToken(i int) string {
	if o.Version == OrderVersionV5 {
		return o.ValidInputsV5[i].Token
	}
	return o.ValidInputsV3[i].Token
}

func (o Order) outputToken(i int) string {
	if o.Version == OrderVersionV5 {
		return o.ValidOutputsV5[i].Token
	}
	return o.ValidOutputsV3[i].Token
}

// Quote is the result of querying Orderbook.quote2 for a TakeOrderDetails.
type Quote struct {
	MaxOutput *big.Int
	Ratio     *big.Int // 18-decimal
}

// SignedContext mirrors the ABI SignedContext[] array carried alongside a
// take-order struct; its internals are opaque to the solver core.
type SignedContext struct {
	Signer    string
	Context   []*big.Int
	Signature []byte
}

// TakeOrderStruct is the calldata-shaped struct embedded in a TakeOrdersConfig.
type TakeOrderStruct struct {
	Order           Order
	InputIOIndex    uint32
	OutputIOIndex   uint32
	SignedContext   []SignedContext
}

// TakeOrderDetails is what C8 needs to build a takeOrders call for one Pair.
type TakeOrderDetails struct {
	ID     string // orderhash, lowercase
	Struct TakeOrderStruct
	Quote  *Quote
}

// Pair is the atomic unit the solver trades on: one (sell_token, buy_token)
// row of a specific order's input x output cross product. Naming follows the
// order's own perspective: SellToken is the order's valid_output (what the
// order pays away), BuyToken is the order's valid_input (what the order
// wants back) -- so when the solver takes the order, the solver receives
// SellToken and gives BuyToken.
type Pair struct {
	Orderbook       string
	BuyToken        string
	BuySymbol       string
	BuyDecimals     uint8
	BuyVaultBalance *big.Int
	SellToken       string
	SellSymbol      string
	SellDecimals    uint8
	SellVaultBalance *big.Int
	TakeOrder       *TakeOrderDetails
}

// OrderProfile wraps a decoded order with its liveness flag and the fanned
// out set of tradeable Pairs.
type OrderProfile struct {
	Active     bool
	Order      Order
	TakeOrders []*Pair
}

// OwnerProfile is the per-owner anti-spam budget and the ordered set of that
// owner's orders; iteration order is insertion order, matching owners_map's
// own iteration guarantee.
type OwnerProfile struct {
	Limit     uint32
	LastIndex uint32
	Orders    *OrderedMap
}

// NewOwnerProfile builds an OwnerProfile with the given limit.
func NewOwnerProfile(limit uint32) *OwnerProfile {
	return &OwnerProfile{Limit: limit, Orders: NewOrderedMap()}
}

// FlattenedPairs returns every Pair across every order of this owner, in
// insertion order of (order, then take_orders slice order) -- the sequence
// the round scheduler slices over.
func (op *OwnerProfile) FlattenedPairs() []*Pair {
	var out []*Pair
	for _, hash := range op.Orders.Keys() {
		prof, _ := op.Orders.Get(hash)
		op2 := prof.(*OrderProfile)
		if !op2.Active {
			continue
		}
		out = append(out, op2.TakeOrders...)
	}
	return out
}

// BuildPairs computes the input x output cross product for an order,
// eliding same-token rows, in the deterministic (out, in) order spec.md's E2
// requires: outer loop over outputs, inner loop over inputs.
func BuildPairs(orderbook, hash string, order Order) ([]*Pair, error) {
	numIn, numOut := order.IOCount()
	if numIn == 0 || numOut == 0 {
		return nil, fmt.Errorf("ordertype: order %s has no inputs or outputs", hash)
	}
	var pairs []*Pair
	for outIdx := 0; outIdx < numOut; outIdx++ {
		sellToken := order.outputToken(outIdx)
		for inIdx := 0; inIdx < numIn; inIdx++ {
			buyToken := order.inputToken(inIdx)
			if sellToken == buyToken {
				continue
			}
			var sellDec, buyDec uint8
			if order.Version == OrderVersionV3 {
				sellDec = order.ValidOutputsV3[outIdx].Decimals
				buyDec = order.ValidInputsV3[inIdx].Decimals
			}
			pairs = append(pairs, &Pair{
				Orderbook:   Lower(orderbook),
				BuyToken:    Lower(buyToken),
				BuyDecimals: buyDec,
				SellToken:   Lower(sellToken),
				SellDecimals: sellDec,
				TakeOrder: &TakeOrderDetails{
					ID: Lower(hash),
					Struct: TakeOrderStruct{
						Order:         order,
						InputIOIndex:  uint32(inIdx),
						OutputIOIndex: uint32(outIdx),
					},
				},
			})
		}
	}
	return pairs, nil
}
