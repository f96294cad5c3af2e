package ordertype

import "math/big"

// SubgraphIO is one entry of an indexer record's validInputs/validOutputs:
// decimals and a packed-float balance hint are optional, filled in only when
// the upstream indexer already resolved them.
type SubgraphIO struct {
	Token        string
	Decimals     *uint8
	VaultID      string
	PackedFloat  string // optional opaque balance hint, protocol float format
}

// SubgraphOrder is the indexer's record of an order: enough to decode it
// (Bytes + VersionHint) and enough to drive pair-map deletion without
// re-decoding (ValidInputs/ValidOutputs) -- see spec.md §9 Open Question 1:
// removal intentionally drives off this record's cross product, not the
// stored Pair's actual pairing.
type SubgraphOrder struct {
	Orderbook    string
	Hash         string
	Owner        string
	Active       bool
	Bytes        []byte
	VersionHint  OrderVersion
	ValidInputs  []SubgraphIO
	ValidOutputs []SubgraphIO
}

// VaultBalanceChange is a Deposit/Withdrawal event, or one leg of a Clear/
// TakeOrder trade: it carries the vault's new absolute balance, not a delta.
type VaultBalanceChange struct {
	Orderbook string
	Owner     string
	Token     string
	Decimals  uint8
	VaultID   string
	NewBalance *big.Int
}
