// Package ordermanager implements the Order Manager (C4) and Downscale
// Protection (C5): the single-writer owner of all live order/vault/owner
// state, the round scheduler, and the periodic per-owner limit recompute.
package ordermanager

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/rainsolver/solver/internal/decode"
	"github.com/rainsolver/solver/internal/ordertype"
	"github.com/rainsolver/solver/internal/pairindex"
	"github.com/rainsolver/solver/pkg/observability"
)

// DefaultOwnerLimit is the round-budget every owner starts with, absent an
// admin override (spec.md §4.4 DEFAULT_OWNER_LIMIT).
const DefaultOwnerLimit uint32 = 25

// TokenInfoReader resolves a token's symbol/decimals on-chain, the third
// rung of add_order's three-level lookup (watched cache -> subgraph record
// -> on-chain call).
type TokenInfoReader interface {
	ERC20Symbol(ctx context.Context, token string) (string, error)
	ERC20Decimals(ctx context.Context, token string) (uint8, error)
}

// ERC20BalanceReader backs the Downscale Protection pass's orderbook vault
// balance reads.
type ERC20BalanceReader interface {
	ERC20BalanceOf(ctx context.Context, token, holder string) (*big.Int, error)
}

// OrderQuoter backs QuoteOrder's on-chain Orderbook.quote2 read.
type OrderQuoter interface {
	Quote2(ctx context.Context, orderbook string, t ordertype.TakeOrderStruct, block *uint64) (exists bool, maxOutput, ratio *big.Int, err error)
}

// Manager owns owners_map, oi_pair_map, io_pair_map and vault_map. It is
// single-writer: every exported method is expected to be called from the
// one reactor goroutine (spec.md §5); the internal mutex exists to make
// concurrent *reads* of round-scheduler output safe against a rare
// out-of-band caller, not to arbitrate concurrent writers.
type Manager struct {
	mu sync.Mutex

	logger *observability.Logger

	owners *ordertype.OrderedMap // orderbook -> *ordertype.OrderedMap(owner -> *OwnerProfile)

	oiIndex *pairindex.Index // sell_token(output) -> buy_token(input)
	ioIndex *pairindex.Index // buy_token(input) -> sell_token(output), mirrored

	vaults map[string]map[string]map[string]map[string]*ordertype.Vault // ob->owner->token->vaultID->Vault

	watchedTokens map[string]ordertype.Token

	ownerLimitOverrides map[string]uint32 // owner(lowercase) -> limit
	defaultOwnerLimit   uint32

	tokenInfo    TokenInfoReader
	balances     ERC20BalanceReader
	quoter       OrderQuoter
	baseTokens   map[string]bool
}

// Config configures a new Manager.
type Config struct {
	Logger            *observability.Logger
	TokenInfo         TokenInfoReader
	Balances          ERC20BalanceReader
	Quoter            OrderQuoter
	OwnerLimits       map[string]uint32
	DefaultOwnerLimit uint32
	BaseTokens        []string
}

// New constructs an empty Manager.
func New(cfg Config) *Manager {
	if cfg.DefaultOwnerLimit == 0 {
		cfg.DefaultOwnerLimit = DefaultOwnerLimit
	}
	overrides := make(map[string]uint32, len(cfg.OwnerLimits))
	for k, v := range cfg.OwnerLimits {
		overrides[ordertype.Lower(k)] = v
	}
	baseTokens := make(map[string]bool, len(cfg.BaseTokens))
	for _, t := range cfg.BaseTokens {
		baseTokens[ordertype.Lower(t)] = true
	}
	return &Manager{
		logger:              cfg.Logger,
		owners:              ordertype.NewOrderedMap(),
		oiIndex:             pairindex.New(),
		ioIndex:             pairindex.New(),
		vaults:              make(map[string]map[string]map[string]map[string]*ordertype.Vault),
		watchedTokens:       make(map[string]ordertype.Token),
		ownerLimitOverrides: overrides,
		defaultOwnerLimit:   cfg.DefaultOwnerLimit,
		tokenInfo:           cfg.TokenInfo,
		balances:            cfg.Balances,
		quoter:              cfg.Quoter,
		baseTokens:          baseTokens,
	}
}

func (m *Manager) ownerLimit(owner string) uint32 {
	if l, ok := m.ownerLimitOverrides[owner]; ok {
		return l
	}
	return m.defaultOwnerLimit
}

func (m *Manager) ownersForOrderbook(orderbook string) *ordertype.OrderedMap {
	if v, ok := m.owners.Get(orderbook); ok {
		return v.(*ordertype.OrderedMap)
	}
	om := ordertype.NewOrderedMap()
	m.owners.Set(orderbook, om)
	return om
}

func (m *Manager) ownerProfile(orderbook, owner string, createIfMissing bool) (*ordertype.OwnerProfile, bool) {
	ownersInBook := m.ownersForOrderbook(orderbook)
	if v, ok := ownersInBook.Get(owner); ok {
		return v.(*ordertype.OwnerProfile), true
	}
	if !createIfMissing {
		return nil, false
	}
	prof := ordertype.NewOwnerProfile(m.ownerLimit(owner))
	ownersInBook.Set(owner, prof)
	return prof, false
}

// resolveToken implements the three-level lookup: watched cache -> subgraph
// record -> on-chain symbol()/decimals().
func (m *Manager) resolveToken(ctx context.Context, token string, sg ordertype.SubgraphIO) (ordertype.Token, error) {
	token = ordertype.Lower(token)
	if t, ok := m.watchedTokens[token]; ok {
		return t, nil
	}
	if sg.Decimals != nil {
		t := ordertype.Token{Address: token, Decimals: *sg.Decimals, Symbol: fmt.Sprintf("TOKEN-%s", token[:minInt(8, len(token))])}
		m.watchedTokens[token] = t
		return t, nil
	}
	if m.tokenInfo == nil {
		return ordertype.Token{}, fmt.Errorf("undefined decimals for %s: no token info reader configured", token)
	}
	decimals, err := m.tokenInfo.ERC20Decimals(ctx, token)
	if err != nil {
		return ordertype.Token{}, fmt.Errorf("undefined decimals for %s: %w", token, err)
	}
	symbol, err := m.tokenInfo.ERC20Symbol(ctx, token)
	if err != nil {
		symbol = token
	}
	t := ordertype.Token{Address: token, Symbol: symbol, Decimals: decimals}
	m.watchedTokens[token] = t
	return t, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ensureVault makes sure the (orderbook, owner, token, vaultID) vault exists
// in vault_map, per invariant 4: a vault referenced by any Pair must exist.
// It is never removed once created.
func (m *Manager) ensureVault(orderbook, owner string, token ordertype.Token, vaultID *big.Int) {
	orderbook, owner = ordertype.Lower(orderbook), ordertype.Lower(owner)
	byOwner, ok := m.vaults[orderbook]
	if !ok {
		byOwner = make(map[string]map[string]map[string]*ordertype.Vault)
		m.vaults[orderbook] = byOwner
	}
	byToken, ok := byOwner[owner]
	if !ok {
		byToken = make(map[string]map[string]*ordertype.Vault)
		byOwner[owner] = byToken
	}
	byVault, ok := byToken[token.Address]
	if !ok {
		byVault = make(map[string]*ordertype.Vault)
		byToken[token.Address] = byVault
	}
	key := vaultID.String()
	if _, ok := byVault[key]; !ok {
		byVault[key] = &ordertype.Vault{ID: new(big.Int).Set(vaultID), Token: token, Balance: big.NewInt(0)}
	}
}

func (m *Manager) vaultBalance(orderbook, owner, token, vaultID string) *big.Int {
	orderbook, owner, token = ordertype.Lower(orderbook), ordertype.Lower(owner), ordertype.Lower(token)
	if byOwner, ok := m.vaults[orderbook]; ok {
		if byToken, ok := byOwner[owner]; ok {
			if byVault, ok := byToken[token]; ok {
				if v, ok := byVault[vaultID]; ok {
					return v.Balance
				}
			}
		}
	}
	return big.NewInt(0)
}

// AddOrder decodes sg.Bytes, fans it out into Pairs, and inserts them into
// every index. Re-adding an already-present hash flips Active=true without
// duplicating pairs (idempotent).
func (m *Manager) AddOrder(ctx context.Context, sg ordertype.SubgraphOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	orderbook := ordertype.Lower(sg.Orderbook)
	owner := ordertype.Lower(sg.Owner)
	hash := ordertype.Lower(sg.Hash)
	m.oiIndex.EnsureOrderbook(orderbook)
	m.ioIndex.EnsureOrderbook(orderbook)

	profile, existed := m.ownerProfile(orderbook, owner, true)
	if existed {
		if existing, ok := profile.Orders.Get(hash); ok {
			existing.(*ordertype.OrderProfile).Active = true
			return nil
		}
	}

	order, err := decode.TryFromBytes(sg.Bytes, sg.VersionHint)
	if err != nil {
		return newAddError(ErrDecodeFailed, hash, err)
	}
	order.Owner = owner

	pairs, err := ordertype.BuildPairs(orderbook, hash, order)
	if err != nil {
		return newAddError(ErrDecodeFailed, hash, err)
	}

	// Resolve token info and vault balances for every pair, then insert.
	ioByToken := indexSubgraphIO(sg)
	for _, p := range pairs {
		sellIO, buyIO := ioByToken[p.SellToken], ioByToken[p.BuyToken]
		if order.Version == ordertype.OrderVersionV3 {
			// A V3 IO carries its own decimals; use them where the record has none.
			if sellIO.Decimals == nil {
				d := order.ValidOutputsV3[p.TakeOrder.Struct.OutputIOIndex].Decimals
				sellIO.Decimals = &d
			}
			if buyIO.Decimals == nil {
				d := order.ValidInputsV3[p.TakeOrder.Struct.InputIOIndex].Decimals
				buyIO.Decimals = &d
			}
		}
		sellToken, err := m.resolveToken(ctx, p.SellToken, sellIO)
		if err != nil {
			return newAddError(ErrUndefinedDecimals, hash, err)
		}
		buyToken, err := m.resolveToken(ctx, p.BuyToken, buyIO)
		if err != nil {
			return newAddError(ErrUndefinedDecimals, hash, err)
		}
		p.SellSymbol, p.SellDecimals = sellToken.Symbol, sellToken.Decimals
		p.BuySymbol, p.BuyDecimals = buyToken.Symbol, buyToken.Decimals

		sellVaultID := ioByToken[p.SellToken].VaultID
		buyVaultID := ioByToken[p.BuyToken].VaultID
		if sellVaultID != "" {
			if vid, ok := new(big.Int).SetString(sellVaultID, 0); ok {
				m.ensureVault(orderbook, owner, sellToken, vid)
				p.SellVaultBalance = m.vaultBalance(orderbook, owner, sellToken.Address, vid.String())
			}
		}
		if buyVaultID != "" {
			if vid, ok := new(big.Int).SetString(buyVaultID, 0); ok {
				m.ensureVault(orderbook, owner, buyToken, vid)
				p.BuyVaultBalance = m.vaultBalance(orderbook, owner, buyToken.Address, vid.String())
			}
		}

		m.oiIndex.Add(orderbook, hash, p.SellToken, p.BuyToken, p)
		m.ioIndex.Add(orderbook, hash, p.BuyToken, p.SellToken, p)
	}

	profile.Orders.Set(hash, &ordertype.OrderProfile{Active: true, Order: order, TakeOrders: pairs})
	return nil
}

// indexSubgraphIO builds a token-address -> SubgraphIO lookup so AddOrder can
// recover the vault id / decimals hint the record supplied for each token.
// Out/Input duplicates (rare: an order with two vaults of the same token)
// resolve to the last one seen, matching a simple map build.
func indexSubgraphIO(sg ordertype.SubgraphOrder) map[string]ordertype.SubgraphIO {
	out := make(map[string]ordertype.SubgraphIO, len(sg.ValidInputs)+len(sg.ValidOutputs))
	for _, io := range sg.ValidInputs {
		out[ordertype.Lower(io.Token)] = io
	}
	for _, io := range sg.ValidOutputs {
		out[ordertype.Lower(io.Token)] = io
	}
	return out
}

// RemoveOrders deletes the given orders from owners_map and, for each
// input x output row *of the subgraph record* (spec.md §9 Open Question 1:
// intentionally the record's cross product, not the stored Pair's actual
// pairing), from both pair maps. Unknown orders are ignored.
func (m *Manager) RemoveOrders(ctx context.Context, sgs []ordertype.SubgraphOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sg := range sgs {
		orderbook := ordertype.Lower(sg.Orderbook)
		owner := ordertype.Lower(sg.Owner)
		hash := ordertype.Lower(sg.Hash)

		profile, ok := m.ownerProfile(orderbook, owner, false)
		if !ok {
			continue
		}
		if _, ok := profile.Orders.Get(hash); !ok {
			continue
		}
		profile.Orders.Delete(hash)

		for _, out := range sg.ValidOutputs {
			for _, in := range sg.ValidInputs {
				sellToken, buyToken := ordertype.Lower(out.Token), ordertype.Lower(in.Token)
				if sellToken == buyToken {
					continue
				}
				m.oiIndex.Remove(orderbook, hash, sellToken, buyToken)
				m.ioIndex.Remove(orderbook, hash, buyToken, sellToken)
			}
		}
	}
}

// SetVaultBalance sets a vault's absolute balance (never a delta), creating
// the vault if this is the first time it is observed. It implements the
// Deposit/Withdrawal/Clear/TakeOrder leg of the Sync Loop (C6, spec.md §4.6).
func (m *Manager) SetVaultBalance(ctx context.Context, orderbook, owner, token, vaultID string, balance *big.Int, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orderbook, owner, token = ordertype.Lower(orderbook), ordertype.Lower(owner), ordertype.Lower(token)
	tok := ordertype.Token{Address: token, Decimals: decimals}
	if cached, ok := m.watchedTokens[token]; ok {
		tok = cached
	}
	vid, ok := new(big.Int).SetString(vaultID, 0)
	if !ok {
		return
	}
	m.ensureVault(orderbook, owner, tok, vid)
	m.vaults[orderbook][owner][token][vid.String()].Balance = new(big.Int).Set(balance)
}

// ResetLimits sets every owner's limit to the default, except owners listed
// in the admin overrides (sticky across resets -- spec.md E4).
func (m *Manager) ResetLimits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLimitsLocked()
}

func (m *Manager) resetLimitsLocked() {
	for _, orderbook := range m.owners.Keys() {
		ownersInBook, _ := m.owners.Get(orderbook)
		om := ownersInBook.(*ordertype.OrderedMap)
		for _, owner := range om.Keys() {
			v, _ := om.Get(owner)
			prof := v.(*ordertype.OwnerProfile)
			prof.Limit = m.ownerLimit(owner)
		}
	}
}

// GetNextRoundOrders returns the flat list of Pairs to simulate this round,
// per the rotation algorithm of spec.md §4.4.1.
func (m *Manager) GetNextRoundOrders() []*ordertype.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ordertype.Pair
	for _, orderbook := range m.owners.Keys() {
		ownersInBook, _ := m.owners.Get(orderbook)
		om := ownersInBook.(*ordertype.OrderedMap)
		for _, owner := range om.Keys() {
			v, _ := om.Get(owner)
			prof := v.(*ordertype.OwnerProfile)
			out = append(out, nextSliceForOwner(prof)...)
		}
	}
	return out
}

// nextSliceForOwner implements the per-owner rotation of spec.md §4.4.1,
// reproducing the last_index %= max(N,1) clamp from §9 Open Question 3.
func nextSliceForOwner(prof *ordertype.OwnerProfile) []*ordertype.Pair {
	pairs := prof.FlattenedPairs()
	n := len(pairs)
	if n == 0 {
		return nil
	}
	limit := int(prof.Limit)
	if limit < 1 {
		limit = 1
	}
	idx := int(prof.LastIndex) % n

	end := idx + limit
	if end <= n {
		result := append([]*ordertype.Pair(nil), pairs[idx:end]...)
		prof.LastIndex = uint32(end % n)
		return result
	}

	taken := n - idx
	result := append([]*ordertype.Pair(nil), pairs[idx:n]...)
	remaining := limit - taken
	if remaining > n {
		remaining = n
	}
	result = append(result, pairs[0:remaining]...)
	prof.LastIndex = uint32(remaining)
	return result
}

// QuoteOrder populates pair.TakeOrder.Quote via the on-chain quote2 read.
// The *ordertype.Pair pointer is shared across owners_map/oi_pair_map/
// io_pair_map, so this single write is observed through every index
// (spec.md invariant 2).
func (m *Manager) QuoteOrder(ctx context.Context, pair *ordertype.Pair, block *uint64) error {
	if m.quoter == nil {
		return fmt.Errorf("ordermanager: no quoter configured")
	}
	exists, maxOutput, ratio, err := m.quoter.Quote2(ctx, pair.Orderbook, pair.TakeOrder.Struct, block)
	if err != nil {
		return fmt.Errorf("ordermanager: quote2 failed: %w", err)
	}
	if !exists {
		pair.TakeOrder.Quote = nil
		return nil
	}
	pair.TakeOrder.Quote = &ordertype.Quote{MaxOutput: maxOutput, Ratio: ratio}
	return nil
}

// GetCounterpartyOrders delegates to the Pair Index: opposing orders sell
// what pair buys and buy what pair sells, so the lookup key is swapped.
func (m *Manager) GetCounterpartyOrders(pair *ordertype.Pair, source pairindex.Source) [][]*ordertype.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oiIndex.SortedList(pair.Orderbook, pair.BuyToken, pair.SellToken, source)
}

// GetCounterpartyOrdersAgainstBaseTokens enumerates intermediary tokens
// reachable from pair.BuyToken and returns the sorted intra list of
// counterparties hopping through each, per spec.md §4.9.
func (m *Manager) GetCounterpartyOrdersAgainstBaseTokens(pair *ordertype.Pair) map[string][]*ordertype.Pair {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]*ordertype.Pair)
	inputTokens := m.oiIndex.InputKeysForOutput(pair.Orderbook, pair.BuyToken)
	for _, t := range inputTokens {
		if t == pair.SellToken {
			continue
		}
		if !m.baseTokens[t] {
			continue
		}
		lists := m.oiIndex.SortedList(pair.Orderbook, pair.BuyToken, t, pairindex.IntraOrderbook)
		if len(lists) > 0 {
			out[t] = lists[0]
		}
	}
	return out
}

// Metadata is the derived-scan summary returned by GetCurrentMetadata.
type Metadata struct {
	TotalOrders        int
	TotalOwners        int
	TotalPairs         int
	TotalDistinctPairs int
}

// GetCurrentMetadata scans owners_map and returns aggregate counters.
func (m *Manager) GetCurrentMetadata() Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	var md Metadata
	distinct := make(map[string]bool)
	for _, orderbook := range m.owners.Keys() {
		ownersInBook, _ := m.owners.Get(orderbook)
		om := ownersInBook.(*ordertype.OrderedMap)
		md.TotalOwners += om.Len()
		for _, owner := range om.Keys() {
			v, _ := om.Get(owner)
			prof := v.(*ordertype.OwnerProfile)
			for _, hash := range prof.Orders.Keys() {
				op, _ := prof.Orders.Get(hash)
				orderProfile := op.(*ordertype.OrderProfile)
				if !orderProfile.Active {
					continue
				}
				md.TotalOrders++
				md.TotalPairs += len(orderProfile.TakeOrders)
				for _, p := range orderProfile.TakeOrders {
					distinct[p.SellToken+"|"+p.BuyToken] = true
				}
			}
		}
	}
	md.TotalDistinctPairs = len(distinct)
	return md
}

// downscaleBucket returns the divisor for a given concentration ratio
// percentage, per the thresholds of spec.md §4.5.
func downscaleBucket(ratioPct float64) int {
	switch {
	case ratioPct < 25:
		return 4
	case ratioPct < 50:
		return 3
	case ratioPct < 75:
		return 2
	default:
		return 1
	}
}

// DownscaleProtection recomputes per-owner round limits based on each
// owner's share of orderbook liquidity per token (C5, spec.md §4.5).
// RPC failures are swallowed: the worst case is no adjustment this cycle.
func (m *Manager) DownscaleProtection(ctx context.Context, reset bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reset {
		m.resetLimitsLocked()
	}
	if m.balances == nil {
		return
	}

	type obBalanceKey struct{ orderbook, token string }
	obBalanceCache := make(map[obBalanceKey]*big.Int)

	divisors := make(map[string][]int) // "orderbook|owner" -> divisors

	for orderbook, byOwner := range m.vaults {
		for owner, byToken := range byOwner {
			if _, overridden := m.ownerLimitOverrides[owner]; overridden {
				continue
			}
			for token, byVault := range byToken {
				key := obBalanceKey{orderbook, token}
				obBalance, cached := obBalanceCache[key]
				if !cached {
					var err error
					obBalance, err = m.balances.ERC20BalanceOf(ctx, token, orderbook)
					if err != nil {
						if m.logger != nil {
							m.logger.Warn(ctx, "downscale: skipping token on RPC failure", map[string]interface{}{
								"orderbook": orderbook, "token": token, "error": err.Error(),
							})
						}
						obBalanceCache[key] = nil
						continue
					}
					obBalanceCache[key] = obBalance
				}
				if obBalance == nil {
					continue
				}

				ownerTotal := big.NewInt(0)
				nVaults := 0
				for _, vault := range byVault {
					ownerTotal.Add(ownerTotal, vault.Balance)
					nVaults++
				}
				if nVaults == 0 {
					continue
				}
				avg := new(big.Int).Div(ownerTotal, big.NewInt(int64(nVaults)))
				otherTotal := new(big.Int).Sub(obBalance, ownerTotal)

				var ratioPct float64
				if otherTotal.Sign() == 0 {
					ratioPct = 100
				} else {
					num := new(big.Int).Mul(avg, big.NewInt(100))
					ratioBig := new(big.Int).Div(num, otherTotal)
					ratioPct, _ = new(big.Float).SetInt(ratioBig).Float64()
				}

				k := orderbook + "|" + owner
				divisors[k] = append(divisors[k], downscaleBucket(ratioPct))
			}
		}
	}

	for key, ds := range divisors {
		var sum int
		for _, d := range ds {
			sum += d
		}
		avgDivisor := float64(sum) / float64(len(ds))

		var orderbook, owner string
		for i := 0; i < len(key); i++ {
			if key[i] == '|' {
				orderbook, owner = key[:i], key[i+1:]
				break
			}
		}
		prof, ok := m.ownerProfile(orderbook, owner, false)
		if !ok {
			continue
		}
		newLimit := uint32(math.Max(1, math.Round(float64(prof.Limit)/avgDivisor)))
		prof.Limit = newLimit
	}
}
