package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mr-tron/base58"

	"solana-perp-engine/internal/domain"
)

// Config is the static catalog document. One document describes the
// entire venue; it is never re-fetched mid-flow.
type Config struct {
	Tokens []TokenConfig `json:"tokens"`
	Pools  []PoolConfig  `json:"pools"`
}

// TokenConfig describes one registered token.
type TokenConfig struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint"`
	Decimals uint8  `json:"decimals"`
	FeedID   string `json:"feedId"`
}

// PoolConfig describes one pool, its custodies and markets.
type PoolConfig struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TokenSymbols []string        `json:"tokens"`
	Custodies    []CustodyConfig `json:"custodies"`
	Markets      []MarketConfig  `json:"markets"`
	LookupTables []string        `json:"lookupTables"`
	AUMUsd       uint64          `json:"aumUsd"`
}

// CustodyConfig describes one custody account.
type CustodyConfig struct {
	Account       string `json:"account"`
	Mint          string `json:"mint"`
	TokenAccount  string `json:"tokenAccount"`
	OracleAccount string `json:"oracleAccount"`
	Owned         uint64 `json:"owned"`
	Locked        uint64 `json:"locked"`
}

// MarketConfig describes one (target, collateral, side) market.
type MarketConfig struct {
	Account        string `json:"account"`
	TargetMint     string `json:"targetMint"`
	CollateralMint string `json:"collateralMint"`
	Side           string `json:"side"`
}

// LoadFile reads and validates a catalog document from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a catalog document from r.
// Invariants (unique symbols, well-formed keys, resolvable references)
// are checked here, once, so lookups never have to.
func Load(r io.Reader) (*Catalog, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode catalog config: %w", err)
	}
	return Build(cfg)
}

// Build validates cfg and constructs the registry.
func Build(cfg Config) (*Catalog, error) {
	c := &Catalog{
		tokensBySymbol: make(map[string]domain.Token, len(cfg.Tokens)),
		tokensByMint:   make(map[string]domain.Token, len(cfg.Tokens)),
		poolsByID:      make(map[string]domain.Pool, len(cfg.Pools)),
	}

	for _, tc := range cfg.Tokens {
		if tc.Symbol == "" {
			return nil, fmt.Errorf("token with mint %s has empty symbol", tc.Mint)
		}
		if err := validateAccountKey(tc.Mint); err != nil {
			return nil, fmt.Errorf("token %s: mint: %w", tc.Symbol, err)
		}
		if _, dup := c.tokensBySymbol[tc.Symbol]; dup {
			return nil, fmt.Errorf("duplicate token symbol %q", tc.Symbol)
		}
		if _, dup := c.tokensByMint[tc.Mint]; dup {
			return nil, fmt.Errorf("duplicate token mint %s", tc.Mint)
		}
		t := domain.Token{Symbol: tc.Symbol, Mint: tc.Mint, Decimals: tc.Decimals, FeedID: tc.FeedID}
		c.tokensBySymbol[tc.Symbol] = t
		c.tokensByMint[tc.Mint] = t
	}

	for _, pc := range cfg.Pools {
		if err := validateAccountKey(pc.ID); err != nil {
			return nil, fmt.Errorf("pool %s: id: %w", pc.Name, err)
		}
		if _, dup := c.poolsByID[pc.ID]; dup {
			return nil, fmt.Errorf("duplicate pool id %s", pc.ID)
		}

		pool := domain.Pool{
			ID:           pc.ID,
			Name:         pc.Name,
			LookupTables: pc.LookupTables,
			AUMUsd:       pc.AUMUsd,
		}

		for _, sym := range pc.TokenSymbols {
			t, ok := c.tokensBySymbol[sym]
			if !ok {
				return nil, fmt.Errorf("pool %s references unknown token %q", pc.Name, sym)
			}
			pool.Tokens = append(pool.Tokens, t)
		}

		for _, cc := range pc.Custodies {
			if err := validateAccountKey(cc.Account); err != nil {
				return nil, fmt.Errorf("pool %s: custody account: %w", pc.Name, err)
			}
			if !pool.HasToken(cc.Mint) {
				return nil, fmt.Errorf("pool %s: custody mint %s is not a pool member", pc.Name, cc.Mint)
			}
			pool.Custodies = append(pool.Custodies, domain.Custody{
				Account:       cc.Account,
				Mint:          cc.Mint,
				TokenAccount:  cc.TokenAccount,
				OracleAccount: cc.OracleAccount,
				Owned:         cc.Owned,
				Locked:        cc.Locked,
			})
		}

		for _, mc := range pc.Markets {
			if err := validateAccountKey(mc.Account); err != nil {
				return nil, fmt.Errorf("pool %s: market account: %w", pc.Name, err)
			}
			side := domain.Side(mc.Side)
			if !side.Valid() {
				return nil, fmt.Errorf("market %s: invalid side %q", mc.Account, mc.Side)
			}
			if _, ok := c.tokensByMint[mc.TargetMint]; !ok {
				return nil, fmt.Errorf("market %s references unknown target mint %s", mc.Account, mc.TargetMint)
			}
			if _, ok := c.tokensByMint[mc.CollateralMint]; !ok {
				return nil, fmt.Errorf("market %s references unknown collateral mint %s", mc.Account, mc.CollateralMint)
			}
			m := domain.Market{
				Account:        mc.Account,
				TargetMint:     mc.TargetMint,
				CollateralMint: mc.CollateralMint,
				Side:           side,
				PoolID:         pc.ID,
			}
			pool.Markets = append(pool.Markets, m)
			c.markets = append(c.markets, m)
		}

		c.pools = append(c.pools, pool)
		c.poolsByID[pc.ID] = pool
	}

	return c, nil
}

// validateAccountKey checks that key is a base58-encoded 32-byte value.
func validateAccountKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty account key")
	}
	raw, err := base58.Decode(key)
	if err != nil {
		return fmt.Errorf("decode account key %q: %w", key, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("account key %q: expected 32 bytes, got %d", key, len(raw))
	}
	return nil
}
