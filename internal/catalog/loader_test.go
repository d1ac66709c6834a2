package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/mr-tron/base58"

	"solana-perp-engine/internal/domain"
)

const (
	mintSOL  = "So11111111111111111111111111111111111111112"
	mintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// key builds a deterministic valid base58 32-byte account key.
func key(b byte) string {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return base58.Encode(k[:])
}

func validConfig() Config {
	return Config{
		Tokens: []TokenConfig{
			{Symbol: "SOL", Mint: mintSOL, Decimals: 9, FeedID: "feed-sol"},
			{Symbol: "USDC", Mint: mintUSDC, Decimals: 6, FeedID: "feed-usdc"},
		},
		Pools: []PoolConfig{
			{
				ID:           key(1),
				Name:         "main",
				TokenSymbols: []string{"SOL", "USDC"},
				Custodies: []CustodyConfig{
					{Account: key(2), Mint: mintSOL, TokenAccount: key(3), OracleAccount: key(4), Owned: 1000, Locked: 100},
					{Account: key(5), Mint: mintUSDC, TokenAccount: key(6), OracleAccount: key(7), Owned: 5000, Locked: 0},
				},
				Markets: []MarketConfig{
					{Account: key(8), TargetMint: mintSOL, CollateralMint: mintSOL, Side: "long"},
					{Account: key(9), TargetMint: mintSOL, CollateralMint: mintUSDC, Side: "short"},
				},
				AUMUsd: 1_000_000_000_000,
			},
		},
	}
}

func TestBuild_Lookups(t *testing.T) {
	cat, err := Build(validConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sol, err := cat.Token("SOL")
	if err != nil {
		t.Fatalf("Token(SOL): %v", err)
	}
	if sol.Mint != mintSOL || sol.Decimals != 9 {
		t.Errorf("unexpected SOL token: %+v", sol)
	}

	byMint, err := cat.TokenByMint(mintUSDC)
	if err != nil {
		t.Fatalf("TokenByMint: %v", err)
	}
	if byMint.Symbol != "USDC" {
		t.Errorf("expected USDC, got %s", byMint.Symbol)
	}

	longs := cat.MarketsForTarget(mintSOL, domain.SideLong)
	if len(longs) != 1 {
		t.Fatalf("expected 1 long market, got %d", len(longs))
	}
	if longs[0].CollateralMint != mintSOL {
		t.Errorf("expected wrapped collateral, got %s", longs[0].CollateralMint)
	}

	pool, err := cat.PoolOwning(longs[0])
	if err != nil {
		t.Fatalf("PoolOwning: %v", err)
	}
	if pool.Name != "main" {
		t.Errorf("expected pool main, got %s", pool.Name)
	}

	custody, err := cat.Custody(pool.ID, mintSOL)
	if err != nil {
		t.Fatalf("Custody: %v", err)
	}
	if custody.Available() != 900 {
		t.Errorf("expected available 900, got %d", custody.Available())
	}
}

func TestBuild_MissingTokenIsSentinel(t *testing.T) {
	cat, err := Build(validConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := cat.Token("BONK"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestMarketsForTarget_AbsenceIsEmpty(t *testing.T) {
	cat, err := Build(validConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	markets := cat.MarketsForTarget(mintUSDC, domain.SideLong)
	if len(markets) != 0 {
		t.Errorf("expected no markets, got %d", len(markets))
	}
}

func TestBuild_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"duplicate symbol", func(c *Config) {
			c.Tokens = append(c.Tokens, TokenConfig{Symbol: "SOL", Mint: key(20), Decimals: 9})
		}},
		{"duplicate mint", func(c *Config) {
			c.Tokens = append(c.Tokens, TokenConfig{Symbol: "SOL2", Mint: mintSOL, Decimals: 9})
		}},
		{"malformed mint", func(c *Config) {
			c.Tokens[0].Mint = "not-base58-!!"
		}},
		{"short key", func(c *Config) {
			c.Pools[0].ID = base58.Encode([]byte{1, 2, 3})
		}},
		{"unknown pool token", func(c *Config) {
			c.Pools[0].TokenSymbols = append(c.Pools[0].TokenSymbols, "BONK")
		}},
		{"custody mint not a member", func(c *Config) {
			c.Pools[0].Custodies[0].Mint = key(21)
		}},
		{"market unknown target", func(c *Config) {
			c.Pools[0].Markets[0].TargetMint = key(22)
		}},
		{"market unknown collateral", func(c *Config) {
			c.Pools[0].Markets[0].CollateralMint = key(23)
		}},
		{"invalid side", func(c *Config) {
			c.Pools[0].Markets[0].Side = "sideways"
		}},
		{"empty symbol", func(c *Config) {
			c.Tokens[0].Symbol = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if _, err := Build(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_JSON(t *testing.T) {
	doc := `{
		"tokens": [
			{"symbol": "SOL", "mint": "` + mintSOL + `", "decimals": 9, "feedId": "feed-sol"},
			{"symbol": "USDC", "mint": "` + mintUSDC + `", "decimals": 6, "feedId": "feed-usdc"}
		],
		"pools": [{
			"id": "` + key(1) + `",
			"name": "main",
			"tokens": ["SOL", "USDC"],
			"custodies": [
				{"account": "` + key(2) + `", "mint": "` + mintSOL + `", "tokenAccount": "` + key(3) + `", "oracleAccount": "` + key(4) + `"}
			],
			"markets": [
				{"account": "` + key(8) + `", "targetMint": "` + mintSOL + `", "collateralMint": "` + mintUSDC + `", "side": "short"}
			]
		}]
	}`

	cat, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cat.Pools()) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(cat.Pools()))
	}
	if len(cat.MarketsForTarget(mintSOL, domain.SideShort)) != 1 {
		t.Error("expected short SOL market after load")
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	if _, err := Load(strings.NewReader("{not json")); err == nil {
		t.Error("expected decode error, got nil")
	}
}
