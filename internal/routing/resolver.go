// Package routing resolves a (input token, target token, side) request
// into the market, collateral and optional single-pool swap needed to
// execute it. Absence of a route is a value, never an error.
package routing

import (
	"fmt"

	"github.com/rs/zerolog"

	"solana-perp-engine/internal/catalog"
	"solana-perp-engine/internal/domain"
)

// Well-known mints used by the substitution rules.
const (
	// MintSOL is the native SOL marker mint.
	MintSOL = "So11111111111111111111111111111111111111112"
	// MintUSDC is the current USDC mint.
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// MintUSDCLegacy is the bridged USDC mint some callers still hold.
	MintUSDCLegacy = "A9mUU4qviSctJVPJdBJWkb28deg915LYJKrzQ19ji3FM"
)

// wrappedLongCollateral forces the collateral mint for long-side targets
// whose canonical market settles against the wrapped variant of the
// target instead of the default collateral. Single known pairing; the
// venue documents no general rule, so none is invented here.
var wrappedLongCollateral = map[string]string{
	MintSOL: MintSOL, // SOL longs post wrapped SOL, not the default stable
}

// legacyMintAlias maps deprecated target mints to their replacements.
// Applied once, only after the original target matched no market.
var legacyMintAlias = map[string]string{
	MintUSDCLegacy: MintUSDC,
}

// Resolver resolves trade routes against an immutable catalog.
type Resolver struct {
	cat *catalog.Catalog
	log zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cat *catalog.Catalog, log zerolog.Logger) *Resolver {
	return &Resolver{cat: cat, log: log.With().Str("component", "routing").Logger()}
}

// disabled is the single construction point for a dead route.
func disabled() domain.RouteDecision {
	return domain.RouteDecision{TradeDisabled: true}
}

// Resolve determines the route for trading input into a position on
// target. The returned decision must be checked for TradeDisabled
// before any transaction is built.
func (r *Resolver) Resolve(input, target domain.Token, side domain.Side) (domain.RouteDecision, error) {
	// 1. Wrapped-collateral forcing for long-side targets.
	forcedCollateral := ""
	if side == domain.SideLong {
		if mint, ok := wrappedLongCollateral[target.Mint]; ok {
			forcedCollateral = mint
		}
	}

	// 2. Market lookup, with one legacy-alias retry on miss.
	markets := r.cat.MarketsForTarget(target.Mint, side)
	if len(markets) == 0 {
		alias, ok := legacyMintAlias[target.Mint]
		if ok {
			markets = r.cat.MarketsForTarget(alias, side)
		}
		if len(markets) == 0 {
			r.log.Debug().
				Str("target", target.Symbol).
				Str("side", string(side)).
				Msg("no market for target, trade disabled")
			return disabled(), nil
		}
	}

	// 3. Prefer the market matching the forced collateral, else first.
	market := markets[0]
	if forcedCollateral != "" {
		found := false
		for _, m := range markets {
			if m.CollateralMint == forcedCollateral {
				market = m
				found = true
				break
			}
		}
		if !found {
			// The pairing demands a collateral no market provides.
			r.log.Debug().
				Str("target", target.Symbol).
				Str("collateral", forcedCollateral).
				Msg("forced collateral has no market, trade disabled")
			return disabled(), nil
		}
	}

	collateral, err := r.cat.TokenByMint(market.CollateralMint)
	if err != nil {
		return domain.RouteDecision{}, fmt.Errorf("resolve collateral token: %w", err)
	}

	// 4. No swap when the user already holds the collateral.
	if input.Mint == collateral.Mint {
		return domain.RouteDecision{Market: market, Collateral: collateral}, nil
	}

	// 5. Swap permitted only within the owning pool. Cross-pool swaps
	// are rejected explicitly, never attempted.
	pool, err := r.cat.PoolOwning(market)
	if err != nil {
		return domain.RouteDecision{}, fmt.Errorf("resolve owning pool: %w", err)
	}
	if !pool.HasToken(input.Mint) || !pool.HasToken(collateral.Mint) {
		r.log.Debug().
			Str("input", input.Symbol).
			Str("collateral", collateral.Symbol).
			Str("pool", pool.Name).
			Msg("swap leg not a pool member, trade disabled")
		return disabled(), nil
	}

	return domain.RouteDecision{
		Market:       market,
		Collateral:   collateral,
		SwapRequired: true,
		SwapPool:     &pool,
	}, nil
}
