// Package catalog provides the immutable registry of pools, tokens,
// markets and custodies the engine trades against. It is loaded once
// at process start and read-only thereafter, so concurrent readers
// never need locking.
package catalog

import (
	"errors"
	"fmt"

	"solana-perp-engine/internal/domain"
)

// Lookup errors
var (
	ErrTokenNotFound   = errors.New("token not found in catalog")
	ErrMarketNotFound  = errors.New("market not found in catalog")
	ErrPoolNotFound    = errors.New("pool not found in catalog")
	ErrCustodyNotFound = errors.New("custody not found in catalog")
)

// Catalog is the loaded registry. Construct via Load; zero value is unusable.
type Catalog struct {
	pools []domain.Pool

	tokensBySymbol map[string]domain.Token
	tokensByMint   map[string]domain.Token
	poolsByID      map[string]domain.Pool
	markets        []domain.Market
}

// Token resolves a token by its catalog symbol.
func (c *Catalog) Token(symbol string) (domain.Token, error) {
	t, ok := c.tokensBySymbol[symbol]
	if !ok {
		return domain.Token{}, fmt.Errorf("%w: symbol %q", ErrTokenNotFound, symbol)
	}
	return t, nil
}

// TokenByMint resolves a token by its mint address.
func (c *Catalog) TokenByMint(mint string) (domain.Token, error) {
	t, ok := c.tokensByMint[mint]
	if !ok {
		return domain.Token{}, fmt.Errorf("%w: mint %s", ErrTokenNotFound, mint)
	}
	return t, nil
}

// MarketsForTarget returns all markets whose target mint and side match.
// Returns an empty slice, never an error: absence of a market is a
// normal routing outcome.
func (c *Catalog) MarketsForTarget(targetMint string, side domain.Side) []domain.Market {
	var out []domain.Market
	for _, m := range c.markets {
		if m.TargetMint == targetMint && m.Side == side {
			out = append(out, m)
		}
	}
	return out
}

// PoolOwning returns the pool that owns the given market.
func (c *Catalog) PoolOwning(m domain.Market) (domain.Pool, error) {
	p, ok := c.poolsByID[m.PoolID]
	if !ok {
		return domain.Pool{}, fmt.Errorf("%w: pool %s for market %s", ErrPoolNotFound, m.PoolID, m.Account)
	}
	return p, nil
}

// Custody returns the custody record for mint within pool poolID.
func (c *Catalog) Custody(poolID, mint string) (domain.Custody, error) {
	p, ok := c.poolsByID[poolID]
	if !ok {
		return domain.Custody{}, fmt.Errorf("%w: pool %s", ErrPoolNotFound, poolID)
	}
	cu, ok := p.CustodyForMint(mint)
	if !ok {
		return domain.Custody{}, fmt.Errorf("%w: mint %s in pool %s", ErrCustodyNotFound, mint, poolID)
	}
	return cu, nil
}

// Pools returns all pools in catalog order.
func (c *Catalog) Pools() []domain.Pool {
	return c.pools
}

// Tokens returns all registered tokens, catalog order not guaranteed.
func (c *Catalog) Tokens() []domain.Token {
	out := make([]domain.Token, 0, len(c.tokensBySymbol))
	for _, t := range c.tokensBySymbol {
		out = append(out, t)
	}
	return out
}
