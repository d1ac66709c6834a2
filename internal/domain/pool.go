package domain

// Pool is a protocol liquidity pool: an ordered set of member tokens,
// their custodies, and the markets the pool backs.
// Immutable after catalog load.
type Pool struct {
	ID           string // base58 pool account address
	Name         string
	Tokens       []Token   // member tokens, protocol order preserved
	Custodies    []Custody // one per member token
	Markets      []Market
	LookupTables []string // base58 address lookup table accounts
	AUMUsd       uint64   // pool assets under management, 1e6 scaled USD
}

// HasToken reports whether mint is a member of the pool.
func (p Pool) HasToken(mint string) bool {
	for _, t := range p.Tokens {
		if t.Mint == mint {
			return true
		}
	}
	return false
}

// CustodyForMint returns the custody holding mint, if any.
func (p Pool) CustodyForMint(mint string) (Custody, bool) {
	for _, c := range p.Custodies {
		if c.Mint == mint {
			return c, true
		}
	}
	return Custody{}, false
}
