package domain

// Token is a catalog-registered SPL token.
// Immutable after catalog load.
type Token struct {
	Symbol   string // unique within the catalog
	Mint     string // base58 mint address
	Decimals uint8  // native unit precision
	FeedID   string // oracle price feed identifier
}

// Custody is a per-pool per-token protocol account holding
// balance and risk parameters for that token.
type Custody struct {
	Account       string // base58 custody account address
	Mint          string // token mint this custody holds
	TokenAccount  string // base58 token vault address
	OracleAccount string // base58 oracle account address
	Owned         uint64 // native units owned by the pool
	Locked        uint64 // native units locked against positions
}

// Available returns the custody balance not locked against positions.
func (c Custody) Available() uint64 {
	if c.Locked >= c.Owned {
		return 0
	}
	return c.Owned - c.Locked
}
