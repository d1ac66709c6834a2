package domain

// Side is the trade direction of a perpetual position.
type Side string

// Trade side constants
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Market is one tradable (target, collateral, side) triple.
// Exactly one market exists per triple. Immutable after catalog load.
type Market struct {
	Account        string // base58 market account address
	TargetMint     string // mint of the token the position tracks
	CollateralMint string // mint deposited against the position
	Side           Side
	PoolID         string // owning pool account address
}
