package domain

import "errors"

// TradeRequest is a caller-supplied request to open a leveraged position.
// Amounts are in native units of the input token.
type TradeRequest struct {
	Side             Side
	InputSymbol      string // token the user holds
	TargetSymbol     string // token the position tracks
	CollateralAmount uint64 // native units of the input token
	Leverage         uint32 // multiplier, 1e4 scaled (15000 = 1.5x)
	SlippageBps      uint32 // tolerated adverse move, basis points
}

// Request validation errors
var (
	ErrZeroAmount    = errors.New("collateral amount must be positive")
	ErrZeroLeverage  = errors.New("leverage must be positive")
	ErrBadSide       = errors.New("side must be long or short")
	ErrMissingSymbol = errors.New("input and target symbols are required")
)

// Validate checks request fields that do not need catalog access.
// Symbol existence is checked by the route resolver.
func (r TradeRequest) Validate() error {
	if !r.Side.Valid() {
		return ErrBadSide
	}
	if r.InputSymbol == "" || r.TargetSymbol == "" {
		return ErrMissingSymbol
	}
	if r.CollateralAmount == 0 {
		return ErrZeroAmount
	}
	if r.Leverage == 0 {
		return ErrZeroLeverage
	}
	return nil
}

// RouteDecision is the resolved execution route for a trade request.
// Derived, never persisted.
type RouteDecision struct {
	Market        Market
	Collateral    Token
	SwapRequired  bool
	SwapPool      *Pool // pool the swap executes in, when SwapRequired
	TradeDisabled bool  // no viable route; must be checked before building
}
