// Package sizing converts human trade intent (collateral, leverage,
// slippage tolerance) into protocol-level size and minimum-output
// amounts. All arithmetic is integer-based; only display layers ever
// convert to decimal.
package sizing

import (
	"errors"
	"fmt"
	"math/big"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/oracle"
)

// Protocol constants.
const (
	// BpsDenominator is the basis-point scale.
	BpsDenominator = 10_000
	// LeverageDenominator is the 1e4 leverage scale (15000 = 1.5x).
	LeverageDenominator = 10_000
	// RewardDiscountBps is the fixed protocol reward/discount applied
	// when converting collateral into position size.
	RewardDiscountBps = 25
)

// Sizing errors
var (
	ErrInsufficientLiquidity = errors.New("pool liquidity insufficient for position size")
	ErrZeroPrice             = errors.New("oracle returned zero price")
)

// Direction distinguishes opening from closing for slippage purposes.
type Direction int

// Trade directions
const (
	DirectionOpen Direction = iota
	DirectionClose
)

// Quote is the protocol-level sizing result. Deterministic for
// identical inputs.
type Quote struct {
	SizeAmount    uint64 // native units of the target token
	SizeUsd       uint64 // 1e6 scaled USD
	CollateralUsd uint64 // 1e6 scaled USD
	MinOutAmount  uint64 // slippage-bounded minimum acceptable output
	EntryPrice    uint64 // 1e6 scaled USD per target token
}

// Sizer computes quotes against live prices and pool liquidity.
type Sizer struct {
	rewardDiscountBps uint64
}

// NewSizer creates a Sizer with the protocol discount constant.
func NewSizer() *Sizer {
	return &Sizer{rewardDiscountBps: RewardDiscountBps}
}

// QuoteOpen sizes an open. Collateral is in native units of the
// collateral token; the route must already be resolved and enabled.
func (s *Sizer) QuoteOpen(
	req domain.TradeRequest,
	route domain.RouteDecision,
	target domain.Token,
	snap oracle.Snapshot,
	pool domain.Pool,
) (Quote, error) {
	if route.TradeDisabled {
		return Quote{}, fmt.Errorf("route is disabled, cannot size")
	}

	targetPoint, err := snap.Get(target.Symbol)
	if err != nil {
		return Quote{}, err
	}
	collateralPoint, err := snap.Get(route.Collateral.Symbol)
	if err != nil {
		return Quote{}, err
	}

	entryPrice, err := entryPriceUsd6(targetPoint, req.Side, DirectionOpen)
	if err != nil {
		return Quote{}, err
	}
	collateralPrice, err := collateralPoint.Usd6()
	if err != nil {
		return Quote{}, err
	}
	if collateralPrice == 0 {
		return Quote{}, ErrZeroPrice
	}

	// collateralUsd = amount * price / 10^decimals
	collateralUsd := mulDiv(req.CollateralAmount, collateralPrice, pow10(route.Collateral.Decimals))

	// sizeUsd = collateralUsd * leverage, discounted by the protocol
	// reward constant.
	sizeUsd := mulDiv(collateralUsd, uint64(req.Leverage), LeverageDenominator)
	sizeUsd = mulDiv(sizeUsd, BpsDenominator-s.rewardDiscountBps, BpsDenominator)

	// sizeAmount = sizeUsd / entryPrice in target native units.
	sizeAmount := mulDiv(sizeUsd, pow10(target.Decimals), entryPrice)

	// Minimum acceptable output tolerates slippageBps against the trader.
	boundedPrice := slippageBoundPrice(entryPrice, req.Side, DirectionOpen, req.SlippageBps)
	minOut := mulDiv(sizeUsd, pow10(target.Decimals), boundedPrice)

	if err := checkLiquidity(pool, route.Market, sizeUsd); err != nil {
		return Quote{}, err
	}

	return Quote{
		SizeAmount:    sizeAmount,
		SizeUsd:       sizeUsd,
		CollateralUsd: collateralUsd,
		MinOutAmount:  minOut,
		EntryPrice:    entryPrice,
	}, nil
}

// QuoteClose computes the minimum acceptable output when closing a
// position into the receiving token.
func (s *Sizer) QuoteClose(
	pos domain.PositionHandle,
	receive domain.Token,
	slippageBps uint32,
	snap oracle.Snapshot,
) (Quote, error) {
	point, err := snap.Get(receive.Symbol)
	if err != nil {
		return Quote{}, err
	}
	price, err := point.Usd6()
	if err != nil {
		return Quote{}, err
	}
	if price == 0 {
		return Quote{}, ErrZeroPrice
	}

	// The close pays out position value plus remaining collateral; the
	// trader tolerates receiving up to slippageBps less than fair value.
	valueUsd := pos.SizeUsd + pos.CollateralUsd
	boundedPrice := mulDiv(price, BpsDenominator+uint64(slippageBps), BpsDenominator)
	minOut := mulDiv(valueUsd, pow10(receive.Decimals), boundedPrice)

	return Quote{
		SizeAmount:   pos.SizeUsd,
		SizeUsd:      pos.SizeUsd,
		MinOutAmount: minOut,
		EntryPrice:   price,
	}, nil
}

// entryPriceUsd6 picks the fill-side price. Opens fill at the less
// favorable of spot and EMA so quoting never flatters the trader.
func entryPriceUsd6(p oracle.PricePoint, side domain.Side, dir Direction) (uint64, error) {
	spot, err := p.Usd6()
	if err != nil {
		return 0, err
	}
	ema, err := p.EMAUsd6()
	if err != nil {
		return 0, err
	}
	if spot == 0 || ema == 0 {
		return 0, ErrZeroPrice
	}

	adverse := spot > ema
	if side == domain.SideShort {
		adverse = spot < ema
	}
	if dir == DirectionClose {
		adverse = !adverse
	}
	if adverse {
		return spot, nil
	}
	return ema, nil
}

// SwapMinOut computes the minimum acceptable output of a single-pool
// swap of amountIn (native units of in) into out, tolerating
// slippageBps of adverse movement on the output price.
func SwapMinOut(amountIn uint64, in, out domain.Token, snap oracle.Snapshot, slippageBps uint32) (uint64, error) {
	inPoint, err := snap.Get(in.Symbol)
	if err != nil {
		return 0, err
	}
	outPoint, err := snap.Get(out.Symbol)
	if err != nil {
		return 0, err
	}
	inPrice, err := inPoint.Usd6()
	if err != nil {
		return 0, err
	}
	outPrice, err := outPoint.Usd6()
	if err != nil {
		return 0, err
	}
	if inPrice == 0 || outPrice == 0 {
		return 0, ErrZeroPrice
	}

	valueUsd := mulDiv(amountIn, inPrice, pow10(in.Decimals))
	// Paying up to slippageBps more per output unit is tolerated.
	boundedOut := mulDiv(outPrice, BpsDenominator+uint64(slippageBps), BpsDenominator)
	return mulDiv(valueUsd, pow10(out.Decimals), boundedOut), nil
}

// BoundPrice exposes the slippage bound for callers that need the
// acceptable-price argument of an instruction rather than a full quote.
func BoundPrice(price uint64, side domain.Side, dir Direction, slippageBps uint32) uint64 {
	return slippageBoundPrice(price, side, dir, slippageBps)
}

// slippageBoundPrice adjusts price by slippageBps in the direction that
// is adverse to the trader for the given side and direction.
func slippageBoundPrice(price uint64, side domain.Side, dir Direction, slippageBps uint32) uint64 {
	worse := side == domain.SideLong
	if dir == DirectionClose {
		worse = !worse
	}
	if worse {
		// Tolerate paying up to slippageBps more.
		return mulDiv(price, BpsDenominator+uint64(slippageBps), BpsDenominator)
	}
	// Tolerate receiving up to slippageBps less.
	return mulDiv(price, BpsDenominator-uint64(slippageBps), BpsDenominator)
}

// checkLiquidity rejects sizes the target custody cannot back.
func checkLiquidity(pool domain.Pool, market domain.Market, sizeUsd uint64) error {
	if pool.AUMUsd > 0 && sizeUsd > pool.AUMUsd {
		return fmt.Errorf("%w: size %d exceeds pool value %d", ErrInsufficientLiquidity, sizeUsd, pool.AUMUsd)
	}
	if custody, ok := pool.CustodyForMint(market.TargetMint); ok {
		if custody.Owned > 0 && custody.Available() == 0 {
			return fmt.Errorf("%w: custody %s fully locked", ErrInsufficientLiquidity, custody.Account)
		}
	}
	return nil
}

// mulDiv computes a*b/den without intermediate overflow.
func mulDiv(a, b, den uint64) uint64 {
	var prod big.Int
	prod.Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	prod.Div(&prod, new(big.Int).SetUint64(den))
	return prod.Uint64()
}

// pow10 returns 10^n for native decimal conversion.
func pow10(n uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
