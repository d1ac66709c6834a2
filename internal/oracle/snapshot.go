// Package oracle fetches current and EMA prices for catalog tokens
// from an external Pyth-style price service.
package oracle

import (
	"errors"
	"fmt"
	"math"
)

// ErrFeedMissing is returned when a requested feed is absent from the response.
var ErrFeedMissing = errors.New("price feed missing from oracle response")

// PricePoint is one oracle reading. Price and EMAPrice are integers
// scaled by 10^Exponent; protocol math never goes through floats.
type PricePoint struct {
	FeedID      string
	Price       int64
	EMAPrice    int64
	Exponent    int32
	Confidence  uint64
	PublishTime int64 // unix seconds
}

// Usd6 returns the price rescaled to 1e6 USD units, the scale the
// protocol sizes positions in.
func (p PricePoint) Usd6() (uint64, error) {
	return rescale(p.Price, p.Exponent)
}

// EMAUsd6 returns the EMA price rescaled to 1e6 USD units.
func (p PricePoint) EMAUsd6() (uint64, error) {
	return rescale(p.EMAPrice, p.Exponent)
}

const usdExponent = -6

func rescale(value int64, exponent int32) (uint64, error) {
	if value < 0 {
		return 0, fmt.Errorf("negative oracle price %d", value)
	}
	v := uint64(value)
	shift := exponent - usdExponent
	for ; shift > 0; shift-- {
		if v > math.MaxUint64/10 {
			return 0, fmt.Errorf("oracle price %d with exponent %d overflows uint64", value, exponent)
		}
		v *= 10
	}
	for ; shift < 0; shift++ {
		v /= 10
	}
	return v, nil
}

// Snapshot maps token symbol to its latest reading.
type Snapshot map[string]PricePoint

// Get returns the reading for symbol.
func (s Snapshot) Get(symbol string) (PricePoint, error) {
	p, ok := s[symbol]
	if !ok {
		return PricePoint{}, fmt.Errorf("%w: %s", ErrFeedMissing, symbol)
	}
	return p, nil
}
