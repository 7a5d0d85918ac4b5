// Package math converts between on-chain token base units and decimal
// dollar amounts, and divides amounts into cent-exact shares.
package math

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenConfig defines the fixed-point precision of a token.
type TokenConfig struct {
	Decimals int32
}

// StableConfig is the precision of the TIP-20 stablecoins (6 decimals).
var StableConfig = TokenConfig{Decimals: 6}

// CentPlaces is the precision split shares are rounded to.
const CentPlaces = 2

var ErrNegative = errors.New("amount must not be negative")

// FromBaseUnits converts an integer token amount to dollars.
// A nil value is zero.
func (c TokenConfig) FromBaseUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -c.Decimals)
}

// ToBaseUnits converts dollars to an integer token amount. Digits beyond the
// token's precision are rounded with RoundHalfEven.
func (c TokenConfig) ToBaseUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegative
	}
	return d.RoundBank(c.Decimals).Shift(c.Decimals).BigInt(), nil
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// Round rounds d to places using mode.
func Round(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundDown:
		return d.RoundDown(places)
	case RoundUp:
		return d.RoundUp(places)
	default:
		return d.RoundBank(places)
	}
}

// SplitEvenly divides total into n cent-rounded shares. Every share but the
// last is total/n rounded down to cents; the last absorbs the remainder, so
// the shares sum to total exactly and none is negative for a non-negative
// total.
func SplitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	each := Round(total.Div(decimal.NewFromInt(int64(n))), CentPlaces, RoundDown)
	sum := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = each
		sum = sum.Add(each)
	}
	shares[n-1] = total.Sub(sum)
	return shares
}
