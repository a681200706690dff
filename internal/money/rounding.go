// Package money holds the integer-only arithmetic used for every amount in the
// ledger. Amounts are always minor currency units (kobo); nothing here touches floats.
package money

import (
	"fmt"
	"math"

	"github.com/punchamoorthee/ledgerops/internal/domain"
)

// ErrInvalidArgument is returned for inputs the rounding rules are not defined for.
var ErrInvalidArgument = fmt.Errorf("%w: invalid rounding argument", domain.ErrInvariant)

// RoundingMode selects how a non-zero remainder is resolved.
type RoundingMode int

const (
	Floor  RoundingMode = iota // always down
	Ceil                       // any remainder rounds up
	HalfUp                     // remainder*2 >= denominator rounds up
)

func (m RoundingMode) String() string {
	switch m {
	case Floor:
		return "floor"
	case Ceil:
		return "ceil"
	case HalfUp:
		return "half_up"
	}
	return fmt.Sprintf("rounding(%d)", int(m))
}

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

// Divide returns numerator/denominator rounded per mode.
func Divide(numerator, denominator int64, mode RoundingMode) (int64, error) {
	if denominator <= 0 {
		return 0, fmt.Errorf("%w: denominator must be > 0, got %d", ErrInvalidArgument, denominator)
	}
	if numerator < 0 {
		return 0, fmt.Errorf("%w: numerator must be >= 0, got %d", ErrInvalidArgument, numerator)
	}

	q := numerator / denominator
	r := numerator % denominator
	if r == 0 {
		return q, nil
	}

	switch mode {
	case Floor:
		return q, nil
	case Ceil:
		return q + 1, nil
	case HalfUp:
		// r < denominator, so r*2 cannot overflow
		if r*2 >= denominator {
			return q + 1, nil
		}
		return q, nil
	}
	return 0, fmt.Errorf("%w: unknown rounding mode %s", ErrInvalidArgument, mode)
}

// PercentBps applies a basis-point rate to amount: amount*bps/10000, rounded per mode.
func PercentBps(amount, bps int64, mode RoundingMode) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount must be >= 0, got %d", ErrInvalidArgument, amount)
	}
	if bps < 0 {
		return 0, fmt.Errorf("%w: bps must be >= 0, got %d", ErrInvalidArgument, bps)
	}
	if bps > 0 && amount > math.MaxInt64/bps {
		return 0, fmt.Errorf("%w: amount %d overflows at %d bps", ErrInvalidArgument, amount, bps)
	}
	return Divide(amount*bps, BpsDenominator, mode)
}
