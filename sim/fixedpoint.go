package sim

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Fixed point formats used by hardware TSC scaling. AMD keeps the
// frequency multiplier in an 8.32 register field, Intel in 16.48.
var (
	LayoutAMD   = Layout{IntegerBits: 8, FractionalBits: 32}
	LayoutIntel = Layout{IntegerBits: 16, FractionalBits: 48}
)

// Layout describes a fixed point number format: how many bits hold the
// integer part and how many hold the fraction. Both parts together must
// fit a 64-bit lane.
type Layout struct {
	IntegerBits    uint8
	FractionalBits uint8
}

// LayoutForFrac returns the widest layout with the given fractional
// width, for callers that only care about the 64-bit total.
func LayoutForFrac(fracBits uint8) Layout {
	return Layout{IntegerBits: 64 - fracBits, FractionalBits: fracBits}
}

// LayoutForArch resolves a vendor preset by name, "amd" or "intel".
func LayoutForArch(arch string) (Layout, error) {
	switch strings.ToLower(arch) {
	case "amd":
		return LayoutAMD, nil
	case "intel":
		return LayoutIntel, nil
	default:
		return Layout{}, fmt.Errorf("unknown architecture %q (want amd or intel): %w",
			arch, ErrInvalidParameter)
	}
}

func (l Layout) width() uint {
	return uint(l.IntegerBits) + uint(l.FractionalBits)
}

func (l Layout) validate() error {
	if l.width() > 64 {
		return fmt.Errorf("%d.%d fixed point does not fit a 64-bit lane: %w",
			l.IntegerBits, l.FractionalBits, ErrInvalidParameter)
	}
	if l.FractionalBits > 63 {
		return fmt.Errorf("cannot shift a 64-bit lane by %d fractional bits: %w",
			l.FractionalBits, ErrInvalidParameter)
	}
	return nil
}

// FixedPointRatio is the ratio of a guest clock frequency to a host
// clock frequency, stored as RawValue / 2^FractionalBits and truncated
// toward zero. Immutable once computed.
type FixedPointRatio struct {
	IntegerBits    uint8
	FractionalBits uint8
	RawValue       uint64
}

// Float64 returns the approximate real value of the ratio, for display
// only. All scaling math stays in fixed point.
func (r FixedPointRatio) Float64() float64 {
	return math.Ldexp(float64(r.RawValue), -int(r.FractionalBits))
}

// ComputeRatio returns guestHz/hostHz as a fixed point number in the
// given layout. The shifted dividend is formed in 128 bits so a large
// guest frequency never wraps, and the division truncates toward zero.
func ComputeRatio(guestHz, hostHz uint64, layout Layout) (FixedPointRatio, error) {
	if err := layout.validate(); err != nil {
		return FixedPointRatio{}, err
	}
	if hostHz == 0 {
		return FixedPointRatio{}, fmt.Errorf("frequency ratio %d/%d: %w",
			guestHz, hostHz, ErrDivisionByZero)
	}

	// (guestHz << frac) / hostHz with a 128-bit dividend.
	hi, lo := bits.Mul64(guestHz, 1<<layout.FractionalBits)
	if hi >= hostHz {
		// The quotient alone needs more than 64 bits.
		return FixedPointRatio{}, ratioOverflowError(guestHz, hostHz, layout)
	}
	raw, _ := bits.Div64(hi, lo, hostHz)

	if w := layout.width(); w < 64 && raw>>w != 0 {
		return FixedPointRatio{}, ratioOverflowError(guestHz, hostHz, layout)
	}

	return FixedPointRatio{
		IntegerBits:    layout.IntegerBits,
		FractionalBits: layout.FractionalBits,
		RawValue:       raw,
	}, nil
}

func ratioOverflowError(guestHz, hostHz uint64, layout Layout) error {
	return fmt.Errorf("frequency ratio %d/%d does not fit %d.%d fixed point: %w",
		guestHz, hostHz, layout.IntegerBits, layout.FractionalBits, ErrOverflow)
}
