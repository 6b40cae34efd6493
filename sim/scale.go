// sim/scale.go
package sim

import (
	"fmt"
	"math/bits"
)

// Scaler converts a host tick delta into guest ticks under a fixed
// point ratio, computing floor(ticks * RawValue / 2^FractionalBits).
// Implementations must agree bit for bit on every input: the selector
// exists for cross-checking, never to change observable output.
//
// The rounding is truncating on purpose. Whenever the ratio is not
// exactly representable in the chosen width, every application loses a
// sub-tick remainder, so consecutive samples drift below the ideal
// linear progression. That bias matches the modeled hardware scaling
// algorithm and must not be compensated away.
type Scaler interface {
	Scale(ticks uint64, ratio FixedPointRatio) (uint64, error)
}

// Scaler implementation names accepted by NewScaler.
const (
	ScalerNative  = "native"
	ScalerBitwise = "bitwise"
	ScalerBoth    = "both"
)

// NewScaler resolves an implementation by name. "both" evaluates the
// two real implementations on every call and fails if they disagree.
func NewScaler(name string) (Scaler, error) {
	switch name {
	case ScalerNative:
		return nativeScaler{}, nil
	case ScalerBitwise:
		return bitwiseScaler{}, nil
	case ScalerBoth:
		return crossCheckScaler{}, nil
	default:
		return nil, fmt.Errorf("unknown scaler %q (want native, bitwise, or both): %w",
			name, ErrInvalidParameter)
	}
}

// nativeScaler forms the 128-bit product with the widened multiply in
// math/bits and shifts the two halves back into one lane.
type nativeScaler struct{}

func (nativeScaler) Scale(ticks uint64, ratio FixedPointRatio) (uint64, error) {
	frac := ratio.FractionalBits
	if frac > 64 {
		return 0, fmt.Errorf("cannot scale by %d fractional bits: %w", frac, ErrInvalidParameter)
	}

	hi, lo := bits.Mul64(ticks, ratio.RawValue)

	switch {
	case frac == 0:
		if hi != 0 {
			return 0, scaleOverflowError(ticks, ratio)
		}
		return lo, nil
	case frac == 64:
		// The whole result is the high word; never overflows.
		return hi, nil
	default:
		if hi>>frac != 0 {
			return 0, scaleOverflowError(ticks, ratio)
		}
		return lo>>frac | hi<<(64-frac), nil
	}
}

// bitwiseScaler reproduces the 128-bit product with 32-bit limbs and
// explicit carry propagation, the way the hand-coded scaling routine
// does it. It shares no arithmetic path with nativeScaler.
type bitwiseScaler struct{}

func (bitwiseScaler) Scale(ticks uint64, ratio FixedPointRatio) (uint64, error) {
	frac := ratio.FractionalBits
	if frac > 64 {
		return 0, fmt.Errorf("cannot scale by %d fractional bits: %w", frac, ErrInvalidParameter)
	}

	const mask32 = 1<<32 - 1

	a0, a1 := ticks&mask32, ticks>>32
	b0, b1 := ratio.RawValue&mask32, ratio.RawValue>>32

	// ticks * raw = p11<<64 + (p01 + p10)<<32 + p00, assembled so no
	// intermediate exceeds 64 bits.
	p00 := a0 * b0
	p01 := a0 * b1
	p10 := a1 * b0
	p11 := a1 * b1

	mid := p00>>32 + p01&mask32 + p10&mask32
	lo := mid<<32 | p00&mask32
	hi := p11 + p01>>32 + p10>>32 + mid>>32

	switch {
	case frac == 0:
		if hi != 0 {
			return 0, scaleOverflowError(ticks, ratio)
		}
		return lo, nil
	case frac == 64:
		return hi, nil
	default:
		if hi>>frac != 0 {
			return 0, scaleOverflowError(ticks, ratio)
		}
		return lo>>frac | hi<<(64-frac), nil
	}
}

// crossCheckScaler runs both implementations and requires exact
// agreement on the value and on whether an error occurred.
type crossCheckScaler struct{}

func (crossCheckScaler) Scale(ticks uint64, ratio FixedPointRatio) (uint64, error) {
	nval, nerr := nativeScaler{}.Scale(ticks, ratio)
	bval, berr := bitwiseScaler{}.Scale(ticks, ratio)

	if nval != bval || (nerr == nil) != (berr == nil) {
		return 0, fmt.Errorf("scaler implementations disagree on ticks=%d raw=%d frac=%d: native=(%d, %v), bitwise=(%d, %v)",
			ticks, ratio.RawValue, ratio.FractionalBits, nval, nerr, bval, berr)
	}
	return nval, nerr
}

func scaleOverflowError(ticks uint64, ratio FixedPointRatio) error {
	return fmt.Errorf("scaling %d ticks by %d/2^%d exceeds 64 bits: %w",
		ticks, ratio.RawValue, ratio.FractionalBits, ErrOverflow)
}
