package sim

import (
	"fmt"
	"math/bits"
)

// NanosPerSecond is the hrtime resolution: nanoseconds per second.
const NanosPerSecond = 1000000000

// Hrtime translates a TSC reading at freqHz into nanoseconds since the
// counter was zero. Whole seconds only: the sub-second remainder of the
// division is discarded.
func Hrtime(tsc, freqHz uint64) (uint64, error) {
	if freqHz == 0 {
		return 0, fmt.Errorf("hrtime of tsc=%d: %w", tsc, ErrDivisionByZero)
	}
	hi, ns := bits.Mul64(tsc/freqHz, NanosPerSecond)
	if hi != 0 {
		return 0, fmt.Errorf("hrtime of tsc=%d at %d Hz exceeds 64 bits: %w",
			tsc, freqHz, ErrOverflow)
	}
	return ns, nil
}

// TSC translates an hrtime in nanoseconds into the reading a counter at
// freqHz would show. Whole seconds only, as with Hrtime.
func TSC(hrtimeNs, freqHz uint64) (uint64, error) {
	hi, tsc := bits.Mul64(hrtimeNs/NanosPerSecond, freqHz)
	if hi != 0 {
		return 0, fmt.Errorf("tsc for hrtime=%dns at %d Hz exceeds 64 bits: %w",
			hrtimeNs, freqHz, ErrOverflow)
	}
	return tsc, nil
}

// AdvanceOneSecond returns the TSC value one second past tsc for a
// counter running at freqHz.
func AdvanceOneSecond(tsc, freqHz uint64) (uint64, error) {
	sum, carry := bits.Add64(tsc, freqHz, 0)
	if carry != 0 {
		return 0, fmt.Errorf("tsc %d + %d Hz wraps 64 bits: %w", tsc, freqHz, ErrOverflow)
	}
	return sum, nil
}
