package sim

import (
	"fmt"
	"math/bits"
)

// GuestTSC computes the guest's TSC reading for one host counter sample.
// hostInitialTSC and guestInitialTSC anchor the two counters at the
// instant the guest started running on this host (boot, or the moment of
// a migration); hostCurrentTSC picks the point in time being asked
// about. The guest advances by the scaled host delta:
//
//	guestInitialTSC + scale(hostCurrentTSC-hostInitialTSC, guestHz/hostHz)
func GuestTSC(hostInitialTSC, hostCurrentTSC, hostHz, guestInitialTSC, guestHz uint64,
	layout Layout, sc Scaler) (uint64, error) {
	if hostCurrentTSC < hostInitialTSC {
		return 0, fmt.Errorf("host counter moved backwards (%d < %d): %w",
			hostCurrentTSC, hostInitialTSC, ErrInvalidParameter)
	}

	ratio, err := ComputeRatio(guestHz, hostHz, layout)
	if err != nil {
		return 0, err
	}
	scaled, err := sc.Scale(hostCurrentTSC-hostInitialTSC, ratio)
	if err != nil {
		return 0, err
	}

	guest, carry := bits.Add64(guestInitialTSC, scaled, 0)
	if carry != 0 {
		return 0, fmt.Errorf("guest tsc %d + %d wraps 64 bits: %w",
			guestInitialTSC, scaled, ErrOverflow)
	}
	return guest, nil
}

// TSCOffset computes the signed offset a hypervisor programs alongside
// the frequency multiplier: scaling the host counter and adding this
// offset lands on the guest counter. Equivalently,
//
//	offset = -(scale(initialHostTSC) - initialGuestTSC)
//
// A magnitude of 2^63 or more does not fit the signed lane and is an
// error, even for the one negative value that would be representable.
func TSCOffset(initialHostTSC, initialGuestTSC, guestHz, hostHz uint64,
	layout Layout, sc Scaler) (int64, error) {
	ratio, err := ComputeRatio(guestHz, hostHz, layout)
	if err != nil {
		return 0, err
	}
	scaled, err := sc.Scale(initialHostTSC, ratio)
	if err != nil {
		return 0, err
	}

	var diff uint64
	negate := scaled >= initialGuestTSC
	if negate {
		diff = scaled - initialGuestTSC
	} else {
		diff = initialGuestTSC - scaled
	}
	if diff&(1<<63) != 0 {
		return 0, fmt.Errorf("offset between scaled host tsc %d and guest tsc %d does not fit a signed 64-bit lane: %w",
			scaled, initialGuestTSC, ErrOverflow)
	}

	if negate {
		return -int64(diff), nil
	}
	return int64(diff), nil
}
