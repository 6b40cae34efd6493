package sim

import (
	"errors"
	"math"
	"testing"
)

func TestGuestTSC_ScalesHostDelta(t *testing.T) {
	tests := []struct {
		name            string
		hostInitialTSC  uint64
		hostCurrentTSC  uint64
		hostHz          uint64
		guestInitialTSC uint64
		guestHz         uint64
		layout          Layout
		want            uint64
	}{
		{
			name:           "one to one after five seconds",
			hostInitialTSC: 300000000000, hostCurrentTSC: 305000000000,
			hostHz: 1000000000, guestInitialTSC: 0, guestHz: 1000000000,
			layout: LayoutAMD,
			want:   5000000000,
		},
		{
			name:           "half rate guest keeps its base",
			hostInitialTSC: 0, hostCurrentTSC: 10000000000,
			hostHz: 2000000000, guestInitialTSC: 100, guestHz: 1000000000,
			layout: LayoutAMD,
			want:   5000000100,
		},
		{
			name:           "two thirds truncates",
			hostInitialTSC: 1000000000, hostCurrentTSC: 2500000000,
			hostHz: 1500000000, guestInitialTSC: 0, guestHz: 1000000000,
			layout: LayoutAMD,
			want:   999999999,
		},
		{
			name:           "no host movement",
			hostInitialTSC: 42, hostCurrentTSC: 42,
			hostHz: 1000000000, guestInitialTSC: 7, guestHz: 1000000000,
			layout: LayoutAMD,
			want:   7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GuestTSC(tt.hostInitialTSC, tt.hostCurrentTSC, tt.hostHz,
				tt.guestInitialTSC, tt.guestHz, tt.layout, nativeScaler{})
			if err != nil {
				t.Fatalf("GuestTSC: unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("GuestTSC = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGuestTSC_HostMovedBackwards_ReturnsInvalidParameter(t *testing.T) {
	_, err := GuestTSC(1000, 999, 1000000000, 0, 1000000000, LayoutAMD, nativeScaler{})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("GuestTSC with regressing host: got %v, want ErrInvalidParameter", err)
	}
}

func TestGuestTSC_PropagatesRatioAndScaleErrors(t *testing.T) {
	// Zero host frequency fails in the ratio computation.
	_, err := GuestTSC(0, 1000, 0, 0, 1000000000, LayoutAMD, nativeScaler{})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("GuestTSC with zero host hz: got %v, want ErrDivisionByZero", err)
	}

	// A 4x guest over half the lane overflows in the scale step.
	_, err = GuestTSC(0, 1<<63, 1000000000, 0, 4000000000, LayoutAMD, nativeScaler{})
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("GuestTSC with huge scaled delta: got %v, want ErrOverflow", err)
	}
}

func TestGuestTSC_GuestWraps_ReturnsOverflow(t *testing.T) {
	_, err := GuestTSC(0, 1000000000, 1000000000, math.MaxUint64, 1000000000,
		LayoutAMD, nativeScaler{})
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("GuestTSC wrapping the guest counter: got %v, want ErrOverflow", err)
	}
}

func TestTSCOffset_SignConvention(t *testing.T) {
	// The layout leaves 32 integer bits so large counters stay in range.
	wide := Layout{IntegerBits: 32, FractionalBits: 32}

	tests := []struct {
		name            string
		initialHostTSC  uint64
		initialGuestTSC uint64
		guestHz         uint64
		hostHz          uint64
		want            int64
	}{
		{"guest boots at zero", 180000000000, 0, 1000, 1000, -180000000000},
		{"faster guest doubles the host reading", 180000000000, 0, 2000, 1000, -360000000000},
		{"guest counter ahead of scaled host", 180000000000, 500000000000, 1000, 1000, 320000000000},
		{"counters already aligned", 123456789, 123456789, 1000, 1000, 0},
		{"largest positive offset", 0, math.MaxInt64, 1000, 1000, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TSCOffset(tt.initialHostTSC, tt.initialGuestTSC,
				tt.guestHz, tt.hostHz, wide, nativeScaler{})
			if err != nil {
				t.Fatalf("TSCOffset: unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("TSCOffset = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTSCOffset_MagnitudeNeedsBit63_ReturnsOverflow(t *testing.T) {
	wide := Layout{IntegerBits: 32, FractionalBits: 32}

	// A difference of exactly 2^63 is rejected in either direction, even
	// though -2^63 would fit the signed lane.
	_, err := TSCOffset(1<<63, 0, 1000, 1000, wide, nativeScaler{})
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("TSCOffset with scaled host at 2^63: got %v, want ErrOverflow", err)
	}

	_, err = TSCOffset(0, 1<<63, 1000, 1000, wide, nativeScaler{})
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("TSCOffset with guest at 2^63: got %v, want ErrOverflow", err)
	}
}

func TestTSCOffset_PropagatesRatioErrors(t *testing.T) {
	_, err := TSCOffset(1000, 0, 1000, 0, LayoutAMD, nativeScaler{})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("TSCOffset with zero host hz: got %v, want ErrDivisionByZero", err)
	}
}
