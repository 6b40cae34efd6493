// sim/simulator.go
package sim

import (
	"fmt"
	"math/bits"

	"github.com/sirupsen/logrus"
)

// SimulationConfig collects everything one run needs.
type SimulationConfig struct {
	// Duration is the simulated span in whole seconds; rows are emitted
	// for t = 0..Duration inclusive.
	Duration uint64
	// GuestHz is the guest counter frequency, constant for the run.
	GuestHz uint64
	// Layout is the fixed point format used for every ratio in the run.
	// The zero value selects the AMD 8.32 format.
	Layout Layout
	// Initial is the boot host segment; its StartTime must be 0.
	Initial HostSegment
	// Migrations are the host changes, ordered by strictly increasing time.
	Migrations []Migration
	// Scaler names the multiply/shift implementation (native, bitwise,
	// both); empty selects native. The choice never changes the output.
	Scaler string
}

// SampleRow is one simulation step's output: the guest and host counter
// readings at a simulated time, plus the index of the segment that
// produced them.
type SampleRow struct {
	Segment  int
	Time     uint64
	GuestTSC uint64
	HostTSC  uint64
}

// SimulationError tags a computation failure with the host segment and
// simulated time it happened at. Unwrap reaches the underlying sentinel.
type SimulationError struct {
	Segment int
	Time    uint64
	Err     error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed in segment %d at t=%d: %v", e.Segment, e.Time, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// Simulator drives a migration timeline over a fixed duration, emitting
// one SampleRow per whole simulated second plus one extra row at each
// exact migration instant so the host counter discontinuity is visible.
// All state is owned by the one run; nothing here is shared or retried.
type Simulator struct {
	timeline *MigrationTimeline
	guestHz  uint64
	layout   Layout
	scaler   Scaler
	duration uint64
}

// NewSimulator validates the configuration and builds the timeline.
func NewSimulator(cfg SimulationConfig) (*Simulator, error) {
	if cfg.GuestHz == 0 {
		return nil, fmt.Errorf("guest frequency must be greater than zero: %w", ErrInvalidParameter)
	}

	layout := cfg.Layout
	if layout == (Layout{}) {
		layout = LayoutAMD
	}

	name := cfg.Scaler
	if name == "" {
		name = ScalerNative
	}
	sc, err := NewScaler(name)
	if err != nil {
		return nil, err
	}

	timeline, err := BuildTimeline(cfg.Initial, cfg.Migrations)
	if err != nil {
		return nil, err
	}

	return &Simulator{
		timeline: timeline,
		guestHz:  cfg.GuestHz,
		layout:   layout,
		scaler:   sc,
		duration: cfg.Duration,
	}, nil
}

// Timeline exposes the validated host segments of this run.
func (s *Simulator) Timeline() *MigrationTimeline { return s.timeline }

// SegmentRatio returns the guest/host ratio of segment i. Pure; callers
// recording or displaying a run recompute it freely.
func (s *Simulator) SegmentRatio(i int) (FixedPointRatio, error) {
	return ComputeRatio(s.guestHz, s.timeline.Segment(i).HostFrequencyHz, s.layout)
}

// Run walks the timeline from t=0 through the configured duration. Each
// migration freezes the guest counter at the boundary instant under the
// outgoing segment's ratio; the incoming segment continues from the
// frozen value with a freshly computed ratio. The first error halts the
// run; there is nothing transient to retry.
func (s *Simulator) Run() ([]SampleRow, error) {
	rows := make([]SampleRow, 0, s.duration+uint64(s.timeline.Len())+1)
	guestStart := uint64(0) // the guest counter boots at zero

	for i := 0; i < s.timeline.Len(); i++ {
		seg := s.timeline.Segment(i)
		if seg.StartTime > s.duration {
			// The run ends before this migration happens.
			break
		}

		ratio, err := ComputeRatio(s.guestHz, seg.HostFrequencyHz, s.layout)
		if err != nil {
			return nil, &SimulationError{Segment: i, Time: seg.StartTime, Err: err}
		}

		if i == 0 {
			logrus.Infof("[t=%07d] guest boot: host tsc %d at %d Hz, ratio %.6f",
				seg.StartTime, seg.StartHostTSC, seg.HostFrequencyHz, ratio.Float64())
		} else {
			logrus.Infof("[t=%07d] migration %d: host tsc %d at %d Hz, guest frozen at %d, ratio %.6f",
				seg.StartTime, i, seg.StartHostTSC, seg.HostFrequencyHz, guestStart, ratio.Float64())
		}

		// The segment covers t up to the next migration or the end of
		// the run, both inclusive. The shared boundary instant is emitted
		// twice, once under each segment.
		end := s.duration
		if i+1 < s.timeline.Len() && s.timeline.Segment(i+1).StartTime < end {
			end = s.timeline.Segment(i+1).StartTime
		}

		var lastGuest uint64
		for t := seg.StartTime; t <= end; t++ {
			row, err := s.sample(i, seg, ratio, guestStart, t)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
			lastGuest = row.GuestTSC
		}

		// Freeze the guest counter at the boundary with the outgoing
		// segment's ratio; the next segment continues from it.
		guestStart = lastGuest
	}

	logrus.Infof("[t=%07d] simulation ended, %d rows", s.duration, len(rows))
	return rows, nil
}

// sample computes one row. Each sample is derived from the segment's
// own start rather than from the previous row, so the truncation bias
// never compounds beyond a single scale application.
func (s *Simulator) sample(idx int, seg HostSegment, ratio FixedPointRatio,
	guestStart, t uint64) (SampleRow, error) {
	hi, elapsed := bits.Mul64(seg.HostFrequencyHz, t-seg.StartTime)
	if hi != 0 {
		return SampleRow{}, &SimulationError{Segment: idx, Time: t,
			Err: fmt.Errorf("elapsed host ticks exceed 64 bits: %w", ErrOverflow)}
	}

	host, carry := bits.Add64(seg.StartHostTSC, elapsed, 0)
	if carry != 0 {
		return SampleRow{}, &SimulationError{Segment: idx, Time: t,
			Err: fmt.Errorf("host tsc wraps 64 bits: %w", ErrOverflow)}
	}

	scaled, err := s.scaler.Scale(elapsed, ratio)
	if err != nil {
		return SampleRow{}, &SimulationError{Segment: idx, Time: t, Err: err}
	}
	guest, carry := bits.Add64(guestStart, scaled, 0)
	if carry != 0 {
		return SampleRow{}, &SimulationError{Segment: idx, Time: t,
			Err: fmt.Errorf("guest tsc wraps 64 bits: %w", ErrOverflow)}
	}

	logrus.Debugf("[t=%07d] segment %d: guest=%d host=%d", t, idx, guest, host)

	return SampleRow{Segment: idx, Time: t, GuestTSC: guest, HostTSC: host}, nil
}
