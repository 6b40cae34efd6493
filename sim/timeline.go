package sim

import (
	"fmt"
	"sort"
)

// HostSegment is a maximal stretch of simulated time during which the
// host counter's start value and frequency are constant. StartTime is
// in whole simulation seconds.
type HostSegment struct {
	StartTime       uint64
	StartHostTSC    uint64
	HostFrequencyHz uint64
}

// Migration describes one host change: at Time the guest lands on a
// host whose counter reads HostTSC and ticks at HostFrequencyHz.
type Migration struct {
	Time            uint64
	HostTSC         uint64
	HostFrequencyHz uint64
}

// MigrationTimeline is the validated, immutable sequence of host
// segments for one simulation run. Segment i is active for
// StartTime <= t < segments[i+1].StartTime; the last segment stays
// active from its start on. At the exact instant of a migration the new
// segment is already the active one.
type MigrationTimeline struct {
	segments []HostSegment
}

// BuildTimeline validates the boot segment and the migrations and
// assembles the host segments in order. The whole timeline is known
// before simulation starts, so it is built once and never mutated.
func BuildTimeline(initial HostSegment, migrations []Migration) (*MigrationTimeline, error) {
	if initial.StartTime != 0 {
		return nil, fmt.Errorf("boot segment must start at t=0, not t=%d: %w",
			initial.StartTime, ErrInvalidTimeline)
	}
	if initial.HostFrequencyHz == 0 {
		return nil, fmt.Errorf("boot segment frequency must be greater than zero: %w",
			ErrInvalidTimeline)
	}

	segments := make([]HostSegment, 0, len(migrations)+1)
	segments = append(segments, initial)

	prev := initial.StartTime
	for i, m := range migrations {
		if m.Time <= prev {
			return nil, fmt.Errorf("migration %d at t=%d does not advance past t=%d: %w",
				i, m.Time, prev, ErrInvalidTimeline)
		}
		if m.HostFrequencyHz == 0 {
			return nil, fmt.Errorf("migration %d frequency must be greater than zero: %w",
				i, ErrInvalidTimeline)
		}
		segments = append(segments, HostSegment{
			StartTime:       m.Time,
			StartHostTSC:    m.HostTSC,
			HostFrequencyHz: m.HostFrequencyHz,
		})
		prev = m.Time
	}

	return &MigrationTimeline{segments: segments}, nil
}

// Len returns the number of host segments.
func (tl *MigrationTimeline) Len() int { return len(tl.segments) }

// Segment returns the i-th host segment.
func (tl *MigrationTimeline) Segment(i int) HostSegment { return tl.segments[i] }

// ActiveSegment returns the index of the segment active at time t: the
// last segment whose StartTime is at or before t.
func (tl *MigrationTimeline) ActiveSegment(t uint64) int {
	// First segment strictly after t; the one before it is active.
	n := sort.Search(len(tl.segments), func(i int) bool {
		return tl.segments[i].StartTime > t
	})
	return n - 1
}
