package registry

import (
	"camrig/pkg/types"
)

// Entry is one session's contribution to a snapshot. OK is false when the
// session had no frame at aggregation time.
type Entry struct {
	Key   int
	Frame types.Frame
	OK    bool
}

// Snapshot is one aggregation pass over every registered session, in
// ascending key order. Entries were read at the same instant but may have
// been acquired at slightly different times, bounded by each device's own
// frame period.
type Snapshot []Entry

// Snapshot reads every session's latest slot, in ascending key order. It
// never blocks on a session that has produced nothing yet.
func (r *Registry) Snapshot() Snapshot {
	sessions := r.ordered()
	snap := make(Snapshot, 0, len(sessions))
	for _, s := range sessions {
		frame, ok := s.Latest()
		snap = append(snap, Entry{Key: s.Key(), Frame: frame, OK: ok})
	}

	return snap
}

// Present counts entries carrying a frame.
func (s Snapshot) Present() int {
	n := 0
	for _, e := range s {
		if e.OK {
			n++
		}
	}

	return n
}

// Frames returns the present frames in key order.
func (s Snapshot) Frames() []types.Frame {
	out := make([]types.Frame, 0, len(s))
	for _, e := range s {
		if e.OK {
			out = append(out, e.Frame)
		}
	}

	return out
}
