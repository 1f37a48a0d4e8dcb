package pulsestats

import (
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/jpalmerr/pulsestats/internal/poller"
	"github.com/jpalmerr/pulsestats/internal/sink"
)

// Snapshot is one successful capture of a profile's metrics.
//
// Snapshot is passed to callbacks registered with [WithSnapshotCallback]
// after it has been written to the sink. Fields is a private copy; callbacks
// may keep or modify it.
type Snapshot struct {
	// Identifier is the profile handle that was polled.
	Identifier string

	// Fields maps measurement names (e.g. "followers") to captured values.
	Fields map[string]float64

	// CapturedAt is when the response was received.
	CapturedAt time.Time
}

// measurementsFromSnapshot converts a snapshot into one measurement per
// field, sorted by name, sharing a timestamp truncated to the second.
func measurementsFromSnapshot(snap poller.Snapshot) []sink.Measurement {
	names := snap.FieldNames()
	ts := snap.CapturedAt.Truncate(time.Second)

	out := make([]sink.Measurement, 0, len(names))
	for _, name := range names {
		out = append(out, sink.Measurement{
			Name:       name,
			Identifier: snap.Identifier,
			Value:      snap.Fields[name],
			Time:       ts,
		})
	}
	return out
}

// toPublicSnapshot converts an internal snapshot, copying the field map.
func toPublicSnapshot(snap poller.Snapshot) Snapshot {
	return Snapshot{
		Identifier: snap.Identifier,
		Fields:     maps.Clone(snap.Fields),
		CapturedAt: snap.CapturedAt,
	}
}

// FieldNames returns the snapshot's field names in sorted order.
func (s Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// invokeCallbackSafe calls a snapshot callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"panic", r,
				"identifier", snap.Identifier,
			)
		}
	}()
	cb(snap)
}
