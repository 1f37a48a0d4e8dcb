package poller

import (
	"sort"
	"time"
)

// Snapshot is a single set of metric values captured for one identifier.
//
// Snapshots are transient: the [Scheduler] hands each one to its
// [SnapshotWriter] immediately and never retains it.
type Snapshot struct {
	// Identifier is the profile the values belong to.
	Identifier string

	// Fields maps a measurement name (e.g. "followers") to its value.
	Fields map[string]float64

	// CapturedAt is when the response was received.
	CapturedAt time.Time
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

// Entry is the externally visible schedule state of one tracked identifier.
type Entry struct {
	Identifier string    `json:"identifier"`
	NextDueAt  time.Time `json:"next_due_at"`
}
