// Package objstats performs a single-pass object-statistics aggregation:
// a stable, unsorted, unfiltered count-by-type pass over a snapshot of
// live objects, plus a two-snapshot delta operation this module adds on
// top: the delta lets a caller answer "what grew between two points in
// time" the way GCAnalyzer.get_object_stats's memory/percentage reporting
// does, without any sorting or limiting.
//
// Grounded on gc_analyzer.py's get_object_stats, which walks a list of
// tracked objects once, keys a Counter by type name, and optionally
// accumulates per-type and total memory.
package objstats

import (
	"github.com/goccy/go-json"

	"github.com/telepy-go/profiler/internal/hostiface"
)

// Snapshot is the stable result of one aggregation pass: a type-name to
// count mapping, an optional type-name to byte-size mapping, and totals.
// TypeMemory is nil unless IncludeMemory was requested.
type Snapshot struct {
	TypeCounter  map[string]uint64 `json:"type_counter"`
	TypeMemory   map[string]uint64 `json:"type_memory,omitempty"`
	TotalObjects uint64            `json:"total_objects"`
	TotalMemory  uint64            `json:"total_memory"`
}

// Collect iterates objects exactly once, incrementing TypeCounter for
// every object and, if includeMemory is set, querying and accumulating
// each object's size. No sorting, no filtering — every object counts.
func Collect(objects []hostiface.LiveObject, includeMemory bool) Snapshot {
	snap := Snapshot{TypeCounter: make(map[string]uint64)}
	if includeMemory {
		snap.TypeMemory = make(map[string]uint64)
	}

	for _, obj := range objects {
		name := obj.TypeName()
		snap.TypeCounter[name]++
		snap.TotalObjects++
		if includeMemory {
			size := uint64(obj.SizeBytes())
			snap.TypeMemory[name] += size
			snap.TotalMemory += size
		}
	}
	return snap
}

// Diff computes, per type, the change in count and (if both snapshots
// carry memory data) in memory between a baseline snapshot and a later
// one. A type present in only one snapshot is reported with the other
// side implicitly zero.
type Diff struct {
	CountDelta  map[string]int64 `json:"count_delta"`
	MemoryDelta map[string]int64 `json:"memory_delta,omitempty"`
}

// DiffSnapshots returns the per-type delta of after relative to before.
func DiffSnapshots(before, after Snapshot) Diff {
	d := Diff{CountDelta: make(map[string]int64)}
	hasMemory := before.TypeMemory != nil && after.TypeMemory != nil
	if hasMemory {
		d.MemoryDelta = make(map[string]int64)
	}

	seen := make(map[string]bool)
	for name, count := range after.TypeCounter {
		d.CountDelta[name] = int64(count) - int64(before.TypeCounter[name])
		seen[name] = true
	}
	for name, count := range before.TypeCounter {
		if seen[name] {
			continue
		}
		d.CountDelta[name] = -int64(count)
	}

	if hasMemory {
		seen = make(map[string]bool)
		for name, mem := range after.TypeMemory {
			d.MemoryDelta[name] = int64(mem) - int64(before.TypeMemory[name])
			seen[name] = true
		}
		for name, mem := range before.TypeMemory {
			if seen[name] {
				continue
			}
			d.MemoryDelta[name] = -int64(mem)
		}
	}
	return d
}

// MarshalJSON encodes s using goccy/go-json, the fast encoder this module
// uses for every JSON-shaped result it hands back to a caller.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(alias(s))
}
