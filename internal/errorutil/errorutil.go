// Package errorutil defines the sentinel errors shared across the profiler
// packages, in the style of the teacher's own errorutil: a small set of
// base errors that components return as-is, so callers can compare
// against a stable value instead of matching strings.
package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrNoResults represents situations in which no results were returned by the called API.
var ErrNoResults = errors.New("no results returned")

// ErrAlreadyEnabled is returned by Start when the sampler is already
// running.
var ErrAlreadyEnabled = errors.New("sampler already enabled")

// ErrNotEnabled is returned by Stop when the sampler is not running, and
// by the native-call tracer's Return when the thread has no pending call.
var ErrNotEnabled = errors.New("sampler not enabled")

// ErrBufferOverflow is returned when a formatted stack label would not fit
// the preallocated format buffer; the sample is dropped, never truncated.
var ErrBufferOverflow = errors.New("format buffer overflow")

// ErrSlotTableFull is returned when the native-call tracer's per-thread
// slot table has no room for a thread seen for the first time.
var ErrSlotTableFull = errors.New("native-call slot table full")

// ErrHostFailure wraps a failure from an embedding-runtime host interface:
// frame enumeration, thread enumeration, or name lookup returning nothing
// usable.
var ErrHostFailure = errors.New("host interface failure")

// ErrInvalidPath is returned by Save when given a path that is not a usable
// filesystem destination.
var ErrInvalidPath = errors.New("invalid save path")
