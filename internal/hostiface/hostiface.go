// Package hostiface defines the contracts this profiler requires from the
// embedding managed runtime. The sampler, async sampler and native-call
// tracer packages depend only on these interfaces, never on a concrete
// interpreter binding — a host (CPython via cgo, a WASM runtime, a toy
// bytecode VM used in tests) implements them once and the rest of this
// module is unaware of the embedding.
package hostiface

// CodeInfo describes the static, unchanging half of a frame: the code
// object a frame is an activation of.
type CodeInfo interface {
	// Filename is the source file the code object was compiled from.
	Filename() string
	// Name is the unqualified function/method name.
	Name() string
	// QualifiedName returns a dotted, module-qualified name when the host
	// can produce one (e.g. "pkg.Class.method"); ok is false when the host
	// has nothing better than Name.
	QualifiedName() (name string, ok bool)
	// FirstLine is the line the def/function statement starts on.
	FirstLine() uint32
}

// Frame is one activation record in a leaf-first frame chain.
type Frame interface {
	Code() CodeInfo
	// CurrentLine is the line currently executing in this activation, used
	// only when tree-mode line selection is enabled.
	CurrentLine() uint32
	// Back returns the caller's frame, or ok=false at the root.
	Back() (Frame, bool)
}

// Snapshotter is the "current frames of all threads" introspection
// primitive: a point-in-time snapshot of every interpreter thread's leaf
// frame, keyed by thread id.
type Snapshotter interface {
	CurrentFrames() map[uint64]Frame
}

// ThreadDirectory enumerates the runtime's thread registry. Enumerate is
// the synchronous, off-the-hot-path path; it may allocate and take locks.
// Active/Limbo are the signal-safe path used from the async sampler's tick
// — they must not allocate or take a lock the interrupted code could be
// holding.
type ThreadDirectory interface {
	Enumerate() (map[uint64]string, error)
	Active() map[uint64]string
	Limbo() map[uint64]string
}

// StdlibPathProvider resolves the runtime's standard-library installation
// directory once, at sampler construction, for use by focus-mode filtering.
type StdlibPathProvider func() (string, error)

// MainThreadScheduler queues a callable to run the next time the runtime's
// main thread checks for pending callbacks.
type MainThreadScheduler interface {
	ScheduleOnMain(fn func()) error
}

// LiveObject is one entry of the list of live objects the object-statistics
// pass iterates over.
type LiveObject interface {
	TypeName() string
	// SizeBytes is only called when include_memory is requested.
	SizeBytes() uintptr
}
