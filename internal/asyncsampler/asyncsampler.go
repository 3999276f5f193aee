// Package asyncsampler implements the signal/timer-driven profiling path:
// a tick callback the embedding runtime invokes from whatever thread it
// routes an external periodic event to. Unlike the synchronous sampler,
// tick must never allocate, log, or block — it runs with the interrupted
// thread's state frozen underneath it.
//
// Grounded on telepysys/telepysys.c's tick handler (async-signal-safe use
// of threading._active/_limbo instead of threading.enumerate(), a single
// preallocated format buffer, and an atomic reentrancy flag). An
// AsyncSampler is independent of sampler.Sampler: it keeps its own copy of
// the flag word, time mode and stdlib path given to New, and its own
// counters. It applies the flag-driven filters only; the regex pattern
// filter is not applied on this path.
package asyncsampler

import (
	"sync/atomic"

	"github.com/telepy-go/profiler/internal/clock"
	"github.com/telepy-go/profiler/internal/frame"
	"github.com/telepy-go/profiler/internal/hostiface"
	"github.com/telepy-go/profiler/internal/stacktree"
	"github.com/telepy-go/profiler/internal/threaddir"
)

// AsyncSampler is the tick-driven sampler. Construct with New; the zero
// value is not usable.
type AsyncSampler struct {
	dir  *threaddir.Directory
	tree *stacktree.Tree

	inProgress int32 // atomic reentrancy guard

	flags      frame.Flags
	timeMode   frame.TimeMode
	stdlibPath string

	samplingTID   uint64
	startTimeUS   uint64
	endTimeUS     uint64
	samplingTimes uint64
}

// New returns an AsyncSampler that folds samples into tree using dir for
// thread-name lookups. flags, timeMode and stdlibPath are captured once,
// at construction, since tick
// must not take a lock that could be held by the interrupted code.
func New(dir *threaddir.Directory, tree *stacktree.Tree, flags frame.Flags, timeMode frame.TimeMode, stdlibPath string) *AsyncSampler {
	return &AsyncSampler{
		dir:        dir,
		tree:       tree,
		flags:      flags,
		timeMode:   timeMode,
		stdlibPath: stdlibPath,
	}
}

// SetSamplingTID records which thread id is running the sampler itself,
// so its own stack is never folded into the tree.
func (a *AsyncSampler) SetSamplingTID(tid uint64) {
	atomic.StoreUint64(&a.samplingTID, tid)
}

// StartTimeUS and EndTimeUS bound the most recently completed tick.
func (a *AsyncSampler) StartTimeUS() uint64 { return atomic.LoadUint64(&a.startTimeUS) }
func (a *AsyncSampler) EndTimeUS() uint64   { return atomic.LoadUint64(&a.endTimeUS) }

// SamplingTimes returns how many ticks have completed a fold.
func (a *AsyncSampler) SamplingTimes() uint64 { return atomic.LoadUint64(&a.samplingTimes) }

// Tick is the async-signal-safe entry point. mainFrame is the main
// thread's current frame, supplied directly by the runtime's signal
// delivery. otherFrames is a tid-keyed snapshot of every other thread's
// leaf frame, captured by the host before it invoked Tick — the contract
// requires the host's own capture to be signal-safe, since Tick itself
// must not allocate beyond what it's handed. Tick never logs and never
// returns an error — a dropped sample on overflow is silent by design.
func (a *AsyncSampler) Tick(mainFrame hostiface.Frame, otherFrames map[uint64]hostiface.Frame) {
	if !atomic.CompareAndSwapInt32(&a.inProgress, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&a.inProgress, 0)

	atomic.StoreUint64(&a.startTimeUS, a.now())

	cfg := frame.Config{Flags: a.flags, StdlibPath: a.stdlibPath}

	if mainFrame != nil {
		if label, err := frame.Format(mainFrame, cfg); err == nil && label != "" {
			a.tree.Insert(frame.ThreadLabel("MainThread", label))
		}
	}

	active := a.dir.Active()
	samplingTID := atomic.LoadUint64(&a.samplingTID)
	for tid, fr := range otherFrames {
		if tid == samplingTID {
			continue
		}
		label, err := frame.Format(fr, cfg)
		if err != nil || label == "" {
			continue
		}
		name := active[tid]
		if name == "" {
			name = a.dir.NameOf(tid)
		}
		a.tree.Insert(frame.ThreadLabel(name, label))
	}

	atomic.AddUint64(&a.samplingTimes, 1)
	atomic.StoreUint64(&a.endTimeUS, a.now())
}

func (a *AsyncSampler) now() uint64 {
	switch a.timeMode {
	case frame.TimeModeCPU:
		return clock.ThreadCPUNS() / 1e3
	case frame.TimeModeNull:
		return 0
	default:
		return clock.WallUS()
	}
}
