// Package sampler implements the synchronous profiling loop: a single
// worker goroutine that wakes on an interval, snapshots every interpreter
// thread's leaf frame, folds each into the shared stack tree, and goes
// back to sleep. Grounded on telepysys/telepysys.c's _sampling_routine
// (sleep, then _PyThread_CurrentFrames + threading.enumerate, fold each
// non-sampler thread's frame into the tree, accumulate timing counters).
package sampler

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telepy-go/profiler/internal/clock"
	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/frame"
	"github.com/telepy-go/profiler/internal/hostiface"
	"github.com/telepy-go/profiler/internal/logutil"
	"github.com/telepy-go/profiler/internal/stacktree"
	"github.com/telepy-go/profiler/internal/threaddir"
)

// TimeMode selects which clock the sampler attributes elapsed sampling
// time to.
type TimeMode = frame.TimeMode

const (
	TimeModeWall = frame.TimeModeWall
	TimeModeCPU  = frame.TimeModeCPU
	TimeModeNull = frame.TimeModeNull
)

// Sampler is the synchronous call-stack sampler. The zero value is not
// usable; construct with New.
type Sampler struct {
	host      hostiface.Snapshotter
	dir       *threaddir.Directory
	stdlibAt  hostiface.StdlibPathProvider
	sessionID string

	mu         sync.Mutex
	tree       *stacktree.Tree
	flags      frame.Flags
	timeMode   TimeMode
	intervalUS int64 // atomic
	patterns   []*regexp.Regexp

	enabled       int32 // atomic
	startTimeUS   uint64
	lifeTimeUS    uint64
	accSamplingUS uint64
	samplingTimes uint64

	samplerTID    uint64 // atomic
	samplerTIDSet int32  // atomic

	stopCh chan struct{}
	done   chan struct{}
}

// New returns a stopped Sampler reading from host and dir, with the given
// initial sampling interval in microseconds.
func New(host hostiface.Snapshotter, dir *threaddir.Directory, stdlibAt hostiface.StdlibPathProvider, intervalUS int64) *Sampler {
	if stdlibAt != nil {
		// Resolve the stdlib path once; every sample reuses this result.
		path, err := stdlibAt()
		stdlibAt = func() (string, error) { return path, err }
	}
	return &Sampler{
		host:       host,
		dir:        dir,
		stdlibAt:   stdlibAt,
		sessionID:  uuid.New().String(),
		tree:       stacktree.New(),
		intervalUS: intervalUS,
		timeMode:   TimeModeWall,
	}
}

// Tree exposes the shared stack tree, for a component folding into the
// same aggregation the sampler itself writes to (the native-call tracer).
// The returned pointer is stale after a Clear(), which swaps in a fresh
// tree; callers that hold onto it across a Clear() must re-fetch it.
func (s *Sampler) Tree() *stacktree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// SessionID identifies this sampler instance, for correlating its dumps and
// counters across a debug server or log aggregator when more than one
// profiled process reports in.
func (s *Sampler) SessionID() string { return s.sessionID }

// SetFlags replaces the formatter flag word (debug, ignore_frozen,
// ignore_self, tree_mode, focus_mode).
func (s *Sampler) SetFlags(f frame.Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = f
}

// Flags returns the current formatter flag word.
func (s *Sampler) Flags() frame.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// SetTimeMode selects the clock used for acc_sampling_time accounting.
func (s *Sampler) SetTimeMode(m TimeMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeMode = m
}

// SetPatterns replaces the regex filter list; a frame is kept only if its
// filename or name matches at least one pattern. A nil or empty list
// disables the filter.
func (s *Sampler) SetPatterns(patterns []*regexp.Regexp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = patterns
}

// SetSamplerTID records the thread id of this sampler's own worker loop,
// so sampleOnce can exclude it from the snapshot it folds into the tree —
// mirroring asyncsampler.AsyncSampler's SetSamplingTID, which excludes the
// signal-driven sampler's own thread for the same reason: without it, a
// host whose CurrentFrames() snapshot includes the sampling thread itself
// would attribute samples to the profiler rather than the profiled code.
func (s *Sampler) SetSamplerTID(tid uint64) {
	atomic.StoreUint64(&s.samplerTID, tid)
	atomic.StoreInt32(&s.samplerTIDSet, 1)
}

// samplerTIDInfo returns the excluded tid and whether one has been set.
func (s *Sampler) samplerTIDInfo() (uint64, bool) {
	if atomic.LoadInt32(&s.samplerTIDSet) == 0 {
		return 0, false
	}
	return atomic.LoadUint64(&s.samplerTID), true
}

// SetIntervalUS sets the sleep interval between samples, read by the
// worker loop on every iteration so changes apply without a restart.
func (s *Sampler) SetIntervalUS(us int64) {
	atomic.StoreInt64(&s.intervalUS, us)
}

// IntervalUS returns the current sampling interval in microseconds.
func (s *Sampler) IntervalUS() int64 {
	return atomic.LoadInt64(&s.intervalUS)
}

// Enabled reports whether the worker loop is currently running.
func (s *Sampler) Enabled() bool {
	return atomic.LoadInt32(&s.enabled) != 0
}

// SamplingTimes returns the number of loop iterations executed so far.
func (s *Sampler) SamplingTimes() uint64 {
	return atomic.LoadUint64(&s.samplingTimes)
}

// AccSamplingTimeUS returns the cumulative time spent inside the
// snapshot-and-fold step, excluding sleeps.
func (s *Sampler) AccSamplingTimeUS() uint64 {
	return atomic.LoadUint64(&s.accSamplingUS)
}

// LifeTimeUS returns the wall time between Start and the most recent
// Stop, or 0 if the sampler has never been stopped.
func (s *Sampler) LifeTimeUS() uint64 {
	return atomic.LoadUint64(&s.lifeTimeUS)
}

// Start begins the worker loop. It fails with errorutil.ErrAlreadyEnabled
// if the sampler is already running.
func (s *Sampler) Start() error {
	if !atomic.CompareAndSwapInt32(&s.enabled, 0, 1) {
		return errorutil.ErrAlreadyEnabled
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	atomic.StoreUint64(&s.startTimeUS, clock.WallUS())
	go s.run(s.stopCh, s.done)
	return nil
}

// Stop signals the worker loop to exit and blocks until it has. It fails
// with errorutil.ErrNotEnabled if the sampler is not running.
func (s *Sampler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.enabled, 1, 0) {
		return errorutil.ErrNotEnabled
	}
	close(s.stopCh)
	<-s.done
	atomic.StoreUint64(&s.lifeTimeUS, clock.WallUS()-atomic.LoadUint64(&s.startTimeUS))
	return nil
}

// JoinSamplingThread blocks until a running worker loop exits, without
// itself requesting that exit. It is a no-op if the sampler was never
// started.
func (s *Sampler) JoinSamplingThread() {
	done := s.done
	if done == nil {
		return
	}
	<-done
}

// Clear resets every counter and swaps in a fresh, empty tree. It must
// only be called while the sampler is stopped.
func (s *Sampler) Clear() error {
	if s.Enabled() {
		return errorutil.ErrAlreadyEnabled
	}
	s.mu.Lock()
	old := s.tree
	s.tree = stacktree.New()
	s.mu.Unlock()
	old.Destroy()

	atomic.StoreUint64(&s.samplingTimes, 0)
	atomic.StoreUint64(&s.accSamplingUS, 0)
	atomic.StoreUint64(&s.lifeTimeUS, 0)
	atomic.StoreUint64(&s.startTimeUS, 0)
	return nil
}

// Dumps renders the current tree to the folded-stack format. Safe to call
// at any time; if a sampler is concurrently inserting, stop it first to
// get a consistent snapshot.
func (s *Sampler) Dumps() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Dumps()
}

// Save writes the folded-stack dump to path. A path ending in ".zst"
// writes a zstd-compressed artifact instead of plain text — useful when
// a long-running sampler's dump is large enough to be worth shrinking
// before it leaves the process.
func (s *Sampler) Save(path string) error {
	if path == "" {
		return errorutil.ErrInvalidPath
	}
	f, err := os.Create(path)
	if err != nil {
		return errorutil.ErrInvalidPath
	}
	defer f.Close()

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			return err
		}
		w = zw
	}

	s.mu.Lock()
	dumpErr := s.tree.Dump(w)
	s.mu.Unlock()

	if zw != nil {
		if closeErr := zw.Close(); dumpErr == nil {
			dumpErr = closeErr
		}
	}
	return dumpErr
}

func (s *Sampler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		atomic.AddUint64(&s.samplingTimes, 1)
		interval := time.Duration(atomic.LoadInt64(&s.intervalUS)) * time.Microsecond
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}

		t0 := s.now()
		s.sampleOnce()
		atomic.AddUint64(&s.accSamplingUS, s.now()-t0)
	}
}

func (s *Sampler) sampleOnce() {
	frames := s.host.CurrentFrames()
	if frames == nil {
		return
	}
	names, err := s.dir.Enumerate()
	if err != nil {
		log.Warn().Err(err).Msg("sampler: thread enumeration failed")
		names = nil
	}

	s.mu.Lock()
	flags := s.flags
	patterns := s.patterns
	s.mu.Unlock()

	var stdlibPath string
	if s.stdlibAt != nil {
		stdlibPath, _ = s.stdlibAt()
	}
	cfg := frame.Config{Flags: flags, StdlibPath: stdlibPath, Patterns: patterns}

	excludeTID, hasExclude := s.samplerTIDInfo()

	s.mu.Lock()
	defer s.mu.Unlock()
	for tid, fr := range frames {
		if hasExclude && tid == excludeTID {
			continue
		}
		stackLabel, err := frame.Format(fr, cfg)
		if err != nil {
			if err == errorutil.ErrBufferOverflow {
				quietLogger := logutil.Quiet(zerolog.WarnLevel)
				quietLogger.Debug().Uint64("tid", tid).Msg("sampler: dropping sample, format buffer overflow")
			}
			continue
		}
		if stackLabel == "" {
			continue
		}
		threadName := names[tid]
		if threadName == "" {
			threadName = s.dir.NameOf(tid)
		}
		s.tree.Insert(frame.ThreadLabel(threadName, stackLabel))
	}
}

func (s *Sampler) now() uint64 {
	s.mu.Lock()
	mode := s.timeMode
	s.mu.Unlock()
	switch mode {
	case TimeModeCPU:
		return clock.ThreadCPUNS() / 1e3
	case TimeModeNull:
		return 0
	default:
		return clock.WallUS()
	}
}

