// Package nativetrace interposes on calls into non-interpreted ("native")
// functions, attributing their CPU time to the stack tree with a
// duration-weighted sample count rather than waiting for the sampler to
// happen to catch them mid-call.
//
// Grounded on the per-thread-keyed map structure of
// calltree.BacktraceAggregator (one live entry per thread id, replaced or
// popped as call-stack events arrive) but simplified to the CALL/RETURN
// LIFO the host's profile hook delivers, rather than reconstructed from
// raw backtrace snapshots.
package nativetrace

import (
	"math"
	"sync"

	"github.com/telepy-go/profiler/internal/clock"
	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/stacktree"
)

// MaxThreadSlots is the default bound on the per-thread slot table. A
// thread seen for the first time past the table's configured limit fails
// hard rather than growing unbounded. Override per Tracer with
// SetMaxSlots.
const MaxThreadSlots = 2048

// DefaultDiscount compensates for overhead inside the tracer itself when
// converting a measured native-call duration into a sample-count weight.
// It must be strictly less than 1; 0.8 matches the original heuristic but
// is configurable via SetDiscount.
const DefaultDiscount = 0.8

// nowCPUNS is the clock read on every Call/Return; overridable in tests so
// duration-to-weight conversion can be exercised deterministically instead
// of depending on the host clock's resolution and the test's real
// wall-clock timing.
var nowCPUNS = clock.ThreadCPUNS

type pendingCall struct {
	nativeName  string
	callerLabel string
	callTimeNS  uint64
}

type threadSlot struct {
	mu    sync.Mutex
	stack []pendingCall
}

// Tracer folds native CALL/RETURN pairs into a stack tree. Construct with
// New; the zero value is not usable. Armed only while the embedding
// sampler is enabled and the trace-native flag is set — callers outside
// this package own that gating.
type Tracer struct {
	tree       *stacktree.Tree
	intervalUS int64
	discount   float64
	maxSlots   int

	tableMu sync.Mutex // guards slots, discount, intervalUS and maxSlots
	slots   map[uint64]*threadSlot
}

// New returns a Tracer folding into tree, converting measured native-call
// durations to weights against intervalUS (the sampler's configured
// sampling interval).
func New(tree *stacktree.Tree, intervalUS int64) *Tracer {
	return &Tracer{
		tree:       tree,
		intervalUS: intervalUS,
		discount:   DefaultDiscount,
		maxSlots:   MaxThreadSlots,
		slots:      make(map[uint64]*threadSlot),
	}
}

// SetDiscount overrides the duration-to-weight discount factor. Values
// >= 1 are rejected since the discount exists specifically to compensate
// for overhead the tracer itself adds.
func (t *Tracer) SetDiscount(discount float64) {
	if discount >= 1 {
		return
	}
	t.tableMu.Lock()
	t.discount = discount
	t.tableMu.Unlock()
}

// SetMaxSlots overrides the per-thread slot table size. Values <= 0 are
// rejected since a table with no room could never claim a single slot.
func (t *Tracer) SetMaxSlots(maxSlots int) {
	if maxSlots <= 0 {
		return
	}
	t.tableMu.Lock()
	t.maxSlots = maxSlots
	t.tableMu.Unlock()
}

// Call records the start of a native call on thread tid. callerLabel is
// the already-formatted interpreter frame chain active at the moment of
// the call, used to position the synthetic native frame when Return
// folds it into the tree.
func (t *Tracer) Call(tid uint64, callerLabel, nativeName string) error {
	slot, err := t.slotFor(tid)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	slot.stack = append(slot.stack, pendingCall{
		nativeName:  nativeName,
		callerLabel: callerLabel,
		callTimeNS:  nowCPUNS(),
	})
	slot.mu.Unlock()
	return nil
}

// Return closes the most recent pending call on thread tid, inserting a
// synthetic frame for the native function into the tree with a weight
// derived from the elapsed CPU time. moduleName labels which native
// module owned the call (e.g. an extension module name). If tid has no
// pending call, the tree is left untouched and errorutil.ErrNotEnabled is
// returned.
func (t *Tracer) Return(tid uint64, moduleName string) error {
	slot, err := t.slotFor(tid)
	if err != nil {
		return err
	}

	slot.mu.Lock()
	if len(slot.stack) == 0 {
		slot.mu.Unlock()
		return errorutil.ErrNotEnabled
	}
	call := slot.stack[len(slot.stack)-1]
	slot.stack = slot.stack[:len(slot.stack)-1]
	slot.mu.Unlock()

	durationNS := nowCPUNS() - call.callTimeNS
	durationUS := float64(durationNS) / 1000

	t.tableMu.Lock()
	discount := t.discount
	intervalUS := t.intervalUS
	t.tableMu.Unlock()
	if intervalUS <= 0 {
		intervalUS = 1
	}

	weight := uint64(math.Floor(durationUS / float64(intervalUS) * discount))
	if weight == 0 {
		return nil
	}

	nativeFrame := moduleName + ":" + call.nativeName + ":0"
	label := nativeFrame
	if call.callerLabel != "" {
		label = call.callerLabel + ";" + nativeFrame
	}
	t.tree.InsertWeighted(label, weight)
	return nil
}

// slotFor returns the slot owned by tid, claiming one on first touch.
// Every lookup, not only the first, takes the process-wide table lock;
// the slot's own stack is then guarded by the slot's mutex.
func (t *Tracer) slotFor(tid uint64) (*threadSlot, error) {
	t.tableMu.Lock()
	defer t.tableMu.Unlock()

	if slot, ok := t.slots[tid]; ok {
		return slot, nil
	}
	if len(t.slots) >= t.maxSlots {
		return nil, errorutil.ErrSlotTableFull
	}
	slot := &threadSlot{}
	t.slots[tid] = slot
	return slot, nil
}
