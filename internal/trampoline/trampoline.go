// Package trampoline lets a background thread ask the embedding runtime's
// main thread to run a callable on its behalf — for host APIs that are
// only safe to call from the main thread.
//
// Grounded on thread.py's PyMainTrampoline: register the callable with the
// runtime, then block until the main thread has run it and signaled
// completion.
package trampoline

import (
	"sync"

	"github.com/telepy-go/profiler/internal/hostiface"
)

// Trampoline schedules callables onto the runtime's main thread through a
// hostiface.MainThreadScheduler.
type Trampoline struct {
	scheduler hostiface.MainThreadScheduler
}

// New returns a Trampoline that schedules through scheduler.
func New(scheduler hostiface.MainThreadScheduler) *Trampoline {
	return &Trampoline{scheduler: scheduler}
}

// Schedule enqueues fn to run on the main thread and returns immediately;
// the actual invocation happens the next time the main thread checks for
// pending callbacks. Use Call instead to block until fn has run.
func (t *Trampoline) Schedule(fn func()) error {
	return t.scheduler.ScheduleOnMain(fn)
}

// Call schedules fn on the main thread and blocks the calling goroutine
// until it has run, mirroring the original's wait-for-completion contract
// for out-of-band threads that need a result before continuing.
func (t *Trampoline) Call(fn func()) error {
	var wg sync.WaitGroup
	wg.Add(1)
	err := t.scheduler.ScheduleOnMain(func() {
		defer wg.Done()
		fn()
	})
	if err != nil {
		return err
	}
	wg.Wait()
	return nil
}
