// Package threaddir resolves thread ids to human-readable names through
// hostiface.ThreadDirectory, in the two strategies the original sampler
// used: a synchronous, allocation-tolerant enumeration off the hot path,
// and a signal-safe read of the registry's already-built active/limbo
// maps for use from inside the async sampler's tick.
//
// Grounded on telepysys/telepysys.c's get_thread_name (a linear scan of
// threading.enumerate() matching on thread id) for the synchronous path,
// and its sampler_info()/tick() use of threading._active and
// threading._limbo for the signal-safe path.
package threaddir

import (
	"sync"

	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/hostiface"
)

// Directory wraps a hostiface.ThreadDirectory with a name cache, so a
// thread whose id was already resolved doesn't require another host round
// trip on every sample.
type Directory struct {
	host hostiface.ThreadDirectory

	mu    sync.RWMutex
	names map[uint64]string
}

// New returns a Directory backed by host.
func New(host hostiface.ThreadDirectory) *Directory {
	return &Directory{host: host, names: make(map[uint64]string)}
}

// Enumerate refreshes the name cache from the host's synchronous
// enumeration and returns the full tid -> name mapping observed. It may
// allocate and take locks; callers must not call it from a signal handler
// or the async sampler's tick.
func (d *Directory) Enumerate() (map[uint64]string, error) {
	names, err := d.host.Enumerate()
	if err != nil {
		return nil, errorutil.ErrHostFailure
	}
	d.mu.Lock()
	for tid, name := range names {
		d.names[tid] = name
	}
	d.mu.Unlock()

	out := make(map[uint64]string, len(names))
	for tid, name := range names {
		out[tid] = name
	}
	return out, nil
}

// NameOf returns the cached name for tid, falling back to a synthesized
// "Thread-<tid>" label if the thread was never seen by Enumerate.
func (d *Directory) NameOf(tid uint64) string {
	d.mu.RLock()
	name, ok := d.names[tid]
	d.mu.RUnlock()
	if ok {
		return name
	}
	return syntheticName(tid)
}

// Active returns the registry's active-thread mapping without taking any
// lock the interrupted code might hold. Safe to call from the async
// sampler's tick.
func (d *Directory) Active() map[uint64]string {
	return d.host.Active()
}

// Limbo returns the registry's still-starting thread mapping. Safe to
// call from the async sampler's tick.
func (d *Directory) Limbo() map[uint64]string {
	return d.host.Limbo()
}

func syntheticName(tid uint64) string {
	const prefix = "Thread-"
	return prefix + uitoa(tid)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
