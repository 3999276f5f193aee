// Package debugserver exposes the running sampler's folded-stack dump and
// counters over HTTP, for operators who want to pull a profile without
// stopping the profiled process.
//
// Grounded on cmd/vroom/main.go's newRouter: a julienschmidt/httprouter
// mux wrapping every handler in a CAFxX/httpcompression response adapter.
package debugserver

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/CAFxX/httpcompression"
	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/telepy-go/profiler/internal/hostiface"
	"github.com/telepy-go/profiler/internal/httputil"
	"github.com/telepy-go/profiler/internal/objstats"
)

// Sampler is the subset of *sampler.Sampler this server needs; kept as an
// interface so tests can supply a double without constructing a real one.
type Sampler interface {
	Dumps() string
	Enabled() bool
	SamplingTimes() uint64
	AccSamplingTimeUS() uint64
	LifeTimeUS() uint64
	IntervalUS() int64
}

// ObjectSnapshotter is the subset of the embedding host this server needs
// to expose object-statistics routes: a way to list every currently live
// object, the same primitive internal/objstats.Collect aggregates over.
type ObjectSnapshotter interface {
	LiveObjects() []hostiface.LiveObject
}

// snapshotStore holds named objstats.Snapshot captures in memory, so a
// caller can take one now and diff it against a later one — there is no
// persistence across process restarts.
type snapshotStore struct {
	mu   sync.Mutex
	next uint64
	byID map[string]objstats.Snapshot
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{byID: make(map[string]objstats.Snapshot)}
}

func (s *snapshotStore) put(snap objstats.Snapshot) string {
	id := strconv.FormatUint(atomic.AddUint64(&s.next, 1), 10)
	s.mu.Lock()
	s.byID[id] = snap
	s.mu.Unlock()
	return id
}

func (s *snapshotStore) get(id string) (objstats.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.byID[id]
	return snap, ok
}

type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

// NewRouter builds the debug HTTP router for s. objs may be nil, in which
// case the /objstats* routes are omitted — not every embedding host can
// enumerate its live objects.
func NewRouter(s Sampler, objs ObjectSnapshotter) (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []route{
		{http.MethodGet, "/health", getHealth},
		{http.MethodGet, "/dump", dumpHandler(s)},
		{http.MethodGet, "/stats", statsHandler(s)},
	}

	if objs != nil {
		store := newSnapshotStore()
		routes = append(routes,
			route{http.MethodGet, "/objstats", objStatsHandler(objs)},
			route{http.MethodPost, "/objstats/snapshot", objStatsSnapshotHandler(objs, store)},
			route{http.MethodGet, "/objstats/diff", objStatsDiffHandler(store)},
		)
	}

	router := httprouter.New()
	for _, r := range routes {
		router.Handler(r.method, r.path, compress(r.handler))
	}
	return router, nil
}

func getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func dumpHandler(s Sampler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte(s.Dumps())); err != nil {
			log.Error().Err(err).Msg("debugserver: writing dump response")
		}
	}
}

// stats is the JSON shape returned by the /stats endpoint.
type stats struct {
	Enabled           bool   `json:"enabled"`
	SamplingTimes     uint64 `json:"sampling_times"`
	AccSamplingTimeUS uint64 `json:"acc_sampling_time_us"`
	LifeTimeUS        uint64 `json:"life_time_us"`
	IntervalUS        int64  `json:"interval_us"`
}

func statsHandler(s Sampler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(stats{
			Enabled:           s.Enabled(),
			SamplingTimes:     s.SamplingTimes(),
			AccSamplingTimeUS: s.AccSamplingTimeUS(),
			LifeTimeUS:        s.LifeTimeUS(),
			IntervalUS:        s.IntervalUS(),
		})
		if err != nil {
			http.Error(w, "encoding stats", http.StatusInternalServerError)
			log.Error().Err(err).Msg("debugserver: marshaling stats")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if _, err := w.Write(body); err != nil {
			log.Error().Err(err).Msg("debugserver: writing stats response")
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		log.Error().Err(err).Msg("debugserver: marshaling objstats response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("debugserver: writing objstats response")
	}
}

// objStatsHandler serves a single-pass object-statistics aggregation over
// the host's current live objects. ?memory=1 additionally tallies
// per-type byte sizes.
func objStatsHandler(objs ObjectSnapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeMemory := r.URL.Query().Get("memory") != ""
		snap := objstats.Collect(objs.LiveObjects(), includeMemory)
		writeJSON(w, snap)
	}
}

// objStatsSnapshotHandler captures the current object-statistics snapshot
// into the in-memory store and returns its id, for a later /objstats/diff
// call.
func objStatsSnapshotHandler(objs ObjectSnapshotter, store *snapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeMemory := r.URL.Query().Get("memory") != ""
		snap := objstats.Collect(objs.LiveObjects(), includeMemory)
		id := store.put(snap)
		writeJSON(w, struct {
			ID string `json:"id"`
		}{ID: id})
	}
}

// objStatsDiffHandler diffs two previously captured snapshots, identified
// by the required "from" and "to" query parameters.
func objStatsDiffHandler(store *snapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, _, ok := httputil.GetRequiredQueryParameters(w, r, "from", "to")
		if !ok {
			return
		}
		before, ok := store.get(params["from"])
		if !ok {
			http.Error(w, "unknown from snapshot id", http.StatusNotFound)
			return
		}
		after, ok := store.get(params["to"])
		if !ok {
			http.Error(w, "unknown to snapshot id", http.StatusNotFound)
			return
		}
		writeJSON(w, objstats.DiffSnapshots(before, after))
	}
}
