// Package reporter wraps sentry-go for the synchronous, never-from-a-signal-
// handler code paths this profiler runs on: sampler start/stop, save
// failures, config load errors, debug-server request handling. The async
// sampler's Tick and the native-call tracer's Call/Return must never reach
// into this package — capturing an event can allocate and acquire locks,
// which is exactly what those call sites must not do.
//
// Grounded on cmd/vroom/main.go's sentry.Init/sentry.CaptureException use.
package reporter

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/telepy-go/profiler/internal/config"
)

// Init configures the global sentry-go client from cfg. A blank SentryDSN
// disables reporting; sentry-go silently no-ops CaptureException calls in
// that case, so callers don't need to special-case it.
func Init(cfg config.Config, release string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     release,
	})
}

// CaptureError reports err to sentry from a synchronous code path and
// returns err unchanged, so callers can wrap it inline:
//
//	return reporter.CaptureError(fmt.Errorf("save: %w", err))
func CaptureError(err error) error {
	if err != nil {
		sentry.CaptureException(err)
	}
	return err
}

// Flush blocks up to timeout waiting for buffered events to send, for use
// at process shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
