// Package logutil configures the process-wide zerolog logger used by every
// other package in this module. Only the async sampler's tick callback is
// forbidden from logging, for async-signal-safety — the components that do
// log (the synchronous sampler, the debug server and cmd/telepyprofd) log
// through this logger at debug/warn/error.
package logutil

import (
	"os"

	"cloud.google.com/go/compute/metadata"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure installs the process-wide logger. Call it once, before
// starting any sampler. The writer is chosen automatically: a structured
// hook promoting severity into its own field when running on GCE (where a
// log collector expects structured lines), a human-readable ConsoleWriter
// everywhere else.
func Configure(level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Caller().Logger().Level(level)
	if metadata.OnGCE() {
		log.Logger = logger.Hook(ErrorHook{})
	} else {
		log.Logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// ErrorHook promotes the zerolog level into a "severity" field, the
// convention structured log collectors (e.g. Cloud Logging) key on.
type ErrorHook struct{}

func (h ErrorHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	e.Str("severity", level.String())
}
