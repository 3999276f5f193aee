// Package config loads this profiler's tunables the way the embedding
// process wants to supply them: environment variables first, with
// defaults for everything a caller doesn't set. Command-line parsing is
// out of scope — callers that want flags own translating them into a
// Config themselves.
//
// Grounded on TelePySamplerConfig's field set (config.py) for which knobs
// exist and their defaults, and on the teacher's cmd/vroom wiring for the
// pattern of a single struct describing everything a service needs to
// boot, loaded declaratively rather than by hand-parsing os.Getenv calls.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every tunable the sampler, async sampler, native-call
// tracer and debug server need. Field tags are read by cleanenv from
// environment variables, falling back to the given default when unset.
type Config struct {
	// IntervalUS is the synchronous sampler's sampling interval in
	// microseconds.
	IntervalUS int64 `env:"TELEPY_INTERVAL_US" env-default:"8000"`

	// BufferBytes is loaded from the environment but not read by any
	// component; the frame formatter's label buffer is always the fixed
	// frame.MaxLabelBytes.
	BufferBytes int `env:"TELEPY_BUFFER_BYTES" env-default:"16384"`

	// TraceNative enables the native-call tracer alongside the sampler.
	TraceNative bool `env:"TELEPY_TRACE_NATIVE" env-default:"false"`

	// NativeDiscount is the native-call tracer's duration-to-weight
	// discount factor; must be < 1.
	NativeDiscount float64 `env:"TELEPY_NATIVE_DISCOUNT" env-default:"0.8"`

	// MaxThreadSlots bounds the native-call tracer's per-thread slot table.
	MaxThreadSlots int `env:"TELEPY_MAX_THREAD_SLOTS" env-default:"2048"`

	// IgnoreFrozen, FocusMode and IgnoreSelf mirror the frame formatter's
	// filter flags.
	IgnoreFrozen bool `env:"TELEPY_IGNORE_FROZEN" env-default:"false"`
	FocusMode    bool `env:"TELEPY_FOCUS_MODE" env-default:"false"`
	IgnoreSelf   bool `env:"TELEPY_IGNORE_SELF" env-default:"true"`
	TreeMode     bool `env:"TELEPY_TREE_MODE" env-default:"false"`
	Debug        bool `env:"TELEPY_DEBUG" env-default:"false"`

	// RegexPatterns restricts formatted frames to those matching at
	// least one pattern; empty means no restriction.
	RegexPatterns []string `env:"TELEPY_REGEX_PATTERNS" env-separator:","`

	// DebugServerAddr is the listen address for the optional debug HTTP
	// server exposing dumps and counters; empty disables it.
	DebugServerAddr string `env:"TELEPY_DEBUG_ADDR" env-default:""`

	// SentryDSN, if set, enables error reporting from the synchronous
	// (never the signal-handler) code paths.
	SentryDSN   string `env:"SENTRY_DSN" env-default:""`
	Environment string `env:"TELEPY_ENVIRONMENT" env-default:"development"`
}

// Load reads a Config from the process environment, applying defaults
// for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}
	return cfg, nil
}
