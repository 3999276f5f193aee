package logutil

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MinLevelSampler is a zerolog.Sampler (a log-verbosity filter, unrelated to
// this module's stack Sampler) that admits only events at or above Level.
type MinLevelSampler struct {
	Level zerolog.Level
}

func (l MinLevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}

// Quiet returns a logger derived from the process-wide logger with a
// MinLevelSampler floor attached, for call sites that log on every
// sampling iteration and would otherwise spam output whenever an operator
// turns the global level down to debug — the floor keeps them muted
// unless they are actually at or above atLeast.
func Quiet(atLeast zerolog.Level) zerolog.Logger {
	return log.Logger.Sample(MinLevelSampler{Level: atLeast})
}
