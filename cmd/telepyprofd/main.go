// Command telepyprofd wires the sampler, the native-call tracer, the
// debug HTTP server and the ambient logging/config/reporting stack
// together into a runnable process. It carries its own demoHost so it
// has something to sample standalone; an embedding runtime replaces
// demoHost with its own hostiface bindings and otherwise reuses this
// wiring unchanged.
//
// Flag/argument parsing is intentionally out of scope: every knob here
// comes from the environment via internal/config.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telepy-go/profiler/internal/config"
	"github.com/telepy-go/profiler/internal/debugserver"
	"github.com/telepy-go/profiler/internal/frame"
	"github.com/telepy-go/profiler/internal/logutil"
	"github.com/telepy-go/profiler/internal/nativetrace"
	"github.com/telepy-go/profiler/internal/reporter"
	"github.com/telepy-go/profiler/internal/sampler"
	"github.com/telepy-go/profiler/internal/threaddir"
)

var release string

// demoSamplerTID is the thread id this binary's sampler worker loop would
// appear under if a host ever reported it in CurrentFrames(); demoHost
// never does, but main still exercises SetSamplerTID so the exclusion
// path isn't dead in the only runnable binary.
const demoSamplerTID = 0xffff_ffff

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logutil.Configure(level)

	if err := reporter.Init(cfg, release); err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}
	defer reporter.Flush(5 * time.Second)

	host := demoHost{}
	dir := threaddir.New(host)
	s := sampler.New(host, dir, demoStdlibPath, cfg.IntervalUS)
	s.SetSamplerTID(demoSamplerTID)
	s.SetFlags(flagsFromConfig(cfg))

	if patterns, err := compilePatterns(cfg.RegexPatterns); err != nil {
		log.Fatal().Err(err).Msg("can't compile TELEPY_REGEX_PATTERNS")
	} else {
		s.SetPatterns(patterns)
	}

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("can't start sampler")
	}

	if cfg.TraceNative {
		tracer := nativetrace.New(s.Tree(), cfg.IntervalUS)
		tracer.SetDiscount(cfg.NativeDiscount)
		tracer.SetMaxSlots(cfg.MaxThreadSlots)
		demoExerciseNativeTrace(tracer)
	}

	var server *http.Server
	if cfg.DebugServerAddr != "" {
		router, err := debugserver.NewRouter(s, host)
		if err != nil {
			reporter.CaptureError(err)
			log.Fatal().Err(err).Msg("can't build debug router")
		}
		server = &http.Server{Addr: cfg.DebugServerAddr, Handler: router}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				reporter.CaptureError(err)
				log.Err(err).Msg("debug server failed")
			}
		}()
	}

	waitForShutdown := make(chan os.Signal, 1)
	signal.Notify(waitForShutdown, os.Interrupt, syscall.SIGTERM)
	<-waitForShutdown

	if err := s.Stop(); err != nil {
		reporter.CaptureError(err)
		log.Err(err).Msg("error stopping sampler")
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			reporter.CaptureError(err)
			log.Err(err).Msg("error shutting down debug server")
		}
	}
}

// flagsFromConfig assembles the frame formatter's bitset from the
// individual boolean knobs config.Load reads from the environment.
func flagsFromConfig(cfg config.Config) frame.Flags {
	var f frame.Flags
	if cfg.Debug {
		f |= frame.FlagDebug
	}
	if cfg.IgnoreFrozen {
		f |= frame.FlagIgnoreFrozen
	}
	if cfg.IgnoreSelf {
		f |= frame.FlagIgnoreSelf
	}
	if cfg.TreeMode {
		f |= frame.FlagTreeMode
	}
	if cfg.FocusMode {
		f |= frame.FlagFocusMode
	}
	return f
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// demoExerciseNativeTrace folds one synthetic native call into tracer's
// tree so TELEPY_TRACE_NATIVE=true has something to show on /dump in this
// standalone binary; an embedding host calls Call/Return itself, from its
// own native-call interposition hook, instead of this demo shim.
func demoExerciseNativeTrace(tracer *nativetrace.Tracer) {
	const tid = 1
	if err := tracer.Call(tid, "main.py:hello:1", "native_sort"); err != nil {
		log.Warn().Err(err).Msg("demo native trace call failed")
		return
	}
	time.Sleep(time.Millisecond)
	if err := tracer.Return(tid, "mymodule"); err != nil {
		log.Warn().Err(err).Msg("demo native trace return failed")
	}
}
