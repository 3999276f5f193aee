// Package frame turns a host frame chain into the folded-stack label the
// stack tree keys on: filename:name:lineno components, semicolon-joined,
// root first. Grounded in the teacher's own Frame helpers (IsPythonApplicationFrame
// and friends matched on a Path substring) but reworked against the
// hostiface.Frame chain instead of a deserialized profile frame, since this
// module formats live frames rather than frames already captured to JSON.
package frame

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/hostiface"
)

// MaxLabelBytes is the size of the preallocated format buffer. A stack deep
// enough to overflow it is a hard failure: the sample is dropped, never
// truncated.
const MaxLabelBytes = 16 * 1024

// TimeMode selects which clock a sampler attributes elapsed time to.
type TimeMode int

const (
	TimeModeWall TimeMode = iota
	TimeModeCPU
	TimeModeNull
)

// Flags is the bitset the dynamic boolean properties of the source
// collapse into. Each flag has its own bit rather than reusing another
// flag's storage.
type Flags uint8

const (
	FlagDebug Flags = 1 << iota
	FlagIgnoreFrozen
	FlagIgnoreSelf
	FlagTreeMode
	FlagFocusMode
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Config bundles the formatter's filter inputs: the flag word, an optional
// list of compiled regex matchers, and the runtime's standard-library path
// (looked up once, at sampler construction, for focus-mode).
type Config struct {
	Flags      Flags
	Patterns   []*regexp.Regexp
	StdlibPath string
}

// Format walks chain leaf-to-root, applies the configured filters frame by
// frame, and writes the kept frames as a semicolon-joined, root-first
// label into a buffer preallocated to MaxLabelBytes. It returns
// errorutil.ErrBufferOverflow, unmodified, if the label would exceed
// MaxLabelBytes — the caller must discard the
// whole sample rather than write a truncated one.
func Format(chain hostiface.Frame, cfg Config) (string, error) {
	frames := collectLeafToRoot(chain)

	var buf bytes.Buffer
	buf.Grow(MaxLabelBytes)
	wrote := false
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		label, keep := formatOne(fr, cfg)
		if !keep {
			continue
		}
		if wrote {
			if buf.Len()+1 > MaxLabelBytes {
				return "", errorutil.ErrBufferOverflow
			}
			buf.WriteByte(';')
		}
		if buf.Len()+len(label) > MaxLabelBytes {
			return "", errorutil.ErrBufferOverflow
		}
		buf.WriteString(label)
		wrote = true
	}
	return buf.String(), nil
}

// collectLeafToRoot walks Back() until the chain is exhausted, returning
// frames in leaf-first order (index 0 is the leaf).
func collectLeafToRoot(chain hostiface.Frame) []hostiface.Frame {
	var frames []hostiface.Frame
	f := chain
	for f != nil {
		frames = append(frames, f)
		back, ok := f.Back()
		if !ok {
			break
		}
		f = back
	}
	return frames
}

// formatOne applies the filter pipeline to a single frame and, if kept,
// renders it as filename:name:lineno. Filter order (focus-mode, then
// ignore-self, then regex, then ignore-frozen) is an explicit, deterministic
// choice among orderings that all reproduce the same observed behavior.
func formatOne(fr hostiface.Frame, cfg Config) (string, bool) {
	code := fr.Code()
	filename := code.Filename()
	name := code.Name()
	if qualified, ok := code.QualifiedName(); ok {
		name = qualified
	}

	if cfg.Flags.has(FlagFocusMode) && isStdlibOrSitePackages(filename, cfg.StdlibPath) {
		return "", false
	}
	if cfg.Flags.has(FlagIgnoreSelf) && isProfilerOwnFrame(filename) {
		return "", false
	}
	if len(cfg.Patterns) > 0 && !matchesAnyPattern(cfg.Patterns, filename, name) {
		return "", false
	}
	if cfg.Flags.has(FlagIgnoreFrozen) && strings.HasPrefix(filename, "<frozen") {
		return "", false
	}

	var line uint32
	if cfg.Flags.has(FlagTreeMode) {
		line = fr.CurrentLine()
	} else {
		line = code.FirstLine()
	}

	return filename + ":" + name + ":" + strconv.FormatUint(uint64(line), 10), true
}

func isStdlibOrSitePackages(filename, stdlibPath string) bool {
	if strings.Contains(filename, "site-packages/") || strings.Contains(filename, "dist-packages/") {
		return true
	}
	return stdlibPath != "" && strings.HasPrefix(filename, stdlibPath)
}

func isProfilerOwnFrame(filename string) bool {
	if idx := strings.Index(filename, "/site-packages/"); idx >= 0 {
		rest := filename[idx+len("/site-packages/"):]
		if strings.HasPrefix(rest, ownPackageName+"/") {
			return true
		}
	}
	return strings.Contains(filename, "/bin/"+ownEntrypointName)
}

func matchesAnyPattern(patterns []*regexp.Regexp, filename, name string) bool {
	for _, p := range patterns {
		if p.MatchString(filename) || p.MatchString(name) {
			return true
		}
	}
	return false
}

// ownPackageName and ownEntrypointName identify this profiler's own
// frames for the ignore-self filter, so a sample never attributes time to
// the profiler interposing on the program it's measuring.
const (
	ownPackageName    = "telepy"
	ownEntrypointName = "telepyprofd"
)

// ThreadLabel prepends a thread's display name to a formatted stack label,
// producing the full folded-stack key a tree Insert expects.
func ThreadLabel(threadName, stackLabel string) string {
	if stackLabel == "" {
		return threadName
	}
	return fmt.Sprintf("%s;%s", threadName, stackLabel)
}
