package sampler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/hostiface"
	"github.com/telepy-go/profiler/internal/threaddir"
)

type fakeCode struct {
	filename  string
	name      string
	firstLine uint32
}

func (c fakeCode) Filename() string             { return c.filename }
func (c fakeCode) Name() string                  { return c.name }
func (c fakeCode) QualifiedName() (string, bool) { return "", false }
func (c fakeCode) FirstLine() uint32             { return c.firstLine }

type fakeFrame struct {
	code fakeCode
}

func (f fakeFrame) Code() hostiface.CodeInfo       { return f.code }
func (f fakeFrame) CurrentLine() uint32            { return f.code.firstLine }
func (f fakeFrame) Back() (hostiface.Frame, bool)  { return nil, false }

type fakeSnapshotter struct {
	frames map[uint64]hostiface.Frame
}

func (s *fakeSnapshotter) CurrentFrames() map[uint64]hostiface.Frame { return s.frames }

type fakeThreadDir struct {
	names map[uint64]string
}

func (d *fakeThreadDir) Enumerate() (map[uint64]string, error) { return d.names, nil }
func (d *fakeThreadDir) Active() map[uint64]string             { return d.names }
func (d *fakeThreadDir) Limbo() map[uint64]string               { return nil }

func newTestSampler() *Sampler {
	host := &fakeSnapshotter{frames: map[uint64]hostiface.Frame{
		1: fakeFrame{code: fakeCode{filename: "main.py", name: "spin", firstLine: 10}},
	}}
	dir := threaddir.New(&fakeThreadDir{names: map[uint64]string{1: "MainThread"}})
	return New(host, dir, nil, 1000)
}

func TestSessionIDIsStableAndUnique(t *testing.T) {
	a := newTestSampler()
	b := newTestSampler()
	if a.SessionID() == "" {
		t.Fatalf("SessionID() is empty")
	}
	if a.SessionID() != a.SessionID() {
		t.Fatalf("SessionID() changed across calls on the same sampler")
	}
	if a.SessionID() == b.SessionID() {
		t.Fatalf("two samplers got the same SessionID()")
	}
}

func TestSetSamplerTIDExcludesOwnWorkerThread(t *testing.T) {
	host := &fakeSnapshotter{frames: map[uint64]hostiface.Frame{
		1: fakeFrame{code: fakeCode{filename: "main.py", name: "spin", firstLine: 10}},
		2: fakeFrame{code: fakeCode{filename: "sampler_worker.py", name: "loop", firstLine: 1}},
	}}
	dir := threaddir.New(&fakeThreadDir{names: map[uint64]string{1: "MainThread", 2: "Sampler"}})
	s := New(host, dir, nil, 1000)
	s.SetSamplerTID(2)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	dump := s.Dumps()
	if !strings.Contains(dump, "main.py") {
		t.Fatalf("Dumps() = %q, want a leaf referencing main.py", dump)
	}
	if strings.Contains(dump, "sampler_worker.py") {
		t.Fatalf("Dumps() = %q, want the excluded sampler tid's frame omitted", dump)
	}
}

func TestStartStopTransitions(t *testing.T) {
	s := newTestSampler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err != errorutil.ErrAlreadyEnabled {
		t.Fatalf("second Start() error = %v, want %v", err, errorutil.ErrAlreadyEnabled)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != errorutil.ErrNotEnabled {
		t.Fatalf("second Stop() error = %v, want %v", err, errorutil.ErrNotEnabled)
	}
}

func TestSamplerLiveness(t *testing.T) {
	s := newTestSampler()
	s.SetIntervalUS(1000) // 1ms
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := s.SamplingTimes(); got < 50 {
		t.Fatalf("SamplingTimes() = %d, want >= 50", got)
	}
	if got := s.Dumps(); !strings.Contains(got, "main.py") {
		t.Fatalf("Dumps() = %q, want a leaf referencing main.py", got)
	}
}

func TestClearResetsCountersAndTree(t *testing.T) {
	s := newTestSampler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := s.SamplingTimes(); got != 0 {
		t.Fatalf("SamplingTimes() after Clear() = %d, want 0", got)
	}
	if got := s.Dumps(); got != "" {
		t.Fatalf("Dumps() after Clear() = %q, want empty", got)
	}
}

func TestClearWhileRunningFails(t *testing.T) {
	s := newTestSampler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()
	if err := s.Clear(); err != errorutil.ErrAlreadyEnabled {
		t.Fatalf("Clear() while running error = %v, want %v", err, errorutil.ErrAlreadyEnabled)
	}
}

func TestSaveWritesPlainTextDump(t *testing.T) {
	s := newTestSampler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump.folded")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(contents), "main.py") {
		t.Fatalf("saved dump = %q, want a reference to main.py", string(contents))
	}
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	s := newTestSampler()
	if err := s.Save(""); err != errorutil.ErrInvalidPath {
		t.Fatalf("Save(\"\") error = %v, want %v", err, errorutil.ErrInvalidPath)
	}
}

func TestSaveCompressesZstSuffix(t *testing.T) {
	s := newTestSampler()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "dump.folded.zst")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("compressed dump is empty")
	}
}
