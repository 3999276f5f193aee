package main

import "github.com/telepy-go/profiler/internal/hostiface"

// demoCode and demoFrame give this binary something to sample without
// depending on a real interpreter binding. A production embedding wires
// its own hostiface implementation over its frame objects and thread
// registry; this one exists only so `go run ./cmd/telepyprofd` has
// something to show on /dump.
type demoCode struct {
	filename string
	name     string
	line     uint32
}

func (c demoCode) Filename() string                  { return c.filename }
func (c demoCode) Name() string                       { return c.name }
func (c demoCode) QualifiedName() (string, bool)      { return "", false }
func (c demoCode) FirstLine() uint32                  { return c.line }

type demoFrame struct {
	code *demoCode
	line uint32
	back *demoFrame
}

func (f *demoFrame) Code() hostiface.CodeInfo { return f.code }
func (f *demoFrame) CurrentLine() uint32      { return f.line }
func (f *demoFrame) Back() (hostiface.Frame, bool) {
	if f.back == nil {
		return nil, false
	}
	return f.back, true
}

func demoChain() *demoFrame {
	root := &demoFrame{code: &demoCode{filename: "main.py", name: "main", line: 1}, line: 1}
	hello := &demoFrame{code: &demoCode{filename: "main.py", name: "hello", line: 4}, line: 5, back: root}
	return hello
}

// demoHost implements hostiface.Snapshotter, hostiface.ThreadDirectory and
// debugserver.ObjectSnapshotter with a single fixed thread and a fixed
// live-object list, for demonstration.
type demoHost struct{}

func (demoHost) CurrentFrames() map[uint64]hostiface.Frame {
	return map[uint64]hostiface.Frame{1: demoChain()}
}

func (demoHost) Enumerate() (map[uint64]string, error) {
	return map[uint64]string{1: "MainThread"}, nil
}

func (demoHost) Active() map[uint64]string { return map[uint64]string{1: "MainThread"} }
func (demoHost) Limbo() map[uint64]string  { return nil }

func demoStdlibPath() (string, error) { return "", nil }

// demoLiveObject is a fixed live-object stand-in for the /objstats routes,
// analogous to demoChain for /dump — there's no real interpreter heap to
// walk in this standalone binary.
type demoLiveObject struct {
	typeName string
	size     uintptr
}

func (o demoLiveObject) TypeName() string   { return o.typeName }
func (o demoLiveObject) SizeBytes() uintptr { return o.size }

func (demoHost) LiveObjects() []hostiface.LiveObject {
	return []hostiface.LiveObject{
		demoLiveObject{typeName: "dict", size: 232},
		demoLiveObject{typeName: "dict", size: 232},
		demoLiveObject{typeName: "list", size: 120},
		demoLiveObject{typeName: "function", size: 152},
	}
}
