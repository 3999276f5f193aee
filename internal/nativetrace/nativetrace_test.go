package nativetrace

import (
	"strings"
	"testing"

	"github.com/telepy-go/profiler/internal/errorutil"
	"github.com/telepy-go/profiler/internal/stacktree"
)

func TestCallReturnInsertsSyntheticFrame(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)

	times := []uint64{0, 2_000_000} // 2ms elapsed CPU time
	call := 0
	orig := nowCPUNS
	nowCPUNS = func() uint64 {
		v := times[call]
		call++
		return v
	}
	defer func() { nowCPUNS = orig }()

	if err := tracer.Call(1, "main.py:hello:1", "native_sort"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if err := tracer.Return(1, "mymodule"); err != nil {
		t.Fatalf("Return() error = %v", err)
	}

	dump := tree.Dumps()
	if !strings.Contains(dump, "mymodule:native_sort:0") {
		t.Fatalf("Dumps() = %q, want a line containing the synthetic native frame", dump)
	}
}

func TestReturnWithoutCallIsNoop(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)
	if err := tracer.Return(1, "mymodule"); err != errorutil.ErrNotEnabled {
		t.Fatalf("Return() without Call() error = %v, want %v", err, errorutil.ErrNotEnabled)
	}
}

func TestSlotTableFullOnThreadOverflow(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)
	for i := uint64(0); i < MaxThreadSlots; i++ {
		if err := tracer.Call(i, "", "fn"); err != nil {
			t.Fatalf("Call(%d) error = %v", i, err)
		}
	}
	if err := tracer.Call(MaxThreadSlots, "", "fn"); err != errorutil.ErrSlotTableFull {
		t.Fatalf("Call() past MaxThreadSlots error = %v, want %v", err, errorutil.ErrSlotTableFull)
	}
}

func TestSetMaxSlotsShrinksTable(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)
	tracer.SetMaxSlots(2)

	if err := tracer.Call(1, "", "fn"); err != nil {
		t.Fatalf("Call(1) error = %v", err)
	}
	if err := tracer.Call(2, "", "fn"); err != nil {
		t.Fatalf("Call(2) error = %v", err)
	}
	if err := tracer.Call(3, "", "fn"); err != errorutil.ErrSlotTableFull {
		t.Fatalf("Call(3) past SetMaxSlots(2) error = %v, want %v", err, errorutil.ErrSlotTableFull)
	}
}

func TestSetMaxSlotsRejectsNonPositive(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)
	tracer.SetMaxSlots(0)
	if tracer.maxSlots != MaxThreadSlots {
		t.Fatalf("maxSlots = %d, want unchanged %d after rejecting 0", tracer.maxSlots, MaxThreadSlots)
	}
}

func TestSetDiscountRejectsValuesAtOrAboveOne(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)
	tracer.SetDiscount(1.0)
	if tracer.discount != DefaultDiscount {
		t.Fatalf("discount = %v, want unchanged %v after rejecting >= 1", tracer.discount, DefaultDiscount)
	}
	tracer.SetDiscount(0.5)
	if tracer.discount != 0.5 {
		t.Fatalf("discount = %v, want 0.5", tracer.discount)
	}
}

func TestNestedCallsUseLIFOOrder(t *testing.T) {
	tree := stacktree.New()
	tracer := New(tree, 1000)

	if err := tracer.Call(1, "main.py:a:1", "outer"); err != nil {
		t.Fatalf("Call(outer) error = %v", err)
	}
	if err := tracer.Call(1, "main.py:a:1;mymodule:outer:0", "inner"); err != nil {
		t.Fatalf("Call(inner) error = %v", err)
	}
	// inner returns first (LIFO); must not panic or error.
	if err := tracer.Return(1, "mymodule"); err != nil {
		t.Fatalf("Return(inner) error = %v", err)
	}
	if err := tracer.Return(1, "mymodule"); err != nil {
		t.Fatalf("Return(outer) error = %v", err)
	}
	if err := tracer.Return(1, "mymodule"); err != errorutil.ErrNotEnabled {
		t.Fatalf("third Return() error = %v, want %v", err, errorutil.ErrNotEnabled)
	}
}
