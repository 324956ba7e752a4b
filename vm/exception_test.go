package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Exception table search
// ---------------------------------------------------------------------------

func TestFindHandler(t *testing.T) {
	const fooType = 7
	table := []classfile.ExceptionEntry{
		{StartPC: 10, EndPC: 20, HandlerPC: 100, CatchType: fooType},
		{StartPC: 0, EndPC: 30, HandlerPC: 200, CatchType: 0},
	}
	isFoo := func(ct uint16) (bool, error) { return ct == fooType, nil }
	notFoo := func(uint16) (bool, error) { return false, nil }

	tests := []struct {
		name    string
		pc      int
		catches func(uint16) (bool, error)
		handler int
		found   bool
	}{
		{"typed entry first", 15, isFoo, 100, true},
		{"typed mismatch falls through", 15, notFoo, 200, true},
		{"only catch-all covers", 25, isFoo, 200, true},
		{"end is exclusive", 20, isFoo, 200, true},
		{"start is inclusive", 10, isFoo, 100, true},
		{"nothing covers", 35, isFoo, 0, false},
	}
	for _, tt := range tests {
		h, found, err := FindHandler(table, tt.pc, tt.catches)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if found != tt.found || h != tt.handler {
			t.Errorf("%s: FindHandler(pc %d) = %d, %v, want %d, %v", tt.name, tt.pc, h, found, tt.handler, tt.found)
		}
	}
}

func TestFindHandlerResolutionError(t *testing.T) {
	table := []classfile.ExceptionEntry{{StartPC: 0, EndPC: 10, HandlerPC: 5, CatchType: 3}}
	_, _, err := FindHandler(table, 1, func(uint16) (bool, error) { return false, ErrResolution })
	if !errors.Is(err, ErrResolution) {
		t.Errorf("err = %v, want ErrResolution", err)
	}
}

func TestUncaughtExceptionFormatting(t *testing.T) {
	c := &classfile.Class{Name: "java/lang/RuntimeException"}
	u := &UncaughtException{
		Exception: ObjectRef(1, c),
		Message:   "boom",
		Trace: []TraceEntry{
			{Class: "app/Main", Method: "fail", Descriptor: "()V", PC: 4},
			{Class: "app/Native", Method: "call", Descriptor: "()V", PC: -1},
		},
	}
	if got := u.Error(); got != "uncaught exception: java.lang.RuntimeException: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(u, ErrUncaught) {
		t.Error("UncaughtException should match ErrUncaught")
	}
	trace := u.StackTrace()
	if !strings.Contains(trace, "at app.Main.fail()V (pc 4)") {
		t.Errorf("trace missing interpreted frame:\n%s", trace)
	}
	if !strings.Contains(trace, "at app.Native.call()V (native)") {
		t.Errorf("trace missing native frame:\n%s", trace)
	}
}

func TestExecErrorFormatting(t *testing.T) {
	e := &ExecError{Err: ErrArithmetic, Op: OpIDIV, PC: 3, Class: "app/Main", Method: "div(II)I", Detail: "/ by zero"}
	want := "arithmetic error: / by zero (at app/Main.div(II)I pc=3 op=idiv)"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(e, ErrArithmetic) {
		t.Error("ExecError should unwrap to its cause")
	}
}
