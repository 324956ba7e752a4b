package vm

import (
	"fmt"
	"strings"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Exception Handling Infrastructure
// ---------------------------------------------------------------------------

// PendingException is a guest exception in flight. It travels in the
// completion of each invocation step and collects one TraceEntry per frame
// it unwinds.
type PendingException struct {
	Object Value
	Trace  []TraceEntry
}

// TraceEntry identifies a frame the exception passed through.
type TraceEntry struct {
	Class      string
	Method     string
	Descriptor string
	PC         int // -1 for native methods
}

func (t TraceEntry) String() string {
	where := fmt.Sprintf("pc %d", t.PC)
	if t.PC < 0 {
		where = "native"
	}
	return fmt.Sprintf("%s.%s%s (%s)", strings.ReplaceAll(t.Class, "/", "."), t.Method, t.Descriptor, where)
}

func traceEntry(f *Frame) TraceEntry {
	t := TraceEntry{PC: f.PC}
	if f.Class != nil {
		t.Class = f.Class.Name
	}
	if f.Method != nil {
		t.Method = f.Method.Name
		t.Descriptor = f.Method.Descriptor
	}
	return t
}

// FindHandler scans an exception table in order and returns the handler
// address of the first entry whose [start, end) range covers pc and whose
// catch type matches. Catch type 0 matches every exception; other catch
// types are decided by catches.
func FindHandler(table []classfile.ExceptionEntry, pc int, catches func(catchType uint16) (bool, error)) (int, bool, error) {
	for _, e := range table {
		if !e.Covers(pc) {
			continue
		}
		if e.CatchType == 0 {
			return int(e.HandlerPC), true, nil
		}
		ok, err := catches(e.CatchType)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return int(e.HandlerPC), true, nil
		}
	}
	return 0, false, nil
}

// findHandler searches the current frame's exception table for a handler
// of ex at the frame's PC.
func (i *Interpreter) findHandler(f *Frame, ex Value) (int, bool, error) {
	if f.Method == nil || f.Method.Code == nil {
		return 0, false, nil
	}
	return FindHandler(f.Method.Code.ExceptionTable, f.PC, func(catchType uint16) (bool, error) {
		catchClass, err := i.resolveClass(f, catchType)
		if err != nil {
			return false, err
		}
		return i.vm.IsAssignable(ex.Class(), catchClass), nil
	})
}

// NewThrowable instantiates className and runs its constructor, passing
// message when it is not empty.
func (i *Interpreter) NewThrowable(className, message string) (Value, error) {
	c, err := i.vm.loadClass(className)
	if err != nil {
		return Null, err
	}
	if err := i.initialize(c); err != nil {
		return Null, err
	}
	obj, err := i.vm.Heap.NewObject(c)
	if err != nil {
		return Null, err
	}
	desc, args := "()V", []Value{obj}
	if message != "" {
		s, err := i.vm.Intern(message)
		if err != nil {
			return Null, err
		}
		desc, args = "(Ljava/lang/String;)V", []Value{obj, s}
	}
	ctor := c.FindMethod("<init>", desc)
	if ctor == nil {
		return Null, fmt.Errorf("%w: %s has no constructor %s", ErrResolution, className, desc)
	}
	res, err := i.invokeMethod(c, ctor, args)
	if err != nil {
		return Null, err
	}
	if res.thrown != nil {
		return Null, i.uncaught(res.thrown)
	}
	return obj, nil
}

// uncaught converts an exception that escaped the outermost frame into
// the error returned to the embedder.
func (i *Interpreter) uncaught(p *PendingException) *UncaughtException {
	u := &UncaughtException{Exception: p.Object, Trace: p.Trace}
	if msg, ok := i.detailMessage(p.Object); ok {
		u.Message = msg
	}
	i.vm.Log.Debugf("uncaught %s in interpreter %s", p.Object, i.Name)
	return u
}

// detailMessage reads Throwable.detailMessage when the exception is a
// Throwable carrying a String message.
func (i *Interpreter) detailMessage(ex Value) (string, bool) {
	throwable, err := i.vm.Classes.LoadClass("java/lang/Throwable")
	if err != nil || !i.vm.IsSubclass(ex.Class(), throwable) {
		return "", false
	}
	msg, err := i.vm.Heap.GetField(ex, throwable, "detailMessage", "Ljava/lang/String;")
	if err != nil || msg.IsNull() {
		return "", false
	}
	s, err := i.vm.GoString(msg)
	if err != nil {
		return "", false
	}
	return s, true
}
