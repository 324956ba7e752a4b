package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Host-level failures. These abort the current top-level invocation and
// are never visible to guest exception handlers. Callers match them with
// errors.Is.
var (
	ErrNullReference       = errors.New("null reference")
	ErrIndexOutOfBounds    = errors.New("array index out of bounds")
	ErrNegativeArraySize   = errors.New("negative array size")
	ErrArithmetic          = errors.New("arithmetic error")
	ErrResolution          = errors.New("resolution error")
	ErrUnsupported         = errors.New("unsupported operation")
	ErrInvariant           = errors.New("interpreter invariant violated")
	ErrCallDepth           = errors.New("call depth exceeded")
	ErrNativeMissing       = errors.New("native method not registered")
	ErrIllegalMonitorState = errors.New("monitor not owned by current thread")
	ErrUncaught            = errors.New("uncaught exception")
)

// ExecError carries the diagnostic context of a host-level failure: the
// opcode being executed, its address and the owning method.
type ExecError struct {
	Err    error
	Op     Opcode
	PC     int
	Class  string
	Method string // name plus descriptor
	Detail string
}

func (e *ExecError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Class != "" {
		fmt.Fprintf(&b, " (at %s.%s pc=%d op=%s)", e.Class, e.Method, e.PC, e.Op)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error { return e.Err }

// UncaughtException is returned by Invoke when a guest exception escapes
// the outermost frame.
type UncaughtException struct {
	Exception Value
	Trace     []TraceEntry
	Message   string // detailMessage of the throwable, if it was a String
}

func (e *UncaughtException) Error() string {
	name := "<unknown>"
	if c := e.Exception.Class(); c != nil {
		name = strings.ReplaceAll(c.Name, "/", ".")
	}
	if e.Message != "" {
		return fmt.Sprintf("%v: %s: %s", ErrUncaught, name, e.Message)
	}
	return fmt.Sprintf("%v: %s", ErrUncaught, name)
}

func (e *UncaughtException) Unwrap() error { return ErrUncaught }

// StackTrace renders the trace innermost frame first, one "at" line per
// frame.
func (e *UncaughtException) StackTrace() string {
	var b strings.Builder
	for _, t := range e.Trace {
		fmt.Fprintf(&b, "\tat %s\n", t)
	}
	return b.String()
}

// invariantViolation is panicked by stack and locals helpers on conditions
// that indicate an interpreter bug or malformed bytecode. The frame
// boundary recovers it into an ExecError wrapping ErrInvariant.
type invariantViolation string

func violate(format string, args ...any) {
	panic(invariantViolation(fmt.Sprintf(format, args...)))
}
