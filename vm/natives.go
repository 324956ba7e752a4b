package vm

import (
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Native bridge
// ---------------------------------------------------------------------------

// NativeFunc implements a native method. It returns the result and whether
// there is one. To raise a guest exception it calls env.Throw and returns.
type NativeFunc func(env *NativeEnv) (Value, bool, error)

// NativeTable maps "class.method.descriptor" to an implementation. The
// table is handed to the VM at construction and never mutated by it.
type NativeTable map[string]NativeFunc

// NativeKey builds the table key for a method.
func NativeKey(class, method, desc string) string {
	return class + "." + method + "." + desc
}

// Register adds fn under class.method.desc.
func (t NativeTable) Register(class, method, desc string, fn NativeFunc) {
	t[NativeKey(class, method, desc)] = fn
}

// Lookup finds the implementation of a native method.
func (t NativeTable) Lookup(class, method, desc string) (NativeFunc, bool) {
	fn, ok := t[NativeKey(class, method, desc)]
	return fn, ok
}

// Merge copies every entry of other into t, replacing existing keys.
func (t NativeTable) Merge(other NativeTable) NativeTable {
	for k, fn := range other {
		t[k] = fn
	}
	return t
}

// NativeEnv is the runtime context passed to a native method.
type NativeEnv struct {
	Interp *Interpreter
	Class  *classfile.Class
	Method *classfile.Method

	// Args holds the receiver (for instance methods) followed by the
	// declared arguments, one entry per argument regardless of category.
	Args []Value

	thrown *PendingException
}

// VM returns the shared machine.
func (e *NativeEnv) VM() *VM { return e.Interp.vm }

// Heap returns the VM's heap.
func (e *NativeEnv) Heap() Heap { return e.Interp.vm.Heap }

// Log returns the native bridge logger.
func (e *NativeEnv) Log() commonlog.Logger { return nativeLog }

// Arg returns argument i, counting the receiver as 0 for instance methods.
func (e *NativeEnv) Arg(i int) Value {
	if i < 0 || i >= len(e.Args) {
		violate("native %s.%s: argument %d of %d", e.Class.Name, e.Method.Name, i, len(e.Args))
	}
	return e.Args[i]
}

// Throw raises obj as a guest exception once the native returns.
func (e *NativeEnv) Throw(obj Value) {
	e.thrown = &PendingException{Object: obj}
}

// ThrowNew instantiates className with an optional message and raises it.
func (e *NativeEnv) ThrowNew(className, message string) error {
	obj, err := e.Interp.NewThrowable(className, message)
	if err != nil {
		return err
	}
	e.Throw(obj)
	return nil
}

var nativeLog = commonlog.GetLogger("yvm.native")
