package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Method invocation
// ---------------------------------------------------------------------------

// invoke runs one invoke instruction. A guest exception escaping the callee
// is returned for the caller's dispatch loop to handle.
func (i *Interpreter) invoke(f *Frame, op Opcode, idx uint16) (*PendingException, error) {
	switch op {
	case OpINVOKESTATIC:
		return i.invokeStatic(f, idx)
	case OpINVOKESPECIAL:
		return i.invokeSpecial(f, idx)
	case OpINVOKEVIRTUAL:
		ref, err := i.resolveMethod(f, idx, false)
		if err != nil {
			return nil, err
		}
		return i.invokeDynamicDispatch(f, ref)
	case OpINVOKEINTERFACE:
		ref, err := i.resolveInterfaceMethod(f, idx)
		if err != nil {
			return nil, err
		}
		return i.invokeDynamicDispatch(f, ref)
	}
	return nil, fmt.Errorf("%w: %s is not an invoke instruction", ErrInvariant, op)
}

func (i *Interpreter) invokeStatic(f *Frame, idx uint16) (*PendingException, error) {
	ref, err := i.resolveMethod(f, idx, true)
	if err != nil {
		return nil, err
	}
	if isInitializer(ref.Name) {
		return nil, fmt.Errorf("%w: invokestatic of %s", ErrResolution, ref)
	}
	owner, m := i.vm.FindMethod(ref.Class, ref.Name, ref.Descriptor)
	switch {
	case m == nil:
		return nil, fmt.Errorf("%w: no method %s", ErrResolution, ref)
	case !m.IsStatic():
		return nil, fmt.Errorf("%w: %s is not static", ErrResolution, ref)
	case m.IsAbstract():
		return nil, fmt.Errorf("%w: %s is abstract", ErrResolution, ref)
	}
	if owner != ref.Class {
		if err := i.initialize(owner); err != nil {
			return nil, err
		}
	}
	return i.call(f, owner, m, false)
}

// invokeSpecial calls constructors, private methods and superclass
// methods without virtual selection. A non-constructor call naming the
// current class's direct superclass, from a class with ACC_SUPER, starts
// the lookup at that superclass rather than at the referenced class.
func (i *Interpreter) invokeSpecial(f *Frame, idx uint16) (*PendingException, error) {
	ref, err := i.resolveMethod(f, idx, true)
	if err != nil {
		return nil, err
	}
	start := ref.Class
	if ref.Name != "<init>" &&
		!ref.Class.IsInterface() &&
		f.Class.Flags.Has(classfile.AccSuper) &&
		ref.Class == i.vm.Superclass(f.Class) {
		start = i.vm.Superclass(f.Class)
	}

	// An interface's superclass is java/lang/Object, so the chain walk also
	// covers Object methods named through an interface.
	owner, m := i.vm.FindMethodInChain(start, ref.Name, ref.Descriptor)
	if m == nil {
		owner, m = i.vm.findInterfaceMethod(start, ref.Name, ref.Descriptor, false)
	}
	switch {
	case m == nil:
		return nil, fmt.Errorf("%w: no method %s", ErrResolution, ref)
	case m.IsStatic():
		return nil, fmt.Errorf("%w: invokespecial of static %s", ErrResolution, ref)
	case m.IsAbstract():
		return nil, fmt.Errorf("%w: %s is abstract", ErrResolution, ref)
	}

	params, err := paramCount(m)
	if err != nil {
		return nil, err
	}
	if recv := f.Peek(params); recv.IsNull() {
		return nil, fmt.Errorf("%w: invokespecial %s on null", ErrNullReference, ref)
	}
	return i.call(f, owner, m, true)
}

// invokeDynamicDispatch implements invokevirtual and invokeinterface: the
// method is resolved against the referenced class, then the implementation
// is selected from the receiver's runtime class.
func (i *Interpreter) invokeDynamicDispatch(f *Frame, ref SymbolicRef) (*PendingException, error) {
	if isInitializer(ref.Name) {
		return nil, fmt.Errorf("%w: virtual call of %s", ErrResolution, ref)
	}
	_, resolved := i.vm.FindMethod(ref.Class, ref.Name, ref.Descriptor)
	if resolved == nil {
		return nil, fmt.Errorf("%w: no method %s", ErrResolution, ref)
	}
	if resolved.IsStatic() {
		return nil, fmt.Errorf("%w: %s is static", ErrResolution, ref)
	}

	params, err := paramCount(resolved)
	if err != nil {
		return nil, err
	}
	recv := f.Peek(params)
	if !recv.IsRef() {
		violate("receiver of %s is %s", ref, recv.kind)
	}
	if recv.IsNull() {
		return nil, fmt.Errorf("%w: invoke %s on null", ErrNullReference, ref)
	}
	rt, err := i.runtimeClass(recv)
	if err != nil {
		return nil, err
	}
	target, ok := i.vm.SelectMethod(rt, ref.Name, ref.Descriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no implementation of %s%s", ErrResolution, rt.Name, ref.Name, ref.Descriptor)
	}
	if target.Method.IsAbstract() {
		return nil, fmt.Errorf("%w: %s.%s%s is abstract", ErrResolution, target.Class.Name, ref.Name, ref.Descriptor)
	}
	return i.call(f, target.Class, target.Method, true)
}

// call pops the arguments (and receiver) from the caller's stack, runs the
// method and pushes its result.
func (i *Interpreter) call(caller *Frame, owner *classfile.Class, m *classfile.Method, hasReceiver bool) (*PendingException, error) {
	sig, err := m.Signature()
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrResolution, owner.Name, m.Name, err)
	}
	n := len(sig.Params)
	if hasReceiver {
		n++
	}
	args := make([]Value, n)
	for k := n - 1; k >= 0; k-- {
		args[k] = caller.Pop()
	}

	res, err := i.invokeMethod(owner, m, args)
	if err != nil {
		return nil, err
	}
	if res.thrown != nil {
		return res.thrown, nil
	}
	if sig.Return == classfile.Void {
		return nil, nil
	}
	if !res.hasValue {
		// A native that produced nothing, such as an unregistered one.
		caller.Push(ZeroValue(string(sig.Return)))
		return nil, nil
	}
	if !fitsType(res.value, sig.Return) {
		return nil, fmt.Errorf("%w: %s.%s%s returned %s", ErrInvariant, owner.Name, m.Name, m.Descriptor, res.value.kind)
	}
	caller.Push(res.value)
	return nil, nil
}

// invokeMethod runs m with args already in local-variable order: the
// receiver first for instance methods, then one entry per parameter.
func (i *Interpreter) invokeMethod(owner *classfile.Class, m *classfile.Method, args []Value) (completion, error) {
	if err := checkArgs(owner, m, args); err != nil {
		return completion{}, err
	}
	if i.stack.Depth() >= i.vm.opts.MaxCallDepth {
		return completion{}, fmt.Errorf("%w: %d frames calling %s.%s%s", ErrCallDepth, i.stack.Depth(), owner.Name, m.Name, m.Descriptor)
	}
	if m.IsNative() {
		return i.callNative(owner, m, args)
	}
	if m.IsAbstract() || m.Code == nil {
		return completion{}, fmt.Errorf("%w: %s.%s%s has no code", ErrResolution, owner.Name, m.Name, m.Descriptor)
	}

	slots := 0
	for _, a := range args {
		slots += a.Category()
	}
	if slots > int(m.Code.MaxLocals) {
		return completion{}, fmt.Errorf("%w: %s.%s%s takes %d argument slots, max_locals is %d",
			ErrInvariant, owner.Name, m.Name, m.Descriptor, slots, m.Code.MaxLocals)
	}

	f := i.stack.PushFrame(owner, m)
	defer i.stack.PopFrame()
	slot := 0
	for _, a := range args {
		f.SetLocal(slot, a)
		slot += a.Category()
	}

	if i.vm.Log.AllowLevel(commonlog.Debug) {
		i.vm.Log.Debugf("%s: enter %s.%s%s depth %d", i.Name, owner.Name, m.Name, m.Descriptor, i.stack.Depth())
	}
	return i.run(f)
}

// callNative runs a native method through the VM's table. A code-less
// frame is pushed so natives count toward the call depth and appear in
// exception traces.
func (i *Interpreter) callNative(owner *classfile.Class, m *classfile.Method, args []Value) (completion, error) {
	f := i.stack.PushFrame(owner, m)
	defer i.stack.PopFrame()
	f.PC = -1

	fn, ok := i.vm.Natives.Lookup(owner.Name, m.Name, m.Descriptor)
	if !ok {
		if i.vm.opts.StrictNatives {
			return completion{}, &ExecError{
				Err:    ErrNativeMissing,
				PC:     -1,
				Class:  owner.Name,
				Method: m.Name + m.Descriptor,
				Detail: NativeKey(owner.Name, m.Name, m.Descriptor),
			}
		}
		nativeLog.Warningf("no native registered for %s, returning no value", NativeKey(owner.Name, m.Name, m.Descriptor))
		return completion{}, nil
	}

	env := &NativeEnv{Interp: i, Class: owner, Method: m, Args: args}
	v, hasValue, err := fn(env)
	if err != nil {
		return completion{}, fmt.Errorf("native %s: %w", NativeKey(owner.Name, m.Name, m.Descriptor), err)
	}
	if env.thrown != nil {
		env.thrown.Trace = append(env.thrown.Trace, traceEntry(f))
		return completion{thrown: env.thrown}, nil
	}
	return completion{value: v, hasValue: hasValue}, nil
}

// checkArgs verifies that args match the receiver and parameter types of m.
func checkArgs(owner *classfile.Class, m *classfile.Method, args []Value) error {
	sig, err := m.Signature()
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrResolution, owner.Name, m.Name, err)
	}
	params := args
	if !m.IsStatic() {
		if len(args) == 0 || !args[0].IsRef() {
			return fmt.Errorf("%w: %s.%s%s called without a receiver", ErrInvariant, owner.Name, m.Name, m.Descriptor)
		}
		params = args[1:]
	}
	if len(params) != len(sig.Params) {
		return fmt.Errorf("%w: %s.%s%s called with %d arguments", ErrInvariant, owner.Name, m.Name, m.Descriptor, len(params))
	}
	for k, p := range sig.Params {
		if !fitsType(params[k], p) {
			return fmt.Errorf("%w: %s.%s%s argument %d is %s", ErrInvariant, owner.Name, m.Name, m.Descriptor, k, params[k].kind)
		}
	}
	return nil
}

// paramCount is the number of declared parameters of m, which is also the
// stack distance from the top to the receiver.
func paramCount(m *classfile.Method) (int, error) {
	sig, err := m.Signature()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrResolution, m.Name, err)
	}
	return len(sig.Params), nil
}

func isInitializer(name string) bool {
	return name == "<init>" || name == "<clinit>"
}
