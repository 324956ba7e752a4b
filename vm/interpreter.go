package vm

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Interpreter: Bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes bytecode on one call stack. Interpreters of the same
// VM may run concurrently; a single Interpreter may not.
type Interpreter struct {
	ID   uuid.UUID // monitor owner identity
	Name string

	vm    *VM
	stack CallStack
}

// completion is the outcome of running a frame or a native: a returned
// value, no value, or a guest exception that is still pending.
type completion struct {
	value    Value
	hasValue bool
	thrown   *PendingException
}

// VM returns the machine the interpreter belongs to.
func (i *Interpreter) VM() *VM { return i.vm }

// Stack returns the interpreter's call stack.
func (i *Interpreter) Stack() *CallStack { return &i.stack }

// Invoke runs className.name with the given descriptor. For instance
// methods args[0] is the receiver and the method is selected from its
// runtime class. It returns the result and whether there is one; a guest
// exception that escapes is returned as *UncaughtException.
func (i *Interpreter) Invoke(className, name, desc string, args ...Value) (result Value, ok bool, err error) {
	defer recoverInvariant(&err, nil)

	c, err := i.vm.loadClass(className)
	if err != nil {
		return Null, false, err
	}
	if err := i.initialize(c); err != nil {
		return Null, false, err
	}
	owner, m := i.vm.FindMethod(c, name, desc)
	if m == nil {
		return Null, false, fmt.Errorf("%w: no method %s.%s%s", ErrResolution, className, name, desc)
	}
	if !m.IsStatic() && name != "<init>" {
		if len(args) == 0 || !args[0].IsRef() || args[0].IsNull() {
			return Null, false, fmt.Errorf("%w: receiver of %s.%s%s", ErrNullReference, className, name, desc)
		}
		rt, err := i.runtimeClass(args[0])
		if err != nil {
			return Null, false, err
		}
		if t, found := i.vm.SelectMethod(rt, name, desc); found {
			owner, m = t.Class, t.Method
		}
	}

	res, err := i.invokeMethod(owner, m, args)
	if err != nil {
		return Null, false, err
	}
	if res.thrown != nil {
		return Null, false, i.uncaught(res.thrown)
	}
	return res.value, res.hasValue, nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes f until it returns or an exception escapes it. Host errors
// carry the failing instruction's context.
func (i *Interpreter) run(f *Frame) (res completion, err error) {
	defer recoverInvariant(&err, f)

	code := f.Code()
	var thrown *PendingException
	for {
		// A pending exception is handled before the next instruction is
		// decoded. f.PC still addresses the instruction that raised it.
		if thrown != nil {
			handler, found, herr := i.findHandler(f, thrown.Object)
			if herr != nil {
				return completion{}, i.fault(f, herr, "")
			}
			if found {
				if i.vm.Log.AllowLevel(commonlog.Debug) {
					i.vm.Log.Debugf("%s.%s: %s caught at pc %d, handler %d", f.Class.Name, f.Method.Name, thrown.Object, f.PC, handler)
				}
				f.ClearStack()
				f.Push(thrown.Object)
				f.PC = handler
				thrown = nil
				continue
			}
			thrown.Trace = append(thrown.Trace, traceEntry(f))
			return completion{thrown: thrown}, nil
		}

		if f.PC < 0 || f.PC >= len(code) {
			return completion{}, i.fault(f, ErrInvariant, fmt.Sprintf("pc %d outside code of length %d", f.PC, len(code)))
		}
		pc := f.PC
		op := Opcode(code[pc])

		switch op {
		case OpIRETURN:
			return completion{value: f.PopKind(KindInt), hasValue: true}, nil
		case OpLRETURN:
			return completion{value: f.PopKind(KindLong), hasValue: true}, nil
		case OpFRETURN:
			return completion{value: f.PopKind(KindFloat), hasValue: true}, nil
		case OpDRETURN:
			return completion{value: f.PopKind(KindDouble), hasValue: true}, nil
		case OpARETURN:
			return completion{value: f.PopRef(), hasValue: true}, nil
		case OpRETURN:
			return completion{}, nil

		case OpATHROW:
			obj := f.PopRef()
			if obj.IsNull() {
				return completion{}, i.fault(f, ErrNullReference, "athrow of null")
			}
			thrown = &PendingException{Object: obj}
			continue

		case OpINVOKEVIRTUAL, OpINVOKESPECIAL, OpINVOKESTATIC, OpINVOKEINTERFACE:
			t, ierr := i.invoke(f, op, u2(code, pc+1))
			if ierr != nil {
				return completion{}, i.fault(f, ierr, "")
			}
			if t != nil {
				thrown = t
				continue
			}
			if op == OpINVOKEINTERFACE {
				f.PC = pc + 5
			} else {
				f.PC = pc + 3
			}
			continue
		}

		next, xerr := i.execute(f, op, code, pc)
		if xerr != nil {
			return completion{}, i.fault(f, xerr, "")
		}
		f.PC = next
	}
}

// execute runs one instruction that neither returns, throws nor invokes,
// and returns the address of the next instruction.
func (i *Interpreter) execute(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch {
	case op <= OpLDC2_W:
		return i.execConst(f, op, code, pc)
	case op <= OpSALOAD:
		return i.execLoad(f, op, code, pc)
	case op <= OpSASTORE:
		return i.execStore(f, op, code, pc)
	case op <= OpSWAP:
		execStack(f, op)
		return pc + 1, nil
	case op <= OpDCMPG:
		return i.execMath(f, op, code, pc)
	case op <= OpLOOKUPSWITCH, op == OpIFNULL, op == OpIFNONNULL, op == OpGOTO_W, op == OpJSR_W:
		return i.execControl(f, op, code, pc)
	case op <= OpMONITOREXIT, op == OpMULTIANEWARRAY, op == OpWIDE:
		return i.execObject(f, op, code, pc)
	}
	return 0, fmt.Errorf("%w: undefined opcode 0x%02X", ErrInvariant, byte(op))
}

// ---------------------------------------------------------------------------
// Failure reporting
// ---------------------------------------------------------------------------

// fault attaches the frame's current instruction to err. Errors that
// already carry a location (from a nested frame) pass through unchanged,
// as do uncaught exceptions from class initializers.
func (i *Interpreter) fault(f *Frame, err error, detail string) error {
	var xe *ExecError
	if errors.As(err, &xe) {
		return err
	}
	e := &ExecError{Err: err, PC: f.PC, Detail: detail}
	if code := f.Code(); f.PC >= 0 && f.PC < len(code) {
		e.Op = Opcode(code[f.PC])
	}
	if f.Class != nil {
		e.Class = f.Class.Name
	}
	if f.Method != nil {
		e.Method = f.Method.Name + f.Method.Descriptor
	}
	return e
}

// recoverInvariant turns an invariantViolation panic, or a runtime error
// caused by truncated bytecode, into an ErrInvariant ExecError.
func recoverInvariant(err *error, f *Frame) {
	r := recover()
	if r == nil {
		return
	}
	var msg string
	switch v := r.(type) {
	case invariantViolation:
		msg = string(v)
	case runtime.Error:
		msg = v.Error()
	default:
		panic(r)
	}
	e := &ExecError{Err: ErrInvariant, Detail: msg, PC: -1}
	if f != nil {
		e.PC = f.PC
		if code := f.Code(); f.PC >= 0 && f.PC < len(code) {
			e.Op = Opcode(code[f.PC])
		}
		if f.Class != nil {
			e.Class = f.Class.Name
		}
		if f.Method != nil {
			e.Method = f.Method.Name + f.Method.Descriptor
		}
	}
	*err = e
}

// runtimeClass returns the class used for dispatch on a receiver. Arrays
// dispatch as java/lang/Object.
func (i *Interpreter) runtimeClass(recv Value) (*classfile.Class, error) {
	if recv.Kind() == KindArray {
		return i.vm.loadClass("java/lang/Object")
	}
	if recv.Class() == nil {
		return nil, fmt.Errorf("%w: receiver %s has no class", ErrInvariant, recv)
	}
	return recv.Class(), nil
}
