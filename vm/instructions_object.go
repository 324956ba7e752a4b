package vm

import (
	"fmt"
	"strings"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Fields, allocation, type tests and monitors
// ---------------------------------------------------------------------------

func (i *Interpreter) execObject(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch op {
	case OpGETSTATIC, OpPUTSTATIC:
		return pc + 3, i.staticField(f, op, u2(code, pc+1))

	case OpGETFIELD, OpPUTFIELD:
		return pc + 3, i.instanceField(f, op, u2(code, pc+1))

	case OpNEW:
		c, err := i.resolveClass(f, u2(code, pc+1))
		if err != nil {
			return 0, err
		}
		if c.IsInterface() || c.Flags.Has(classfile.AccAbstract) {
			return 0, fmt.Errorf("%w: cannot instantiate %s", ErrResolution, c.Name)
		}
		if err := i.initialize(c); err != nil {
			return 0, err
		}
		obj, err := i.vm.Heap.NewObject(c)
		if err != nil {
			return 0, err
		}
		f.Push(obj)
		return pc + 3, nil

	case OpNEWARRAY:
		elem := ElemKind(u1(code, pc+1))
		if _, ok := elemDescriptors[elem]; !ok {
			return 0, fmt.Errorf("%w: newarray type %d", ErrInvariant, elem)
		}
		arr, err := i.newArray(f, elem, nil)
		if err != nil {
			return 0, err
		}
		f.Push(arr)
		return pc + 2, nil

	case OpANEWARRAY:
		idx := u2(code, pc+1)
		name, err := f.Class.Pool.ClassName(idx)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrResolution, err)
		}
		if strings.HasPrefix(name, "[") {
			return 0, fmt.Errorf("%w: array of %s", ErrUnsupported, name)
		}
		component, err := i.resolveClass(f, idx)
		if err != nil {
			return 0, err
		}
		arr, err := i.newArray(f, ElemRef, component)
		if err != nil {
			return 0, err
		}
		f.Push(arr)
		return pc + 3, nil

	case OpARRAYLENGTH:
		arr := f.PopRef()
		if arr.IsNull() {
			return 0, fmt.Errorf("%w: arraylength of null", ErrNullReference)
		}
		if arr.Kind() != KindArray {
			violate("arraylength of %s", arr.kind)
		}
		f.Push(Int(arr.Len()))
		return pc + 1, nil

	case OpINSTANCEOF:
		obj := f.PopRef()
		if obj.IsNull() {
			f.Push(Int(0))
			return pc + 3, nil
		}
		ok, err := i.isInstance(f, obj, u2(code, pc+1))
		if err != nil {
			return 0, err
		}
		f.Push(Bool(ok))
		return pc + 3, nil

	case OpMONITORENTER:
		obj := f.PopRef()
		if obj.IsNull() {
			return 0, fmt.Errorf("%w: monitorenter on null", ErrNullReference)
		}
		i.vm.Heap.Monitor(obj).Enter(i.ID)
		return pc + 1, nil

	case OpMONITOREXIT:
		obj := f.PopRef()
		if obj.IsNull() {
			return 0, fmt.Errorf("%w: monitorexit on null", ErrNullReference)
		}
		if err := i.vm.Heap.Monitor(obj).Exit(i.ID); err != nil {
			return 0, err
		}
		return pc + 1, nil

	case OpCHECKCAST, OpINVOKEDYNAMIC, OpMULTIANEWARRAY, OpWIDE:
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	return 0, fmt.Errorf("%w: %s is not an object instruction", ErrInvariant, op)
}

func (i *Interpreter) newArray(f *Frame, elem ElemKind, component *classfile.Class) (Value, error) {
	count := f.PopInt()
	if count < 0 {
		return Null, fmt.Errorf("%w: %d", ErrNegativeArraySize, count)
	}
	return i.vm.Heap.NewArray(elem, component, count)
}

func (i *Interpreter) staticField(f *Frame, op Opcode, idx uint16) error {
	ref, err := i.resolveField(f, idx)
	if err != nil {
		return err
	}
	owner, field, err := i.resolveFieldOwner(ref)
	if err != nil {
		return err
	}
	if !field.IsStatic() {
		return fmt.Errorf("%w: %s is not static", ErrResolution, ref)
	}
	if op == OpGETSTATIC {
		v, err := i.vm.Classes.GetStatic(owner, ref.Name, ref.Descriptor)
		if err != nil {
			return err
		}
		f.Push(v)
		return nil
	}
	v := popTyped(f, ref.Descriptor)
	return i.vm.Classes.PutStatic(owner, ref.Name, ref.Descriptor, v)
}

func (i *Interpreter) instanceField(f *Frame, op Opcode, idx uint16) error {
	ref, err := i.resolveField(f, idx)
	if err != nil {
		return err
	}
	owner, field, err := i.resolveFieldOwner(ref)
	if err != nil {
		return err
	}
	if field.IsStatic() {
		return fmt.Errorf("%w: %s is static", ErrResolution, ref)
	}
	if op == OpGETFIELD {
		obj := f.PopRef()
		if obj.IsNull() {
			return fmt.Errorf("%w: getfield %s", ErrNullReference, ref)
		}
		v, err := i.vm.Heap.GetField(obj, owner, ref.Name, ref.Descriptor)
		if err != nil {
			return err
		}
		f.Push(v)
		return nil
	}
	v := popTyped(f, ref.Descriptor)
	obj := f.PopRef()
	if obj.IsNull() {
		return fmt.Errorf("%w: putfield %s", ErrNullReference, ref)
	}
	return i.vm.Heap.PutField(obj, owner, ref.Name, ref.Descriptor, v)
}

// popTyped pops a value that must match a field descriptor. Narrow integer
// fields are truncated to their width.
func popTyped(f *Frame, desc string) Value {
	v := f.Pop()
	if !fitsType(v, classfile.FieldType(desc)) {
		violate("value %s does not fit field type %s", v.kind, desc)
	}
	switch desc {
	case "Z":
		return Int(v.AsInt() & 1)
	case "B":
		return Int(int32(int8(v.AsInt())))
	case "C":
		return Int(int32(uint16(v.AsInt())))
	case "S":
		return Int(int32(int16(v.AsInt())))
	}
	return v
}

// fitsType reports whether v has the computational type of t.
func fitsType(v Value, t classfile.FieldType) bool {
	if t.IsReference() {
		return v.IsRef()
	}
	switch t {
	case "Z", "B", "C", "S", "I":
		return v.kind == KindInt
	case "J":
		return v.kind == KindLong
	case "F":
		return v.kind == KindFloat
	case "D":
		return v.kind == KindDouble
	}
	return false
}

// isInstance implements instanceof for a non-null reference against the
// class or array type named by a Class pool entry.
func (i *Interpreter) isInstance(f *Frame, obj Value, idx uint16) (bool, error) {
	name, err := f.Class.Pool.ClassName(idx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	if obj.Kind() == KindArray {
		if !strings.HasPrefix(name, "[") {
			return name == "java/lang/Object", nil
		}
		want := classfile.FieldType(name[1:])
		if obj.Elem() != ElemRef {
			return string(want) == obj.Elem().Descriptor(nil), nil
		}
		target := want.ClassName()
		if target == "" {
			return false, nil
		}
		tc, err := i.vm.loadClass(target)
		if err != nil {
			return false, err
		}
		return i.vm.IsAssignable(obj.Class(), tc), nil
	}
	if strings.HasPrefix(name, "[") {
		return false, nil
	}
	target, err := i.resolveClass(f, idx)
	if err != nil {
		return false, err
	}
	return i.vm.IsAssignable(obj.Class(), target), nil
}
