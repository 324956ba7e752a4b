package vm

import (
	"fmt"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

func (i *Interpreter) execConst(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch op {
	case OpNOP:
	case OpACONST_NULL:
		f.Push(Null)
	case OpICONST_M1, OpICONST_0, OpICONST_1, OpICONST_2, OpICONST_3, OpICONST_4, OpICONST_5:
		f.Push(Int(int32(op) - int32(OpICONST_0)))
	case OpLCONST_0, OpLCONST_1:
		f.Push(Long(int64(op - OpLCONST_0)))
	case OpFCONST_0, OpFCONST_1, OpFCONST_2:
		f.Push(Float(float32(op - OpFCONST_0)))
	case OpDCONST_0, OpDCONST_1:
		f.Push(Double(float64(op - OpDCONST_0)))
	case OpBIPUSH:
		f.Push(Int(int32(s1(code, pc+1))))
		return pc + 2, nil
	case OpSIPUSH:
		f.Push(Int(int32(s2(code, pc+1))))
		return pc + 3, nil
	case OpLDC:
		return pc + 2, i.ldc(f, uint16(u1(code, pc+1)), false)
	case OpLDC_W:
		return pc + 3, i.ldc(f, u2(code, pc+1), false)
	case OpLDC2_W:
		return pc + 3, i.ldc(f, u2(code, pc+1), true)
	}
	return pc + 1, nil
}

// ldc pushes a constant-pool entry. ldc2_w takes only long and double
// entries; ldc and ldc_w take everything else.
func (i *Interpreter) ldc(f *Frame, idx uint16, wide bool) error {
	c, err := f.Class.Pool.Entry(idx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResolution, err)
	}
	isWide := c.Tag == classfile.TagLong || c.Tag == classfile.TagDouble
	if isWide != wide {
		return fmt.Errorf("%w: constant pool #%d (%s) not loadable by this instruction", ErrResolution, idx, c.Tag)
	}
	switch c.Tag {
	case classfile.TagInteger:
		f.Push(Int(c.Int))
	case classfile.TagFloat:
		f.Push(Float(c.Float))
	case classfile.TagLong:
		f.Push(Long(c.Long))
	case classfile.TagDouble:
		f.Push(Double(c.Double))
	case classfile.TagString:
		text, err := f.Class.Pool.Utf8(c.Index1)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrResolution, err)
		}
		s, err := i.vm.Intern(text)
		if err != nil {
			return err
		}
		f.Push(s)
	case classfile.TagClass, classfile.TagMethodType, classfile.TagMethodHandle:
		return fmt.Errorf("%w: ldc of %s constant", ErrUnsupported, c.Tag)
	default:
		return fmt.Errorf("%w: constant pool #%d (%s) is not loadable", ErrResolution, idx, c.Tag)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Local variable loads and stores
// ---------------------------------------------------------------------------

// slotKinds is indexed by the i/l/f/d/a position of a load or store family.
var slotKinds = [5]Kind{KindInt, KindLong, KindFloat, KindDouble, KindObject}

func loadLocal(f *Frame, idx int, k Kind) {
	if k == KindObject {
		v := f.Local(idx)
		if !v.IsRef() {
			violate("local %d holds %s, expected reference", idx, v.kind)
		}
		f.Push(v)
		return
	}
	f.Push(f.LocalKind(idx, k))
}

func storeLocal(f *Frame, idx int, k Kind) {
	if k == KindObject {
		f.SetLocal(idx, f.PopRef())
		return
	}
	f.SetLocal(idx, f.PopKind(k))
}

func (i *Interpreter) execLoad(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch {
	case op <= OpALOAD:
		loadLocal(f, u1(code, pc+1), slotKinds[op-OpILOAD])
		return pc + 2, nil
	case op <= OpALOAD_3:
		n := int(op - OpILOAD_0)
		loadLocal(f, n%4, slotKinds[n/4])
		return pc + 1, nil
	}
	return pc + 1, i.arrayLoad(f, op)
}

func (i *Interpreter) execStore(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch {
	case op <= OpASTORE:
		storeLocal(f, u1(code, pc+1), slotKinds[op-OpISTORE])
		return pc + 2, nil
	case op <= OpASTORE_3:
		n := int(op - OpISTORE_0)
		storeLocal(f, n%4, slotKinds[n/4])
		return pc + 1, nil
	}
	return pc + 1, i.arrayStore(f, op)
}

// ---------------------------------------------------------------------------
// Array element access
// ---------------------------------------------------------------------------

// arrayElems lists the element kinds each array load/store accepts, in
// opcode order starting at iaload/iastore.
var arrayElems = [8][]ElemKind{
	{ElemInt},
	{ElemLong},
	{ElemFloat},
	{ElemDouble},
	{ElemRef},
	{ElemByte, ElemBoolean},
	{ElemChar},
	{ElemShort},
}

// checkArray validates the array reference and index of an element access.
func checkArray(arr Value, index int32, accepted []ElemKind) error {
	if arr.IsNull() {
		return fmt.Errorf("%w: array is null", ErrNullReference)
	}
	if arr.Kind() != KindArray {
		violate("expected array reference, found %s", arr.kind)
	}
	ok := false
	for _, e := range accepted {
		if arr.Elem() == e {
			ok = true
			break
		}
	}
	if !ok {
		violate("array of %s accessed as %v", arr.Elem().Descriptor(arr.Class()), accepted)
	}
	if index < 0 || index >= arr.Len() {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, index, arr.Len())
	}
	return nil
}

func (i *Interpreter) arrayLoad(f *Frame, op Opcode) error {
	index := f.PopInt()
	arr := f.PopRef()
	if err := checkArray(arr, index, arrayElems[op-OpIALOAD]); err != nil {
		return err
	}
	v, err := i.vm.Heap.ArrayItem(arr, index)
	if err != nil {
		return err
	}
	switch op {
	case OpBALOAD:
		v = Int(int32(int8(v.AsInt())))
	case OpCALOAD:
		v = Int(int32(uint16(v.AsInt())))
	case OpSALOAD:
		v = Int(int32(int16(v.AsInt())))
	}
	f.Push(v)
	return nil
}

func (i *Interpreter) arrayStore(f *Frame, op Opcode) error {
	var v Value
	switch op {
	case OpLASTORE:
		v = f.PopKind(KindLong)
	case OpFASTORE:
		v = f.PopKind(KindFloat)
	case OpDASTORE:
		v = f.PopKind(KindDouble)
	case OpAASTORE:
		v = f.PopRef()
	default:
		v = f.PopKind(KindInt)
	}
	index := f.PopInt()
	arr := f.PopRef()
	if err := checkArray(arr, index, arrayElems[op-OpIASTORE]); err != nil {
		return err
	}

	// Narrow element types keep only their own width.
	switch op {
	case OpBASTORE:
		if arr.Elem() == ElemBoolean {
			v = Int(v.AsInt() & 1)
		} else {
			v = Int(int32(int8(v.AsInt())))
		}
	case OpCASTORE:
		v = Int(int32(uint16(v.AsInt())))
	case OpSASTORE:
		v = Int(int32(int16(v.AsInt())))
	}
	return i.vm.Heap.SetArrayItem(arr, index, v)
}
