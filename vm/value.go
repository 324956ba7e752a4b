package vm

import (
	"fmt"
	"math"

	"github.com/racaljk/yvm/classfile"
)

// Value is a single machine value.
//
// Value is a closed tagged variant. The Kind selects which payload is
// meaningful:
//   - Int, Long, Float, Double: the raw bits of the number
//   - Object: a heap handle plus the object's dynamic class
//   - Array: a heap handle plus element kind, component class and length
//   - Empty: an unset local slot
//   - Top: the second slot of a long or double held in locals
//
// Values are plain Go values. Copying a Value duplicates it, so stack,
// locals and heap cells never share storage. A reference Value copies the
// handle, not the heap cell it names.
type Value struct {
	kind   Kind
	bits   uint64
	handle Handle
	class  *classfile.Class // dynamic class (Object) or component class (Array of references)
	elem   ElemKind
	length int32
}

// Kind tags a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindTop
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindObject
	KindArray
)

var kindNames = [...]string{
	KindEmpty:  "empty",
	KindTop:    "top",
	KindInt:    "int",
	KindLong:   "long",
	KindFloat:  "float",
	KindDouble: "double",
	KindObject: "object",
	KindArray:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Handle names a heap cell. Handle 0 is the null reference.
type Handle uint32

// ElemKind is the element type of an array, using the newarray atype codes.
// ElemRef marks an array of references.
type ElemKind uint8

const (
	ElemRef     ElemKind = 0
	ElemBoolean ElemKind = 4
	ElemChar    ElemKind = 5
	ElemFloat   ElemKind = 6
	ElemDouble  ElemKind = 7
	ElemByte    ElemKind = 8
	ElemShort   ElemKind = 9
	ElemInt     ElemKind = 10
	ElemLong    ElemKind = 11
)

var elemDescriptors = map[ElemKind]string{
	ElemBoolean: "Z",
	ElemChar:    "C",
	ElemFloat:   "F",
	ElemDouble:  "D",
	ElemByte:    "B",
	ElemShort:   "S",
	ElemInt:     "I",
	ElemLong:    "J",
}

// Descriptor returns the field descriptor of the element type. For
// reference arrays it is derived from the component class.
func (e ElemKind) Descriptor(component *classfile.Class) string {
	if e == ElemRef {
		if component == nil {
			return "Ljava/lang/Object;"
		}
		return "L" + component.Name + ";"
	}
	return elemDescriptors[e]
}

// ElemKindOf maps a primitive descriptor letter to its ElemKind.
func ElemKindOf(desc string) (ElemKind, bool) {
	for k, d := range elemDescriptors {
		if d == desc {
			return k, true
		}
	}
	return ElemRef, false
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Null is the null reference.
var Null = Value{kind: KindObject}

// Top is the placeholder stored in the upper slot of a category-2 local.
var Top = Value{kind: KindTop}

func Int(v int32) Value     { return Value{kind: KindInt, bits: uint64(uint32(v))} }
func Long(v int64) Value    { return Value{kind: KindLong, bits: uint64(v)} }
func Float(v float32) Value { return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))} }
func Double(v float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(v)}
}

// Bool encodes a boolean the way the JVM does, as Int 0 or 1.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// ObjectRef builds a reference to a heap object of the given class.
func ObjectRef(h Handle, class *classfile.Class) Value {
	if h == 0 {
		return Null
	}
	return Value{kind: KindObject, handle: h, class: class}
}

// ArrayRef builds a reference to a heap array.
func ArrayRef(h Handle, elem ElemKind, component *classfile.Class, length int32) Value {
	if h == 0 {
		return Null
	}
	return Value{kind: KindArray, handle: h, elem: elem, class: component, length: length}
}

// ZeroValue is the default value of a field or array element of the given
// descriptor.
func ZeroValue(desc string) Value {
	if desc == "" {
		return Null
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return Int(0)
	case 'J':
		return Long(0)
	case 'F':
		return Float(0)
	case 'D':
		return Double(0)
	}
	return Null
}

// ZeroElem is the initial value of an element of an array of kind e.
func ZeroElem(e ElemKind) Value {
	switch e {
	case ElemLong:
		return Long(0)
	case ElemFloat:
		return Float(0)
	case ElemDouble:
		return Double(0)
	case ElemRef:
		return Null
	}
	return Int(0)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Value) Kind() Kind { return v.kind }

// Category is 2 for Long and Double and 1 for everything else.
func (v Value) Category() int {
	if v.kind == KindLong || v.kind == KindDouble {
		return 2
	}
	return 1
}

// IsRef reports whether v is an object or array reference (possibly null).
func (v Value) IsRef() bool { return v.kind == KindObject || v.kind == KindArray }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool { return v.IsRef() && v.handle == 0 }

func (v Value) AsInt() int32     { return int32(uint32(v.bits)) }
func (v Value) AsLong() int64    { return int64(v.bits) }
func (v Value) AsFloat() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) AsDouble() float64 {
	return math.Float64frombits(v.bits)
}

// Handle returns the heap handle of a reference.
func (v Value) Handle() Handle { return v.handle }

// Class is the dynamic class of an object, or the component class of a
// reference array.
func (v Value) Class() *classfile.Class { return v.class }

// Elem is the element kind of an array reference.
func (v Value) Elem() ElemKind { return v.elem }

// Len is the length of an array reference.
func (v Value) Len() int32 { return v.length }

// Clone returns an independent copy of v.
func (v Value) Clone() Value { return v }

// Same is reference identity for references (same handle, same class) and
// bit equality for everything else.
func (v Value) Same(o Value) bool {
	if v.IsRef() && o.IsRef() {
		if v.handle == 0 || o.handle == 0 {
			return v.handle == o.handle
		}
		return v.handle == o.handle && v.class == o.class && v.kind == o.kind
	}
	return v.kind == o.kind && v.bits == o.bits
}

func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "<empty>"
	case KindTop:
		return "<top>"
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindLong:
		return fmt.Sprintf("%dL", v.AsLong())
	case KindFloat:
		return fmt.Sprintf("%gf", v.AsFloat())
	case KindDouble:
		return fmt.Sprintf("%gd", v.AsDouble())
	case KindObject:
		if v.handle == 0 {
			return "null"
		}
		return fmt.Sprintf("%s@%d", v.class, v.handle)
	case KindArray:
		if v.handle == 0 {
			return "null"
		}
		return fmt.Sprintf("[%s@%d(len=%d)", v.elem.Descriptor(v.class), v.handle, v.length)
	}
	return v.kind.String()
}
