package classfile

import (
	"sync"
)

// NoClass is the ID of an absent superclass and of a class that has not
// been registered with a method area.
const NoClass = -1

// ExceptionEntry is one row of a method's exception table. The range
// [StartPC, EndPC) is half-open. CatchType 0 catches everything.
type ExceptionEntry struct {
	StartPC   uint16 `cbor:"start"`
	EndPC     uint16 `cbor:"end"`
	HandlerPC uint16 `cbor:"handler"`
	CatchType uint16 `cbor:"catch"`
}

// Covers reports whether pc lies in [StartPC, EndPC).
func (e ExceptionEntry) Covers(pc int) bool {
	return pc >= int(e.StartPC) && pc < int(e.EndPC)
}

// Code is a method's Code attribute.
type Code struct {
	MaxStack       uint16           `cbor:"max_stack"`
	MaxLocals      uint16           `cbor:"max_locals"`
	Bytecode       []byte           `cbor:"bytecode"`
	ExceptionTable []ExceptionEntry `cbor:"exceptions,omitempty"`
}

// Field is a declared field.
type Field struct {
	Name       string      `cbor:"name"`
	Descriptor string      `cbor:"desc"`
	Flags      AccessFlags `cbor:"flags"`
}

// IsStatic reports whether the field is a class field.
func (f *Field) IsStatic() bool { return f.Flags.Has(AccStatic) }

// Method is a declared method. Native and abstract methods have no Code.
type Method struct {
	Name       string      `cbor:"name"`
	Descriptor string      `cbor:"desc"`
	Flags      AccessFlags `cbor:"flags"`
	Code       *Code       `cbor:"code,omitempty"`

	sigOnce sync.Once
	sig     MethodType
	sigErr  error
}

// Signature returns the parsed descriptor. It is parsed once.
func (m *Method) Signature() (MethodType, error) {
	m.sigOnce.Do(func() {
		m.sig, m.sigErr = ParseMethodDescriptor(m.Descriptor)
	})
	return m.sig, m.sigErr
}

func (m *Method) IsStatic() bool   { return m.Flags.Has(AccStatic) }
func (m *Method) IsNative() bool   { return m.Flags.Has(AccNative) }
func (m *Method) IsAbstract() bool { return m.Flags.Has(AccAbstract) }
func (m *Method) IsPrivate() bool  { return m.Flags.Has(AccPrivate) }

// Class is a loaded class or interface.
type Class struct {
	Name       string       `cbor:"name"`
	SuperName  string       `cbor:"super,omitempty"`
	Interfaces []string     `cbor:"interfaces,omitempty"`
	Flags      AccessFlags  `cbor:"flags"`
	Pool       ConstantPool `cbor:"pool"`
	Fields     []*Field     `cbor:"fields,omitempty"`
	Methods    []*Method    `cbor:"methods,omitempty"`
	SourceFile string       `cbor:"source,omitempty"`

	// Assigned by the method area when the class is defined. Supertypes
	// are always defined first, so following SuperID always reaches a
	// smaller ID and terminates.
	ID           int   `cbor:"-"`
	SuperID      int   `cbor:"-"`
	InterfaceIDs []int `cbor:"-"`
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool { return c.Flags.Has(AccInterface) }

// FindMethod returns the method declared by c itself with the given name
// and descriptor.
func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindField returns the field declared by c itself.
func (c *Class) FindField(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && f.Descriptor == desc {
			return f
		}
	}
	return nil
}

func (c *Class) String() string {
	if c == nil {
		return "<nil class>"
	}
	return c.Name
}
