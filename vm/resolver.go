package vm

import (
	"fmt"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Reference resolution
// ---------------------------------------------------------------------------

// SymbolicRef is a resolved constant-pool member reference: the class
// named by the reference, plus the member's name and descriptor.
// Resolution is repeated on every use; the method area caches classes.
type SymbolicRef struct {
	Class      *classfile.Class
	Name       string
	Descriptor string
}

func (r SymbolicRef) String() string {
	return fmt.Sprintf("%s.%s:%s", r.Class, r.Name, r.Descriptor)
}

// resolveClass loads the class named by a Class entry of the current
// class's pool.
func (i *Interpreter) resolveClass(f *Frame, idx uint16) (*classfile.Class, error) {
	name, err := f.Class.Pool.ClassName(idx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return i.vm.loadClass(name)
}

// resolveMember decodes a member reference of one of the given tags and
// loads, links and initializes the referenced class.
func (i *Interpreter) resolveMember(f *Frame, idx uint16, tags ...classfile.Tag) (SymbolicRef, error) {
	entry, err := f.Class.Pool.Entry(idx)
	if err != nil {
		return SymbolicRef{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	ok := false
	for _, t := range tags {
		if entry.Tag == t {
			ok = true
			break
		}
	}
	if !ok {
		return SymbolicRef{}, fmt.Errorf("%w: constant pool #%d is %s, expected %v", ErrResolution, idx, entry.Tag, tags)
	}
	className, name, desc, err := f.Class.Pool.MemberRef(idx, entry.Tag)
	if err != nil {
		return SymbolicRef{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	c, err := i.vm.loadClass(className)
	if err != nil {
		return SymbolicRef{}, err
	}
	if err := i.initialize(c); err != nil {
		return SymbolicRef{}, err
	}
	return SymbolicRef{Class: c, Name: name, Descriptor: desc}, nil
}

func (i *Interpreter) resolveField(f *Frame, idx uint16) (SymbolicRef, error) {
	return i.resolveMember(f, idx, classfile.TagFieldref)
}

// resolveMethod accepts a Methodref, or with allowInterface also an
// InterfaceMethodref (static and private interface methods, and
// Interface.super calls).
func (i *Interpreter) resolveMethod(f *Frame, idx uint16, allowInterface bool) (SymbolicRef, error) {
	if allowInterface {
		return i.resolveMember(f, idx, classfile.TagMethodref, classfile.TagInterfaceMethodref)
	}
	return i.resolveMember(f, idx, classfile.TagMethodref)
}

func (i *Interpreter) resolveInterfaceMethod(f *Frame, idx uint16) (SymbolicRef, error) {
	return i.resolveMember(f, idx, classfile.TagInterfaceMethodref)
}

// resolveFieldOwner finds the class declaring the referenced field.
func (i *Interpreter) resolveFieldOwner(ref SymbolicRef) (*classfile.Class, *classfile.Field, error) {
	owner, field := i.vm.FindField(ref.Class, ref.Name, ref.Descriptor)
	if field == nil {
		return nil, nil, fmt.Errorf("%w: no field %s", ErrResolution, ref)
	}
	if owner != ref.Class {
		if err := i.initialize(owner); err != nil {
			return nil, nil, err
		}
	}
	return owner, field, nil
}

// initialize links and initializes c, running <clinit> methods on this
// interpreter.
func (i *Interpreter) initialize(c *classfile.Class) error {
	if err := i.vm.Classes.LinkClass(c); err != nil {
		return fmt.Errorf("%w: link %s: %v", ErrResolution, c.Name, err)
	}
	return i.vm.Classes.InitClass(c, i.ID, i.runInitializer)
}

func (i *Interpreter) runInitializer(c *classfile.Class) error {
	m := c.FindMethod("<clinit>", "()V")
	if m == nil {
		return nil
	}
	i.vm.Log.Debugf("running %s.<clinit>", c.Name)
	res, err := i.invokeMethod(c, m, nil)
	if err != nil {
		return err
	}
	if res.thrown != nil {
		return fmt.Errorf("initializer of %s: %w", c.Name, i.uncaught(res.thrown))
	}
	return nil
}
