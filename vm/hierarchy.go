package vm

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Class hierarchy walks
//
// All walks are iterative over the method area's index-based class table.
// The method area defines supertypes before subtypes and rejects cycles,
// so every superclass chain ends.
// ---------------------------------------------------------------------------

// Superclass returns the direct superclass of c, or nil for the root.
func (vm *VM) Superclass(c *classfile.Class) *classfile.Class {
	if c == nil || c.SuperID == classfile.NoClass {
		return nil
	}
	return vm.Classes.ClassByID(c.SuperID)
}

// interfaces returns the direct superinterfaces of c.
func (vm *VM) interfaces(c *classfile.Class) []*classfile.Class {
	out := make([]*classfile.Class, 0, len(c.InterfaceIDs))
	for _, id := range c.InterfaceIDs {
		if iface := vm.Classes.ClassByID(id); iface != nil {
			out = append(out, iface)
		}
	}
	return out
}

// IsSubclass reports whether c is sup or has sup on its superclass chain.
func (vm *VM) IsSubclass(c, sup *classfile.Class) bool {
	for k := c; k != nil; k = vm.Superclass(k) {
		if k == sup {
			return true
		}
	}
	return false
}

// IsAssignable reports whether a value of class from can be used where to
// is expected: from is to, or to is a superclass or superinterface of from,
// directly or transitively.
func (vm *VM) IsAssignable(from, to *classfile.Class) bool {
	if from == nil || to == nil {
		return false
	}
	if !to.IsInterface() {
		return vm.IsSubclass(from, to)
	}
	visited := mapset.NewThreadUnsafeSet[int]()
	work := []*classfile.Class{from}
	for len(work) > 0 {
		c := work[0]
		work = work[1:]
		if c == to {
			return true
		}
		if !visited.Add(c.ID) {
			continue
		}
		if sup := vm.Superclass(c); sup != nil {
			work = append(work, sup)
		}
		work = append(work, vm.interfaces(c)...)
	}
	return false
}

// FindMethodInChain looks for name/desc declared by c or one of its
// superclasses, nearest first.
func (vm *VM) FindMethodInChain(c *classfile.Class, name, desc string) (*classfile.Class, *classfile.Method) {
	for k := c; k != nil; k = vm.Superclass(k) {
		if m := k.FindMethod(name, desc); m != nil {
			return k, m
		}
	}
	return nil, nil
}

// findInterfaceMethod searches the superinterfaces of c and of all its
// superclasses breadth first. With concreteOnly set, abstract, static and
// private interface methods are skipped.
func (vm *VM) findInterfaceMethod(c *classfile.Class, name, desc string, concreteOnly bool) (*classfile.Class, *classfile.Method) {
	visited := mapset.NewThreadUnsafeSet[int]()
	var work []*classfile.Class
	for k := c; k != nil; k = vm.Superclass(k) {
		if k.IsInterface() {
			work = append(work, k)
		} else {
			work = append(work, vm.interfaces(k)...)
		}
	}
	for len(work) > 0 {
		iface := work[0]
		work = work[1:]
		if !visited.Add(iface.ID) {
			continue
		}
		if m := iface.FindMethod(name, desc); m != nil {
			if !concreteOnly || (!m.IsAbstract() && !m.IsStatic() && !m.IsPrivate()) {
				return iface, m
			}
		}
		work = append(work, vm.interfaces(iface)...)
	}
	return nil, nil
}

// FindMethod resolves name/desc against c the way a method reference is
// resolved: the class chain first, then superinterfaces.
func (vm *VM) FindMethod(c *classfile.Class, name, desc string) (*classfile.Class, *classfile.Method) {
	if owner, m := vm.FindMethodInChain(c, name, desc); m != nil {
		return owner, m
	}
	return vm.findInterfaceMethod(c, name, desc, false)
}

// SelectMethod picks the implementation invoked for a receiver of runtime
// class c: methods declared by c, then by its superclasses, then the first
// concrete default method among its superinterfaces. Static methods in the
// class chain are not candidates.
func (vm *VM) SelectMethod(c *classfile.Class, name, desc string) (DispatchTarget, bool) {
	if t, ok := vm.dispatch.Lookup(c, name, desc); ok {
		return t, true
	}
	var t DispatchTarget
	for k := c; k != nil; k = vm.Superclass(k) {
		if m := k.FindMethod(name, desc); m != nil && !m.IsStatic() {
			t = DispatchTarget{Class: k, Method: m}
			break
		}
	}
	if t.Method == nil {
		owner, m := vm.findInterfaceMethod(c, name, desc, true)
		t = DispatchTarget{Class: owner, Method: m}
	}
	if t.Method == nil {
		return t, false
	}
	vm.dispatch.Update(c, name, desc, t)
	return t, true
}

// FindField locates the class declaring a field visible from c: c itself,
// then its superinterfaces, then its superclass, repeating up the chain.
func (vm *VM) FindField(c *classfile.Class, name, desc string) (*classfile.Class, *classfile.Field) {
	visited := mapset.NewThreadUnsafeSet[int]()
	for k := c; k != nil; k = vm.Superclass(k) {
		if f := k.FindField(name, desc); f != nil {
			return k, f
		}
		work := vm.interfaces(k)
		for len(work) > 0 {
			iface := work[0]
			work = work[1:]
			if !visited.Add(iface.ID) {
				continue
			}
			if f := iface.FindField(name, desc); f != nil {
				return iface, f
			}
			work = append(work, vm.interfaces(iface)...)
		}
	}
	return nil, nil
}
