package vm

import (
	"fmt"
	"unicode/utf16"
)

// String objects are java/lang/String instances whose "value" field holds
// a char array of UTF-16 code units.

const (
	stringClass      = "java/lang/String"
	stringValueField = "value"
	stringValueDesc  = "[C"
)

// NewString allocates a fresh String holding s.
func (vm *VM) NewString(s string) (Value, error) {
	c, err := vm.loadClass(stringClass)
	if err != nil {
		return Null, err
	}
	units := utf16.Encode([]rune(s))
	arr, err := vm.Heap.NewArray(ElemChar, nil, int32(len(units)))
	if err != nil {
		return Null, err
	}
	for k, u := range units {
		if err := vm.Heap.SetArrayItem(arr, int32(k), Int(int32(u))); err != nil {
			return Null, err
		}
	}
	obj, err := vm.Heap.NewObject(c)
	if err != nil {
		return Null, err
	}
	if err := vm.Heap.PutField(obj, c, stringValueField, stringValueDesc, arr); err != nil {
		return Null, err
	}
	return obj, nil
}

// Intern returns the canonical String for s, allocating it on first use.
// String constants loaded by ldc are interned.
func (vm *VM) Intern(s string) (Value, error) {
	vm.internMu.Lock()
	defer vm.internMu.Unlock()
	if v, ok := vm.interned[s]; ok {
		return v, nil
	}
	v, err := vm.NewString(s)
	if err != nil {
		return Null, err
	}
	vm.interned[s] = v
	return v, nil
}

// GoString decodes a String reference.
func (vm *VM) GoString(v Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("%w: string is null", ErrNullReference)
	}
	c := v.Class()
	if c == nil || c.Name != stringClass {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvariant, v)
	}
	arr, err := vm.Heap.GetField(v, c, stringValueField, stringValueDesc)
	if err != nil {
		return "", err
	}
	if arr.IsNull() {
		return "", nil
	}
	units := make([]uint16, arr.Len())
	for k := range units {
		item, err := vm.Heap.ArrayItem(arr, int32(k))
		if err != nil {
			return "", err
		}
		units[k] = uint16(item.AsInt())
	}
	return string(utf16.Decode(units)), nil
}
