// Package heap stores the objects and arrays of a yvm machine.
package heap

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

var log = commonlog.GetLogger("yvm.heap")

type fieldKey struct {
	owner string
	name  string
	desc  string
}

// cell is one allocation. Objects use fields; arrays use elems.
type cell struct {
	class  *classfile.Class
	array  bool
	elem   vm.ElemKind
	fields map[fieldKey]vm.Value
	elems  []vm.Value
}

// Heap is an arena of cells addressed by handle. Handle n names cells[n-1];
// handle 0 is null. Cells are never freed. Heap implements vm.Heap and is
// safe for concurrent use.
type Heap struct {
	mu       sync.RWMutex
	cells    []*cell
	monitors map[vm.Handle]*vm.Monitor
}

var _ vm.Heap = (*Heap)(nil)

// New returns an empty heap.
func New() *Heap {
	return &Heap{monitors: make(map[vm.Handle]*vm.Monitor)}
}

func (h *Heap) alloc(c *cell) (vm.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(len(h.cells)) >= math.MaxUint32 {
		return 0, errors.New("heap exhausted")
	}
	h.cells = append(h.cells, c)
	return vm.Handle(len(h.cells)), nil
}

// NewObject allocates an instance of c with every field at its zero value.
func (h *Heap) NewObject(c *classfile.Class) (vm.Value, error) {
	if c == nil {
		return vm.Null, errors.New("allocate object of nil class")
	}
	handle, err := h.alloc(&cell{class: c, fields: make(map[fieldKey]vm.Value)})
	if err != nil {
		return vm.Null, err
	}
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("new %s #%d", c.Name, handle)
	}
	return vm.ObjectRef(handle, c), nil
}

// NewArray allocates an array of length elements of kind elem. component
// is the element class of a reference array.
func (h *Heap) NewArray(elem vm.ElemKind, component *classfile.Class, length int32) (vm.Value, error) {
	if length < 0 {
		return vm.Null, errors.Wrapf(vm.ErrNegativeArraySize, "%d", length)
	}
	elems := make([]vm.Value, length)
	zero := vm.ZeroElem(elem)
	for k := range elems {
		elems[k] = zero
	}
	handle, err := h.alloc(&cell{class: component, array: true, elem: elem, elems: elems})
	if err != nil {
		return vm.Null, err
	}
	return vm.ArrayRef(handle, elem, component, length), nil
}

func (h *Heap) lookup(ref vm.Value) (*cell, error) {
	if ref.IsNull() {
		return nil, errors.WithStack(vm.ErrNullReference)
	}
	if !ref.IsRef() {
		return nil, errors.Wrapf(vm.ErrInvariant, "%s is not a reference", ref)
	}
	n := int(ref.Handle())
	if n > len(h.cells) {
		return nil, errors.Wrapf(vm.ErrInvariant, "dangling handle %d", n)
	}
	return h.cells[n-1], nil
}

func (h *Heap) object(ref vm.Value) (*cell, error) {
	c, err := h.lookup(ref)
	if err != nil {
		return nil, err
	}
	if c.array {
		return nil, errors.Wrapf(vm.ErrInvariant, "field access on array %s", ref)
	}
	return c, nil
}

func (h *Heap) arrayCell(ref vm.Value) (*cell, error) {
	c, err := h.lookup(ref)
	if err != nil {
		return nil, err
	}
	if !c.array {
		return nil, errors.Wrapf(vm.ErrInvariant, "%s is not an array", ref)
	}
	return c, nil
}

// GetField reads a field of obj declared by owner. A field that was never
// written reads as the zero value of desc.
func (h *Heap) GetField(obj vm.Value, owner *classfile.Class, name, desc string) (vm.Value, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, err := h.object(obj)
	if err != nil {
		return vm.Null, err
	}
	if v, ok := c.fields[fieldKey{owner.Name, name, desc}]; ok {
		return v, nil
	}
	return vm.ZeroValue(desc), nil
}

// PutField writes a field of obj declared by owner.
func (h *Heap) PutField(obj vm.Value, owner *classfile.Class, name, desc string, v vm.Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.object(obj)
	if err != nil {
		return err
	}
	c.fields[fieldKey{owner.Name, name, desc}] = v
	return nil
}

// ArrayItem reads element index of arr.
func (h *Heap) ArrayItem(arr vm.Value, index int32) (vm.Value, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, err := h.arrayCell(arr)
	if err != nil {
		return vm.Null, err
	}
	if index < 0 || int(index) >= len(c.elems) {
		return vm.Null, errors.Wrapf(vm.ErrIndexOutOfBounds, "index %d, length %d", index, len(c.elems))
	}
	return c.elems[index], nil
}

// SetArrayItem writes element index of arr. The value must suit the
// array's element kind.
func (h *Heap) SetArrayItem(arr vm.Value, index int32, v vm.Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.arrayCell(arr)
	if err != nil {
		return err
	}
	if index < 0 || int(index) >= len(c.elems) {
		return errors.Wrapf(vm.ErrIndexOutOfBounds, "index %d, length %d", index, len(c.elems))
	}
	if !fits(c.elem, v) {
		return errors.Wrapf(vm.ErrInvariant, "store %s into %s array", v, c.elem.Descriptor(c.class))
	}
	c.elems[index] = v
	return nil
}

func fits(e vm.ElemKind, v vm.Value) bool {
	switch e {
	case vm.ElemRef:
		return v.IsRef()
	case vm.ElemLong:
		return v.Kind() == vm.KindLong
	case vm.ElemFloat:
		return v.Kind() == vm.KindFloat
	case vm.ElemDouble:
		return v.Kind() == vm.KindDouble
	}
	return v.Kind() == vm.KindInt
}

// Monitor returns the monitor of ref, creating it on first use.
func (h *Heap) Monitor(ref vm.Value) *vm.Monitor {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.monitors[ref.Handle()]
	if !ok {
		m = vm.NewMonitor()
		h.monitors[ref.Handle()] = m
	}
	return m
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats summarizes heap occupancy.
type Stats struct {
	Objects  int
	Arrays   int
	Elements int
	Monitors int
}

// Stats counts live cells. Since nothing is collected, that is every
// allocation made so far.
func (h *Heap) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var s Stats
	for _, c := range h.cells {
		if c.array {
			s.Arrays++
			s.Elements += len(c.elems)
		} else {
			s.Objects++
		}
	}
	s.Monitors = len(h.monitors)
	return s
}

// ClassCount is the number of allocations of one type.
type ClassCount struct {
	Type  string // class name or array descriptor
	Count int
}

// Census groups allocations by type, most frequent first.
func (h *Heap) Census() []ClassCount {
	h.mu.RLock()
	counts := make(map[string]int)
	for _, c := range h.cells {
		if c.array {
			counts["["+c.elem.Descriptor(c.class)]++
		} else {
			counts[c.class.Name]++
		}
	}
	h.mu.RUnlock()

	out := make([]ClassCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, ClassCount{t, n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Type < out[b].Type
	})
	return out
}
