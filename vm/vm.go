package vm

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// FloatCompare selects how fcmp/dcmp decide equality.
type FloatCompare uint8

const (
	// CompareIEEE compares exactly.
	CompareIEEE FloatCompare = iota
	// CompareEpsilon treats values closer than FloatEpsilon (float) or
	// DoubleEpsilon (double) as equal.
	CompareEpsilon
)

const (
	FloatEpsilon  = 1e-6
	DoubleEpsilon = 1e-12
)

// ParseFloatCompare maps "ieee" or "epsilon" to a mode.
func ParseFloatCompare(s string) (FloatCompare, error) {
	switch s {
	case "", "ieee":
		return CompareIEEE, nil
	case "epsilon":
		return CompareEpsilon, nil
	}
	return CompareIEEE, fmt.Errorf("unknown float-compare mode %q", s)
}

// Options tunes a VM.
type Options struct {
	FloatCompare FloatCompare

	// StrictNatives makes a call to an unregistered native method a host
	// error instead of a logged no-op.
	StrictNatives bool

	// MaxCallDepth bounds the number of frames per interpreter.
	MaxCallDepth int

	// DispatchCacheSize is the number of virtual dispatch results kept.
	DispatchCacheSize int

	// Stdout receives output from the PrintStream natives.
	Stdout io.Writer
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		FloatCompare:      CompareIEEE,
		MaxCallDepth:      1024,
		DispatchCacheSize: 4096,
		Stdout:            os.Stdout,
	}
}

// ---------------------------------------------------------------------------
// VM: state shared by all interpreters
// ---------------------------------------------------------------------------

// VM bundles the collaborators shared by every interpreter: the method
// area, the heap, the native table and the dispatch cache.
type VM struct {
	Classes MethodArea
	Heap    Heap
	Natives NativeTable
	Log     commonlog.Logger

	opts     Options
	dispatch *DispatchCache

	internMu sync.Mutex
	interned map[string]Value
}

// New creates a VM. The native table is used as given; nil means no
// natives.
func New(classes MethodArea, heap Heap, natives NativeTable, opts Options) (*VM, error) {
	def := DefaultOptions()
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = def.MaxCallDepth
	}
	if opts.DispatchCacheSize <= 0 {
		opts.DispatchCacheSize = def.DispatchCacheSize
	}
	if opts.Stdout == nil {
		opts.Stdout = def.Stdout
	}
	if natives == nil {
		natives = NativeTable{}
	}

	dc, err := NewDispatchCache(opts.DispatchCacheSize)
	if err != nil {
		return nil, err
	}

	return &VM{
		Classes:  classes,
		Heap:     heap,
		Natives:  natives,
		Log:      commonlog.GetLogger("yvm.vm"),
		opts:     opts,
		dispatch: dc,
		interned: make(map[string]Value),
	}, nil
}

// Options returns the options the VM was created with.
func (vm *VM) Options() Options { return vm.opts }

// Dispatch returns the virtual dispatch cache.
func (vm *VM) Dispatch() *DispatchCache { return vm.dispatch }

// NewInterpreter creates an interpreter with its own call stack. Each
// interpreter has a fresh identity used as its monitor owner.
func (vm *VM) NewInterpreter(name string) *Interpreter {
	return &Interpreter{
		ID:   uuid.New(),
		Name: name,
		vm:   vm,
	}
}

// InvokeByName runs a method on a fresh interpreter.
func (vm *VM) InvokeByName(className, method, desc string, args ...Value) (Value, bool, error) {
	return vm.NewInterpreter("main").Invoke(className, method, desc, args...)
}

// loadClass loads a class, wrapping failures as resolution errors.
func (vm *VM) loadClass(name string) (*classfile.Class, error) {
	c, err := vm.Classes.LoadClass(name)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrResolution, name, err)
	}
	return c, nil
}
