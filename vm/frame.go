package vm

import (
	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// Frame: Execution state for a method invocation
// ---------------------------------------------------------------------------

// Frame is the execution state of one in-flight method invocation.
type Frame struct {
	Class  *classfile.Class
	Method *classfile.Method
	PC     int // address of the instruction being executed

	locals []Value
	stack  []Value
	depth  int // operand stack depth in slots
}

// NewFrame allocates a frame with the method's MaxLocals empty local slots.
func NewFrame(class *classfile.Class, method *classfile.Method) *Frame {
	f := &Frame{Class: class, Method: method}
	if method != nil && method.Code != nil {
		f.locals = make([]Value, method.Code.MaxLocals)
		f.stack = make([]Value, 0, method.Code.MaxStack)
	}
	return f
}

// Code returns the bytecode of the frame's method.
func (f *Frame) Code() []byte {
	if f.Method == nil || f.Method.Code == nil {
		return nil
	}
	return f.Method.Code.Bytecode
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

// Push appends v to the operand stack.
func (f *Frame) Push(v Value) {
	if v.kind == KindEmpty || v.kind == KindTop {
		violate("push of %s value", v.kind)
	}
	f.stack = append(f.stack, v)
	f.depth += v.Category()
}

// Pop removes and returns the top value. The vacated slot is cleared.
func (f *Frame) Pop() Value {
	n := len(f.stack)
	if n == 0 {
		violate("stack underflow")
	}
	v := f.stack[n-1]
	f.stack[n-1] = Value{}
	f.stack = f.stack[:n-1]
	f.depth -= v.Category()
	return v
}

// Pop1 pops a value that must be category-1.
func (f *Frame) Pop1() Value {
	v := f.Pop()
	if v.Category() != 1 {
		violate("expected category-1 value, found %s", v.kind)
	}
	return v
}

// PopKind pops a value that must be of kind k.
func (f *Frame) PopKind(k Kind) Value {
	v := f.Pop()
	if v.kind != k {
		violate("expected %s on stack, found %s", k, v.kind)
	}
	return v
}

// PopRef pops an object or array reference.
func (f *Frame) PopRef() Value {
	v := f.Pop()
	if !v.IsRef() {
		violate("expected reference on stack, found %s", v.kind)
	}
	return v
}

func (f *Frame) PopInt() int32     { return f.PopKind(KindInt).AsInt() }
func (f *Frame) PopLong() int64    { return f.PopKind(KindLong).AsLong() }
func (f *Frame) PopFloat() float32 { return f.PopKind(KindFloat).AsFloat() }
func (f *Frame) PopDouble() float64 {
	return f.PopKind(KindDouble).AsDouble()
}

// Peek returns the value n entries below the top without removing it.
// Peek(0) is the top.
func (f *Frame) Peek(n int) Value {
	i := len(f.stack) - 1 - n
	if i < 0 {
		violate("stack underflow")
	}
	return f.stack[i]
}

// Depth is the operand stack depth in slots; long and double count twice.
func (f *Frame) Depth() int { return f.depth }

// Len is the number of values on the operand stack.
func (f *Frame) Len() int { return len(f.stack) }

// ClearStack empties the operand stack.
func (f *Frame) ClearStack() {
	for i := range f.stack {
		f.stack[i] = Value{}
	}
	f.stack = f.stack[:0]
	f.depth = 0
}

// drain empties the operand stack and returns what was on it, bottom first.
func (f *Frame) drain() []Value {
	out := make([]Value, len(f.stack))
	copy(out, f.stack)
	f.ClearStack()
	return out
}

// ---------------------------------------------------------------------------
// Local variables
// ---------------------------------------------------------------------------

// Local returns local slot i.
func (f *Frame) Local(i int) Value {
	if i < 0 || i >= len(f.locals) {
		violate("local %d out of range (max %d)", i, len(f.locals))
	}
	return f.locals[i]
}

// LocalKind returns local slot i, which must hold a value of kind k.
func (f *Frame) LocalKind(i int, k Kind) Value {
	v := f.Local(i)
	if v.kind != k {
		violate("local %d holds %s, expected %s", i, v.kind, k)
	}
	return v
}

// SetLocal stores v at slot i. A category-2 value also claims slot i+1.
func (f *Frame) SetLocal(i int, v Value) {
	last := i
	if v.Category() == 2 {
		last = i + 1
	}
	if i < 0 || last >= len(f.locals) {
		violate("local %d out of range (max %d)", i, len(f.locals))
	}
	// Overwriting half of a category-2 pair invalidates the other half.
	if i > 0 && f.locals[i-1].Category() == 2 {
		f.locals[i-1] = Value{}
	}
	if f.locals[last].Category() == 2 && last+1 < len(f.locals) {
		f.locals[last+1] = Value{}
	}
	f.locals[i] = v
	if last != i {
		f.locals[last] = Top
	}
}

// MaxLocals is the number of local slots.
func (f *Frame) MaxLocals() int { return len(f.locals) }

// ---------------------------------------------------------------------------
// CallStack
// ---------------------------------------------------------------------------

// CallStack is the LIFO chain of frames of one interpreter.
type CallStack struct {
	frames []*Frame
}

// PushFrame allocates a frame for method and makes it current.
func (s *CallStack) PushFrame(class *classfile.Class, method *classfile.Method) *Frame {
	f := NewFrame(class, method)
	s.frames = append(s.frames, f)
	return f
}

// CurrentFrame returns the top frame, or nil when the stack is empty.
func (s *CallStack) CurrentFrame() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// PopFrame removes the top frame and hands back whatever values remained on
// its operand stack.
func (s *CallStack) PopFrame() []Value {
	n := len(s.frames)
	if n == 0 {
		violate("frame stack underflow")
	}
	f := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	return f.drain()
}

// Depth is the number of frames.
func (s *CallStack) Depth() int { return len(s.frames) }

// Frames returns the frames innermost first.
func (s *CallStack) Frames() []*Frame {
	out := make([]*Frame, len(s.frames))
	for i, f := range s.frames {
		out[len(s.frames)-1-i] = f
	}
	return out
}
