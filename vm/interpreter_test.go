package vm_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/racaljk/yvm/heap"
	"github.com/racaljk/yvm/image"
	"github.com/racaljk/yvm/methodarea"
	"github.com/racaljk/yvm/natives"
	"github.com/racaljk/yvm/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newVM assembles docs on top of the bootstrap runtime.
func newVM(t *testing.T, opts vm.Options, docs ...string) *vm.VM {
	t.Helper()
	return newVMWith(t, opts, nil, docs...)
}

// newVMWith is newVM with extra natives layered over the defaults.
func newVMWith(t *testing.T, opts vm.Options, extra vm.NativeTable, docs ...string) *vm.VM {
	t.Helper()
	user := methodarea.Classes{}
	for _, d := range docs {
		classes, err := image.AssembleAll(strings.NewReader(d))
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}
		for _, c := range classes {
			user[c.Name] = c
		}
	}
	src, err := methodarea.WithBootstrap(user)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	machine, err := vm.New(methodarea.New(src), heap.New(), natives.Default().Merge(extra), opts)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	return machine
}

// call invokes a static method and fails the test on error.
func call(t *testing.T, machine *vm.VM, class, name, desc string, args ...vm.Value) vm.Value {
	t.Helper()
	v, _, err := machine.InvokeByName(class, name, desc, args...)
	if err != nil {
		t.Fatalf("%s.%s%s: %v", class, name, desc, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Arithmetic and control flow
// ---------------------------------------------------------------------------

const mathDoc = `
class: demo/Arith
methods:
  - name: square
    descriptor: (I)I
    flags: [public, static]
    code: |
      iload_0
      iload_0
      imul
      ireturn
  - name: big
    descriptor: ()J
    flags: [static]
    code: |
      ldc2_w long 5000000000
      lstore_0
      lload_0
      lload_0
      ladd
      lreturn
  - name: roundTrip
    descriptor: ()I
    flags: [static]
    code: |
      ldc2_w long 5000000000
      lstore_0
      lload_0
      ldc2_w long 5000000000
      lcmp
      ireturn
  - name: cmp
    descriptor: (JJ)I
    flags: [static]
    code: |
      lload_0
      lload_2
      lcmp
      ireturn
  - name: sum
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_0
      istore_1
      loop:
      iload_0
      ifle done
      iload_1
      iload_0
      iadd
      istore_1
      iinc 0 -1
      goto loop
      done:
      iload_1
      ireturn
  - name: classify
    descriptor: (I)I
    flags: [static]
    code: |
      iload_0
      tableswitch 0 other zero one two
      zero: bipush 10
      ireturn
      one: bipush 11
      ireturn
      two: bipush 12
      ireturn
      other: iload_0
      lookupswitch miss -100:neg 1000:big
      neg: iconst_m1
      ireturn
      big: iconst_1
      ireturn
      miss: iconst_0
      ireturn
  - name: div
    descriptor: (II)I
    flags: [static]
    code: |
      iload_0
      iload_1
      idiv
      ireturn
  - name: half
    descriptor: (D)F
    flags: [static]
    code: |
      dload_0
      ldc2_w double 2.0
      ddiv
      d2f
      freturn
`

func TestArithmetic(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), mathDoc)

	if got := call(t, machine, "demo/Arith", "square", "(I)I", vm.Int(7)).AsInt(); got != 49 {
		t.Errorf("square(7) = %d, want 49", got)
	}
	if got := call(t, machine, "demo/Arith", "big", "()J").AsLong(); got != 10000000000 {
		t.Errorf("big() = %d, want 10000000000", got)
	}
	if got := call(t, machine, "demo/Arith", "roundTrip", "()I").AsInt(); got != 0 {
		t.Errorf("roundTrip() = %d, want 0", got)
	}
	if got := call(t, machine, "demo/Arith", "cmp", "(JJ)I", vm.Long(5000000000), vm.Long(4000000000)).AsInt(); got != 1 {
		t.Errorf("cmp = %d, want 1", got)
	}
	if got := call(t, machine, "demo/Arith", "sum", "(I)I", vm.Int(100)).AsInt(); got != 5050 {
		t.Errorf("sum(100) = %d, want 5050", got)
	}
	if got := call(t, machine, "demo/Arith", "half", "(D)F", vm.Double(5)).AsFloat(); got != 2.5 {
		t.Errorf("half(5) = %g, want 2.5", got)
	}
}

func TestSwitches(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), mathDoc)
	tests := map[int32]int32{0: 10, 1: 11, 2: 12, -100: -1, 1000: 1, 3: 0, -1: 0}
	for in, want := range tests {
		if got := call(t, machine, "demo/Arith", "classify", "(I)I", vm.Int(in)).AsInt(); got != want {
			t.Errorf("classify(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDivisionByZeroIsHostError(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), mathDoc)
	_, _, err := machine.InvokeByName("demo/Arith", "div", "(II)I", vm.Int(1), vm.Int(0))
	if !errors.Is(err, vm.ErrArithmetic) {
		t.Fatalf("div(1, 0) error = %v, want ErrArithmetic", err)
	}
	var xe *vm.ExecError
	if !errors.As(err, &xe) {
		t.Fatalf("error %T carries no location", err)
	}
	if xe.Op != vm.OpIDIV || xe.PC != 2 || xe.Class != "demo/Arith" || xe.Method != "div(II)I" {
		t.Errorf("location = %s pc=%d %s.%s, want idiv pc=2 demo/Arith.div(II)I", xe.Op, xe.PC, xe.Class, xe.Method)
	}
}

const narrowDoc = `
class: demo/Narrow
methods:
  - name: booleans
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_1
      newarray boolean
      astore_1
      aload_1
      iconst_0
      iload_0
      bastore
      aload_1
      iconst_0
      baload
      ireturn
  - name: bytes
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_1
      newarray byte
      astore_1
      aload_1
      iconst_0
      iload_0
      bastore
      aload_1
      iconst_0
      baload
      ireturn
  - name: chars
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_1
      newarray char
      astore_1
      aload_1
      iconst_0
      iload_0
      castore
      aload_1
      iconst_0
      caload
      ireturn
  - name: shorts
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_1
      newarray short
      astore_1
      aload_1
      iconst_0
      iload_0
      sastore
      aload_1
      iconst_0
      saload
      ireturn
`

func TestNarrowArrayElements(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), narrowDoc)
	tests := []struct {
		method string
		in     int32
		want   int32
	}{
		{"booleans", 1, 1},
		{"booleans", 2, 0},
		{"booleans", 3, 1},
		{"bytes", 300, 44},
		{"bytes", 200, -56},
		{"bytes", -1, -1},
		{"chars", -1, 65535},
		{"chars", 65601, 65},
		{"shorts", 70000, 4464},
		{"shorts", 40000, -25536},
		{"shorts", -2, -2},
	}
	for _, tt := range tests {
		if got := call(t, machine, "demo/Narrow", tt.method, "(I)I", vm.Int(tt.in)).AsInt(); got != tt.want {
			t.Errorf("%s(%d) = %d, want %d", tt.method, tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Objects, statics and dispatch
// ---------------------------------------------------------------------------

const shapesDoc = `
class: demo/Named
flags: [public, interface, abstract]
methods:
  - name: id
    descriptor: ()I
    flags: [public]
    code: |
      iconst_1
      ireturn
---
class: demo/Base
flags: [public, super]
fields:
  - {name: size, descriptor: I}
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial java/lang/Object.<init>:()V
      aload_0
      iconst_3
      putfield demo/Base.size:I
      return
  - name: id
    descriptor: ()I
    flags: [public]
    code: |
      iconst_2
      ireturn
  - name: describe
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      getfield demo/Base.size:I
      ireturn
---
class: demo/Derived
super: demo/Base
interfaces: [demo/Named]
flags: [public, super]
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial demo/Base.<init>:()V
      return
  - name: describe
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      invokespecial demo/Base.describe:()I
      bipush 100
      iadd
      ireturn
---
class: demo/Plain
interfaces: [demo/Named]
flags: [public, super]
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial java/lang/Object.<init>:()V
      return
---
class: demo/Shapes
fields:
  - {name: created, descriptor: I, flags: [static]}
methods:
  - name: <clinit>
    descriptor: ()V
    flags: [static]
    code: |
      bipush 40
      putstatic demo/Shapes.created:I
      return
  - name: id
    descriptor: (Ldemo/Named;)I
    flags: [static]
    code: |
      aload_0
      invokeinterface demo/Named.id:()I
      ireturn
  - name: derivedId
    descriptor: ()I
    flags: [static]
    code: |
      new demo/Derived
      dup
      invokespecial demo/Derived.<init>:()V
      invokestatic demo/Shapes.id:(Ldemo/Named;)I
      ireturn
  - name: plainId
    descriptor: ()I
    flags: [static]
    code: |
      new demo/Plain
      dup
      invokespecial demo/Plain.<init>:()V
      invokestatic demo/Shapes.id:(Ldemo/Named;)I
      ireturn
  - name: describe
    descriptor: ()I
    flags: [static]
    code: |
      new demo/Derived
      dup
      invokespecial demo/Derived.<init>:()V
      invokevirtual demo/Base.describe:()I
      ireturn
  - name: count
    descriptor: ()I
    flags: [static]
    code: |
      getstatic demo/Shapes.created:I
      iconst_1
      iadd
      dup
      putstatic demo/Shapes.created:I
      ireturn
  - name: isNamed
    descriptor: (Ljava/lang/Object;)Z
    flags: [static]
    code: |
      aload_0
      instanceof demo/Named
      ireturn
  - name: nullField
    descriptor: ()I
    flags: [static]
    code: |
      aconst_null
      getfield demo/Base.size:I
      ireturn
  - name: sameLiteral
    descriptor: ()Z
    flags: [static]
    code: |
      ldc string "yvm"
      ldc string "yvm"
      if_acmpne differ
      iconst_1
      ireturn
      differ:
      iconst_0
      ireturn
`

func TestVirtualDispatch(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), shapesDoc)

	// A superclass method wins over an interface default.
	if got := call(t, machine, "demo/Shapes", "derivedId", "()I").AsInt(); got != 2 {
		t.Errorf("derivedId() = %d, want 2", got)
	}
	if got := call(t, machine, "demo/Shapes", "plainId", "()I").AsInt(); got != 1 {
		t.Errorf("plainId() = %d, want 1 (interface default)", got)
	}
	if got := call(t, machine, "demo/Shapes", "describe", "()I").AsInt(); got != 103 {
		t.Errorf("describe() = %d, want 103", got)
	}

	hits, misses, _ := machine.Dispatch().Stats()
	call(t, machine, "demo/Shapes", "derivedId", "()I")
	hits2, misses2, _ := machine.Dispatch().Stats()
	if hits2 <= hits || misses2 != misses {
		t.Errorf("repeat dispatch: hits %d->%d misses %d->%d, want a cache hit", hits, hits2, misses, misses2)
	}
}

func TestStaticInitializerRunsOnce(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), shapesDoc)
	if got := call(t, machine, "demo/Shapes", "count", "()I").AsInt(); got != 41 {
		t.Errorf("first count() = %d, want 41", got)
	}
	if got := call(t, machine, "demo/Shapes", "count", "()I").AsInt(); got != 42 {
		t.Errorf("second count() = %d, want 42", got)
	}
}

func TestInstanceofAndStrings(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), shapesDoc)

	s, err := machine.NewString("x")
	if err != nil {
		t.Fatal(err)
	}
	if got := call(t, machine, "demo/Shapes", "isNamed", "(Ljava/lang/Object;)Z", s).AsInt(); got != 0 {
		t.Errorf("isNamed(String) = %d, want 0", got)
	}
	if got := call(t, machine, "demo/Shapes", "isNamed", "(Ljava/lang/Object;)Z", vm.Null).AsInt(); got != 0 {
		t.Errorf("isNamed(null) = %d, want 0", got)
	}
	if got := call(t, machine, "demo/Shapes", "sameLiteral", "()Z").AsInt(); got != 1 {
		t.Errorf("sameLiteral() = %d, want 1 (literals are interned)", got)
	}

	_, _, err = machine.InvokeByName("demo/Shapes", "nullField", "()I")
	if !errors.Is(err, vm.ErrNullReference) {
		t.Errorf("nullField() error = %v, want ErrNullReference", err)
	}
}

const superDoc = `
class: demo/A
flags: [public, super]
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial java/lang/Object.<init>:()V
      return
  - name: m
    descriptor: ()I
    flags: [public]
    code: |
      iconst_1
      ireturn
---
class: demo/B
super: demo/A
flags: [public, super]
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial demo/A.<init>:()V
      return
  - name: m
    descriptor: ()I
    flags: [public]
    code: |
      iconst_2
      ireturn
---
class: demo/C
super: demo/B
flags: [public, super]
methods:
  - name: <init>
    descriptor: ()V
    flags: [public]
    code: |
      aload_0
      invokespecial demo/B.<init>:()V
      return
  - name: make
    descriptor: ()Ldemo/C;
    flags: [public, static]
    code: |
      new demo/C
      dup
      invokespecial demo/C.<init>:()V
      areturn
  - name: m
    descriptor: ()I
    flags: [public]
    code: |
      iconst_3
      ireturn
  - name: grandparent
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      invokespecial demo/A.m:()I
      ireturn
  - name: parent
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      invokespecial demo/B.m:()I
      ireturn
  - name: own
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      invokespecial demo/C.m:()I
      ireturn
  - name: virtual
    descriptor: ()I
    flags: [public]
    code: |
      aload_0
      invokevirtual demo/A.m:()I
      ireturn
`

func TestInvokeSpecialSuperRule(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), superDoc)
	obj := call(t, machine, "demo/C", "make", "()Ldemo/C;")

	tests := []struct {
		method string
		want   int32
	}{
		// Only a call naming the direct superclass starts there; A is
		// named directly and its override in B is skipped.
		{"grandparent", 1},
		{"parent", 2},
		{"own", 3},
		{"virtual", 3},
	}
	for _, tt := range tests {
		if got := call(t, machine, "demo/C", tt.method, "()I", obj).AsInt(); got != tt.want {
			t.Errorf("%s() = %d, want %d", tt.method, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

const throwDoc = `
class: demo/Throw
methods:
  - name: fail
    descriptor: (Ljava/lang/String;)V
    flags: [static]
    code: |
      new java/lang/IllegalStateException
      dup
      aload_0
      invokespecial java/lang/IllegalStateException.<init>:(Ljava/lang/String;)V
      athrow
  - name: relay
    descriptor: ()V
    flags: [static]
    code: |
      ldc string "bad"
      invokestatic demo/Throw.fail:(Ljava/lang/String;)V
      return
  - name: guarded
    descriptor: ()I
    flags: [static]
    code: |
      start:
      invokestatic demo/Throw.relay:()V
      iconst_0
      ireturn
      end:
      runtime:
      astore_0
      bipush 7
      ireturn
    exceptions:
      - {start: start, end: end, handler: runtime, catch: java/lang/RuntimeException}
  - name: wrongCatch
    descriptor: ()I
    flags: [static]
    code: |
      start:
      invokestatic demo/Throw.relay:()V
      iconst_0
      ireturn
      end:
      handler:
      pop
      iconst_m1
      ireturn
    exceptions:
      - {start: start, end: end, handler: handler, catch: java/lang/ArithmeticException}
  - name: catchAll
    descriptor: ()Ljava/lang/String;
    flags: [static]
    code: |
      start:
      invokestatic demo/Throw.relay:()V
      aconst_null
      areturn
      end:
      handler:
      invokevirtual java/lang/Throwable.getMessage:()Ljava/lang/String;
      areturn
    exceptions:
      - {start: start, end: end, handler: handler}
  - name: throwNull
    descriptor: ()V
    flags: [static]
    code: |
      aconst_null
      athrow
`

func TestExceptionCaught(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), throwDoc)
	if got := call(t, machine, "demo/Throw", "guarded", "()I").AsInt(); got != 7 {
		t.Errorf("guarded() = %d, want 7", got)
	}

	msg := call(t, machine, "demo/Throw", "catchAll", "()Ljava/lang/String;")
	s, err := machine.GoString(msg)
	if err != nil {
		t.Fatal(err)
	}
	if s != "bad" {
		t.Errorf("catchAll() = %q, want bad", s)
	}
}

func TestExceptionUncaught(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), throwDoc)
	_, _, err := machine.InvokeByName("demo/Throw", "wrongCatch", "()I")

	var ue *vm.UncaughtException
	if !errors.As(err, &ue) {
		t.Fatalf("wrongCatch() error = %v, want UncaughtException", err)
	}
	if !errors.Is(err, vm.ErrUncaught) {
		t.Error("UncaughtException does not match ErrUncaught")
	}
	if ue.Message != "bad" {
		t.Errorf("message = %q, want bad", ue.Message)
	}
	if got := ue.Error(); got != "uncaught exception: java.lang.IllegalStateException: bad" {
		t.Errorf("Error() = %q", got)
	}

	var methods []string
	for _, e := range ue.Trace {
		methods = append(methods, e.Method)
	}
	if got := strings.Join(methods, ","); got != "fail,relay,wrongCatch" {
		t.Errorf("trace = %s, want fail,relay,wrongCatch", got)
	}
	if ue.Trace[0].PC != 8 {
		t.Errorf("athrow pc = %d, want 8", ue.Trace[0].PC)
	}
	if !strings.Contains(ue.StackTrace(), "\tat demo.Throw.relay()V (pc 2)\n") {
		t.Errorf("StackTrace() = %q", ue.StackTrace())
	}
}

func TestThrowNull(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), throwDoc)
	_, _, err := machine.InvokeByName("demo/Throw", "throwNull", "()V")
	if !errors.Is(err, vm.ErrNullReference) {
		t.Errorf("throwNull() error = %v, want ErrNullReference", err)
	}
}

const unwindDoc = `
class: demo/Unwind
methods:
  - name: depth
    descriptor: ()I
    flags: [static, native]
  - name: loaded
    descriptor: ()I
    flags: [static]
    code: |
      bipush 5
      lconst_1
      invokestatic demo/Unwind.depth:()I
      ireturn
  - name: caught
    descriptor: ()I
    flags: [static]
    code: |
      bipush 5
      lconst_1
      start:
      invokestatic demo/Throw.relay:()V
      iconst_m1
      ireturn
      end:
      handler:
      pop
      invokestatic demo/Unwind.depth:()I
      ireturn
    exceptions:
      - {start: start, end: end, handler: handler}
`

// callerDepth reports the operand stack depth, in slots, of the frame that
// called it.
func callerDepth(env *vm.NativeEnv) (vm.Value, bool, error) {
	caller := env.Interp.Stack().Frames()[1]
	return vm.Int(int32(caller.Depth())), true, nil
}

func TestHandlerClearsOperandStack(t *testing.T) {
	extra := vm.NativeTable{}
	extra.Register("demo/Unwind", "depth", "()I", callerDepth)
	machine := newVMWith(t, vm.DefaultOptions(), extra, throwDoc, unwindDoc)

	if got := call(t, machine, "demo/Unwind", "loaded", "()I").AsInt(); got != 3 {
		t.Errorf("loaded() = %d, want 3 (int and long below the call)", got)
	}
	if got := call(t, machine, "demo/Unwind", "caught", "()I").AsInt(); got != 0 {
		t.Errorf("caught() = %d, want 0 (handler starts on an empty stack)", got)
	}
}

// ---------------------------------------------------------------------------
// Natives, limits and unsupported instructions
// ---------------------------------------------------------------------------

const edgeDoc = `
class: demo/Edge
methods:
  - name: missing
    descriptor: ()I
    flags: [static, native]
  - name: useMissing
    descriptor: ()I
    flags: [static]
    code: |
      invokestatic demo/Edge.missing:()I
      iconst_1
      iadd
      ireturn
  - name: recurse
    descriptor: (I)I
    flags: [static]
    code: |
      iload_0
      iconst_1
      iadd
      invokestatic demo/Edge.recurse:(I)I
      ireturn
  - name: cast
    descriptor: ()Ljava/lang/Object;
    flags: [static]
    code: |
      aconst_null
      checkcast java/lang/Object
      areturn
  - name: matrix
    descriptor: ()Ljava/lang/Object;
    flags: [static]
    code: |
      iconst_2
      iconst_2
      multianewarray "[[I" 2
      areturn
  - name: locked
    descriptor: (Ljava/lang/Object;)I
    flags: [static]
    code: |
      aload_0
      monitorenter
      aload_0
      monitorenter
      aload_0
      monitorexit
      aload_0
      monitorexit
      iconst_1
      ireturn
  - name: unlocked
    descriptor: (Ljava/lang/Object;)V
    flags: [static]
    code: |
      aload_0
      monitorexit
      return
  - name: negative
    descriptor: ()V
    flags: [static]
    code: |
      iconst_m1
      newarray int
      pop
      return
  - name: outOfBounds
    descriptor: ()I
    flags: [static]
    code: |
      iconst_2
      newarray int
      iconst_2
      iaload
      ireturn
`

func TestNativeMiss(t *testing.T) {
	lenient := newVM(t, vm.DefaultOptions(), edgeDoc)
	v, ok, err := lenient.InvokeByName("demo/Edge", "missing", "()I")
	if err != nil || ok {
		t.Errorf("missing() = %v, %v, %v; want no value and no error", v, ok, err)
	}
	if got := call(t, lenient, "demo/Edge", "useMissing", "()I").AsInt(); got != 1 {
		t.Errorf("useMissing() = %d, want 1 (zero value pushed)", got)
	}

	opts := vm.DefaultOptions()
	opts.StrictNatives = true
	strict := newVM(t, opts, edgeDoc)
	_, _, err = strict.InvokeByName("demo/Edge", "useMissing", "()I")
	if !errors.Is(err, vm.ErrNativeMissing) {
		t.Errorf("strict useMissing() error = %v, want ErrNativeMissing", err)
	}
}

func TestCallDepth(t *testing.T) {
	opts := vm.DefaultOptions()
	opts.MaxCallDepth = 50
	machine := newVM(t, opts, edgeDoc)
	_, _, err := machine.InvokeByName("demo/Edge", "recurse", "(I)I", vm.Int(0))
	if !errors.Is(err, vm.ErrCallDepth) {
		t.Errorf("recurse error = %v, want ErrCallDepth", err)
	}
}

func TestUnsupported(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), edgeDoc)
	for _, name := range []string{"cast", "matrix"} {
		_, _, err := machine.InvokeByName("demo/Edge", name, "()Ljava/lang/Object;")
		if !errors.Is(err, vm.ErrUnsupported) {
			t.Errorf("%s() error = %v, want ErrUnsupported", name, err)
		}
	}
}

func TestArrayFailures(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), edgeDoc)
	if _, _, err := machine.InvokeByName("demo/Edge", "negative", "()V"); !errors.Is(err, vm.ErrNegativeArraySize) {
		t.Errorf("negative() error = %v, want ErrNegativeArraySize", err)
	}
	if _, _, err := machine.InvokeByName("demo/Edge", "outOfBounds", "()I"); !errors.Is(err, vm.ErrIndexOutOfBounds) {
		t.Errorf("outOfBounds() error = %v, want ErrIndexOutOfBounds", err)
	}
}

func TestMonitors(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), edgeDoc)
	obj, err := machine.NewString("lock")
	if err != nil {
		t.Fatal(err)
	}
	if got := call(t, machine, "demo/Edge", "locked", "(Ljava/lang/Object;)I", obj).AsInt(); got != 1 {
		t.Errorf("locked() = %d, want 1", got)
	}
	if owner, count := machine.Heap.Monitor(obj).Owner(); count != 0 {
		t.Errorf("monitor still held by %s (%d entries)", owner, count)
	}

	_, _, err = machine.InvokeByName("demo/Edge", "unlocked", "(Ljava/lang/Object;)V", obj)
	if !errors.Is(err, vm.ErrIllegalMonitorState) {
		t.Errorf("unlocked() error = %v, want ErrIllegalMonitorState", err)
	}
}

func TestConcurrentInterpreters(t *testing.T) {
	machine := newVM(t, vm.DefaultOptions(), mathDoc, shapesDoc)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			interp := machine.NewInterpreter("worker")
			for k := 0; k < 20; k++ {
				v, _, err := interp.Invoke("demo/Arith", "sum", "(I)I", vm.Int(int32(g*10+k)))
				if err != nil {
					errs <- err
					return
				}
				n := int32(g*10 + k)
				if v.AsInt() != n*(n+1)/2 {
					t.Errorf("sum(%d) = %d", n, v.AsInt())
				}
				if _, _, err := interp.Invoke("demo/Shapes", "derivedId", "()I"); err != nil {
					errs <- err
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
