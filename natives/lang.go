package natives

import (
	"fmt"
	"math"
	"time"

	"github.com/racaljk/yvm/vm"
)

// ---------------------------------------------------------------------------
// java/lang/Object, String and Throwable
// ---------------------------------------------------------------------------

func registerObject(t vm.NativeTable) {
	t.Register(objectClass, "hashCode", "()I", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Int(identityHash(env.Arg(0))))
	})

	t.Register(stringClass, "intern", "()Ljava/lang/String;", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		s, err := env.VM().GoString(env.Arg(0))
		if err != nil {
			return fail(err)
		}
		v, err := env.VM().Intern(s)
		if err != nil {
			return fail(err)
		}
		return value(v)
	})

	// Frames are recorded as the exception unwinds, so there is nothing to
	// capture here.
	t.Register(throwableClass, "fillInStackTrace", "()Ljava/lang/Throwable;", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(env.Arg(0))
	})
}

// identityHash is derived from the heap handle, which is stable for the
// life of the object.
func identityHash(ref vm.Value) int32 {
	if ref.IsNull() {
		return 0
	}
	h := uint32(ref.Handle()) * 0x9E3779B1
	return int32(h ^ h>>16)
}

// ---------------------------------------------------------------------------
// java/lang/System
// ---------------------------------------------------------------------------

var started = time.Now()

func registerSystem(t vm.NativeTable) {
	t.Register(systemClass, "currentTimeMillis", "()J", func(*vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Long(time.Now().UnixMilli()))
	})

	t.Register(systemClass, "nanoTime", "()J", func(*vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Long(int64(time.Since(started))))
	})

	t.Register(systemClass, "identityHashCode", "(Ljava/lang/Object;)I", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Int(identityHash(env.Arg(0))))
	})

	t.Register(systemClass, "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V", arraycopy)
}

func arraycopy(env *vm.NativeEnv) (vm.Value, bool, error) {
	src, srcPos := env.Arg(0), env.Arg(1).AsInt()
	dst, dstPos := env.Arg(2), env.Arg(3).AsInt()
	n := env.Arg(4).AsInt()

	if src.IsNull() || dst.IsNull() {
		return throw(env, nullPointerException, "arraycopy")
	}
	if src.Kind() != vm.KindArray || dst.Kind() != vm.KindArray {
		return fail(fmt.Errorf("%w: arraycopy of non-array", vm.ErrInvariant))
	}
	if src.Elem() != dst.Elem() {
		return fail(fmt.Errorf("%w: arraycopy between %s and %s arrays", vm.ErrInvariant,
			src.Elem().Descriptor(src.Class()), dst.Elem().Descriptor(dst.Class())))
	}
	if n < 0 || srcPos < 0 || dstPos < 0 ||
		int64(srcPos)+int64(n) > int64(src.Len()) || int64(dstPos)+int64(n) > int64(dst.Len()) {
		return fail(fmt.Errorf("%w: arraycopy src %d dst %d length %d", vm.ErrIndexOutOfBounds, srcPos, dstPos, n))
	}

	// Read everything first so overlapping ranges copy correctly.
	h := env.Heap()
	buf := make([]vm.Value, n)
	for k := range buf {
		v, err := h.ArrayItem(src, srcPos+int32(k))
		if err != nil {
			return fail(err)
		}
		buf[k] = v
	}
	for k, v := range buf {
		if err := h.SetArrayItem(dst, dstPos+int32(k), v); err != nil {
			return fail(err)
		}
	}
	return void()
}

// ---------------------------------------------------------------------------
// java/lang/Math
// ---------------------------------------------------------------------------

func registerMath(t vm.NativeTable) {
	unary := func(name string, fn func(float64) float64) {
		t.Register(mathClass, name, "(D)D", func(env *vm.NativeEnv) (vm.Value, bool, error) {
			return value(vm.Double(fn(env.Arg(0).AsDouble())))
		})
	}
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("abs", math.Abs)

	t.Register(mathClass, "pow", "(DD)D", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Double(math.Pow(env.Arg(0).AsDouble(), env.Arg(1).AsDouble())))
	})
}

// ---------------------------------------------------------------------------
// java/lang/Float and Double bit conversions
// ---------------------------------------------------------------------------

func registerFloatBits(t vm.NativeTable) {
	t.Register(floatClass, "floatToRawIntBits", "(F)I", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Int(int32(math.Float32bits(env.Arg(0).AsFloat()))))
	})
	t.Register(floatClass, "intBitsToFloat", "(I)F", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Float(math.Float32frombits(uint32(env.Arg(0).AsInt()))))
	})
	t.Register(doubleClass, "doubleToRawLongBits", "(D)J", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Long(int64(math.Float64bits(env.Arg(0).AsDouble()))))
	})
	t.Register(doubleClass, "longBitsToDouble", "(J)D", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return value(vm.Double(math.Float64frombits(uint64(env.Arg(0).AsLong()))))
	})
}
