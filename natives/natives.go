// Package natives implements the native methods of the bootstrap runtime
// classes.
package natives

import (
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/vm"
)

var log = commonlog.GetLogger("yvm.natives")

const (
	objectClass      = "java/lang/Object"
	stringClass      = "java/lang/String"
	systemClass      = "java/lang/System"
	mathClass        = "java/lang/Math"
	floatClass       = "java/lang/Float"
	doubleClass      = "java/lang/Double"
	throwableClass   = "java/lang/Throwable"
	printStreamClass = "java/io/PrintStream"

	nullPointerException = "java/lang/NullPointerException"
)

// Default returns a fresh table holding every native of the bootstrap
// classes. Callers may add or replace entries before handing it to
// vm.New.
func Default() vm.NativeTable {
	t := vm.NativeTable{}
	registerObject(t)
	registerSystem(t)
	registerMath(t)
	registerFloatBits(t)
	registerPrintStream(t)
	return t
}

// ---------------------------------------------------------------------------
// Result helpers
// ---------------------------------------------------------------------------

func value(v vm.Value) (vm.Value, bool, error) { return v, true, nil }

func void() (vm.Value, bool, error) { return vm.Null, false, nil }

func fail(err error) (vm.Value, bool, error) { return vm.Null, false, err }

// throw raises a new instance of className in the calling frame.
func throw(env *vm.NativeEnv, className, message string) (vm.Value, bool, error) {
	if err := env.ThrowNew(className, message); err != nil {
		return fail(err)
	}
	return void()
}
