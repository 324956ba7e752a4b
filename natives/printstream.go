package natives

import (
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/racaljk/yvm/vm"
)

// ---------------------------------------------------------------------------
// java/io/PrintStream
// ---------------------------------------------------------------------------

// outMu keeps lines written by concurrent interpreters whole.
var outMu sync.Mutex

func registerPrintStream(t vm.NativeTable) {
	formats := map[string]func(env *vm.NativeEnv, v vm.Value) (string, error){
		"I": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return strconv.Itoa(int(v.AsInt())), nil },
		"J": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return strconv.FormatInt(v.AsLong(), 10), nil },
		"F": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return FormatFloat(float64(v.AsFloat()), 32), nil },
		"D": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return FormatFloat(v.AsDouble(), 64), nil },
		"Z": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return strconv.FormatBool(v.AsInt() != 0), nil },
		"C": func(_ *vm.NativeEnv, v vm.Value) (string, error) { return string(rune(uint16(v.AsInt()))), nil },
		"Ljava/lang/String;": func(env *vm.NativeEnv, v vm.Value) (string, error) {
			if v.IsNull() {
				return "null", nil
			}
			return env.VM().GoString(v)
		},
	}

	for desc, format := range formats {
		format := format
		printer := func(newline bool) vm.NativeFunc {
			return func(env *vm.NativeEnv) (vm.Value, bool, error) {
				s, err := format(env, env.Arg(1))
				if err != nil {
					return fail(err)
				}
				if newline {
					s += "\n"
				}
				return write(env, s)
			}
		}
		t.Register(printStreamClass, "print", "("+desc+")V", printer(false))
		t.Register(printStreamClass, "println", "("+desc+")V", printer(true))
	}

	t.Register(printStreamClass, "println", "()V", func(env *vm.NativeEnv) (vm.Value, bool, error) {
		return write(env, "\n")
	})
}

func write(env *vm.NativeEnv, s string) (vm.Value, bool, error) {
	outMu.Lock()
	defer outMu.Unlock()
	if _, err := io.WriteString(env.VM().Options().Stdout, s); err != nil {
		log.Errorf("print: %s", err)
		return fail(err)
	}
	return void()
}

// FormatFloat renders a float or double the way PrintStream does: plain
// notation with at least one fractional digit between 1e-3 and 1e7,
// computerized scientific notation outside it.
func FormatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(f, 'f', -1, bitSize)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(f, 'E', -1, bitSize)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	neg := strings.HasPrefix(exp, "-")
	exp = strings.TrimLeft(exp, "+-")
	exp = strings.TrimLeft(exp, "0")
	if neg {
		exp = "-" + exp
	}
	return mant + "E" + exp
}
