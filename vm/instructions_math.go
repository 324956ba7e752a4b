package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Arithmetic, conversions and comparisons
// ---------------------------------------------------------------------------

func (i *Interpreter) execMath(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	switch op {
	// Binary operators pop the right operand first.
	case OpIADD, OpISUB, OpIMUL, OpIDIV, OpIREM, OpISHL, OpISHR, OpIUSHR, OpIAND, OpIOR, OpIXOR:
		b := f.PopInt()
		a := f.PopInt()
		r, err := intOp(op, a, b)
		if err != nil {
			return 0, err
		}
		f.Push(Int(r))

	case OpLSHL, OpLSHR, OpLUSHR:
		s := f.PopInt()
		a := f.PopLong()
		f.Push(Long(longShift(op, a, s)))

	case OpLADD, OpLSUB, OpLMUL, OpLDIV, OpLREM, OpLAND, OpLOR, OpLXOR:
		b := f.PopLong()
		a := f.PopLong()
		r, err := longOp(op, a, b)
		if err != nil {
			return 0, err
		}
		f.Push(Long(r))

	case OpFADD, OpFSUB, OpFMUL, OpFDIV, OpFREM:
		b := f.PopFloat()
		a := f.PopFloat()
		f.Push(Float(float32(floatOp(op-OpFADD, float64(a), float64(b)))))

	case OpDADD, OpDSUB, OpDMUL, OpDDIV, OpDREM:
		b := f.PopDouble()
		a := f.PopDouble()
		f.Push(Double(floatOp(op-OpDADD, a, b)))

	case OpINEG:
		f.Push(Int(-f.PopInt()))
	case OpLNEG:
		f.Push(Long(-f.PopLong()))
	case OpFNEG:
		f.Push(Float(-f.PopFloat()))
	case OpDNEG:
		f.Push(Double(-f.PopDouble()))

	case OpIINC:
		idx := u1(code, pc+1)
		v := f.LocalKind(idx, KindInt)
		f.SetLocal(idx, Int(v.AsInt()+int32(s1(code, pc+2))))
		return pc + 3, nil

	case OpI2L, OpI2F, OpI2D, OpL2I, OpL2F, OpL2D, OpF2I, OpF2L, OpF2D,
		OpD2I, OpD2L, OpD2F, OpI2B, OpI2C, OpI2S:
		convert(f, op)

	case OpLCMP:
		b := f.PopLong()
		a := f.PopLong()
		f.Push(Int(compareOrdered(a, b)))

	case OpFCMPL, OpFCMPG:
		b := f.PopFloat()
		a := f.PopFloat()
		f.Push(Int(i.compareFloat(float64(a), float64(b), op == OpFCMPG, FloatEpsilon)))

	case OpDCMPL, OpDCMPG:
		b := f.PopDouble()
		a := f.PopDouble()
		f.Push(Int(i.compareFloat(a, b, op == OpDCMPG, DoubleEpsilon)))

	default:
		return 0, fmt.Errorf("%w: %s is not an arithmetic instruction", ErrInvariant, op)
	}
	return pc + 1, nil
}

func intOp(op Opcode, a, b int32) (int32, error) {
	switch op {
	case OpIADD:
		return a + b, nil
	case OpISUB:
		return a - b, nil
	case OpIMUL:
		return a * b, nil
	case OpIDIV:
		if b == 0 {
			return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
		}
		return a / b, nil
	case OpIREM:
		if b == 0 {
			return 0, fmt.Errorf("%w: %% by zero", ErrArithmetic)
		}
		return a % b, nil
	case OpISHL:
		return a << (b & 0x1f), nil
	case OpISHR:
		return a >> (b & 0x1f), nil
	case OpIUSHR:
		return int32(uint32(a) >> (b & 0x1f)), nil
	case OpIAND:
		return a & b, nil
	case OpIOR:
		return a | b, nil
	case OpIXOR:
		return a ^ b, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvariant, op)
}

func longOp(op Opcode, a, b int64) (int64, error) {
	switch op {
	case OpLADD:
		return a + b, nil
	case OpLSUB:
		return a - b, nil
	case OpLMUL:
		return a * b, nil
	case OpLDIV:
		if b == 0 {
			return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
		}
		return a / b, nil
	case OpLREM:
		if b == 0 {
			return 0, fmt.Errorf("%w: %% by zero", ErrArithmetic)
		}
		return a % b, nil
	case OpLAND:
		return a & b, nil
	case OpLOR:
		return a | b, nil
	case OpLXOR:
		return a ^ b, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvariant, op)
}

// longShift shifts a long by an int amount masked to 6 bits.
func longShift(op Opcode, a int64, s int32) int64 {
	n := uint(s & 0x3f)
	switch op {
	case OpLSHL:
		return a << n
	case OpLSHR:
		return a >> n
	}
	return int64(uint64(a) >> n)
}

// floatOp applies add/sub/mul/div/rem, selected by offset from the
// family's add opcode (float and double families are laid out alike,
// interleaved every four opcodes).
func floatOp(off Opcode, a, b float64) float64 {
	switch off {
	case 0:
		return a + b
	case OpISUB - OpIADD:
		return a - b
	case OpIMUL - OpIADD:
		return a * b
	case OpIDIV - OpIADD:
		return a / b
	}
	return math.Mod(a, b)
}

func convert(f *Frame, op Opcode) {
	switch op {
	case OpI2L:
		f.Push(Long(int64(f.PopInt())))
	case OpI2F:
		f.Push(Float(float32(f.PopInt())))
	case OpI2D:
		f.Push(Double(float64(f.PopInt())))
	case OpL2I:
		f.Push(Int(int32(f.PopLong())))
	case OpL2F:
		f.Push(Float(float32(f.PopLong())))
	case OpL2D:
		f.Push(Double(float64(f.PopLong())))
	case OpF2I:
		f.Push(Int(int32(toInt(float64(f.PopFloat()), math.MinInt32, math.MaxInt32))))
	case OpF2L:
		f.Push(Long(toInt(float64(f.PopFloat()), math.MinInt64, math.MaxInt64)))
	case OpF2D:
		f.Push(Double(float64(f.PopFloat())))
	case OpD2I:
		f.Push(Int(int32(toInt(f.PopDouble(), math.MinInt32, math.MaxInt32))))
	case OpD2L:
		f.Push(Long(toInt(f.PopDouble(), math.MinInt64, math.MaxInt64)))
	case OpD2F:
		f.Push(Float(float32(f.PopDouble())))
	case OpI2B:
		f.Push(Int(int32(int8(f.PopInt()))))
	case OpI2C:
		f.Push(Int(int32(uint16(f.PopInt()))))
	case OpI2S:
		f.Push(Int(int32(int16(f.PopInt()))))
	}
}

// toInt truncates toward zero, saturating at the target range. NaN
// converts to 0.
func toInt(v float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int64(v)
}

func compareOrdered[T int64 | float64](a, b T) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFloat implements fcmp/dcmp. A NaN operand yields 1 for the
// g-variant and -1 for the l-variant. In epsilon mode, operands closer
// than eps compare equal.
func (i *Interpreter) compareFloat(a, b float64, nanGreater bool, eps float64) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanGreater {
			return 1
		}
		return -1
	}
	if i.vm.opts.FloatCompare == CompareEpsilon && math.Abs(a-b) < eps {
		return 0
	}
	return compareOrdered(a, b)
}
