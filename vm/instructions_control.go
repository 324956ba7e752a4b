package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Branches and switches
//
// Branch targets are relative to the address of the branching opcode.
// ---------------------------------------------------------------------------

func (i *Interpreter) execControl(f *Frame, op Opcode, code []byte, pc int) (int, error) {
	branch := func(taken bool) int {
		if taken {
			return pc + s2(code, pc+1)
		}
		return pc + 3
	}

	switch op {
	case OpIFEQ, OpIFNE, OpIFLT, OpIFGE, OpIFGT, OpIFLE:
		v := f.PopInt()
		return branch(intCond(op-OpIFEQ, v, 0)), nil

	case OpIF_ICMPEQ, OpIF_ICMPNE, OpIF_ICMPLT, OpIF_ICMPGE, OpIF_ICMPGT, OpIF_ICMPLE:
		b := f.PopInt()
		a := f.PopInt()
		return branch(intCond(op-OpIF_ICMPEQ, a, b)), nil

	case OpIF_ACMPEQ, OpIF_ACMPNE:
		b := f.PopRef()
		a := f.PopRef()
		return branch(a.Same(b) == (op == OpIF_ACMPEQ)), nil

	case OpIFNULL, OpIFNONNULL:
		v := f.PopRef()
		return branch(v.IsNull() == (op == OpIFNULL)), nil

	case OpGOTO:
		return pc + s2(code, pc+1), nil

	case OpGOTO_W:
		return pc + s4(code, pc+1), nil

	case OpTABLESWITCH:
		base := pc + 1 + SwitchPadding(pc)
		def := s4(code, base)
		low := s4(code, base+4)
		high := s4(code, base+8)
		key := int(f.PopInt())
		if key < low || key > high {
			return pc + def, nil
		}
		return pc + s4(code, base+12+4*(key-low)), nil

	case OpLOOKUPSWITCH:
		base := pc + 1 + SwitchPadding(pc)
		def := s4(code, base)
		npairs := s4(code, base+4)
		key := int(f.PopInt())
		// Pairs are sorted by match value.
		lo, hi := 0, npairs-1
		for lo <= hi {
			mid := (lo + hi) / 2
			at := base + 8 + 8*mid
			match := s4(code, at)
			switch {
			case key == match:
				return pc + s4(code, at+4), nil
			case key < match:
				hi = mid - 1
			default:
				lo = mid + 1
			}
		}
		return pc + def, nil

	case OpJSR, OpJSR_W, OpRET:
		return 0, fmt.Errorf("%w: subroutine instruction %s", ErrUnsupported, op)
	}
	return 0, fmt.Errorf("%w: %s is not a control instruction", ErrInvariant, op)
}

// intCond evaluates the eq/ne/lt/ge/gt/le condition selected by offset
// from the family's eq opcode.
func intCond(off Opcode, a, b int32) bool {
	switch off {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}
