package vm

// execStack implements pop, dup and swap. Each form has a fixed layout by
// value category; any other combination is an invariant violation.
// Duplicates are independent copies.
//
// Layouts are written top of stack rightmost.
func execStack(f *Frame, op Opcode) {
	switch op {
	case OpPOP:
		f.Pop1()

	case OpPOP2:
		// ..., v2, v1 -> ...   or   ..., w1 -> ...
		if f.Peek(0).Category() == 2 {
			f.Pop()
		} else {
			f.Pop1()
			f.Pop1()
		}

	case OpDUP:
		// ..., v1 -> ..., v1, v1
		v1 := f.Pop1()
		f.Push(v1)
		f.Push(v1.Clone())

	case OpDUP_X1:
		// ..., v2, v1 -> ..., v1, v2, v1
		v1 := f.Pop1()
		v2 := f.Pop1()
		f.Push(v1.Clone())
		f.Push(v2)
		f.Push(v1)

	case OpDUP_X2:
		v1 := f.Pop1()
		v2 := f.Pop()
		if v2.Category() == 2 {
			// ..., w2, v1 -> ..., v1, w2, v1
			f.Push(v1.Clone())
			f.Push(v2)
			f.Push(v1)
			return
		}
		// ..., v3, v2, v1 -> ..., v1, v3, v2, v1
		v3 := f.Pop1()
		f.Push(v1.Clone())
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)

	case OpDUP2:
		v1 := f.Pop()
		if v1.Category() == 2 {
			// ..., w1 -> ..., w1, w1
			f.Push(v1)
			f.Push(v1.Clone())
			return
		}
		// ..., v2, v1 -> ..., v2, v1, v2, v1
		v2 := f.Pop1()
		f.Push(v2)
		f.Push(v1)
		f.Push(v2.Clone())
		f.Push(v1.Clone())

	case OpDUP2_X1:
		v1 := f.Pop()
		if v1.Category() == 2 {
			// ..., v2, w1 -> ..., w1, v2, w1
			v2 := f.Pop1()
			f.Push(v1.Clone())
			f.Push(v2)
			f.Push(v1)
			return
		}
		// ..., v3, v2, v1 -> ..., v2, v1, v3, v2, v1
		v2 := f.Pop1()
		v3 := f.Pop1()
		f.Push(v2.Clone())
		f.Push(v1.Clone())
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)

	case OpDUP2_X2:
		v1 := f.Pop()
		if v1.Category() == 2 {
			v2 := f.Pop()
			if v2.Category() == 2 {
				// ..., w2, w1 -> ..., w1, w2, w1
				f.Push(v1.Clone())
				f.Push(v2)
				f.Push(v1)
				return
			}
			// ..., v3, v2, w1 -> ..., w1, v3, v2, w1
			v3 := f.Pop1()
			f.Push(v1.Clone())
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
			return
		}
		v2 := f.Pop1()
		v3 := f.Pop()
		if v3.Category() == 2 {
			// ..., w3, v2, v1 -> ..., v2, v1, w3, v2, v1
			f.Push(v2.Clone())
			f.Push(v1.Clone())
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
			return
		}
		// ..., v4, v3, v2, v1 -> ..., v2, v1, v4, v3, v2, v1
		v4 := f.Pop1()
		f.Push(v2.Clone())
		f.Push(v1.Clone())
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)

	case OpSWAP:
		// ..., v2, v1 -> ..., v1, v2
		v1 := f.Pop1()
		v2 := f.Pop1()
		f.Push(v1)
		f.Push(v2)
	}
}
