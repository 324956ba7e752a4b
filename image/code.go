package image

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

// codeAsm is an assembled code block.
type codeAsm struct {
	code       []byte
	labels     map[string]int
	count      int // instructions
	localsUsed int // highest local slot touched, plus one
}

// instr is one parsed instruction. Pool indices and immediates are
// resolved in the first pass; branch targets stay symbolic until the
// second.
type instr struct {
	line int
	op   vm.Opcode
	pc   int
	size int

	imm     []int    // immediates, in operand order
	targets []string // branch labels
	keys    []int32  // lookupswitch match values, sorted
	raw     []byte   // .byte directive
}

var newarrayTypes = map[string]vm.ElemKind{
	"boolean": vm.ElemBoolean,
	"char":    vm.ElemChar,
	"float":   vm.ElemFloat,
	"double":  vm.ElemDouble,
	"byte":    vm.ElemByte,
	"short":   vm.ElemShort,
	"int":     vm.ElemInt,
	"long":    vm.ElemLong,
}

// assembleCode translates assembly text to bytecode in two passes: the
// first sizes every instruction and records label addresses, the second
// encodes branch offsets.
func assembleCode(pool *poolBuilder, src string) (*codeAsm, error) {
	asm := &codeAsm{labels: make(map[string]int)}
	var instrs []*instr
	pc := 0

	for n, text := range strings.Split(src, "\n") {
		line := n + 1
		fields, err := tokenize(stripComment(text))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if _, dup := asm.labels[name]; dup {
				return nil, errors.Errorf("line %d: duplicate label %q", line, name)
			}
			asm.labels[name] = pc
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}

		in, err := parseInstr(pool, fields, pc)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		in.line = line
		in.pc = pc
		pc += in.size
		instrs = append(instrs, in)
		if in.raw == nil {
			asm.count++
			asm.localsUsed = max(asm.localsUsed, localsTouched(in))
		}
	}
	if pc == 0 {
		return nil, errors.New("empty code")
	}

	code := make([]byte, 0, pc)
	for _, in := range instrs {
		var err error
		code, err = asm.encode(code, in)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", in.line)
		}
	}
	asm.code = code
	return asm, nil
}

func (a *codeAsm) target(label string, from int) (int, error) {
	at, ok := a.labels[label]
	if !ok {
		return 0, errors.Errorf("undefined label %q", label)
	}
	return at - from, nil
}

func (a *codeAsm) encode(code []byte, in *instr) ([]byte, error) {
	if in.raw != nil {
		return append(code, in.raw...), nil
	}
	code = append(code, byte(in.op))

	switch in.op.Info().Operands {
	case vm.OperandNone:
	case vm.OperandByte, vm.OperandLocal, vm.OperandPoolByte, vm.OperandArrayType:
		code = append(code, byte(in.imm[0]))
	case vm.OperandShort, vm.OperandPool:
		code = binary.BigEndian.AppendUint16(code, uint16(in.imm[0]))
	case vm.OperandIinc:
		code = append(code, byte(in.imm[0]), byte(int8(in.imm[1])))
	case vm.OperandInvokeInterface:
		code = binary.BigEndian.AppendUint16(code, uint16(in.imm[0]))
		code = append(code, byte(in.imm[1]), 0)
	case vm.OperandInvokeDynamic:
		code = binary.BigEndian.AppendUint16(code, uint16(in.imm[0]))
		code = append(code, 0, 0)
	case vm.OperandMultiArray:
		code = binary.BigEndian.AppendUint16(code, uint16(in.imm[0]))
		code = append(code, byte(in.imm[1]))

	case vm.OperandBranch:
		off, err := a.target(in.targets[0], in.pc)
		if err != nil {
			return nil, err
		}
		if off < -32768 || off > 32767 {
			return nil, errors.Errorf("branch to %q out of range, use goto_w", in.targets[0])
		}
		code = binary.BigEndian.AppendUint16(code, uint16(int16(off)))
	case vm.OperandBranchWide:
		off, err := a.target(in.targets[0], in.pc)
		if err != nil {
			return nil, err
		}
		code = binary.BigEndian.AppendUint32(code, uint32(int32(off)))

	case vm.OperandTableSwitch, vm.OperandLookupSwitch:
		for k := 0; k < vm.SwitchPadding(in.pc); k++ {
			code = append(code, 0)
		}
		offsets := make([]int32, len(in.targets))
		for k, label := range in.targets {
			off, err := a.target(label, in.pc)
			if err != nil {
				return nil, err
			}
			offsets[k] = int32(off)
		}
		code = binary.BigEndian.AppendUint32(code, uint32(offsets[0]))
		if in.op == vm.OpTABLESWITCH {
			low := int32(in.imm[0])
			high := low + int32(len(offsets)-1) - 1
			code = binary.BigEndian.AppendUint32(code, uint32(low))
			code = binary.BigEndian.AppendUint32(code, uint32(high))
			for _, off := range offsets[1:] {
				code = binary.BigEndian.AppendUint32(code, uint32(off))
			}
		} else {
			code = binary.BigEndian.AppendUint32(code, uint32(len(in.keys)))
			for k, key := range in.keys {
				code = binary.BigEndian.AppendUint32(code, uint32(key))
				code = binary.BigEndian.AppendUint32(code, uint32(offsets[k+1]))
			}
		}

	default:
		return nil, errors.Errorf("%s cannot be assembled", in.op)
	}
	return code, nil
}

// handler resolves an exception table row.
func (a *codeAsm) handler(pool *poolBuilder, h HandlerDoc) (classfile.ExceptionEntry, error) {
	var e classfile.ExceptionEntry
	for _, l := range []struct {
		label string
		dst   *uint16
	}{{h.Start, &e.StartPC}, {h.End, &e.EndPC}, {h.Handler, &e.HandlerPC}} {
		at, ok := a.labels[l.label]
		if !ok {
			return e, errors.Errorf("exception table: undefined label %q", l.label)
		}
		*l.dst = uint16(at)
	}
	if e.StartPC >= e.EndPC {
		return e, errors.Errorf("exception table: empty range %s..%s", h.Start, h.End)
	}
	if h.Catch != "" && h.Catch != "any" {
		idx, err := pool.class(h.Catch)
		if err != nil {
			return e, err
		}
		e.CatchType = idx
	}
	return e, nil
}

// parseInstr parses one instruction and computes its size at pc.
func parseInstr(pool *poolBuilder, fields []string, pc int) (*instr, error) {
	mnemonic, args := fields[0], fields[1:]
	if mnemonic == ".byte" {
		return parseRawBytes(args)
	}

	op, ok := vm.LookupOpcode(mnemonic)
	if !ok {
		return nil, errors.Errorf("unknown instruction %q", mnemonic)
	}
	in := &instr{op: op}
	kind := op.Info().Operands

	want := map[vm.OperandKind]int{
		vm.OperandNone:       0,
		vm.OperandByte:       1,
		vm.OperandShort:      1,
		vm.OperandLocal:      1,
		vm.OperandIinc:       2,
		vm.OperandArrayType:  1,
		vm.OperandBranch:     1,
		vm.OperandBranchWide: 1,
	}
	if n, fixed := want[kind]; fixed && len(args) != n {
		return nil, errors.Errorf("%s takes %d operands, got %d", op, n, len(args))
	}

	var err error
	switch kind {
	case vm.OperandNone:
		in.size = 1

	case vm.OperandByte, vm.OperandShort:
		bits := 8
		if kind == vm.OperandShort {
			bits = 16
		}
		v, perr := strconv.ParseInt(args[0], 0, bits)
		if perr != nil {
			return nil, errors.Wrapf(perr, "%s operand", op)
		}
		in.imm = []int{int(v)}
		in.size = 1 + bits/8

	case vm.OperandLocal:
		v, perr := strconv.ParseUint(args[0], 0, 8)
		if perr != nil {
			return nil, errors.Wrapf(perr, "%s local index", op)
		}
		in.imm = []int{int(v)}
		in.size = 2

	case vm.OperandIinc:
		idx, perr := strconv.ParseUint(args[0], 0, 8)
		if perr != nil {
			return nil, errors.Wrap(perr, "iinc local index")
		}
		delta, perr := strconv.ParseInt(args[1], 0, 8)
		if perr != nil {
			return nil, errors.Wrap(perr, "iinc delta")
		}
		in.imm = []int{int(idx), int(delta)}
		in.size = 3

	case vm.OperandArrayType:
		e, ok := newarrayTypes[args[0]]
		if !ok {
			return nil, errors.Errorf("newarray: unknown element type %q", args[0])
		}
		in.imm = []int{int(e)}
		in.size = 2

	case vm.OperandBranch:
		in.targets = args
		in.size = 3
	case vm.OperandBranchWide:
		in.targets = args
		in.size = 5

	case vm.OperandPoolByte, vm.OperandPool:
		err = parsePoolOperand(pool, in, args)

	case vm.OperandInvokeInterface:
		if len(args) != 1 {
			return nil, errors.New("invokeinterface takes a member reference")
		}
		class, name, desc, perr := splitMember(args[0])
		if perr != nil {
			return nil, perr
		}
		sig, perr := classfile.ParseMethodDescriptor(desc)
		if perr != nil {
			return nil, perr
		}
		idx, perr := pool.member(classfile.TagInterfaceMethodref, class, name, desc)
		if perr != nil {
			return nil, perr
		}
		in.imm = []int{int(idx), sig.ArgSlots() + 1}
		in.size = 5

	case vm.OperandInvokeDynamic:
		// invokedynamic <bootstrap index> name:descriptor
		if len(args) != 2 {
			return nil, errors.New("invokedynamic takes a bootstrap index and name:descriptor")
		}
		bsm, perr := strconv.ParseUint(args[0], 0, 16)
		if perr != nil {
			return nil, errors.Wrap(perr, "invokedynamic bootstrap index")
		}
		name, desc, ok := strings.Cut(args[1], ":")
		if !ok {
			return nil, errors.Errorf("invokedynamic: expected name:descriptor, got %q", args[1])
		}
		idx, perr := pool.invokeDynamic(uint16(bsm), name, desc)
		if perr != nil {
			return nil, perr
		}
		in.imm = []int{int(idx)}
		in.size = 5

	case vm.OperandMultiArray:
		if len(args) != 2 {
			return nil, errors.New("multianewarray takes a class and a dimension count")
		}
		idx, perr := pool.class(args[0])
		if perr != nil {
			return nil, perr
		}
		dims, perr := strconv.ParseUint(args[1], 0, 8)
		if perr != nil || dims == 0 {
			return nil, errors.Errorf("multianewarray: bad dimension count %q", args[1])
		}
		in.imm = []int{int(idx), int(dims)}
		in.size = 4

	case vm.OperandTableSwitch:
		// tableswitch <low> <default> <target>...
		if len(args) < 3 {
			return nil, errors.New("tableswitch takes a low value, a default and at least one target")
		}
		low, perr := strconv.ParseInt(args[0], 0, 32)
		if perr != nil {
			return nil, errors.Wrap(perr, "tableswitch low")
		}
		in.imm = []int{int(low)}
		in.targets = args[1:]
		in.size = 1 + vm.SwitchPadding(pc) + 12 + 4*(len(args)-2)

	case vm.OperandLookupSwitch:
		// lookupswitch <default> <match>:<target>...
		if len(args) < 1 {
			return nil, errors.New("lookupswitch takes a default target")
		}
		err = parseLookupSwitch(in, args)
		in.size = 1 + vm.SwitchPadding(pc) + 8 + 8*len(in.keys)

	default:
		return nil, errors.Errorf("%s is not supported by the assembler", op)
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// parsePoolOperand handles instructions whose operand is a constant-pool
// index. ldc is widened to ldc_w when the index does not fit a byte.
func parsePoolOperand(pool *poolBuilder, in *instr, args []string) error {
	var idx uint16
	var err error

	switch in.op {
	case vm.OpLDC, vm.OpLDC_W, vm.OpLDC2_W:
		if len(args) != 2 {
			return errors.Errorf("%s takes a type and a value", in.op)
		}
		idx, err = parseConstant(pool, args[0], args[1])
		if err != nil {
			return err
		}
		wide := args[0] == "long" || args[0] == "double"
		if wide != (in.op == vm.OpLDC2_W) {
			return errors.Errorf("%s cannot load a %s constant", in.op, args[0])
		}
		if in.op == vm.OpLDC && idx > 0xff {
			in.op = vm.OpLDC_W
		}

	case vm.OpGETSTATIC, vm.OpPUTSTATIC, vm.OpGETFIELD, vm.OpPUTFIELD,
		vm.OpINVOKEVIRTUAL, vm.OpINVOKESPECIAL, vm.OpINVOKESTATIC:
		tag := classfile.TagMethodref
		switch {
		case in.op <= vm.OpPUTFIELD:
			tag = classfile.TagFieldref
		case len(args) == 2 && args[0] == "interface":
			tag = classfile.TagInterfaceMethodref
			args = args[1:]
		}
		if len(args) != 1 {
			return errors.Errorf("%s takes one member reference", in.op)
		}
		class, name, desc, err := splitMember(args[0])
		if err != nil {
			return err
		}
		if idx, err = pool.member(tag, class, name, desc); err != nil {
			return err
		}

	default:
		// new, anewarray, checkcast, instanceof
		if len(args) != 1 {
			return errors.Errorf("%s takes a class name", in.op)
		}
		if idx, err = pool.class(args[0]); err != nil {
			return err
		}
	}

	in.imm = []int{int(idx)}
	if in.op == vm.OpLDC {
		in.size = 2
	} else {
		in.size = 3
	}
	return nil
}

func parseConstant(pool *poolBuilder, typ, text string) (uint16, error) {
	switch typ {
	case "int":
		v, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return 0, errors.Wrap(err, "int constant")
		}
		return pool.integer(int32(v))
	case "float":
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return 0, errors.Wrap(err, "float constant")
		}
		return pool.float(float32(v))
	case "long":
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return 0, errors.Wrap(err, "long constant")
		}
		return pool.long(v)
	case "double":
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, errors.Wrap(err, "double constant")
		}
		return pool.double(v)
	case "string":
		return pool.string(text)
	case "class":
		return pool.class(text)
	}
	return 0, errors.Errorf("unknown constant type %q", typ)
}

func parseLookupSwitch(in *instr, args []string) error {
	type pair struct {
		key    int32
		target string
	}
	pairs := make([]pair, 0, len(args)-1)
	seen := make(map[int32]bool)
	for _, a := range args[1:] {
		k, label, ok := strings.Cut(a, ":")
		if !ok {
			return errors.Errorf("lookupswitch: expected match:label, got %q", a)
		}
		key, err := strconv.ParseInt(k, 0, 32)
		if err != nil {
			return errors.Wrap(err, "lookupswitch match")
		}
		if seen[int32(key)] {
			return errors.Errorf("lookupswitch: duplicate match %d", key)
		}
		seen[int32(key)] = true
		pairs = append(pairs, pair{int32(key), label})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].key < pairs[b].key })

	in.targets = []string{args[0]}
	for _, p := range pairs {
		in.keys = append(in.keys, p.key)
		in.targets = append(in.targets, p.target)
	}
	return nil
}

func parseRawBytes(args []string) (*instr, error) {
	if len(args) == 0 {
		return nil, errors.New(".byte takes at least one value")
	}
	in := &instr{}
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, errors.Wrap(err, ".byte")
		}
		in.raw = append(in.raw, byte(v))
	}
	in.size = len(in.raw)
	return in, nil
}

// splitMember splits "pkg/Class.name:descriptor".
func splitMember(ref string) (class, name, desc string, err error) {
	owner, rest, ok := strings.Cut(ref, ":")
	if ok {
		desc = rest
		dot := strings.LastIndex(owner, ".")
		if dot > 0 {
			return owner[:dot], owner[dot+1:], desc, nil
		}
	}
	return "", "", "", errors.Errorf("expected Class.name:descriptor, got %q", ref)
}

// localsTouched returns one past the highest local slot an instruction
// reads or writes.
func localsTouched(in *instr) int {
	op := in.op
	width := func(o vm.Opcode) int {
		if o == vm.OpLLOAD || o == vm.OpDLOAD || o == vm.OpLSTORE || o == vm.OpDSTORE {
			return 2
		}
		return 1
	}
	switch {
	case op >= vm.OpILOAD && op <= vm.OpALOAD, op >= vm.OpISTORE && op <= vm.OpASTORE:
		return in.imm[0] + width(op)
	case op == vm.OpIINC:
		return in.imm[0] + 1
	case op >= vm.OpILOAD_0 && op <= vm.OpALOAD_3:
		n := int(op - vm.OpILOAD_0)
		return n%4 + slotWidth(n/4)
	case op >= vm.OpISTORE_0 && op <= vm.OpASTORE_3:
		n := int(op - vm.OpISTORE_0)
		return n%4 + slotWidth(n/4)
	}
	return 0
}

// slotWidth is the local width of the i/l/f/d/a family at position k.
func slotWidth(k int) int {
	if k == 1 || k == 3 {
		return 2
	}
	return 1
}

// stripComment removes a trailing "#" comment outside double quotes.
func stripComment(line string) string {
	inQuote := false
	for k := 0; k < len(line); k++ {
		switch line[k] {
		case '\\':
			if inQuote {
				k++
			}
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return line[:k]
			}
		}
	}
	return line
}

// tokenize splits a line on whitespace, keeping double-quoted strings
// (Go syntax) as single unquoted tokens.
func tokenize(line string) ([]string, error) {
	var out []string
	rest := strings.TrimSpace(line)
	for rest != "" {
		if rest[0] == '"' {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, errors.Wrap(err, "string literal")
			}
			s, err := strconv.Unquote(q)
			if err != nil {
				return nil, errors.Wrap(err, "string literal")
			}
			out = append(out, s)
			rest = strings.TrimSpace(rest[len(q):])
			continue
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			out = append(out, rest)
			break
		}
		out = append(out, rest[:end])
		rest = strings.TrimSpace(rest[end:])
	}
	return out, nil
}
