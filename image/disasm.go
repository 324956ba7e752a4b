package image

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

// Disassemble writes a listing of c: its header, fields, and one
// instruction table per method.
func Disassemble(w io.Writer, c *classfile.Class) error {
	fmt.Fprintf(w, "class %s", c.Name)
	if c.SuperName != "" {
		fmt.Fprintf(w, " extends %s", c.SuperName)
	}
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(w, " implements %s", strings.Join(c.Interfaces, ", "))
	}
	fmt.Fprintf(w, "\n  flags: %s\n", c.Flags)
	if c.SourceFile != "" {
		fmt.Fprintf(w, "  source: %s\n", c.SourceFile)
	}
	fmt.Fprintf(w, "  constant pool: %d entries\n", len(c.Pool)-1)

	for _, f := range c.Fields {
		fmt.Fprintf(w, "  field %s %s [%s]\n", f.Name, f.Descriptor, f.Flags)
	}

	for _, m := range c.Methods {
		fmt.Fprintf(w, "\nmethod %s%s [%s]\n", m.Name, m.Descriptor, m.Flags)
		if m.Code == nil {
			continue
		}
		fmt.Fprintf(w, "  max_stack=%d max_locals=%d\n", m.Code.MaxStack, m.Code.MaxLocals)

		rows, err := Listing(c.Pool, m.Code.Bytecode)
		if err != nil {
			return fmt.Errorf("%s.%s%s: %w", c.Name, m.Name, m.Descriptor, err)
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"PC", "Opcode", "Operands"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoWrapText(false)
		for _, r := range rows {
			table.Append([]string{strconv.Itoa(r.PC), r.Op.String(), r.Operands})
		}
		table.Render()

		if len(m.Code.ExceptionTable) > 0 {
			et := tablewriter.NewWriter(w)
			et.SetHeader([]string{"Start", "End", "Handler", "Catch"})
			for _, e := range m.Code.ExceptionTable {
				catch := "any"
				if e.CatchType != 0 {
					catch = c.Pool.Describe(e.CatchType)
				}
				et.Append([]string{
					strconv.Itoa(int(e.StartPC)),
					strconv.Itoa(int(e.EndPC)),
					strconv.Itoa(int(e.HandlerPC)),
					catch,
				})
			}
			et.Render()
		}
	}
	return nil
}

// Line is one decoded instruction.
type Line struct {
	PC       int
	Op       vm.Opcode
	Operands string
}

// Listing decodes bytecode into instructions, rendering pool operands
// through the constant pool and branch operands as absolute addresses.
func Listing(pool classfile.ConstantPool, code []byte) ([]Line, error) {
	var out []Line
	for pc := 0; pc < len(code); {
		n, err := vm.InstructionLength(code, pc)
		if err != nil {
			return out, err
		}
		if pc+n > len(code) {
			return out, fmt.Errorf("truncated instruction at %d", pc)
		}
		op := vm.Opcode(code[pc])
		out = append(out, Line{PC: pc, Op: op, Operands: operands(pool, code, pc, op)})
		pc += n
	}
	return out, nil
}

func operands(pool classfile.ConstantPool, code []byte, pc int, op vm.Opcode) string {
	u2 := func(at int) uint16 { return binary.BigEndian.Uint16(code[at:]) }
	s4 := func(at int) int { return int(int32(binary.BigEndian.Uint32(code[at:]))) }
	ref := func(idx uint16) string { return fmt.Sprintf("#%d %s", idx, pool.Describe(idx)) }

	switch op.Info().Operands {
	case vm.OperandByte:
		return strconv.Itoa(int(int8(code[pc+1])))
	case vm.OperandShort:
		return strconv.Itoa(int(int16(u2(pc + 1))))
	case vm.OperandLocal:
		return strconv.Itoa(int(code[pc+1]))
	case vm.OperandPoolByte:
		return ref(uint16(code[pc+1]))
	case vm.OperandPool, vm.OperandInvokeDynamic:
		return ref(u2(pc + 1))
	case vm.OperandInvokeInterface:
		return fmt.Sprintf("%s count=%d", ref(u2(pc+1)), code[pc+3])
	case vm.OperandMultiArray:
		return fmt.Sprintf("%s dims=%d", ref(u2(pc+1)), code[pc+3])
	case vm.OperandIinc:
		return fmt.Sprintf("%d %d", code[pc+1], int8(code[pc+2]))
	case vm.OperandArrayType:
		return vm.ElemKind(code[pc+1]).Descriptor(nil)
	case vm.OperandBranch:
		return strconv.Itoa(pc + int(int16(u2(pc+1))))
	case vm.OperandBranchWide:
		return strconv.Itoa(pc + s4(pc+1))
	case vm.OperandTableSwitch:
		base := pc + 1 + vm.SwitchPadding(pc)
		low, high := s4(base+4), s4(base+8)
		parts := []string{fmt.Sprintf("default:%d", pc+s4(base))}
		for k := 0; k <= high-low; k++ {
			parts = append(parts, fmt.Sprintf("%d:%d", low+k, pc+s4(base+12+4*k)))
		}
		return strings.Join(parts, " ")
	case vm.OperandLookupSwitch:
		base := pc + 1 + vm.SwitchPadding(pc)
		n := s4(base + 4)
		parts := []string{fmt.Sprintf("default:%d", pc+s4(base))}
		for k := 0; k < n; k++ {
			at := base + 8 + 8*k
			parts = append(parts, fmt.Sprintf("%d:%d", s4(at), pc+s4(at+4)))
		}
		return strings.Join(parts, " ")
	case vm.OperandWide:
		inner := vm.Opcode(code[pc+1])
		if inner == vm.OpIINC {
			return fmt.Sprintf("%s %d %d", inner, u2(pc+2), int16(u2(pc+4)))
		}
		return fmt.Sprintf("%s %d", inner, u2(pc+2))
	}
	return ""
}
