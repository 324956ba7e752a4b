package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Constants
const (
	OpNOP         Opcode = 0x00 // no operation
	OpACONST_NULL Opcode = 0x01 // push null
	OpICONST_M1   Opcode = 0x02
	OpICONST_0    Opcode = 0x03
	OpICONST_1    Opcode = 0x04
	OpICONST_2    Opcode = 0x05
	OpICONST_3    Opcode = 0x06
	OpICONST_4    Opcode = 0x07
	OpICONST_5    Opcode = 0x08
	OpLCONST_0    Opcode = 0x09
	OpLCONST_1    Opcode = 0x0A
	OpFCONST_0    Opcode = 0x0B
	OpFCONST_1    Opcode = 0x0C
	OpFCONST_2    Opcode = 0x0D
	OpDCONST_0    Opcode = 0x0E
	OpDCONST_1    Opcode = 0x0F
	OpBIPUSH      Opcode = 0x10 // push sign-extended byte
	OpSIPUSH      Opcode = 0x11 // push sign-extended short
	OpLDC         Opcode = 0x12 // push constant (8-bit pool index)
	OpLDC_W       Opcode = 0x13 // push constant (16-bit pool index)
	OpLDC2_W      Opcode = 0x14 // push long/double constant
)

// Loads
const (
	OpILOAD   Opcode = 0x15
	OpLLOAD   Opcode = 0x16
	OpFLOAD   Opcode = 0x17
	OpDLOAD   Opcode = 0x18
	OpALOAD   Opcode = 0x19
	OpILOAD_0 Opcode = 0x1A
	OpILOAD_1 Opcode = 0x1B
	OpILOAD_2 Opcode = 0x1C
	OpILOAD_3 Opcode = 0x1D
	OpLLOAD_0 Opcode = 0x1E
	OpLLOAD_1 Opcode = 0x1F
	OpLLOAD_2 Opcode = 0x20
	OpLLOAD_3 Opcode = 0x21
	OpFLOAD_0 Opcode = 0x22
	OpFLOAD_1 Opcode = 0x23
	OpFLOAD_2 Opcode = 0x24
	OpFLOAD_3 Opcode = 0x25
	OpDLOAD_0 Opcode = 0x26
	OpDLOAD_1 Opcode = 0x27
	OpDLOAD_2 Opcode = 0x28
	OpDLOAD_3 Opcode = 0x29
	OpALOAD_0 Opcode = 0x2A
	OpALOAD_1 Opcode = 0x2B
	OpALOAD_2 Opcode = 0x2C
	OpALOAD_3 Opcode = 0x2D
	OpIALOAD  Opcode = 0x2E
	OpLALOAD  Opcode = 0x2F
	OpFALOAD  Opcode = 0x30
	OpDALOAD  Opcode = 0x31
	OpAALOAD  Opcode = 0x32
	OpBALOAD  Opcode = 0x33
	OpCALOAD  Opcode = 0x34
	OpSALOAD  Opcode = 0x35
)

// Stores
const (
	OpISTORE   Opcode = 0x36
	OpLSTORE   Opcode = 0x37
	OpFSTORE   Opcode = 0x38
	OpDSTORE   Opcode = 0x39
	OpASTORE   Opcode = 0x3A
	OpISTORE_0 Opcode = 0x3B
	OpISTORE_1 Opcode = 0x3C
	OpISTORE_2 Opcode = 0x3D
	OpISTORE_3 Opcode = 0x3E
	OpLSTORE_0 Opcode = 0x3F
	OpLSTORE_1 Opcode = 0x40
	OpLSTORE_2 Opcode = 0x41
	OpLSTORE_3 Opcode = 0x42
	OpFSTORE_0 Opcode = 0x43
	OpFSTORE_1 Opcode = 0x44
	OpFSTORE_2 Opcode = 0x45
	OpFSTORE_3 Opcode = 0x46
	OpDSTORE_0 Opcode = 0x47
	OpDSTORE_1 Opcode = 0x48
	OpDSTORE_2 Opcode = 0x49
	OpDSTORE_3 Opcode = 0x4A
	OpASTORE_0 Opcode = 0x4B
	OpASTORE_1 Opcode = 0x4C
	OpASTORE_2 Opcode = 0x4D
	OpASTORE_3 Opcode = 0x4E
	OpIASTORE  Opcode = 0x4F
	OpLASTORE  Opcode = 0x50
	OpFASTORE  Opcode = 0x51
	OpDASTORE  Opcode = 0x52
	OpAASTORE  Opcode = 0x53
	OpBASTORE  Opcode = 0x54
	OpCASTORE  Opcode = 0x55
	OpSASTORE  Opcode = 0x56
)

// Stack
const (
	OpPOP     Opcode = 0x57
	OpPOP2    Opcode = 0x58
	OpDUP     Opcode = 0x59
	OpDUP_X1  Opcode = 0x5A
	OpDUP_X2  Opcode = 0x5B
	OpDUP2    Opcode = 0x5C
	OpDUP2_X1 Opcode = 0x5D
	OpDUP2_X2 Opcode = 0x5E
	OpSWAP    Opcode = 0x5F
)

// Math
const (
	OpIADD  Opcode = 0x60
	OpLADD  Opcode = 0x61
	OpFADD  Opcode = 0x62
	OpDADD  Opcode = 0x63
	OpISUB  Opcode = 0x64
	OpLSUB  Opcode = 0x65
	OpFSUB  Opcode = 0x66
	OpDSUB  Opcode = 0x67
	OpIMUL  Opcode = 0x68
	OpLMUL  Opcode = 0x69
	OpFMUL  Opcode = 0x6A
	OpDMUL  Opcode = 0x6B
	OpIDIV  Opcode = 0x6C
	OpLDIV  Opcode = 0x6D
	OpFDIV  Opcode = 0x6E
	OpDDIV  Opcode = 0x6F
	OpIREM  Opcode = 0x70
	OpLREM  Opcode = 0x71
	OpFREM  Opcode = 0x72
	OpDREM  Opcode = 0x73
	OpINEG  Opcode = 0x74
	OpLNEG  Opcode = 0x75
	OpFNEG  Opcode = 0x76
	OpDNEG  Opcode = 0x77
	OpISHL  Opcode = 0x78
	OpLSHL  Opcode = 0x79
	OpISHR  Opcode = 0x7A
	OpLSHR  Opcode = 0x7B
	OpIUSHR Opcode = 0x7C
	OpLUSHR Opcode = 0x7D
	OpIAND  Opcode = 0x7E
	OpLAND  Opcode = 0x7F
	OpIOR   Opcode = 0x80
	OpLOR   Opcode = 0x81
	OpIXOR  Opcode = 0x82
	OpLXOR  Opcode = 0x83
	OpIINC  Opcode = 0x84 // increment local (8-bit index, 8-bit signed delta)
)

// Conversions
const (
	OpI2L Opcode = 0x85
	OpI2F Opcode = 0x86
	OpI2D Opcode = 0x87
	OpL2I Opcode = 0x88
	OpL2F Opcode = 0x89
	OpL2D Opcode = 0x8A
	OpF2I Opcode = 0x8B
	OpF2L Opcode = 0x8C
	OpF2D Opcode = 0x8D
	OpD2I Opcode = 0x8E
	OpD2L Opcode = 0x8F
	OpD2F Opcode = 0x90
	OpI2B Opcode = 0x91
	OpI2C Opcode = 0x92
	OpI2S Opcode = 0x93
)

// Comparisons and branches
const (
	OpLCMP      Opcode = 0x94
	OpFCMPL     Opcode = 0x95
	OpFCMPG     Opcode = 0x96
	OpDCMPL     Opcode = 0x97
	OpDCMPG     Opcode = 0x98
	OpIFEQ      Opcode = 0x99
	OpIFNE      Opcode = 0x9A
	OpIFLT      Opcode = 0x9B
	OpIFGE      Opcode = 0x9C
	OpIFGT      Opcode = 0x9D
	OpIFLE      Opcode = 0x9E
	OpIF_ICMPEQ Opcode = 0x9F
	OpIF_ICMPNE Opcode = 0xA0
	OpIF_ICMPLT Opcode = 0xA1
	OpIF_ICMPGE Opcode = 0xA2
	OpIF_ICMPGT Opcode = 0xA3
	OpIF_ICMPLE Opcode = 0xA4
	OpIF_ACMPEQ Opcode = 0xA5
	OpIF_ACMPNE Opcode = 0xA6
)

// Control
const (
	OpGOTO         Opcode = 0xA7
	OpJSR          Opcode = 0xA8 // unsupported
	OpRET          Opcode = 0xA9 // unsupported
	OpTABLESWITCH  Opcode = 0xAA
	OpLOOKUPSWITCH Opcode = 0xAB
	OpIRETURN      Opcode = 0xAC
	OpLRETURN      Opcode = 0xAD
	OpFRETURN      Opcode = 0xAE
	OpDRETURN      Opcode = 0xAF
	OpARETURN      Opcode = 0xB0
	OpRETURN       Opcode = 0xB1
)

// References
const (
	OpGETSTATIC       Opcode = 0xB2
	OpPUTSTATIC       Opcode = 0xB3
	OpGETFIELD        Opcode = 0xB4
	OpPUTFIELD        Opcode = 0xB5
	OpINVOKEVIRTUAL   Opcode = 0xB6
	OpINVOKESPECIAL   Opcode = 0xB7
	OpINVOKESTATIC    Opcode = 0xB8
	OpINVOKEINTERFACE Opcode = 0xB9
	OpINVOKEDYNAMIC   Opcode = 0xBA // unsupported
	OpNEW             Opcode = 0xBB
	OpNEWARRAY        Opcode = 0xBC
	OpANEWARRAY       Opcode = 0xBD
	OpARRAYLENGTH     Opcode = 0xBE
	OpATHROW          Opcode = 0xBF
	OpCHECKCAST       Opcode = 0xC0 // unsupported
	OpINSTANCEOF      Opcode = 0xC1
	OpMONITORENTER    Opcode = 0xC2
	OpMONITOREXIT     Opcode = 0xC3
)

// Extended
const (
	OpWIDE           Opcode = 0xC4 // unsupported
	OpMULTIANEWARRAY Opcode = 0xC5 // unsupported
	OpIFNULL         Opcode = 0xC6
	OpIFNONNULL      Opcode = 0xC7
	OpGOTO_W         Opcode = 0xC8
	OpJSR_W          Opcode = 0xC9 // unsupported
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes the operand bytes that follow an opcode.
type OperandKind uint8

const (
	OperandNone            OperandKind = iota
	OperandByte                        // signed 8-bit immediate
	OperandShort                       // signed 16-bit immediate
	OperandLocal                       // unsigned 8-bit local index
	OperandPoolByte                    // unsigned 8-bit constant-pool index
	OperandPool                        // unsigned 16-bit constant-pool index
	OperandBranch                      // signed 16-bit branch offset
	OperandBranchWide                  // signed 32-bit branch offset
	OperandIinc                        // 8-bit local index, signed 8-bit delta
	OperandArrayType                   // newarray atype
	OperandInvokeInterface             // 16-bit pool index, 8-bit count, zero byte
	OperandInvokeDynamic               // 16-bit pool index, two zero bytes
	OperandMultiArray                  // 16-bit pool index, 8-bit dimensions
	OperandTableSwitch                 // padded jump table
	OperandLookupSwitch                // padded match/offset pairs
	OperandWide                        // modified instruction follows
)

// operandWidth is the number of operand bytes for fixed-width kinds.
var operandWidth = map[OperandKind]int{
	OperandNone:            0,
	OperandByte:            1,
	OperandShort:           2,
	OperandLocal:           1,
	OperandPoolByte:        1,
	OperandPool:            2,
	OperandBranch:          2,
	OperandBranchWide:      4,
	OperandIinc:            2,
	OperandArrayType:       1,
	OperandInvokeInterface: 4,
	OperandInvokeDynamic:   4,
	OperandMultiArray:      3,
}

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Operands OperandKind
}

var opcodeTable [256]*OpcodeInfo
var opcodeByName = map[string]Opcode{}

func def(op Opcode, name string, operands OperandKind) {
	opcodeTable[op] = &OpcodeInfo{Name: name, Operands: operands}
	opcodeByName[name] = op
}

func init() {
	simple := []struct {
		op   Opcode
		name string
	}{
		{OpNOP, "nop"}, {OpACONST_NULL, "aconst_null"},
		{OpICONST_M1, "iconst_m1"}, {OpICONST_0, "iconst_0"}, {OpICONST_1, "iconst_1"},
		{OpICONST_2, "iconst_2"}, {OpICONST_3, "iconst_3"}, {OpICONST_4, "iconst_4"},
		{OpICONST_5, "iconst_5"}, {OpLCONST_0, "lconst_0"}, {OpLCONST_1, "lconst_1"},
		{OpFCONST_0, "fconst_0"}, {OpFCONST_1, "fconst_1"}, {OpFCONST_2, "fconst_2"},
		{OpDCONST_0, "dconst_0"}, {OpDCONST_1, "dconst_1"},
		{OpIALOAD, "iaload"}, {OpLALOAD, "laload"}, {OpFALOAD, "faload"}, {OpDALOAD, "daload"},
		{OpAALOAD, "aaload"}, {OpBALOAD, "baload"}, {OpCALOAD, "caload"}, {OpSALOAD, "saload"},
		{OpIASTORE, "iastore"}, {OpLASTORE, "lastore"}, {OpFASTORE, "fastore"}, {OpDASTORE, "dastore"},
		{OpAASTORE, "aastore"}, {OpBASTORE, "bastore"}, {OpCASTORE, "castore"}, {OpSASTORE, "sastore"},
		{OpPOP, "pop"}, {OpPOP2, "pop2"}, {OpDUP, "dup"}, {OpDUP_X1, "dup_x1"}, {OpDUP_X2, "dup_x2"},
		{OpDUP2, "dup2"}, {OpDUP2_X1, "dup2_x1"}, {OpDUP2_X2, "dup2_x2"}, {OpSWAP, "swap"},
		{OpIADD, "iadd"}, {OpLADD, "ladd"}, {OpFADD, "fadd"}, {OpDADD, "dadd"},
		{OpISUB, "isub"}, {OpLSUB, "lsub"}, {OpFSUB, "fsub"}, {OpDSUB, "dsub"},
		{OpIMUL, "imul"}, {OpLMUL, "lmul"}, {OpFMUL, "fmul"}, {OpDMUL, "dmul"},
		{OpIDIV, "idiv"}, {OpLDIV, "ldiv"}, {OpFDIV, "fdiv"}, {OpDDIV, "ddiv"},
		{OpIREM, "irem"}, {OpLREM, "lrem"}, {OpFREM, "frem"}, {OpDREM, "drem"},
		{OpINEG, "ineg"}, {OpLNEG, "lneg"}, {OpFNEG, "fneg"}, {OpDNEG, "dneg"},
		{OpISHL, "ishl"}, {OpLSHL, "lshl"}, {OpISHR, "ishr"}, {OpLSHR, "lshr"},
		{OpIUSHR, "iushr"}, {OpLUSHR, "lushr"}, {OpIAND, "iand"}, {OpLAND, "land"},
		{OpIOR, "ior"}, {OpLOR, "lor"}, {OpIXOR, "ixor"}, {OpLXOR, "lxor"},
		{OpI2L, "i2l"}, {OpI2F, "i2f"}, {OpI2D, "i2d"}, {OpL2I, "l2i"}, {OpL2F, "l2f"},
		{OpL2D, "l2d"}, {OpF2I, "f2i"}, {OpF2L, "f2l"}, {OpF2D, "f2d"}, {OpD2I, "d2i"},
		{OpD2L, "d2l"}, {OpD2F, "d2f"}, {OpI2B, "i2b"}, {OpI2C, "i2c"}, {OpI2S, "i2s"},
		{OpLCMP, "lcmp"}, {OpFCMPL, "fcmpl"}, {OpFCMPG, "fcmpg"}, {OpDCMPL, "dcmpl"}, {OpDCMPG, "dcmpg"},
		{OpIRETURN, "ireturn"}, {OpLRETURN, "lreturn"}, {OpFRETURN, "freturn"},
		{OpDRETURN, "dreturn"}, {OpARETURN, "areturn"}, {OpRETURN, "return"},
		{OpARRAYLENGTH, "arraylength"}, {OpATHROW, "athrow"},
		{OpMONITORENTER, "monitorenter"}, {OpMONITOREXIT, "monitorexit"},
	}
	for _, s := range simple {
		def(s.op, s.name, OperandNone)
	}

	locals := []struct {
		op   Opcode
		name string
	}{
		{OpILOAD, "iload"}, {OpLLOAD, "lload"}, {OpFLOAD, "fload"}, {OpDLOAD, "dload"}, {OpALOAD, "aload"},
		{OpISTORE, "istore"}, {OpLSTORE, "lstore"}, {OpFSTORE, "fstore"}, {OpDSTORE, "dstore"}, {OpASTORE, "astore"},
		{OpRET, "ret"},
	}
	for _, s := range locals {
		def(s.op, s.name, OperandLocal)
	}

	// <x>load_<n> and <x>store_<n> are laid out in runs of four.
	prefixes := []string{"i", "l", "f", "d", "a"}
	for k, p := range prefixes {
		for n := 0; n < 4; n++ {
			def(OpILOAD_0+Opcode(k*4+n), fmt.Sprintf("%sload_%d", p, n), OperandNone)
			def(OpISTORE_0+Opcode(k*4+n), fmt.Sprintf("%sstore_%d", p, n), OperandNone)
		}
	}

	branches := []struct {
		op   Opcode
		name string
	}{
		{OpIFEQ, "ifeq"}, {OpIFNE, "ifne"}, {OpIFLT, "iflt"}, {OpIFGE, "ifge"}, {OpIFGT, "ifgt"}, {OpIFLE, "ifle"},
		{OpIF_ICMPEQ, "if_icmpeq"}, {OpIF_ICMPNE, "if_icmpne"}, {OpIF_ICMPLT, "if_icmplt"},
		{OpIF_ICMPGE, "if_icmpge"}, {OpIF_ICMPGT, "if_icmpgt"}, {OpIF_ICMPLE, "if_icmple"},
		{OpIF_ACMPEQ, "if_acmpeq"}, {OpIF_ACMPNE, "if_acmpne"},
		{OpGOTO, "goto"}, {OpJSR, "jsr"}, {OpIFNULL, "ifnull"}, {OpIFNONNULL, "ifnonnull"},
	}
	for _, s := range branches {
		def(s.op, s.name, OperandBranch)
	}
	def(OpGOTO_W, "goto_w", OperandBranchWide)
	def(OpJSR_W, "jsr_w", OperandBranchWide)

	pool := []struct {
		op   Opcode
		name string
	}{
		{OpLDC_W, "ldc_w"}, {OpLDC2_W, "ldc2_w"},
		{OpGETSTATIC, "getstatic"}, {OpPUTSTATIC, "putstatic"}, {OpGETFIELD, "getfield"}, {OpPUTFIELD, "putfield"},
		{OpINVOKEVIRTUAL, "invokevirtual"}, {OpINVOKESPECIAL, "invokespecial"}, {OpINVOKESTATIC, "invokestatic"},
		{OpNEW, "new"}, {OpANEWARRAY, "anewarray"}, {OpCHECKCAST, "checkcast"}, {OpINSTANCEOF, "instanceof"},
	}
	for _, s := range pool {
		def(s.op, s.name, OperandPool)
	}

	def(OpBIPUSH, "bipush", OperandByte)
	def(OpSIPUSH, "sipush", OperandShort)
	def(OpLDC, "ldc", OperandPoolByte)
	def(OpIINC, "iinc", OperandIinc)
	def(OpNEWARRAY, "newarray", OperandArrayType)
	def(OpINVOKEINTERFACE, "invokeinterface", OperandInvokeInterface)
	def(OpINVOKEDYNAMIC, "invokedynamic", OperandInvokeDynamic)
	def(OpMULTIANEWARRAY, "multianewarray", OperandMultiArray)
	def(OpTABLESWITCH, "tableswitch", OperandTableSwitch)
	def(OpLOOKUPSWITCH, "lookupswitch", OperandLookupSwitch)
	def(OpWIDE, "wide", OperandWide)
}

// Info returns metadata for the opcode, or nil if it is not defined.
func (op Opcode) Info() *OpcodeInfo {
	return opcodeTable[op]
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if info := opcodeTable[op]; info != nil {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// LookupOpcode maps a mnemonic to its opcode.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// SwitchPadding is the number of zero bytes between a switch opcode at pc
// and its 4-byte aligned operands.
func SwitchPadding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

// InstructionLength returns the total length in bytes of the instruction at
// pc, including the opcode.
func InstructionLength(code []byte, pc int) (int, error) {
	if pc < 0 || pc >= len(code) {
		return 0, fmt.Errorf("pc %d out of range", pc)
	}
	op := Opcode(code[pc])
	info := op.Info()
	if info == nil {
		return 0, fmt.Errorf("undefined opcode 0x%02X at %d", byte(op), pc)
	}
	switch info.Operands {
	case OperandTableSwitch:
		base := pc + 1 + SwitchPadding(pc)
		if base+12 > len(code) {
			return 0, fmt.Errorf("truncated tableswitch at %d", pc)
		}
		low := int32(binary.BigEndian.Uint32(code[base+4:]))
		high := int32(binary.BigEndian.Uint32(code[base+8:]))
		if high < low {
			return 0, fmt.Errorf("tableswitch at %d: high %d < low %d", pc, high, low)
		}
		return base + 12 + 4*int(high-low+1) - pc, nil
	case OperandLookupSwitch:
		base := pc + 1 + SwitchPadding(pc)
		if base+8 > len(code) {
			return 0, fmt.Errorf("truncated lookupswitch at %d", pc)
		}
		npairs := int32(binary.BigEndian.Uint32(code[base+4:]))
		if npairs < 0 {
			return 0, fmt.Errorf("lookupswitch at %d: negative pair count", pc)
		}
		return base + 8 + 8*int(npairs) - pc, nil
	case OperandWide:
		if pc+1 < len(code) && Opcode(code[pc+1]) == OpIINC {
			return 6, nil
		}
		return 4, nil
	}
	return 1 + operandWidth[info.Operands], nil
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

func u1(code []byte, at int) int { return int(code[at]) }
func s1(code []byte, at int) int { return int(int8(code[at])) }
func u2(code []byte, at int) uint16 {
	return binary.BigEndian.Uint16(code[at:])
}
func s2(code []byte, at int) int { return int(int16(binary.BigEndian.Uint16(code[at:]))) }
func s4(code []byte, at int) int { return int(int32(binary.BigEndian.Uint32(code[at:]))) }
