package image

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

const squareDoc = `
class: demo/Square
flags: [public, super]
methods:
  - name: square
    descriptor: (I)I
    flags: [public, static]
    code: |
      iload_0
      iload_0
      imul
      ireturn
`

func TestAssembleSimpleMethod(t *testing.T) {
	c, err := Assemble([]byte(squareDoc))
	require.NoError(t, err)

	assert.Equal(t, "demo/Square", c.Name)
	assert.Equal(t, "java/lang/Object", c.SuperName)
	assert.True(t, c.Flags.Has(classfile.AccSuper))
	assert.Equal(t, classfile.NoClass, c.ID)

	m := c.FindMethod("square", "(I)I")
	require.NotNil(t, m)
	require.NotNil(t, m.Code)
	assert.Equal(t, []byte{byte(vm.OpILOAD_0), byte(vm.OpILOAD_0), byte(vm.OpIMUL), byte(vm.OpIRETURN)}, m.Code.Bytecode)
	assert.Equal(t, uint16(1), m.Code.MaxLocals)
	assert.Equal(t, uint16(8), m.Code.MaxStack)
}

func TestAssembleBranches(t *testing.T) {
	c, err := Assemble([]byte(`
class: demo/Loop
methods:
  - name: count
    descriptor: (I)I
    flags: [static]
    code: |
      iconst_0
      istore_1
      top:
      iload_0        # remaining
      ifle done
      iinc 1 1
      iinc 0 -1
      goto top
      done: iload_1
      ireturn
`))
	require.NoError(t, err)
	code := c.FindMethod("count", "(I)I").Code.Bytecode

	// top is at 2; ifle at 3 jumps to done at 15; goto at 12 jumps back to 2.
	assert.Equal(t, byte(vm.OpIFLE), code[3])
	assert.Equal(t, []byte{0x00, 0x0c}, code[4:6])
	assert.Equal(t, byte(vm.OpGOTO), code[12])
	assert.Equal(t, []byte{0xff, 0xf6}, code[13:15])
	assert.Equal(t, []byte{byte(vm.OpIINC), 0, 0xff}, code[9:12])
	assert.Equal(t, uint16(2), c.FindMethod("count", "(I)I").Code.MaxLocals)
}

func TestAssembleSwitches(t *testing.T) {
	c, err := Assemble([]byte(`
class: demo/Switch
methods:
  - name: table
    descriptor: (I)I
    flags: [static]
    code: |
      iload_0
      tableswitch 1 other one two
      one: iconst_1
      ireturn
      two: iconst_2
      ireturn
      other: iconst_m1
      ireturn
  - name: lookup
    descriptor: (I)I
    flags: [static]
    code: |
      iload_0
      lookupswitch other 100:big -5:neg
      big: iconst_1
      ireturn
      neg: iconst_2
      ireturn
      other: iconst_0
      ireturn
`))
	require.NoError(t, err)

	table := c.FindMethod("table", "(I)I").Code.Bytecode
	n, err := vm.InstructionLength(table, 1)
	require.NoError(t, err)
	assert.Equal(t, 1+2+12+8, n)
	lines, err := Listing(c.Pool, table)
	require.NoError(t, err)
	assert.Equal(t, "default:28 1:24 2:26", lines[1].Operands)

	lookup := c.FindMethod("lookup", "(I)I").Code.Bytecode
	lines, err = Listing(c.Pool, lookup)
	require.NoError(t, err)
	// Pairs are emitted sorted by match value.
	assert.Equal(t, "default:32 -5:30 100:28", lines[1].Operands)
}

func TestAssembleConstantsAndMembers(t *testing.T) {
	c, err := Assemble([]byte(`
class: demo/Consts
fields:
  - {name: total, descriptor: J, flags: [static]}
methods:
  - name: run
    descriptor: ()V
    flags: [static]
    code: |
      ldc2_w long 5000000000
      putstatic demo/Consts.total:J
      ldc string "hello # not a comment"
      ldc string "hello # not a comment"
      pop2
      ldc int 42
      invokestatic demo/Consts.sink:(I)V
      return
  - name: sink
    descriptor: (I)V
    flags: [static, native]
`))
	require.NoError(t, err)

	lines, err := Listing(c.Pool, c.FindMethod("run", "()V").Code.Bytecode)
	require.NoError(t, err)
	require.Len(t, lines, 8)
	assert.Contains(t, lines[0].Operands, "long 5000000000")
	assert.Contains(t, lines[1].Operands, "demo/Consts.total:J")
	assert.Contains(t, lines[2].Operands, `"hello # not a comment"`)
	assert.Equal(t, lines[2].Operands, lines[3].Operands, "identical constants share a pool entry")
	assert.Contains(t, lines[6].Operands, "demo/Consts.sink:(I)V")

	sink := c.FindMethod("sink", "(I)V")
	assert.True(t, sink.IsNative())
	assert.Nil(t, sink.Code)
}

func TestAssembleExceptionTable(t *testing.T) {
	c, err := Assemble([]byte(`
class: demo/Catch
methods:
  - name: run
    descriptor: ()I
    flags: [static]
    code: |
      start:
      iconst_1
      iconst_0
      idiv
      end:
      ireturn
      handler:
      pop
      iconst_m1
      ireturn
    exceptions:
      - {start: start, end: end, handler: handler, catch: java/lang/ArithmeticException}
      - {start: start, end: end, handler: handler, catch: any}
`))
	require.NoError(t, err)
	table := c.FindMethod("run", "()I").Code.ExceptionTable
	require.Len(t, table, 2)
	assert.Equal(t, classfile.ExceptionEntry{StartPC: 0, EndPC: 3, HandlerPC: 4, CatchType: table[0].CatchType}, table[0])
	name, err := c.Pool.ClassName(table[0].CatchType)
	require.NoError(t, err)
	assert.Equal(t, "java/lang/ArithmeticException", name)
	assert.Zero(t, table[1].CatchType)
}

func TestAssembleErrors(t *testing.T) {
	tests := map[string]string{
		"unknown instruction": "frobnicate",
		"undefined label":     "goto nowhere",
		"operand count":       "iload",
		"wrong ldc width":     "ldc long 1",
		"bad member":          "invokestatic noDescriptor",
		"bad newarray type":   "newarray string",
	}
	for name, code := range tests {
		doc := "class: demo/Bad\nmethods:\n  - name: m\n    descriptor: ()V\n    flags: [static]\n    code: |\n      " + code + "\n"
		_, err := Assemble([]byte(doc))
		assert.Error(t, err, name)
	}

	_, err := Assemble([]byte("class: demo/Bad\nflags: [publik]\n"))
	assert.ErrorContains(t, err, "publik")
}

func TestDecodeRejectsUnsortedLookupswitch(t *testing.T) {
	c, err := Assemble([]byte(`
class: demo/Lookup
methods:
  - name: lookup
    descriptor: (I)I
    flags: [static]
    code: |
      iload_0
      lookupswitch other -5:neg 100:big
      big: iconst_1
      ireturn
      neg: iconst_2
      ireturn
      other: iconst_0
      ireturn
`))
	require.NoError(t, err)

	data, err := Encode(c)
	require.NoError(t, err)
	_, err = Decode(data)
	require.NoError(t, err)

	// lookupswitch at pc 1 pads to 4; its pairs start at 12.
	code := c.FindMethod("lookup", "(I)I").Code.Bytecode
	swapped := append([]byte(nil), code[:12]...)
	swapped = append(swapped, code[20:28]...)
	swapped = append(swapped, code[12:20]...)
	swapped = append(swapped, code[28:]...)
	c.FindMethod("lookup", "(I)I").Code.Bytecode = swapped

	data, err = Encode(c)
	require.NoError(t, err)
	_, err = Decode(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookupswitch at 1: match -5 follows 100")
}

func TestAssembleAllAndCodec(t *testing.T) {
	stream := squareDoc + "\n---\nclass: demo/Other\nsuper: demo/Square\n"
	classes, err := AssembleAll(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "demo/Square", classes[1].SuperName)

	data, err := Encode(classes...)
	require.NoError(t, err)
	again, err := Encode(classes...)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	m := decoded[0].FindMethod("square", "(I)I")
	require.NotNil(t, m)
	assert.Equal(t, classes[0].FindMethod("square", "(I)I").Code.Bytecode, m.Code.Bytecode)
	assert.Equal(t, classfile.NoClass, decoded[1].SuperID)

	_, err = Decode([]byte{0xa0})
	assert.Error(t, err)
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo", "Square.yasm"), []byte(squareDoc), 0o644))

	other, err := Assemble([]byte("class: demo/Other\n"))
	require.NoError(t, err)
	require.NoError(t, WriteFile(filepath.Join(root, "other.ycls"), other))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("ignored"), 0o644))

	d := NewDir(root)
	c, ok, err := d.FindClass("demo/Square")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, c.FindMethod("square", "(I)I"))

	_, ok, err = d.FindClass("demo/Other")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = d.FindClass("demo/Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := d.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"demo/Square", "demo/Other"}, names)
}

func TestDisassemble(t *testing.T) {
	c, err := Assemble([]byte(squareDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Disassemble(&buf, c))
	out := buf.String()
	assert.Contains(t, out, "class demo/Square extends java/lang/Object")
	assert.Contains(t, out, "method square(I)I [public static]")
	assert.Contains(t, out, "imul")
	assert.Contains(t, out, "ireturn")
}
