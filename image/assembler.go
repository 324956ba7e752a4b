// Package image reads and writes yvm class images.
//
// Classes are authored as YAML assembly documents (.yasm) and stored as
// CBOR images (.ycls). Both forms produce *classfile.Class values.
package image

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/racaljk/yvm/classfile"
)

// Document is the YAML form of one class.
type Document struct {
	Class      string      `yaml:"class"`
	Super      string      `yaml:"super"`
	Flags      []string    `yaml:"flags"`
	Interfaces []string    `yaml:"interfaces"`
	Source     string      `yaml:"source"`
	Fields     []FieldDoc  `yaml:"fields"`
	Methods    []MethodDoc `yaml:"methods"`
}

// FieldDoc declares a field.
type FieldDoc struct {
	Name       string   `yaml:"name"`
	Descriptor string   `yaml:"descriptor"`
	Flags      []string `yaml:"flags"`
}

// MethodDoc declares a method. Code holds one instruction per line;
// "name:" lines define labels. Zero max_stack and max_locals are computed.
type MethodDoc struct {
	Name       string       `yaml:"name"`
	Descriptor string       `yaml:"descriptor"`
	Flags      []string     `yaml:"flags"`
	MaxStack   int          `yaml:"max_stack"`
	MaxLocals  int          `yaml:"max_locals"`
	Code       string       `yaml:"code"`
	Exceptions []HandlerDoc `yaml:"exceptions"`
}

// HandlerDoc is an exception table row in terms of code labels. An empty
// or "any" Catch catches everything.
type HandlerDoc struct {
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Handler string `yaml:"handler"`
	Catch   string `yaml:"catch"`
}

const rootClass = "java/lang/Object"

// Assemble builds a class from a single YAML document.
func Assemble(data []byte) (*classfile.Class, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse assembly")
	}
	return AssembleDocument(&doc)
}

// AssembleAll builds every class of a multi-document YAML stream.
func AssembleAll(r io.Reader) ([]*classfile.Class, error) {
	dec := yaml.NewDecoder(r)
	var classes []*classfile.Class
	for {
		var doc Document
		err := dec.Decode(&doc)
		if err == io.EOF {
			return classes, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse assembly document %d", len(classes)+1)
		}
		c, err := AssembleDocument(&doc)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
}

// AssembleFile reads a .yasm file.
func AssembleFile(path string) ([]*classfile.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	classes, err := AssembleAll(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "assemble %s", path)
	}
	return classes, nil
}

// AssembleDocument builds a class from a parsed document.
func AssembleDocument(doc *Document) (*classfile.Class, error) {
	if doc.Class == "" {
		return nil, errors.New("document has no class name")
	}
	flags, err := parseFlags(doc.Flags)
	if err != nil {
		return nil, errors.Wrapf(err, "class %s", doc.Class)
	}

	c := &classfile.Class{
		Name:       doc.Class,
		SuperName:  doc.Super,
		Interfaces: doc.Interfaces,
		Flags:      flags,
		SourceFile: doc.Source,
		ID:         classfile.NoClass,
		SuperID:    classfile.NoClass,
	}
	if c.SuperName == "" && c.Name != rootClass {
		c.SuperName = rootClass
	}

	pool := newPoolBuilder()
	for _, fd := range doc.Fields {
		if _, err := classfile.ParseFieldType(fd.Descriptor); err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", doc.Class, fd.Name)
		}
		ff, err := parseFlags(fd.Flags)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s.%s", doc.Class, fd.Name)
		}
		c.Fields = append(c.Fields, &classfile.Field{Name: fd.Name, Descriptor: fd.Descriptor, Flags: ff})
	}

	for k := range doc.Methods {
		md := &doc.Methods[k]
		m, err := assembleMethod(pool, md)
		if err != nil {
			return nil, errors.Wrapf(err, "method %s.%s%s", doc.Class, md.Name, md.Descriptor)
		}
		c.Methods = append(c.Methods, m)
	}

	c.Pool = pool.pool
	return c, nil
}

func assembleMethod(pool *poolBuilder, md *MethodDoc) (*classfile.Method, error) {
	sig, err := classfile.ParseMethodDescriptor(md.Descriptor)
	if err != nil {
		return nil, err
	}
	flags, err := parseFlags(md.Flags)
	if err != nil {
		return nil, err
	}
	m := &classfile.Method{Name: md.Name, Descriptor: md.Descriptor, Flags: flags}

	if m.IsNative() || m.IsAbstract() {
		if md.Code != "" {
			return nil, errors.New("native and abstract methods take no code")
		}
		return m, nil
	}
	if md.Code == "" {
		return nil, errors.New("method has no code")
	}

	asm, err := assembleCode(pool, md.Code)
	if err != nil {
		return nil, err
	}

	argSlots := sig.ArgSlots()
	if !m.IsStatic() {
		argSlots++
	}
	maxLocals := md.MaxLocals
	if maxLocals == 0 {
		maxLocals = max(argSlots, asm.localsUsed)
	}
	if maxLocals < argSlots {
		return nil, errors.Errorf("max_locals %d is smaller than the %d argument slots", maxLocals, argSlots)
	}
	maxStack := md.MaxStack
	if maxStack == 0 {
		// No instruction grows the stack by more than two slots.
		maxStack = 2 * asm.count
	}
	if maxLocals > 0xffff || maxStack > 0xffff {
		return nil, errors.New("max_locals or max_stack out of range")
	}

	table := make([]classfile.ExceptionEntry, 0, len(md.Exceptions))
	for _, h := range md.Exceptions {
		e, err := asm.handler(pool, h)
		if err != nil {
			return nil, err
		}
		table = append(table, e)
	}

	m.Code = &classfile.Code{
		MaxStack:       uint16(maxStack),
		MaxLocals:      uint16(maxLocals),
		Bytecode:       asm.code,
		ExceptionTable: table,
	}
	return m, nil
}

func parseFlags(names []string) (classfile.AccessFlags, error) {
	var flags classfile.AccessFlags
	for _, n := range names {
		f, ok := classfile.ParseFlag(n)
		if !ok {
			return 0, errors.Errorf("unknown access flag %q", n)
		}
		flags |= f
	}
	return flags, nil
}
