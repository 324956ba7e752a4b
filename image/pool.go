package image

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/racaljk/yvm/classfile"
)

// poolBuilder interns constants into a class's constant pool. Identical
// constants share one entry.
type poolBuilder struct {
	pool  classfile.ConstantPool
	index map[string]uint16
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{
		pool:  classfile.ConstantPool{{}}, // index 0 is unused
		index: make(map[string]uint16),
	}
}

func (p *poolBuilder) add(key string, c classfile.Constant, wide bool) (uint16, error) {
	if idx, ok := p.index[key]; ok {
		return idx, nil
	}
	limit := 0xffff
	if wide {
		limit--
	}
	if len(p.pool) >= limit {
		return 0, errors.New("constant pool is full")
	}
	idx := uint16(len(p.pool))
	p.pool = append(p.pool, c)
	if wide {
		// Long and double take two entries.
		p.pool = append(p.pool, classfile.Constant{})
	}
	p.index[key] = idx
	return idx, nil
}

func (p *poolBuilder) utf8(s string) (uint16, error) {
	return p.add("utf8:"+s, classfile.Constant{Tag: classfile.TagUtf8, Text: s}, false)
}

func (p *poolBuilder) class(name string) (uint16, error) {
	u, err := p.utf8(name)
	if err != nil {
		return 0, err
	}
	return p.add("class:"+name, classfile.Constant{Tag: classfile.TagClass, Index1: u}, false)
}

func (p *poolBuilder) string(s string) (uint16, error) {
	u, err := p.utf8(s)
	if err != nil {
		return 0, err
	}
	return p.add("string:"+s, classfile.Constant{Tag: classfile.TagString, Index1: u}, false)
}

func (p *poolBuilder) integer(v int32) (uint16, error) {
	return p.add(fmt.Sprintf("int:%d", v), classfile.Constant{Tag: classfile.TagInteger, Int: v}, false)
}

func (p *poolBuilder) float(v float32) (uint16, error) {
	return p.add(fmt.Sprintf("float:%x", math.Float32bits(v)), classfile.Constant{Tag: classfile.TagFloat, Float: v}, false)
}

func (p *poolBuilder) long(v int64) (uint16, error) {
	return p.add(fmt.Sprintf("long:%d", v), classfile.Constant{Tag: classfile.TagLong, Long: v}, true)
}

func (p *poolBuilder) double(v float64) (uint16, error) {
	return p.add(fmt.Sprintf("double:%x", math.Float64bits(v)), classfile.Constant{Tag: classfile.TagDouble, Double: v}, true)
}

func (p *poolBuilder) nameAndType(name, desc string) (uint16, error) {
	n, err := p.utf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.utf8(desc)
	if err != nil {
		return 0, err
	}
	return p.add("nat:"+name+":"+desc, classfile.Constant{Tag: classfile.TagNameAndType, Index1: n, Index2: d}, false)
}

func (p *poolBuilder) member(tag classfile.Tag, class, name, desc string) (uint16, error) {
	c, err := p.class(class)
	if err != nil {
		return 0, err
	}
	nt, err := p.nameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%d:%s.%s:%s", tag, class, name, desc)
	return p.add(key, classfile.Constant{Tag: tag, Index1: c, Index2: nt}, false)
}

func (p *poolBuilder) invokeDynamic(bootstrap uint16, name, desc string) (uint16, error) {
	nt, err := p.nameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("indy:%d:%s:%s", bootstrap, name, desc)
	return p.add(key, classfile.Constant{Tag: classfile.TagInvokeDynamic, Index1: bootstrap, Index2: nt}, false)
}
