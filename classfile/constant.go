package classfile

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tag identifies the kind of a constant-pool entry.
type Tag uint8

const (
	TagNone               Tag = 0 // index 0 and the upper half of a long/double
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagInvokeDynamic      Tag = 18
)

var tagNames = map[Tag]string{
	TagNone:               "None",
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagInvokeDynamic:      "InvokeDynamic",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Constant is one constant-pool entry. The payload fields used depend on
// Tag:
//
//	Utf8                      Text
//	Integer/Float/Long/Double Int/Float/Long/Double
//	Class, String             Index1 -> Utf8
//	NameAndType               Index1 -> name Utf8, Index2 -> descriptor Utf8
//	*ref                      Index1 -> Class, Index2 -> NameAndType
type Constant struct {
	Tag    Tag     `cbor:"tag"`
	Text   string  `cbor:"text,omitempty"`
	Int    int32   `cbor:"int,omitempty"`
	Long   int64   `cbor:"long,omitempty"`
	Float  float32 `cbor:"float,omitempty"`
	Double float64 `cbor:"double,omitempty"`
	Index1 uint16  `cbor:"i1,omitempty"`
	Index2 uint16  `cbor:"i2,omitempty"`
}

// ConstantPool is indexed from 1; entry 0 is unused.
type ConstantPool []Constant

// Entry returns the entry at index i.
func (p ConstantPool) Entry(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p) {
		return Constant{}, errors.Errorf("constant pool index %d out of range (size %d)", i, len(p))
	}
	return p[i], nil
}

// Expect returns the entry at index i if it carries tag.
func (p ConstantPool) Expect(i uint16, tag Tag) (Constant, error) {
	c, err := p.Entry(i)
	if err != nil {
		return c, err
	}
	if c.Tag != tag {
		return c, errors.Errorf("constant pool #%d: expected %s, found %s", i, tag, c.Tag)
	}
	return c, nil
}

// Utf8 returns the text of a Utf8 entry.
func (p ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.Expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the internal name referenced by a Class entry.
func (p ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.Expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Index1)
}

// StringValue returns the text referenced by a String entry.
func (p ConstantPool) StringValue(i uint16) (string, error) {
	c, err := p.Expect(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Index1)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p ConstantPool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.Expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.Index1); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8(c.Index2); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef decodes a Fieldref, Methodref or InterfaceMethodref entry.
func (p ConstantPool) MemberRef(i uint16, tag Tag) (class, name, desc string, err error) {
	c, err := p.Expect(i, tag)
	if err != nil {
		return "", "", "", err
	}
	if class, err = p.ClassName(c.Index1); err != nil {
		return "", "", "", errors.Wrapf(err, "%s #%d class", tag, i)
	}
	if name, desc, err = p.NameAndType(c.Index2); err != nil {
		return "", "", "", errors.Wrapf(err, "%s #%d name-and-type", tag, i)
	}
	return class, name, desc, nil
}

// Describe renders entry i for listings, following references.
func (p ConstantPool) Describe(i uint16) string {
	c, err := p.Entry(i)
	if err != nil {
		return fmt.Sprintf("#%d?", i)
	}
	switch c.Tag {
	case TagUtf8:
		return c.Text
	case TagInteger:
		return fmt.Sprintf("int %d", c.Int)
	case TagFloat:
		return fmt.Sprintf("float %g", c.Float)
	case TagLong:
		return fmt.Sprintf("long %d", c.Long)
	case TagDouble:
		return fmt.Sprintf("double %g", c.Double)
	case TagClass:
		name, _ := p.ClassName(i)
		return name
	case TagString:
		s, _ := p.StringValue(i)
		return fmt.Sprintf("%q", s)
	case TagNameAndType:
		name, desc, _ := p.NameAndType(i)
		return name + ":" + desc
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		class, name, desc, _ := p.MemberRef(i, c.Tag)
		return class + "." + name + ":" + desc
	}
	return c.Tag.String()
}
