package classfile

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldType is a single field descriptor such as "I", "J",
// "Ljava/lang/String;" or "[C". The empty FieldType is void.
type FieldType string

const Void FieldType = ""

// Slots is the number of local/stack slots a value of this type takes.
func (t FieldType) Slots() int {
	switch t {
	case Void:
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// IsReference reports whether the type is a class or array type.
func (t FieldType) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// IsArray reports whether the type is an array type.
func (t FieldType) IsArray() bool {
	return len(t) > 0 && t[0] == '['
}

// ClassName returns the internal name of a class type ("Ljava/lang/Object;"
// gives "java/lang/Object"), or "" for anything else.
func (t FieldType) ClassName() string {
	if len(t) > 2 && t[0] == 'L' && t[len(t)-1] == ';' {
		return string(t[1 : len(t)-1])
	}
	return ""
}

// Component returns the element type of an array type.
func (t FieldType) Component() FieldType {
	if t.IsArray() {
		return t[1:]
	}
	return Void
}

func (t FieldType) String() string {
	if t == Void {
		return "V"
	}
	return string(t)
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []FieldType
	Return FieldType
}

// ArgSlots is the number of local slots taken by the parameters, not
// counting a receiver.
func (m MethodType) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += p.Slots()
	}
	return n
}

// ParseFieldType parses one field descriptor, which must span all of s.
func ParseFieldType(s string) (FieldType, error) {
	t, n, err := scanFieldType(s, 0)
	if err != nil {
		return Void, err
	}
	if n != len(s) {
		return Void, errors.Errorf("field descriptor %q: trailing characters", s)
	}
	return t, nil
}

// ParseMethodDescriptor parses a descriptor of the form "(params)ret".
func ParseMethodDescriptor(s string) (MethodType, error) {
	var mt MethodType
	if !strings.HasPrefix(s, "(") {
		return mt, errors.Errorf("method descriptor %q: missing '('", s)
	}
	pos := 1
	for {
		if pos >= len(s) {
			return mt, errors.Errorf("method descriptor %q: missing ')'", s)
		}
		if s[pos] == ')' {
			pos++
			break
		}
		t, next, err := scanFieldType(s, pos)
		if err != nil {
			return mt, errors.Wrapf(err, "method descriptor %q", s)
		}
		mt.Params = append(mt.Params, t)
		pos = next
	}
	if pos < len(s) && s[pos] == 'V' {
		if pos+1 != len(s) {
			return mt, errors.Errorf("method descriptor %q: trailing characters", s)
		}
		return mt, nil
	}
	ret, next, err := scanFieldType(s, pos)
	if err != nil {
		return mt, errors.Wrapf(err, "method descriptor %q", s)
	}
	if next != len(s) {
		return mt, errors.Errorf("method descriptor %q: trailing characters", s)
	}
	mt.Return = ret
	return mt, nil
}

func scanFieldType(s string, pos int) (FieldType, int, error) {
	start := pos
	for pos < len(s) && s[pos] == '[' {
		pos++
	}
	if pos >= len(s) {
		return Void, 0, errors.Errorf("truncated type at offset %d", start)
	}
	switch s[pos] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		pos++
	case 'L':
		end := strings.IndexByte(s[pos:], ';')
		if end <= 1 {
			return Void, 0, errors.Errorf("bad class type at offset %d", pos)
		}
		pos += end + 1
	default:
		return Void, 0, errors.Errorf("unexpected %q at offset %d", s[pos], pos)
	}
	return FieldType(s[start:pos]), pos, nil
}
