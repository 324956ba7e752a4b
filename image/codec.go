package image

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

const (
	// Magic identifies a .ycls file.
	Magic = "yvm-class"
	// Version is the image format version written by Encode.
	Version = 1
)

// File is the on-disk form of a .ycls image. One file may carry several
// classes.
type File struct {
	Magic   string             `cbor:"magic"`
	Version int                `cbor:"version"`
	Classes []*classfile.Class `cbor:"classes"`
}

// cborEncMode uses canonical encoding so identical classes always produce
// identical images.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode serializes classes to CBOR.
func Encode(classes ...*classfile.Class) ([]byte, error) {
	data, err := cborEncMode.Marshal(&File{Magic: Magic, Version: Version, Classes: classes})
	if err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	return data, nil
}

// Decode deserializes an image. Decoded classes are not yet registered with
// any method area. lookupswitch match values must be strictly ascending, as
// the interpreter searches them by bisection; images breaking that are
// rejected.
func Decode(data []byte) ([]*classfile.Class, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if f.Magic != Magic {
		return nil, errors.Errorf("not a class image (magic %q)", f.Magic)
	}
	if f.Version != Version {
		return nil, errors.Errorf("unsupported image version %d", f.Version)
	}
	for _, c := range f.Classes {
		if c == nil || c.Name == "" {
			return nil, errors.New("image contains an unnamed class")
		}
		c.ID = classfile.NoClass
		c.SuperID = classfile.NoClass
		for _, m := range c.Methods {
			if m == nil || m.Code == nil {
				continue
			}
			if err := checkSwitches(m.Code.Bytecode); err != nil {
				return nil, errors.Wrapf(err, "%s.%s%s", c.Name, m.Name, m.Descriptor)
			}
		}
	}
	return f.Classes, nil
}

// checkSwitches walks code and verifies the pair order of every
// lookupswitch.
func checkSwitches(code []byte) error {
	for pc := 0; pc < len(code); {
		n, err := vm.InstructionLength(code, pc)
		if err != nil {
			return err
		}
		if pc+n > len(code) {
			return errors.Errorf("truncated instruction at %d", pc)
		}
		if vm.Opcode(code[pc]) == vm.OpLOOKUPSWITCH {
			base := pc + 1 + vm.SwitchPadding(pc)
			npairs := int(int32(binary.BigEndian.Uint32(code[base+4:])))
			for k := 1; k < npairs; k++ {
				prev := int32(binary.BigEndian.Uint32(code[base+8+8*(k-1):]))
				cur := int32(binary.BigEndian.Uint32(code[base+8+8*k:]))
				if cur <= prev {
					return errors.Errorf("lookupswitch at %d: match %d follows %d", pc, cur, prev)
				}
			}
		}
		pc += n
	}
	return nil
}

// WriteFile encodes classes to path.
func WriteFile(path string, classes ...*classfile.Class) error {
	data, err := Encode(classes...)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

// ReadFile decodes the image at path.
func ReadFile(path string) ([]*classfile.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	classes, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return classes, nil
}
