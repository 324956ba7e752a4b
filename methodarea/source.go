package methodarea

import (
	"bytes"
	_ "embed"

	"github.com/pkg/errors"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/image"
)

// Source supplies class definitions by internal name. FindClass reports
// false when the source does not define the class.
type Source interface {
	FindClass(name string) (*classfile.Class, bool, error)
}

// Classes is an in-memory source.
type Classes map[string]*classfile.Class

// NewClasses indexes classes by name.
func NewClasses(classes ...*classfile.Class) Classes {
	m := make(Classes, len(classes))
	for _, c := range classes {
		m[c.Name] = c
	}
	return m
}

func (m Classes) FindClass(name string) (*classfile.Class, bool, error) {
	c, ok := m[name]
	return c, ok, nil
}

// Chain queries each source in order and returns the first definition.
type Chain []Source

func (ch Chain) FindClass(name string) (*classfile.Class, bool, error) {
	for _, s := range ch {
		c, ok, err := s.FindClass(name)
		if err != nil || ok {
			return c, ok, err
		}
	}
	return nil, false, nil
}

//go:embed bootstrap.yasm
var bootstrapAssembly []byte

// Bootstrap assembles the built-in runtime classes: java/lang/Object,
// String, System, the Throwable hierarchy and the natives' owners. Each
// call returns fresh classes, since a class belongs to one method area.
func Bootstrap() (Classes, error) {
	classes, err := image.AssembleAll(bytes.NewReader(bootstrapAssembly))
	if err != nil {
		return nil, errors.Wrap(err, "assemble bootstrap classes")
	}
	return NewClasses(classes...), nil
}

// WithBootstrap chains the bootstrap classes in front of sources.
func WithBootstrap(sources ...Source) (Chain, error) {
	boot, err := Bootstrap()
	if err != nil {
		return nil, err
	}
	return append(Chain{boot}, sources...), nil
}
