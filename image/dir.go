package image

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
)

var log = commonlog.GetLogger("yvm.image")

// Dir is a classpath directory. Every .yasm and .ycls file below Root is
// read on first lookup and indexed by class name.
type Dir struct {
	Root string

	once    sync.Once
	classes map[string]*classfile.Class
	err     error
}

// NewDir returns a classpath source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// FindClass returns the named class if some file in the directory defines
// it.
func (d *Dir) FindClass(name string) (*classfile.Class, bool, error) {
	d.once.Do(d.scan)
	if d.err != nil {
		return nil, false, d.err
	}
	c, ok := d.classes[name]
	return c, ok, nil
}

// Names lists the classes defined in the directory.
func (d *Dir) Names() ([]string, error) {
	d.once.Do(d.scan)
	if d.err != nil {
		return nil, d.err
	}
	names := make([]string, 0, len(d.classes))
	for n := range d.classes {
		names = append(names, n)
	}
	return names, nil
}

func (d *Dir) scan() {
	d.classes = make(map[string]*classfile.Class)
	d.err = filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		var classes []*classfile.Class
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yasm":
			classes, err = AssembleFile(path)
		case ".ycls":
			classes, err = ReadFile(path)
		default:
			return nil
		}
		if err != nil {
			return err
		}

		for _, c := range classes {
			if _, dup := d.classes[c.Name]; dup {
				return errors.Errorf("%s: class %s is defined twice on the classpath", path, c.Name)
			}
			d.classes[c.Name] = c
		}
		log.Debugf("classpath %s: %d classes from %s", d.Root, len(classes), path)
		return nil
	})
	if d.err != nil {
		d.err = errors.Wrapf(d.err, "scan classpath %s", d.Root)
	}
}
