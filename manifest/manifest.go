// Package manifest handles yvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/racaljk/yvm/vm"
)

// FileName is the name of the project file.
const FileName = "yvm.toml"

// Manifest represents a yvm.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Classpath    Classpath             `toml:"classpath"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Runtime      Runtime               `toml:"runtime"`
	Log          Log                   `toml:"log"`

	// Dir is the directory containing the yvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
	Main string `toml:"main"` // class whose main method "run" starts
}

// Classpath lists directories of .yasm and .ycls files.
type Classpath struct {
	Dirs []string `toml:"dirs"`
}

// Dependency is another project on the local filesystem whose classpath
// is appended to this one.
type Dependency struct {
	Path string `toml:"path"`
}

// Runtime tunes the interpreter.
type Runtime struct {
	FloatCompare  string `toml:"float-compare"`
	StrictNatives bool   `toml:"strict-natives"`
	MaxCallDepth  int    `toml:"max-call-depth"`
	DispatchCache int    `toml:"dispatch-cache"`
	Threads       int    `toml:"threads"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses the yvm.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	def := vm.DefaultOptions()
	if len(m.Classpath.Dirs) == 0 {
		m.Classpath.Dirs = []string{"classes"}
	}
	if m.Runtime.FloatCompare == "" {
		m.Runtime.FloatCompare = "ieee"
	}
	if m.Runtime.MaxCallDepth == 0 {
		m.Runtime.MaxCallDepth = def.MaxCallDepth
	}
	if m.Runtime.DispatchCache == 0 {
		m.Runtime.DispatchCache = def.DispatchCacheSize
	}
	if m.Runtime.Threads == 0 {
		m.Runtime.Threads = 1
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a yvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ClasspathPaths returns absolute paths for the configured classpath
// directories.
func (m *Manifest) ClasspathPaths() []string {
	var paths []string
	for _, d := range m.Classpath.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// Options maps the [runtime] section onto interpreter options.
func (m *Manifest) Options() (vm.Options, error) {
	opts := vm.DefaultOptions()
	fc, err := vm.ParseFloatCompare(m.Runtime.FloatCompare)
	if err != nil {
		return opts, fmt.Errorf("%s: runtime: %w", filepath.Join(m.Dir, FileName), err)
	}
	if m.Runtime.MaxCallDepth < 0 || m.Runtime.DispatchCache < 0 || m.Runtime.Threads < 0 {
		return opts, fmt.Errorf("%s: runtime: limits must not be negative", filepath.Join(m.Dir, FileName))
	}
	opts.FloatCompare = fc
	opts.StrictNatives = m.Runtime.StrictNatives
	if m.Runtime.MaxCallDepth > 0 {
		opts.MaxCallDepth = m.Runtime.MaxCallDepth
	}
	if m.Runtime.DispatchCache > 0 {
		opts.DispatchCacheSize = m.Runtime.DispatchCache
	}
	return opts, nil
}
