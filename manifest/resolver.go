package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Classpath returns the dependency's classpath directories. A dependency
// without a manifest contributes its own directory.
func (d ResolvedDep) Classpath() []string {
	if d.Manifest == nil {
		return []string{d.LocalPath}
	}
	return d.Manifest.ClasspathPaths()
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents). Siblings are
// visited in name order so the result is stable.
func (m *Manifest) Resolve() ([]ResolvedDep, error) {
	r := &resolver{
		resolved: make(map[string]bool),
		active:   make(map[string]bool),
	}
	if err := r.resolveAll(m); err != nil {
		return nil, err
	}
	return r.order, nil
}

// FullClasspath is the project's classpath followed by the classpaths of
// its dependencies, most dependent first, so project classes shadow
// library classes of the same name.
func (m *Manifest) FullClasspath() ([]string, error) {
	deps, err := m.Resolve()
	if err != nil {
		return nil, err
	}
	paths := m.ClasspathPaths()
	for k := len(deps) - 1; k >= 0; k-- {
		paths = append(paths, deps[k].Classpath()...)
	}
	return paths, nil
}

type resolver struct {
	order    []ResolvedDep
	resolved map[string]bool // by local path
	active   map[string]bool // on the current resolution path
}

// resolveAll resolves the dependencies of owner recursively.
func (r *resolver) resolveAll(owner *Manifest) error {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rd, err := resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}
		if r.active[rd.LocalPath] {
			return fmt.Errorf("dependency cycle through %s (%s)", name, rd.LocalPath)
		}
		if r.resolved[rd.LocalPath] {
			continue // already resolved
		}

		// Check for transitive dependencies
		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			r.active[rd.LocalPath] = true
			err := r.resolveAll(rd.Manifest)
			delete(r.active, rd.LocalPath)
			if err != nil {
				return err
			}
		}

		r.resolved[rd.LocalPath] = true
		r.order = append(r.order, *rd)
	}
	return nil
}

// resolveOne resolves a single dependency relative to its owner.
func resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	if dep.Path == "" {
		return nil, fmt.Errorf("dependency %q has no path specified", name)
	}

	localPath := dep.Path
	if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(owner.Dir, localPath)
	}

	localPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
	}

	// Verify it exists
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
	}

	// Try to load its manifest
	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		if depManifest, err = Load(localPath); err != nil {
			return nil, err
		}
	}

	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Manifest:  depManifest,
	}, nil
}
