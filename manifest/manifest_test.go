package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/racaljk/yvm/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
main = "demo/Main"

[classpath]
dirs = ["classes", "gen"]

[dependencies]
helper = { path = "../helper" }

[runtime]
float-compare = "epsilon"
strict-natives = true
max-call-depth = 64
dispatch-cache = 128
threads = 4

[log]
verbosity = 2
file = "yvm.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.Project.Main != "demo/Main" {
		t.Errorf("project main = %q, want demo/Main", m.Project.Main)
	}
	if len(m.Classpath.Dirs) != 2 {
		t.Errorf("classpath dirs count = %d, want 2", len(m.Classpath.Dirs))
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}
	if m.Runtime.Threads != 4 {
		t.Errorf("runtime threads = %d, want 4", m.Runtime.Threads)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "yvm.log" {
		t.Errorf("log = %+v, want verbosity 2 file yvm.log", m.Log)
	}

	opts, err := m.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.FloatCompare != vm.CompareEpsilon {
		t.Errorf("float compare = %v, want epsilon", opts.FloatCompare)
	}
	if !opts.StrictNatives {
		t.Error("strict natives = false, want true")
	}
	if opts.MaxCallDepth != 64 {
		t.Errorf("max call depth = %d, want 64", opts.MaxCallDepth)
	}
	if opts.DispatchCacheSize != 128 {
		t.Errorf("dispatch cache = %d, want 128", opts.DispatchCacheSize)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Default classpath dir should be "classes"
	if len(m.Classpath.Dirs) != 1 || m.Classpath.Dirs[0] != "classes" {
		t.Errorf("default classpath dirs = %v, want [classes]", m.Classpath.Dirs)
	}
	if m.Runtime.Threads != 1 {
		t.Errorf("default threads = %d, want 1", m.Runtime.Threads)
	}

	opts, err := m.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	def := vm.DefaultOptions()
	if opts.FloatCompare != vm.CompareIEEE || opts.MaxCallDepth != def.MaxCallDepth || opts.StrictNatives {
		t.Errorf("default options = %+v, want %+v", opts, def)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without yvm.toml succeeded")
	}

	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Error("Load of malformed toml succeeded")
	}

	dir = t.TempDir()
	writeManifest(t, dir, "[runtime]\nfloat-compare = \"fuzzy\"\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := m.Options(); err == nil {
		t.Error("Options accepted an unknown float-compare mode")
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no yvm.toml exists")
	}
}

func TestClasspathPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Classpath: Classpath{
			Dirs: []string{"classes", "/opt/yvm/lib"},
		},
	}

	paths := m.ClasspathPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/classes" {
		t.Errorf("paths[0] = %q, want /app/classes", paths[0])
	}
	if paths[1] != "/opt/yvm/lib" {
		t.Errorf("paths[1] = %q, want /opt/yvm/lib", paths[1])
	}
}
