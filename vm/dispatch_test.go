package vm

import (
	"testing"

	"github.com/racaljk/yvm/classfile"
)

// ---------------------------------------------------------------------------
// DispatchCache tests
// ---------------------------------------------------------------------------

func TestDispatchCacheHitMiss(t *testing.T) {
	dc, err := NewDispatchCache(8)
	if err != nil {
		t.Fatal(err)
	}
	c := &classfile.Class{Name: "a/B", ID: 3}
	m := &classfile.Method{Name: "run", Descriptor: "()V"}

	if _, ok := dc.Lookup(c, "run", "()V"); ok {
		t.Fatal("empty cache reported a hit")
	}
	dc.Update(c, "run", "()V", DispatchTarget{Class: c, Method: m})
	got, ok := dc.Lookup(c, "run", "()V")
	if !ok || got.Method != m {
		t.Fatalf("Lookup after Update = %v, %v", got, ok)
	}
	if _, ok := dc.Lookup(c, "run", "(I)V"); ok {
		t.Error("different descriptor hit the cache")
	}

	hits, misses, size := dc.Stats()
	if hits != 1 || misses != 2 || size != 1 {
		t.Errorf("Stats() = %d, %d, %d, want 1, 2, 1", hits, misses, size)
	}

	dc.Purge()
	if _, _, size := dc.Stats(); size != 0 {
		t.Errorf("size after Purge = %d", size)
	}
}

func TestDispatchCacheSkipsUnregistered(t *testing.T) {
	dc, err := NewDispatchCache(8)
	if err != nil {
		t.Fatal(err)
	}
	loose := &classfile.Class{Name: "a/B", ID: classfile.NoClass}
	c := &classfile.Class{Name: "a/C", ID: 1}
	dc.Update(loose, "run", "()V", DispatchTarget{Class: loose, Method: &classfile.Method{}})
	dc.Update(c, "run", "()V", DispatchTarget{})
	if _, _, size := dc.Stats(); size != 0 {
		t.Errorf("size = %d, want 0", size)
	}
}

func TestDispatchCacheEviction(t *testing.T) {
	dc, err := NewDispatchCache(2)
	if err != nil {
		t.Fatal(err)
	}
	m := &classfile.Method{Name: "run", Descriptor: "()V"}
	for id := 0; id < 3; id++ {
		c := &classfile.Class{ID: id}
		dc.Update(c, "run", "()V", DispatchTarget{Class: c, Method: m})
	}
	if _, ok := dc.Lookup(&classfile.Class{ID: 0}, "run", "()V"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := dc.Lookup(&classfile.Class{ID: 2}, "run", "()V"); !ok {
		t.Error("newest entry missing")
	}
}
