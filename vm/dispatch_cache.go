package vm

// Virtual dispatch cache
//
// Selecting a virtual or interface method walks the receiver's class chain
// and then its superinterfaces. The result depends only on the receiver
// class and the (name, descriptor) pair, so it is memoized in a bounded
// LRU shared by every interpreter of a VM.

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/racaljk/yvm/classfile"
)

type dispatchKey struct {
	class int
	name  string
	desc  string
}

// DispatchTarget is a selected method and the class that declares it.
type DispatchTarget struct {
	Class  *classfile.Class
	Method *classfile.Method
}

// DispatchCache maps (receiver class, name, descriptor) to a DispatchTarget.
// It is safe for concurrent use.
type DispatchCache struct {
	entries *lru.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewDispatchCache creates a cache holding at most size entries.
func NewDispatchCache(size int) (*DispatchCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &DispatchCache{entries: c}, nil
}

// Lookup returns the cached target for a receiver class.
func (dc *DispatchCache) Lookup(class *classfile.Class, name, desc string) (DispatchTarget, bool) {
	if v, ok := dc.entries.Get(dispatchKey{class.ID, name, desc}); ok {
		dc.hits.Add(1)
		return v.(DispatchTarget), true
	}
	dc.misses.Add(1)
	return DispatchTarget{}, false
}

// Update records a selection. Failed lookups are not cached.
func (dc *DispatchCache) Update(class *classfile.Class, name, desc string, target DispatchTarget) {
	if target.Method == nil || class.ID == classfile.NoClass {
		return
	}
	dc.entries.Add(dispatchKey{class.ID, name, desc}, target)
}

// Purge drops every entry.
func (dc *DispatchCache) Purge() { dc.entries.Purge() }

// Stats reports hits, misses and the current number of entries.
func (dc *DispatchCache) Stats() (hits, misses uint64, size int) {
	return dc.hits.Load(), dc.misses.Load(), dc.entries.Len()
}
