// Package methodarea loads, links and initializes classes for the
// interpreter and holds their static fields.
package methodarea

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/vm"
)

var (
	ErrClassNotFound           = errors.New("class not found")
	ErrClassCircularity        = errors.New("class circularity")
	ErrIncompatibleClassChange = errors.New("incompatible class change")
	ErrNoSuchField             = errors.New("no such static field")
	ErrInitializerFailed       = errors.New("class initialization failed")
)

var log = commonlog.GetLogger("yvm.methodarea")

type state uint8

const (
	stateLoaded state = iota
	stateLinked
	stateInitializing
	stateInitialized
	stateFailed
)

var stateNames = [...]string{"loaded", "linked", "initializing", "initialized", "failed"}

func (s state) String() string { return stateNames[s] }

type staticKey struct {
	name string
	desc string
}

// entry is the method area's record of one defined class.
type entry struct {
	class   *classfile.Class
	state   state
	initBy  uuid.UUID // interpreter running <clinit>
	initErr error

	staticMu sync.RWMutex
	statics  map[staticKey]vm.Value
}

// MethodArea is the class registry shared by the interpreters of a VM. It
// implements vm.MethodArea.
type MethodArea struct {
	source Source

	mu     sync.RWMutex
	cond   *sync.Cond // signalled when an initialization finishes
	byName map[string]*entry
	byID   []*entry
}

var _ vm.MethodArea = (*MethodArea)(nil)

// New creates an empty method area that defines classes from source on
// demand.
func New(source Source) *MethodArea {
	ma := &MethodArea{
		source: source,
		byName: make(map[string]*entry),
	}
	ma.cond = sync.NewCond(&ma.mu)
	return ma
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadClass returns the named class, defining it and every missing
// supertype first. Supertypes always receive smaller IDs than their
// subtypes.
func (ma *MethodArea) LoadClass(name string) (*classfile.Class, error) {
	ma.mu.RLock()
	e, ok := ma.byName[name]
	ma.mu.RUnlock()
	if ok {
		return e.class, nil
	}

	ma.mu.Lock()
	defer ma.mu.Unlock()

	// Depth-first over supertypes. A class is fetched when first reached
	// and defined once all its supertypes are; meeting a fetched but
	// undefined class again means the hierarchy has a cycle.
	loading := mapset.NewThreadUnsafeSet[string]()
	fetched := make(map[string]*classfile.Class)
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		if _, done := ma.byName[n]; done {
			stack = stack[:len(stack)-1]
			continue
		}

		c, ok := fetched[n]
		if !ok {
			var err error
			if c, err = ma.fetch(n); err != nil {
				return nil, err
			}
			fetched[n] = c
			loading.Add(n)
		}

		missing := false
		for _, sup := range supertypes(c) {
			if _, done := ma.byName[sup]; done {
				continue
			}
			if loading.Contains(sup) {
				return nil, errors.Wrapf(ErrClassCircularity, "%s is its own supertype", sup)
			}
			stack = append(stack, sup)
			missing = true
		}
		if missing {
			continue
		}

		if err := ma.define(c); err != nil {
			return nil, err
		}
		loading.Remove(n)
		stack = stack[:len(stack)-1]
	}
	return ma.byName[name].class, nil
}

func (ma *MethodArea) fetch(name string) (*classfile.Class, error) {
	if ma.source == nil {
		return nil, errors.Wrap(ErrClassNotFound, name)
	}
	c, ok, err := ma.source.FindClass(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	if !ok {
		return nil, errors.Wrap(ErrClassNotFound, name)
	}
	if c.Name != name {
		return nil, errors.Errorf("source returned class %s for %s", c.Name, name)
	}
	return c, nil
}

// define registers c, whose supertypes are all defined. Caller holds mu.
func (ma *MethodArea) define(c *classfile.Class) error {
	c.ID = len(ma.byID)
	c.SuperID = classfile.NoClass
	if c.SuperName != "" {
		c.SuperID = ma.byName[c.SuperName].class.ID
	}
	c.InterfaceIDs = make([]int, 0, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		c.InterfaceIDs = append(c.InterfaceIDs, ma.byName[iface].class.ID)
	}

	e := &entry{class: c, state: stateLoaded}
	ma.byName[c.Name] = e
	ma.byID = append(ma.byID, e)
	log.Infof("loaded %s (id %d)", c.Name, c.ID)
	return nil
}

func supertypes(c *classfile.Class) []string {
	out := make([]string, 0, 1+len(c.Interfaces))
	if c.SuperName != "" {
		out = append(out, c.SuperName)
	}
	return append(out, c.Interfaces...)
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// LinkClass verifies c's supertypes and prepares its static fields, after
// linking every supertype. Linking a linked class does nothing.
func (ma *MethodArea) LinkClass(c *classfile.Class) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	e, err := ma.entryLocked(c)
	if err != nil {
		return err
	}
	if e.state != stateLoaded {
		return nil
	}

	// Supertypes have smaller IDs, so linking in ID order links every
	// supertype before its subtypes.
	pending := []*entry{e}
	seen := mapset.NewThreadUnsafeSet[int](c.ID)
	for k := 0; k < len(pending); k++ {
		cur := pending[k].class
		ids := append([]int{cur.SuperID}, cur.InterfaceIDs...)
		for _, id := range ids {
			if id == classfile.NoClass || !seen.Add(id) {
				continue
			}
			if sup := ma.byID[id]; sup.state == stateLoaded {
				pending = append(pending, sup)
			}
		}
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].class.ID < pending[b].class.ID })

	for _, p := range pending {
		if err := ma.linkOne(p); err != nil {
			return err
		}
	}
	return nil
}

func (ma *MethodArea) linkOne(e *entry) error {
	c := e.class
	if c.SuperID != classfile.NoClass {
		sup := ma.byID[c.SuperID].class
		switch {
		case sup.IsInterface():
			return errors.Wrapf(ErrIncompatibleClassChange, "%s has interface %s as superclass", c.Name, sup.Name)
		case sup.Flags.Has(classfile.AccFinal):
			return errors.Wrapf(ErrIncompatibleClassChange, "%s cannot extend final class %s", c.Name, sup.Name)
		}
	} else if c.Name != "java/lang/Object" {
		return errors.Wrapf(ErrIncompatibleClassChange, "%s has no superclass", c.Name)
	}
	for _, id := range c.InterfaceIDs {
		if iface := ma.byID[id].class; !iface.IsInterface() {
			return errors.Wrapf(ErrIncompatibleClassChange, "%s implements class %s", c.Name, iface.Name)
		}
	}

	e.statics = make(map[staticKey]vm.Value)
	for _, f := range c.Fields {
		if f.IsStatic() {
			e.statics[staticKey{f.Name, f.Descriptor}] = vm.ZeroValue(f.Descriptor)
		}
	}
	e.state = stateLinked
	log.Infof("linked %s (%d static fields)", c.Name, len(e.statics))
	return nil
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// InitClass initializes c's superclass chain from the root down, then c.
// For each class that declares <clinit>, clinit runs it. While owner is
// initializing a class, further requests from owner return at once, and
// requests from other owners wait.
func (ma *MethodArea) InitClass(c *classfile.Class, owner uuid.UUID, clinit func(*classfile.Class) error) error {
	if err := ma.LinkClass(c); err != nil {
		return err
	}

	var chain []*entry
	ma.mu.RLock()
	for id := c.ID; id != classfile.NoClass; id = ma.byID[id].class.SuperID {
		chain = append(chain, ma.byID[id])
	}
	ma.mu.RUnlock()

	for k := len(chain) - 1; k >= 0; k-- {
		if err := ma.initOne(chain[k], owner, clinit); err != nil {
			return err
		}
	}
	return nil
}

func (ma *MethodArea) initOne(e *entry, owner uuid.UUID, clinit func(*classfile.Class) error) error {
	ma.mu.Lock()
	for {
		switch e.state {
		case stateInitialized:
			ma.mu.Unlock()
			return nil
		case stateFailed:
			ma.mu.Unlock()
			return errors.Wrapf(ErrInitializerFailed, "%s: %v", e.class.Name, e.initErr)
		case stateInitializing:
			if e.initBy == owner {
				ma.mu.Unlock()
				return nil
			}
			ma.cond.Wait()
			continue
		}
		break
	}
	e.state = stateInitializing
	e.initBy = owner
	ma.mu.Unlock()

	var err error
	if e.class.FindMethod("<clinit>", "()V") != nil {
		log.Infof("initializing %s", e.class.Name)
		err = clinit(e.class)
	}

	ma.mu.Lock()
	if err != nil {
		e.state = stateFailed
		e.initErr = err
	} else {
		e.state = stateInitialized
	}
	e.initBy = uuid.Nil
	ma.cond.Broadcast()
	ma.mu.Unlock()
	return err
}

// ---------------------------------------------------------------------------
// Queries and static storage
// ---------------------------------------------------------------------------

// ClassByID returns the class with the given ID, or nil.
func (ma *MethodArea) ClassByID(id int) *classfile.Class {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	if id < 0 || id >= len(ma.byID) {
		return nil
	}
	return ma.byID[id].class
}

// Classes returns every defined class in ID order.
func (ma *MethodArea) Classes() []*classfile.Class {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	out := make([]*classfile.Class, len(ma.byID))
	for k, e := range ma.byID {
		out[k] = e.class
	}
	return out
}

// State reports the lifecycle state of a defined class ("loaded",
// "linked", "initializing", "initialized" or "failed").
func (ma *MethodArea) State(name string) (string, bool) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	e, ok := ma.byName[name]
	if !ok {
		return "", false
	}
	return e.state.String(), true
}

// GetStatic reads a static field declared by c.
func (ma *MethodArea) GetStatic(c *classfile.Class, name, desc string) (vm.Value, error) {
	e, err := ma.staticEntry(c)
	if err != nil {
		return vm.Null, err
	}
	e.staticMu.RLock()
	defer e.staticMu.RUnlock()
	v, ok := e.statics[staticKey{name, desc}]
	if !ok {
		return vm.Null, errors.Wrapf(ErrNoSuchField, "%s.%s:%s", c.Name, name, desc)
	}
	return v, nil
}

// PutStatic writes a static field declared by c.
func (ma *MethodArea) PutStatic(c *classfile.Class, name, desc string, v vm.Value) error {
	e, err := ma.staticEntry(c)
	if err != nil {
		return err
	}
	e.staticMu.Lock()
	defer e.staticMu.Unlock()
	key := staticKey{name, desc}
	if _, ok := e.statics[key]; !ok {
		return errors.Wrapf(ErrNoSuchField, "%s.%s:%s", c.Name, name, desc)
	}
	e.statics[key] = v
	return nil
}

func (ma *MethodArea) staticEntry(c *classfile.Class) (*entry, error) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	e, err := ma.entryLocked(c)
	if err != nil {
		return nil, err
	}
	if e.state == stateLoaded {
		return nil, errors.Errorf("%s is not linked", c.Name)
	}
	return e, nil
}

// entryLocked finds the record of c. Caller holds mu.
func (ma *MethodArea) entryLocked(c *classfile.Class) (*entry, error) {
	if c == nil {
		return nil, errors.New("nil class")
	}
	if c.ID < 0 || c.ID >= len(ma.byID) || ma.byID[c.ID].class != c {
		return nil, errors.Errorf("class %s is not defined in this method area", c.Name)
	}
	return ma.byID[c.ID], nil
}
