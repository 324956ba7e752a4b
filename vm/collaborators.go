package vm

import (
	"github.com/google/uuid"

	"github.com/racaljk/yvm/classfile"
)

// MethodArea loads, links and initializes classes and holds their static
// storage. Implementations must be safe for use by several interpreters at
// once.
type MethodArea interface {
	// LoadClass returns the named class, loading it and its supertypes on
	// first use. Loaded classes have ID, SuperID and InterfaceIDs set.
	LoadClass(name string) (*classfile.Class, error)

	// LinkClass prepares static storage. Linking twice is a no-op.
	LinkClass(c *classfile.Class) error

	// InitClass runs static initialization once, superclass first, calling
	// clinit for each class that declares <clinit>. A call made by the
	// owner that is already initializing c returns immediately; any other
	// caller waits for initialization to finish.
	InitClass(c *classfile.Class, owner uuid.UUID, clinit func(*classfile.Class) error) error

	// ClassByID returns the class with the given ID, or nil.
	ClassByID(id int) *classfile.Class

	GetStatic(c *classfile.Class, name, desc string) (Value, error)
	PutStatic(c *classfile.Class, name, desc string, v Value) error
}

// Heap allocates objects and arrays and stores their contents. Bounds and
// null checks are performed by the interpreter before calling in.
type Heap interface {
	NewObject(c *classfile.Class) (Value, error)
	NewArray(elem ElemKind, component *classfile.Class, length int32) (Value, error)

	// Fields are keyed by declaring class, name and descriptor so a field
	// shadowed in a subclass keeps its own storage.
	GetField(obj Value, owner *classfile.Class, name, desc string) (Value, error)
	PutField(obj Value, owner *classfile.Class, name, desc string, v Value) error

	ArrayItem(arr Value, index int32) (Value, error)
	SetArrayItem(arr Value, index int32, v Value) error

	// Monitor returns the monitor of a non-null reference, creating it on
	// first use.
	Monitor(ref Value) *Monitor
}
