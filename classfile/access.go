// Package classfile holds the in-memory form of a loaded class: its
// constant pool, fields, methods and bytecode.
//
// Classes are produced by the image package (from assembly or a CBOR
// image) and consumed by the method area and the interpreter.
package classfile

import "strings"

// AccessFlags is the access_flags bitmask of a class, field or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // class: invokespecial uses superclass lookup
	AccSynchronized AccessFlags = 0x0020 // method
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// Has reports whether every bit of mask is set.
func (f AccessFlags) Has(mask AccessFlags) bool {
	return f&mask == mask
}

var flagNames = map[string]AccessFlags{
	"public":       AccPublic,
	"private":      AccPrivate,
	"protected":    AccProtected,
	"static":       AccStatic,
	"final":        AccFinal,
	"super":        AccSuper,
	"synchronized": AccSynchronized,
	"volatile":     AccVolatile,
	"transient":    AccTransient,
	"native":       AccNative,
	"interface":    AccInterface,
	"abstract":     AccAbstract,
	"strict":       AccStrict,
	"synthetic":    AccSynthetic,
	"enum":         AccEnum,
}

// ParseFlag maps a lower-case keyword such as "public" to its bit.
func ParseFlag(name string) (AccessFlags, bool) {
	f, ok := flagNames[strings.ToLower(name)]
	return f, ok
}

// methodFlagOrder lists keywords in the order String prints them.
var methodFlagOrder = []string{
	"public", "private", "protected", "static", "final", "synchronized",
	"native", "interface", "abstract", "strict", "synthetic", "enum",
}

// String renders the flags as space-separated keywords.
func (f AccessFlags) String() string {
	var parts []string
	for _, name := range methodFlagOrder {
		if f.Has(flagNames[name]) {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}
