// Package typeinfo provides run-time type identity tokens.
//
// A TypeInfo is created once per Go type when the type is registered and
// lives for the rest of the process. TypeInfo values are comparable with ==.
// The zero TypeInfo is Unknown, which is what name probes return on a miss.
//
// Every registered type also has a wire id derived from its registered name,
// so two processes that register the same names agree on ids without
// exchanging a table first.
package typeinfo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Registration errors.
var (
	ErrNameTaken      = errors.New("type name already registered to another type")
	ErrTypeRegistered = errors.New("type already registered under another name")
	ErrEmptyName      = errors.New("type name is empty")
)

type descriptor struct {
	name   string
	rtype  reflect.Type
	size   uintptr
	seq    uint32
	wireID uint64
}

// TypeInfo identifies a registered type.
type TypeInfo struct {
	d *descriptor
}

// Void is the payload type of commands that return nothing.
type Void struct{}

// Well-known types.
var (
	// Unknown is returned by lookups that miss.
	Unknown = TypeInfo{}

	// VoidType tags the absence of a return value.
	VoidType TypeInfo
)

// Name returns the registered name, "unknown" for Unknown.
func (t TypeInfo) Name() string {
	if t.d == nil {
		return "unknown"
	}
	return t.d.name
}

// Size returns the in-memory size of the type in bytes.
func (t TypeInfo) Size() uintptr {
	if t.d == nil {
		return 0
	}
	return t.d.size
}

// ID returns the process-local registration sequence number (0 for Unknown).
func (t TypeInfo) ID() uint32 {
	if t.d == nil {
		return 0
	}
	return t.d.seq
}

// WireID returns the name-derived identifier used on the wire.
func (t TypeInfo) WireID() uint64 {
	if t.d == nil {
		return 0
	}
	return t.d.wireID
}

// ReflectType returns the Go type, nil for Unknown.
func (t TypeInfo) ReflectType() reflect.Type {
	if t.d == nil {
		return nil
	}
	return t.d.rtype
}

// IsUnknown returns true for the Unknown sentinel.
func (t TypeInfo) IsUnknown() bool { return t.d == nil }

// IsVoid returns true for VoidType.
func (t TypeInfo) IsVoid() bool { return t == VoidType }

// New returns a pointer to a new zero value of the type.
func (t TypeInfo) New() (reflect.Value, error) {
	if t.d == nil {
		return reflect.Value{}, fmt.Errorf("cannot allocate %s", t.Name())
	}
	return reflect.New(t.d.rtype), nil
}

// String returns the type name.
func (t TypeInfo) String() string { return t.Name() }

type registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*descriptor
	byName map[string]*descriptor
	byWire map[uint64]*descriptor
	seq    uint32
}

var reg = &registry{
	byType: make(map[reflect.Type]*descriptor),
	byName: make(map[string]*descriptor),
	byWire: make(map[uint64]*descriptor),
}

func init() {
	mustBuiltin[bool]("bool")
	mustBuiltin[int8]("int8")
	mustBuiltin[int16]("int16")
	mustBuiltin[int32]("int32")
	mustBuiltin[int64]("int64")
	mustBuiltin[int]("int")
	mustBuiltin[uint8]("uint8")
	mustBuiltin[uint16]("uint16")
	mustBuiltin[uint32]("uint32")
	mustBuiltin[uint64]("uint64")
	mustBuiltin[uint]("uint")
	mustBuiltin[float32]("float32")
	mustBuiltin[float64]("float64")
	mustBuiltin[string]("string")
	mustBuiltin[[]byte]("bytes")
	VoidType = mustBuiltin[Void]("void")
}

func mustBuiltin[T any](name string) TypeInfo {
	t, err := Register[T](name)
	if err != nil {
		panic(fmt.Sprintf("typeinfo: builtin %s: %v", name, err))
	}
	return t
}

func wireID(name string) uint64 {
	sum := blake2b.Sum256([]byte(name))
	return binary.BigEndian.Uint64(sum[:8])
}

func (r *registry) register(rt reflect.Type, name string) (TypeInfo, error) {
	if name == "" {
		return Unknown, ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.byType[rt]; ok {
		if d.name == name {
			return TypeInfo{d}, nil
		}
		return Unknown, fmt.Errorf("%w: %s is %q", ErrTypeRegistered, rt, d.name)
	}
	if d, ok := r.byName[name]; ok {
		return Unknown, fmt.Errorf("%w: %q is %s", ErrNameTaken, name, d.rtype)
	}

	id := wireID(name)
	if d, ok := r.byWire[id]; ok {
		return Unknown, fmt.Errorf("%w: wire id of %q collides with %q", ErrNameTaken, name, d.name)
	}

	r.seq++
	d := &descriptor{
		name:   name,
		rtype:  rt,
		size:   rt.Size(),
		seq:    r.seq,
		wireID: id,
	}
	r.byType[rt] = d
	r.byName[name] = d
	r.byWire[id] = d
	return TypeInfo{d}, nil
}

// Register associates T with a fixed name. Registering the same (type, name)
// pair again is a no-op.
func Register[T any](name string) (TypeInfo, error) {
	return reg.register(reflect.TypeFor[T](), name)
}

// MustRegister is like Register but panics on error. Intended for package
// initialization.
func MustRegister[T any](name string) TypeInfo {
	t, err := Register[T](name)
	if err != nil {
		panic(fmt.Sprintf("typeinfo: %v", err))
	}
	return t
}

// Of returns the TypeInfo of T, registering it under its Go type string if
// it is not registered yet.
func Of[T any]() TypeInfo {
	return ForType(reflect.TypeFor[T]())
}

// ForType returns the TypeInfo of rt, registering it under rt.String() if
// needed. A nil type yields Unknown.
func ForType(rt reflect.Type) TypeInfo {
	if rt == nil {
		return Unknown
	}

	reg.mu.RLock()
	d, ok := reg.byType[rt]
	reg.mu.RUnlock()
	if ok {
		return TypeInfo{d}
	}

	t, err := reg.register(rt, rt.String())
	if err != nil {
		// Another goroutine may have won the race; any other failure is a
		// name clash with an explicit registration.
		reg.mu.RLock()
		d, ok := reg.byType[rt]
		reg.mu.RUnlock()
		if ok {
			return TypeInfo{d}
		}
		return Unknown
	}
	return t
}

// ForValue returns the TypeInfo of v's dynamic type.
func ForValue(v any) TypeInfo {
	return ForType(reflect.TypeOf(v))
}

// Lookup returns the TypeInfo registered under name, or Unknown.
func Lookup(name string) TypeInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if d, ok := reg.byName[name]; ok {
		return TypeInfo{d}
	}
	return Unknown
}

// LookupWireID returns the TypeInfo with the given wire id, or Unknown.
func LookupWireID(id uint64) TypeInfo {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if d, ok := reg.byWire[id]; ok {
		return TypeInfo{d}
	}
	return Unknown
}

// All returns every registered type ordered by registration sequence.
func All() []TypeInfo {
	reg.mu.RLock()
	out := make([]TypeInfo, 0, len(reg.byType))
	for _, d := range reg.byType {
		out = append(out, TypeInfo{d})
	}
	reg.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
