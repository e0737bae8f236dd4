// Package value implements TypedValue, a value bundled with its TypeInfo.
//
// All typed access is validated against the stored tag. A TypedValue may be
// empty (it has a type but no data), which is reported differently from a
// type mismatch.
//
// Construction either owns its payload (New, NewOf: the input is deep-copied)
// or views caller memory (View with owns=false). Clone always produces an
// owning deep copy.
//
// Payload types with unexported state should provide a method
//
//	func (T) Clone() T
//
// which is used instead of the generic field-by-field copy. Likewise an
// Equal(T) bool method takes precedence over deep equality in Equal.
package value

import (
	"fmt"
	"reflect"

	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
)

// TypedValue holds a pointer to a payload and the payload's TypeInfo.
type TypedValue struct {
	ti   typeinfo.TypeInfo
	ptr  any // *T, nil when empty
	owns bool
}

// New returns an owning TypedValue holding a deep copy of v.
func New[T any](v T) TypedValue {
	c := deepCopy(reflect.ValueOf(&v).Elem()).Interface().(T)
	return TypedValue{ti: typeinfo.Of[T](), ptr: &c, owns: true}
}

// NewOf returns an owning TypedValue holding a deep copy of v, tagged ti.
// The dynamic type of v must be ti's type.
func NewOf(v any, ti typeinfo.TypeInfo) (TypedValue, error) {
	rt := ti.ReflectType()
	if rt == nil {
		return TypedValue{}, result.New(result.KindTypeMismatch, "cannot store value as %s", ti)
	}
	if v == nil {
		return TypedValue{}, result.New(result.KindTypeMismatch, "nil value for %s", ti)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != rt {
		return TypedValue{}, result.New(result.KindTypeMismatch, "value is %s, want %s", typeinfo.ForType(rv.Type()), ti)
	}

	p := reflect.New(rt)
	p.Elem().Set(deepCopy(rv))
	return TypedValue{ti: ti, ptr: p.Interface(), owns: true}, nil
}

// View returns a TypedValue over ptr, which must be a non-nil pointer to a
// value of ti's type. With owns=false the TypedValue aliases caller memory:
// writes through Get are visible to the caller and vice versa. With
// owns=true the TypedValue adopts the pointer; the caller must not keep
// using it.
func View(ptr any, ti typeinfo.TypeInfo, owns bool) (TypedValue, error) {
	rt := ti.ReflectType()
	if rt == nil {
		return TypedValue{}, result.New(result.KindTypeMismatch, "cannot view value as %s", ti)
	}
	rv := reflect.ValueOf(ptr)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return TypedValue{}, result.New(result.KindInvalidHandle, "view needs a non-nil pointer")
	}
	if rv.Type().Elem() != rt {
		return TypedValue{}, result.New(result.KindTypeMismatch, "pointer to %s, want %s", rv.Type().Elem(), ti)
	}
	return TypedValue{ti: ti, ptr: ptr, owns: owns}, nil
}

// Empty returns a TypedValue of type ti that holds no data.
func Empty(ti typeinfo.TypeInfo) TypedValue {
	return TypedValue{ti: ti}
}

// Type returns the type tag.
func (v TypedValue) Type() typeinfo.TypeInfo { return v.ti }

// IsValid returns true if the value holds data.
func (v TypedValue) IsValid() bool { return v.ptr != nil }

// Owns returns true if the value owns its payload.
func (v TypedValue) Owns() bool { return v.owns }

// Any returns the payload as an interface value, or nil when empty.
func (v TypedValue) Any() any {
	if v.ptr == nil {
		return nil
	}
	return reflect.ValueOf(v.ptr).Elem().Interface()
}

// Pointer returns the payload pointer, or nil when empty.
func (v TypedValue) Pointer() any { return v.ptr }

// Clone returns an owning deep copy. Cloning an empty value yields an empty
// value of the same type.
func (v TypedValue) Clone() TypedValue {
	if v.ptr == nil {
		return TypedValue{ti: v.ti}
	}
	src := reflect.ValueOf(v.ptr).Elem()
	p := reflect.New(src.Type())
	p.Elem().Set(deepCopy(src))
	return TypedValue{ti: v.ti, ptr: p.Interface(), owns: true}
}

// String formats the value for diagnostics.
func (v TypedValue) String() string {
	if v.ptr == nil {
		return fmt.Sprintf("%s(<empty>)", v.ti)
	}
	return fmt.Sprintf("%s(%v)", v.ti, v.Any())
}

// Get returns a reference to the payload. It fails with TYPE_MISMATCH if T
// is not the stored type and INVALID_HANDLE if the value is empty.
func Get[T any](v TypedValue) (*T, error) {
	want := typeinfo.Of[T]()
	if v.ti != want {
		return nil, result.New(result.KindTypeMismatch, "value is %s, requested %s", v.ti, want)
	}
	if v.ptr == nil {
		return nil, result.New(result.KindInvalidHandle, "%s value is empty", v.ti)
	}
	p, ok := v.ptr.(*T)
	if !ok {
		return nil, result.New(result.KindTypeMismatch, "payload is %T, requested %s", v.ptr, want)
	}
	return p, nil
}

// GetCopy is like Get but returns an owned deep copy of the payload.
func GetCopy[T any](v TypedValue) (T, error) {
	p, err := Get[T](v)
	if err != nil {
		var zero T
		return zero, err
	}
	return deepCopy(reflect.ValueOf(p).Elem()).Interface().(T), nil
}

// Equal reports whether a and b have the same type and equal payloads.
// Two empty values of the same type are equal.
func Equal(a, b TypedValue) bool {
	if a.ti != b.ti {
		return false
	}
	if a.ptr == nil || b.ptr == nil {
		return a.ptr == nil && b.ptr == nil
	}
	av := reflect.ValueOf(a.ptr).Elem()
	bv := reflect.ValueOf(b.ptr).Elem()

	if eq := av.MethodByName("Equal"); eq.IsValid() {
		mt := eq.Type()
		if mt.NumIn() == 1 && mt.In(0) == av.Type() && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Bool {
			return eq.Call([]reflect.Value{bv})[0].Bool()
		}
	}
	return reflect.DeepEqual(av.Interface(), bv.Interface())
}
