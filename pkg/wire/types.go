package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// Codec errors.
var (
	ErrUnknownType = errors.New("unknown type")
	ErrInvalidType = errors.New("type cannot be encoded")
)

// TypeRef names a registered type.
type TypeRef struct {
	Name string `cbor:"1,keyasint"`
	ID   uint64 `cbor:"2,keyasint"`
}

// RefOf returns the reference for t.
func RefOf(t typeinfo.TypeInfo) TypeRef {
	return TypeRef{Name: t.Name(), ID: t.WireID()}
}

// Resolve returns the local TypeInfo for r. The wire id is authoritative;
// the name must agree with it.
func (r TypeRef) Resolve() (typeinfo.TypeInfo, error) {
	t := typeinfo.LookupWireID(r.ID)
	if t.IsUnknown() {
		return typeinfo.Unknown, fmt.Errorf("%w: %q (%016x)", ErrUnknownType, r.Name, r.ID)
	}
	if t.Name() != r.Name {
		return typeinfo.Unknown, fmt.Errorf("%w: id %016x is %q locally, %q remotely", ErrUnknownType, r.ID, t.Name(), r.Name)
	}
	return t, nil
}

// Value is an encoded TypedValue. Data is nil for an empty value.
type Value struct {
	Type TypeRef         `cbor:"1,keyasint"`
	Data cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}

// EncodeValue converts v for transmission.
func EncodeValue(v value.TypedValue) (Value, error) {
	t := v.Type()
	if t.IsUnknown() {
		return Value{}, fmt.Errorf("%w: %s", ErrInvalidType, t)
	}
	out := Value{Type: RefOf(t)}
	if !v.IsValid() {
		return out, nil
	}

	var payload any
	switch t {
	case attribute.StoreType:
		s, _ := v.Any().(*attribute.Store)
		if s == nil {
			return out, nil
		}
		es, err := EncodeStore(s)
		if err != nil {
			return Value{}, err
		}
		payload = es
	case attribute.EnumMapperType:
		m, _ := v.Any().(*attribute.EnumMapper)
		if m == nil {
			return out, nil
		}
		payload = m.Entries()
	default:
		payload = v.Any()
	}

	data, err := Marshal(payload)
	if err != nil {
		return Value{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	out.Data = data
	return out, nil
}

// DecodeValue converts a received Value into an owning TypedValue.
func DecodeValue(v Value) (value.TypedValue, error) {
	t, err := v.Type.Resolve()
	if err != nil {
		return value.TypedValue{}, err
	}
	if v.Data == nil {
		return value.Empty(t), nil
	}

	switch t {
	case attribute.StoreType:
		var es Store
		if err := Unmarshal(v.Data, &es); err != nil {
			return value.TypedValue{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		s, err := DecodeStore(&es)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.New(s), nil
	case attribute.EnumMapperType:
		var entries []attribute.EnumEntry
		if err := Unmarshal(v.Data, &entries); err != nil {
			return value.TypedValue{}, fmt.Errorf("decode %s payload: %w", t, err)
		}
		m, err := attribute.NewEnumMapper(entries...)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.New(m), nil
	}

	p, err := t.New()
	if err != nil {
		return value.TypedValue{}, fmt.Errorf("%w: %v", ErrInvalidType, err)
	}
	if err := Unmarshal(v.Data, p.Interface()); err != nil {
		return value.TypedValue{}, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return value.View(p.Interface(), t, true)
}

// EncodeValues encodes a parameter list.
func EncodeValues(vs []value.TypedValue) ([]Value, error) {
	out := make([]Value, len(vs))
	for i, v := range vs {
		ev, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = ev
	}
	return out, nil
}

// DecodeValues decodes a parameter list.
func DecodeValues(vs []Value) ([]value.TypedValue, error) {
	out := make([]value.TypedValue, len(vs))
	for i, v := range vs {
		dv, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = dv
	}
	return out, nil
}

// Attr is one encoded attribute.
type Attr struct {
	Name     string `cbor:"1,keyasint"`
	Value    Value  `cbor:"2,keyasint"`
	ReadOnly bool   `cbor:"3,keyasint,omitempty"`
}

// Store is an encoded attribute store.
type Store struct {
	Class      attribute.Class `cbor:"1,keyasint"`
	DataType   TypeRef         `cbor:"2,keyasint"`
	Attrs      []Attr          `cbor:"3,keyasint"`
	ParamNames []string        `cbor:"4,keyasint,omitempty"`
}

// EncodeStore converts s for transmission. Nested stores are encoded
// recursively.
func EncodeStore(s *attribute.Store) (*Store, error) {
	out := &Store{
		Class:    s.Class(),
		DataType: RefOf(s.DataType()),
		Attrs:    make([]Attr, s.Count()),
	}
	for i, d := range s.Descriptors() {
		v, err := s.GetAt(i)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", d.Name, err)
		}
		ev, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", d.Name, err)
		}
		acc, _ := s.Access(i)
		out.Attrs[i] = Attr{Name: d.Name, Value: ev, ReadOnly: !acc.CanWrite()}
	}
	for i := 0; i < s.Params(); i++ {
		out.ParamNames = append(out.ParamNames, s.ParamName(i))
	}
	return out, nil
}

// DecodeStore rebuilds an attribute store. The attribute list must match
// the layout of the declared class exactly.
func DecodeStore(es *Store) (*attribute.Store, error) {
	dt, err := es.DataType.Resolve()
	if err != nil {
		return nil, err
	}
	s, err := attribute.New(es.Class, dt, len(es.ParamNames))
	if err != nil {
		return nil, err
	}
	if len(es.Attrs) != s.Count() {
		return nil, fmt.Errorf("%s store with %d attributes, want %d", es.Class, len(es.Attrs), s.Count())
	}

	for i, a := range es.Attrs {
		name, _ := s.Name(i)
		if a.Name != name {
			return nil, fmt.Errorf("attribute %d is %q, want %q", i, a.Name, name)
		}
		v, err := DecodeValue(a.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		if err := s.SetAt(i, v); err != nil {
			return nil, err
		}
	}
	// Read-only flags last, the values above are written through SetAt.
	for _, a := range es.Attrs {
		if a.ReadOnly {
			if err := s.SetReadOnly(a.Name); err != nil {
				return nil, err
			}
		}
	}
	for i, n := range es.ParamNames {
		if err := s.SetParamName(i, n); err != nil {
			return nil, err
		}
	}
	return s, nil
}
