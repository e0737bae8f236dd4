package attribute

import (
	"fmt"
	"strings"
	"sync"

	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// Store holds the attributes of one data type. The descriptor list is fixed
// at construction; only values change. A Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	dataType typeinfo.TypeInfo
	class    Class

	descs  []Descriptor
	byName map[string]int
	values []value.TypedValue
	access []Access

	// paramNames labels the parameter slots of a function signature.
	paramNames []string
}

// New creates a store of the given class describing dataType. Every
// attribute starts out empty except HAS_DEFAULT_VALUE, which starts false.
// params is the parameter count for ClassFunctionSignature and must be 0
// for every other class.
func New(class Class, dataType typeinfo.TypeInfo, params int) (*Store, error) {
	if !class.IsValid() {
		return nil, fmt.Errorf("invalid attribute class %d", class)
	}
	if params < 0 || params > MaxParameters {
		return nil, result.New(result.KindInvalidIndex, "%d parameters, at most %d", params, MaxParameters)
	}
	if params > 0 && class != ClassFunctionSignature {
		return nil, fmt.Errorf("class %s has no parameters", class)
	}

	descs := layout(class, dataType, params)
	s := &Store{
		dataType: dataType,
		class:    class,
		descs:    descs,
		byName:   make(map[string]int, len(descs)),
		values:   make([]value.TypedValue, len(descs)),
		access:   make([]Access, len(descs)),
	}
	for i, d := range descs {
		s.byName[d.Name] = i
		s.values[i] = value.Empty(d.Type)
		s.access[i] = AccessReadWrite
	}
	if i, ok := s.byName[HasDefaultValue]; ok {
		s.values[i] = value.New(false)
	}
	if class == ClassFunctionSignature {
		s.paramNames = make([]string, params)
	}
	return s, nil
}

func mustNew(class Class, dataType typeinfo.TypeInfo, params int) *Store {
	s, err := New(class, dataType, params)
	if err != nil {
		panic(err)
	}
	return s
}

// NewPlain creates a store without attributes.
func NewPlain(dataType typeinfo.TypeInfo) *Store {
	return mustNew(ClassPlain, dataType, 0)
}

// NewDefaulted creates a DefaultValued store with def as its default.
func NewDefaulted[T any](def T) *Store {
	s := mustNew(ClassDefaultValued, typeinfo.Of[T](), 0)
	s.setDefault(value.New(def))
	return s
}

// NewRanged creates a Ranged store.
func NewRanged[T any](def, min, max T) *Store {
	s := mustNew(ClassRanged, typeinfo.Of[T](), 0)
	s.setDefault(value.New(def))
	s.values[s.byName[RangeMin]] = value.New(min)
	s.values[s.byName[RangeMax]] = value.New(max)
	return s
}

// NewEnumMapped creates an EnumMapped store.
func NewEnumMapped[T any](def T, mapper *EnumMapper) *Store {
	s := mustNew(ClassEnumMapped, typeinfo.Of[T](), 0)
	s.setDefault(value.New(def))
	s.values[s.byName[EnumMapperAttr]] = value.New(mapper)
	return s
}

// NewImage creates an ImageLike store. pixelRange describes the pixel values
// and may be nil.
func NewImage(dataType typeinfo.TypeInfo, sizer ImageSizer, sourceType string, rel PixelRelation, pixelRange *Store) *Store {
	s := mustNew(ClassImageLike, dataType, 0)
	s.values[s.byName[ImageSizerAttr]] = value.New(sizer)
	s.values[s.byName[SourceSizeImageType]] = value.New(sourceType)
	s.values[s.byName[PixelRelationAttr]] = value.New(rel)
	if pixelRange != nil {
		s.values[s.byName[RangeMetaInfo]] = value.New(pixelRange)
	}
	return s
}

func (s *Store) setDefault(v value.TypedValue) {
	s.values[s.byName[DefaultValue]] = v
	s.values[s.byName[HasDefaultValue]] = value.New(true)
}

// DataType returns the type the store describes.
func (s *Store) DataType() typeinfo.TypeInfo { return s.dataType }

// Class returns the store's class.
func (s *Store) Class() Class { return s.class }

// Count returns the number of attributes. It never changes.
func (s *Store) Count() int { return len(s.descs) }

// Descriptors returns the attribute descriptors in index order.
func (s *Store) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.descs...)
}

// Name returns the name of attribute i.
func (s *Store) Name(i int) (string, error) {
	if err := s.checkIndex(i); err != nil {
		return "", err
	}
	return s.descs[i].Name, nil
}

// TypeAt returns the declared type of attribute i.
func (s *Store) TypeAt(i int) (typeinfo.TypeInfo, error) {
	if err := s.checkIndex(i); err != nil {
		return typeinfo.Unknown, err
	}
	return s.descs[i].Type, nil
}

// TypeOf returns the declared type of the named attribute, or
// typeinfo.Unknown if the store has no such attribute.
func (s *Store) TypeOf(name string) typeinfo.TypeInfo {
	i, ok := s.byName[name]
	if !ok {
		return typeinfo.Unknown
	}
	return s.descs[i].Type
}

// Has returns true if the store declares the named attribute.
func (s *Store) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Index returns the index of the named attribute.
func (s *Store) Index(name string) (int, error) {
	i, ok := s.byName[name]
	if !ok {
		return -1, result.New(result.KindNoSuchAttribute, "%s store has no %q", s.class, name)
	}
	return i, nil
}

// Access returns the access flags of attribute i.
func (s *Store) Access(i int) (Access, error) {
	if err := s.checkIndex(i); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access[i], nil
}

// SetReadOnly removes write access from the named attribute.
func (s *Store) SetReadOnly(name string) error {
	i, err := s.Index(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.access[i] = AccessReadOnly
	s.mu.Unlock()
	return nil
}

func (s *Store) checkIndex(i int) error {
	if i < 0 || i >= len(s.descs) {
		return result.New(result.KindInvalidIndex, "attribute index %d outside [0,%d)", i, len(s.descs))
	}
	return nil
}

// Get returns a copy of the named attribute's value.
func (s *Store) Get(name string) (value.TypedValue, error) {
	i, err := s.Index(name)
	if err != nil {
		return value.TypedValue{}, err
	}
	return s.GetAt(i)
}

// GetAt returns a copy of attribute i's value.
func (s *Store) GetAt(i int) (value.TypedValue, error) {
	if err := s.checkIndex(i); err != nil {
		return value.TypedValue{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.access[i].CanRead() {
		return value.TypedValue{}, result.New(result.KindNoSuchAttribute, "%s is not readable", s.descs[i].Name)
	}
	return s.values[i].Clone(), nil
}

// GetExpect is like Get but fails with WRONG_ATTRIBUTE_TYPE if expected is
// not the attribute's declared type.
func (s *Store) GetExpect(name string, expected typeinfo.TypeInfo) (value.TypedValue, error) {
	i, err := s.Index(name)
	if err != nil {
		return value.TypedValue{}, err
	}
	return s.GetAtExpect(i, expected)
}

// GetAtExpect is the by-index form of GetExpect.
func (s *Store) GetAtExpect(i int, expected typeinfo.TypeInfo) (value.TypedValue, error) {
	if err := s.checkType(i, expected); err != nil {
		return value.TypedValue{}, err
	}
	return s.GetAt(i)
}

func (s *Store) checkType(i int, t typeinfo.TypeInfo) error {
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if want := s.descs[i].Type; want != t {
		return result.New(result.KindWrongAttributeType, "%s is %s, not %s", s.descs[i].Name, want, t)
	}
	return nil
}

// Set stores a copy of v in the named attribute. v must carry the declared
// type. Setting DEFAULT_VALUE also sets HAS_DEFAULT_VALUE to whether the
// new default is non-empty.
func (s *Store) Set(name string, v value.TypedValue) error {
	i, err := s.Index(name)
	if err != nil {
		return err
	}
	return s.SetAt(i, v)
}

// SetAt is the by-index form of Set.
func (s *Store) SetAt(i int, v value.TypedValue) error {
	if err := s.checkType(i, v.Type()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access[i].CanWrite() {
		return result.New(result.KindReadOnly, "%s is read-only", s.descs[i].Name)
	}
	s.values[i] = v.Clone()
	if s.descs[i].Name == DefaultValue {
		s.values[s.byName[HasDefaultValue]] = value.New(v.IsValid())
	}
	return nil
}

// Value returns a copy of the named attribute's payload as T.
func Value[T any](s *Store, name string) (T, error) {
	var zero T
	v, err := s.GetExpect(name, typeinfo.Of[T]())
	if err != nil {
		return zero, err
	}
	return value.GetCopy[T](v)
}

// SetValue stores v in the named attribute.
func SetValue[T any](s *Store, name string, v T) error {
	return s.Set(name, value.New(v))
}

// Params returns the parameter count of a function signature store.
func (s *Store) Params() int { return len(s.paramNames) }

// ParamName returns the display name of parameter i, or "" if unnamed.
func (s *Store) ParamName(i int) string {
	if i < 0 || i >= len(s.paramNames) {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paramNames[i]
}

// SetParamName labels parameter i of a function signature store.
func (s *Store) SetParamName(i int, name string) error {
	if i < 0 || i >= len(s.paramNames) {
		return result.New(result.KindInvalidIndex, "parameter %d outside [0,%d)", i, len(s.paramNames))
	}
	s.mu.Lock()
	s.paramNames[i] = name
	s.mu.Unlock()
	return nil
}

// Equal reports whether o describes the same type with the same class and
// holds equal values in every declared attribute.
func (s *Store) Equal(o *Store) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	if s.dataType != o.dataType || s.class != o.class || len(s.descs) != len(o.descs) {
		return false
	}
	for i := range s.descs {
		if s.descs[i] != o.descs[i] {
			return false
		}
	}

	for i := range s.descs {
		a, errA := s.GetAt(i)
		b, errB := o.GetAt(i)
		if (errA == nil) != (errB == nil) {
			return false
		}
		if errA == nil && !value.Equal(a, b) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, nested stores included.
func (s *Store) Clone() *Store {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &Store{
		dataType:   s.dataType,
		class:      s.class,
		descs:      s.descs,
		byName:     s.byName,
		values:     make([]value.TypedValue, len(s.values)),
		access:     append([]Access(nil), s.access...),
		paramNames: append([]string(nil), s.paramNames...),
	}
	if s.paramNames == nil {
		c.paramNames = nil
	}
	for i, v := range s.values {
		c.values[i] = v.Clone()
	}
	return c
}

// String formats the store for diagnostics.
func (s *Store) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s<%s>{", s.class, s.dataType)
	for i, d := range s.descs {
		if i > 0 {
			b.WriteString(", ")
		}
		v, err := s.GetAt(i)
		if err != nil {
			fmt.Fprintf(&b, "%s: <%v>", d.Name, err)
			continue
		}
		fmt.Fprintf(&b, "%s: %s", d.Name, v)
	}
	b.WriteString("}")
	return b.String()
}
