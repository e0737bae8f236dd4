// Package attribute implements AttributeStore, a fixed and enumerable set of
// named, typed metadata values describing a data type.
//
// # Classes
//
// The attribute set is determined by the store's Class, which is one of a
// closed set:
//
//	Plain              (none)
//	DefaultValued      DEFAULT_VALUE, HAS_DEFAULT_VALUE
//	Ranged             DefaultValued + RANGE_MIN, RANGE_MAX
//	EnumMapped         DefaultValued + ENUM_MAPPER
//	ImageLike          IMAGE_SIZER, SOURCE_SIZE_IMAGE_TYPE, PIXEL_RELATION, RANGE_META_INFO
//	FunctionSignature  RETURN_META_INFO, P0_META_INFO .. P9_META_INFO
//
// For a given (data type, class) pair the attribute count and every
// attribute's type are fixed. Only values change.
//
// # Access
//
// Attributes can be reached by index or by name. The name path exists for
// callers that only hold a serialized name, for example after crossing a
// process boundary:
//
//	s := attribute.NewRanged[int32](5, 0, 10)
//	v, err := s.Get(attribute.RangeMin)          // TypedValue
//	min, err := attribute.Value[int32](s, "RANGE_MIN")
//	_, err = s.GetExpect("RANGE_MIN", typeinfo.Of[bool]()) // WRONG_ATTRIBUTE_TYPE
//
// Probing an unknown name with TypeOf returns typeinfo.Unknown rather than an
// error so callers can discover optional attributes.
package attribute
