package attribute

import (
	"fmt"

	"github.com/motionsense/sense-go/pkg/typeinfo"
)

// Class selects the attribute set of a store.
type Class uint8

const (
	ClassPlain Class = iota
	ClassDefaultValued
	ClassRanged
	ClassEnumMapped
	ClassImageLike
	ClassFunctionSignature
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassPlain:
		return "PLAIN"
	case ClassDefaultValued:
		return "DEFAULT_VALUED"
	case ClassRanged:
		return "RANGED"
	case ClassEnumMapped:
		return "ENUM_MAPPED"
	case ClassImageLike:
		return "IMAGE_LIKE"
	case ClassFunctionSignature:
		return "FUNCTION_SIGNATURE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for a known class.
func (c Class) IsValid() bool {
	return c <= ClassFunctionSignature
}

// ParseClass parses a class name as returned by String.
func ParseClass(s string) (Class, error) {
	for c := ClassPlain; c <= ClassFunctionSignature; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute class %q", s)
}

// Attribute names.
const (
	DefaultValue        = "DEFAULT_VALUE"
	HasDefaultValue     = "HAS_DEFAULT_VALUE"
	RangeMin            = "RANGE_MIN"
	RangeMax            = "RANGE_MAX"
	EnumMapperAttr      = "ENUM_MAPPER"
	ImageSizerAttr      = "IMAGE_SIZER"
	SourceSizeImageType = "SOURCE_SIZE_IMAGE_TYPE"
	PixelRelationAttr   = "PIXEL_RELATION"
	RangeMetaInfo       = "RANGE_META_INFO"
	ReturnMetaInfo      = "RETURN_META_INFO"
)

// MaxParameters is the number of parameter slots a function signature has.
const MaxParameters = 10

// ParamMetaInfo returns the attribute name of parameter i.
func ParamMetaInfo(i int) string {
	return fmt.Sprintf("P%d_META_INFO", i)
}

// Function tags stores describing a function signature.
type Function struct{}

// Type tags of the metadata payloads.
var (
	StoreType         = typeinfo.MustRegister[*Store]("attribute.store")
	EnumMapperType    = typeinfo.MustRegister[*EnumMapper]("attribute.enum_mapper")
	ImageSizerType    = typeinfo.MustRegister[ImageSizer]("attribute.image_sizer")
	PixelRelationType = typeinfo.MustRegister[PixelRelation]("attribute.pixel_relation")
	FunctionType      = typeinfo.MustRegister[Function]("attribute.function")
)

// Descriptor names one attribute of a store.
type Descriptor struct {
	Name  string
	Type  typeinfo.TypeInfo
	Index int
}

// layout returns the fixed attribute set of a class. dataType is the type the
// store describes; params is the parameter count of a function signature.
func layout(class Class, dataType typeinfo.TypeInfo, params int) []Descriptor {
	var descs []Descriptor
	add := func(name string, t typeinfo.TypeInfo) {
		descs = append(descs, Descriptor{Name: name, Type: t, Index: len(descs)})
	}
	boolType := typeinfo.Of[bool]()

	switch class {
	case ClassPlain:

	case ClassDefaultValued, ClassRanged, ClassEnumMapped:
		add(DefaultValue, dataType)
		add(HasDefaultValue, boolType)
		switch class {
		case ClassRanged:
			add(RangeMin, dataType)
			add(RangeMax, dataType)
		case ClassEnumMapped:
			add(EnumMapperAttr, EnumMapperType)
		}

	case ClassImageLike:
		add(ImageSizerAttr, ImageSizerType)
		add(SourceSizeImageType, typeinfo.Of[string]())
		add(PixelRelationAttr, PixelRelationType)
		add(RangeMetaInfo, StoreType)

	case ClassFunctionSignature:
		add(ReturnMetaInfo, StoreType)
		for i := 0; i < params; i++ {
			add(ParamMetaInfo(i), StoreType)
		}
	}
	return descs
}
