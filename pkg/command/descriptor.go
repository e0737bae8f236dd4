package command

import (
	"strings"

	"github.com/motionsense/sense-go/pkg/typeinfo"
)

// Descriptor is the signature of a command: ordered parameter types and the
// return type.
type Descriptor struct {
	Params []typeinfo.TypeInfo
	Return typeinfo.TypeInfo
}

// NewDescriptor creates a descriptor. The params slice is copied.
func NewDescriptor(ret typeinfo.TypeInfo, params ...typeinfo.TypeInfo) Descriptor {
	return Descriptor{
		Params: append([]typeinfo.TypeInfo(nil), params...),
		Return: ret,
	}
}

// Param returns the TypeInfo of T, for building descriptors and handles.
func Param[T any]() typeinfo.TypeInfo {
	return typeinfo.Of[T]()
}

// Arity returns the number of parameters.
func (d Descriptor) Arity() int { return len(d.Params) }

// Compatible reports whether d and o have the same parameter count, the same
// parameter types in order and the same return type.
func (d Descriptor) Compatible(o Descriptor) bool {
	if len(d.Params) != len(o.Params) || d.Return != o.Return {
		return false
	}
	for i := range d.Params {
		if d.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// String formats the descriptor as "(int32, int32) int32".
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name())
	}
	b.WriteString(") ")
	b.WriteString(d.Return.Name())
	return b.String()
}
