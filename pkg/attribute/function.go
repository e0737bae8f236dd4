package attribute

import (
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/value"
)

type paramMeta struct {
	name string
	meta *Store
}

// FunctionBuilder assembles a FunctionSignature store one parameter at a
// time, so functions of any arity up to MaxParameters share one construct.
type FunctionBuilder struct {
	returns *Store
	params  []paramMeta
	err     error
}

// NewFunctionBuilder starts a signature whose return value is described by
// returns. A nil returns leaves RETURN_META_INFO empty (a void function).
func NewFunctionBuilder(returns *Store) *FunctionBuilder {
	return &FunctionBuilder{returns: returns}
}

// AppendParameter adds the next positional parameter.
func (b *FunctionBuilder) AppendParameter(name string, meta *Store) *FunctionBuilder {
	if len(b.params) == MaxParameters {
		b.err = result.New(result.KindInvalidIndex, "more than %d parameters", MaxParameters)
		return b
	}
	b.params = append(b.params, paramMeta{name: name, meta: meta})
	return b
}

// Build returns the signature store.
func (b *FunctionBuilder) Build() (*Store, error) {
	if b.err != nil {
		return nil, b.err
	}
	s, err := New(ClassFunctionSignature, FunctionType, len(b.params))
	if err != nil {
		return nil, err
	}
	if b.returns != nil {
		s.values[s.byName[ReturnMetaInfo]] = value.New(b.returns)
	}
	for i, p := range b.params {
		s.paramNames[i] = p.name
		if p.meta != nil {
			s.values[s.byName[ParamMetaInfo(i)]] = value.New(p.meta)
		}
	}
	return s, nil
}

// Param returns the metadata store of parameter i of a function signature.
func (s *Store) Param(i int) (*Store, error) {
	if s.class != ClassFunctionSignature {
		return nil, result.New(result.KindNoSuchAttribute, "%s store has no parameters", s.class)
	}
	if i < 0 || i >= s.Params() {
		return nil, result.New(result.KindInvalidIndex, "parameter %d outside [0,%d)", i, s.Params())
	}
	return Value[*Store](s, ParamMetaInfo(i))
}

// Return returns the metadata store of a function signature's return value.
func (s *Store) Return() (*Store, error) {
	return Value[*Store](s, ReturnMetaInfo)
}
