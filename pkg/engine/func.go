package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

var (
	ctxType = reflect.TypeFor[context.Context]()
	errType = reflect.TypeFor[error]()
)

// ErrNotFunc is returned by RegisterFunc for values it cannot adapt.
var ErrNotFunc = errors.New("not a supported handler function")

// RegisterFunc registers an ordinary Go function as the command name. The
// descriptor is derived from fn's signature:
//
//	func([ctx context.Context,] p0 P0, ..., pn Pn) [R] [error]
//
// Parameter and return types are looked up with typeinfo.ForType, so named
// types registered with typeinfo.Register keep their registered names. A
// function without a non-error result is a void command.
func (e *Engine) RegisterFunc(name string, fn any, meta *attribute.Store) error {
	h, desc, err := Adapt(fn)
	if err != nil {
		return fmt.Errorf("command %q: %w", name, err)
	}
	return e.Register(name, desc, meta, h)
}

// Adapt wraps fn as a Handler and derives its descriptor, following the
// rules of RegisterFunc.
func Adapt(fn any) (Handler, command.Descriptor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, command.Descriptor{}, fmt.Errorf("%w: %T", ErrNotFunc, fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, command.Descriptor{}, fmt.Errorf("%w: variadic %s", ErrNotFunc, ft)
	}

	first := 0
	withCtx := ft.NumIn() > 0 && ft.In(0) == ctxType
	if withCtx {
		first = 1
	}
	params := make([]typeinfo.TypeInfo, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		params = append(params, typeinfo.ForType(ft.In(i)))
	}
	if len(params) > attribute.MaxParameters {
		return nil, command.Descriptor{}, fmt.Errorf("%w: %d parameters, at most %d", ErrNotFunc, len(params), attribute.MaxParameters)
	}

	ret := typeinfo.VoidType
	retIdx, errIdx := -1, -1
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errType {
			errIdx = 0
		} else {
			retIdx = 0
		}
	case 2:
		if ft.Out(1) != errType {
			return nil, command.Descriptor{}, fmt.Errorf("%w: second result of %s must be error", ErrNotFunc, ft)
		}
		retIdx, errIdx = 0, 1
	default:
		return nil, command.Descriptor{}, fmt.Errorf("%w: %s has too many results", ErrNotFunc, ft)
	}
	if retIdx >= 0 {
		ret = typeinfo.ForType(ft.Out(retIdx))
	}
	desc := command.NewDescriptor(ret, params...)

	h := func(ctx context.Context, in []value.TypedValue) (value.TypedValue, error) {
		args := make([]reflect.Value, 0, ft.NumIn())
		if withCtx {
			args = append(args, reflect.ValueOf(ctx))
		}
		for i, p := range in {
			arg := reflect.New(ft.In(first + i)).Elem()
			if p.IsValid() {
				arg.Set(reflect.ValueOf(p.Pointer()).Elem())
			}
			args = append(args, arg)
		}

		out := fv.Call(args)
		if errIdx >= 0 {
			if err, _ := out[errIdx].Interface().(error); err != nil {
				return value.TypedValue{}, err
			}
		}
		if retIdx < 0 {
			return value.TypedValue{}, nil
		}
		p := reflect.New(ft.Out(retIdx))
		p.Elem().Set(out[retIdx])
		return value.View(p.Interface(), ret, true)
	}
	return h, desc, nil
}
