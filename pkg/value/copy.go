package value

import (
	"reflect"

	"github.com/jinzhu/copier"
)

var copyOptions = copier.Option{DeepCopy: true}

// deepCopy returns a deep copy of v. The result is assignable to v's type.
func deepCopy(v reflect.Value) reflect.Value {
	if clone := v.MethodByName("Clone"); clone.IsValid() {
		mt := clone.Type()
		if mt.NumIn() == 0 && mt.NumOut() == 1 && mt.Out(0) == v.Type() {
			if v.Kind() == reflect.Pointer && v.IsNil() {
				return v
			}
			return clone.Call(nil)[0]
		}
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(deepCopy(v.Elem()))
		return p

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		s := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			s.Index(i).Set(deepCopy(v.Index(i)))
		}
		return s

	case reflect.Array:
		a := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			a.Index(i).Set(deepCopy(v.Index(i)))
		}
		return a

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		m := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			m.SetMapIndex(deepCopy(iter.Key()), deepCopy(iter.Value()))
		}
		return m

	case reflect.Struct:
		if exportedOnly(v.Type()) {
			dst := reflect.New(v.Type())
			if err := copier.CopyWithOption(dst.Interface(), v.Interface(), copyOptions); err == nil {
				return dst.Elem()
			}
		}
		// Unexported state is carried over as is; exported fields are
		// copied deeply.
		dst := reflect.New(v.Type()).Elem()
		dst.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := dst.Field(i); f.CanSet() {
				f.Set(deepCopy(v.Field(i)))
			}
		}
		return dst

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		i := reflect.New(v.Type()).Elem()
		i.Set(deepCopy(v.Elem()))
		return i

	default:
		// Scalars, strings, funcs and channels are copied by value.
		return v
	}
}

func exportedOnly(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return false
		}
	}
	return true
}
