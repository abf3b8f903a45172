package routing

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Method is a handler function together with its declared parameter and
// return types. Accepted shapes are func(P...), func(P...) R,
// func(P...) error and func(P...) (R, error).
type Method struct {
	name      string
	fn        reflect.Value
	params    []reflect.Type
	ret       reflect.Type
	returnErr bool
}

func NewMethod(fn any) (*Method, error) {
	if fn == nil {
		return nil, errors.New("handler is nil")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %s", t)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("handler %s must not be variadic", t)
	}

	m := &Method{
		name:   funcName(v),
		fn:     v,
		params: make([]reflect.Type, t.NumIn()),
	}
	for i := range m.params {
		m.params[i] = t.In(i)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			m.returnErr = true
		} else {
			m.ret = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("handler %s: second result must be error", t)
		}
		m.ret = t.Out(0)
		m.returnErr = true
	default:
		return nil, fmt.Errorf("handler %s returns too many values", t)
	}
	return m, nil
}

func funcName(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}

func (m *Method) Name() string { return m.name }

// Params returns the declared parameter types in order.
func (m *Method) Params() []reflect.Type {
	out := make([]reflect.Type, len(m.params))
	copy(out, m.params)
	return out
}

// Returns is the declared result type, or nil when the handler only
// returns an error or nothing.
func (m *Method) Returns() reflect.Type { return m.ret }

// Call invokes the function. A nil result (nil pointer, interface, map,
// slice or no result at all) is reported as nil. Panics propagate to the
// caller.
func (m *Method) Call(args []any) (any, error) {
	if len(args) != len(m.params) {
		return nil, fmt.Errorf("handler %s expects %d arguments, got %d", m.name, len(m.params), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(m.params[i])
			continue
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(m.params[i]) {
			return nil, fmt.Errorf("handler %s argument %d: %s is not assignable to %s", m.name, i, v.Type(), m.params[i])
		}
		in[i] = v
	}

	out := m.fn.Call(in)

	var err error
	if m.returnErr {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	if m.ret == nil {
		return nil, err
	}
	res := out[0]
	if isNil(res) {
		return nil, err
	}
	return res.Interface(), err
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
