package object

import (
	"reflect"
	"strings"

	"github.com/rotisserie/eris"
)

// SlowProperty is a reflection-based binding: a SetX method (with an optional
// X or GetX getter) or an exported field whose type converts to and from the
// property type.
type SlowProperty struct {
	path     string
	propType reflect.Type
	setter   string
	getter   string
	field    []int
}

// Path returns the property path the binding was resolved for.
func (s *SlowProperty) Path() string {
	return s.path
}

func newSlowProperty(objType reflect.Type, path string, propType reflect.Type) *SlowProperty {
	name := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		// nested slow paths are not supported
		return nil
	}
	s := &SlowProperty{path: path, propType: propType}
	if m, ok := objType.MethodByName("Set" + name); ok {
		// receiver + one argument
		if m.Type.NumIn() == 2 && propType.ConvertibleTo(m.Type.In(1)) {
			s.setter = m.Name
		}
	}
	for _, g := range []string{name, "Get" + name} {
		if m, ok := objType.MethodByName(g); ok && m.Type.NumIn() == 1 && m.Type.NumOut() == 1 && m.Type.Out(0).ConvertibleTo(propType) {
			s.getter = m.Name
			break
		}
	}
	if f, ok := objType.Elem().FieldByName(name); ok && f.IsExported() && convertible(f.Type, propType) {
		s.field = f.Index
	}
	if s.setter == "" && s.field == nil {
		return nil
	}
	return s
}

func convertible(a, b reflect.Type) bool {
	return a.ConvertibleTo(b) && b.ConvertibleTo(a) && a.Kind() != reflect.String && b.Kind() != reflect.String ||
		a == b
}

// Get reads the property, converted to the property type.
func (s *SlowProperty) Get(obj any) (reflect.Value, bool) {
	v := reflect.ValueOf(obj)
	if s.getter != "" {
		out := v.MethodByName(s.getter).Call(nil)
		return out[0].Convert(s.propType), true
	}
	if s.field != nil {
		return v.Elem().FieldByIndex(s.field).Convert(s.propType), true
	}
	return reflect.Value{}, false
}

// Set writes the property, converting to the destination type.
func (s *SlowProperty) Set(obj any, val reflect.Value) bool {
	v := reflect.ValueOf(obj)
	if s.setter != "" {
		m := v.MethodByName(s.setter)
		m.Call([]reflect.Value{val.Convert(m.Type().In(0))})
		return true
	}
	if s.field != nil {
		f := v.Elem().FieldByIndex(s.field)
		if !f.CanSet() {
			return false
		}
		f.Set(val.Convert(f.Type()))
		return true
	}
	return false
}

// SetProperty writes value to the property at path on obj by reflection,
// converting numeric types. It backs value pipelines that do not go through
// the entity manager.
func SetProperty(obj any, path string, value any) error {
	f, err := lookupField(obj, path)
	if err != nil {
		return err
	}
	if m := reflect.ValueOf(obj).MethodByName("Set" + lastSegment(path)); m.IsValid() && m.Type().NumIn() == 1 {
		in := reflect.ValueOf(value)
		if !in.Type().ConvertibleTo(m.Type().In(0)) {
			return eris.Wrapf(ErrTypeMismatch, "%s: %s into %s", path, in.Type(), m.Type().In(0))
		}
		m.Call([]reflect.Value{in.Convert(m.Type().In(0))})
		return nil
	}
	if !f.IsValid() {
		return eris.Wrapf(ErrNoSuchProperty, "%s", path)
	}
	in := reflect.ValueOf(value)
	if !in.Type().ConvertibleTo(f.Type()) {
		return eris.Wrapf(ErrTypeMismatch, "%s: %s into %s", path, in.Type(), f.Type())
	}
	f.Set(in.Convert(f.Type()))
	return nil
}

// GetProperty reads the property at path on obj by reflection.
func GetProperty(obj any, path string) (any, error) {
	if m := reflect.ValueOf(obj).MethodByName("Get" + lastSegment(path)); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 && !strings.Contains(path, ".") {
		return m.Call(nil)[0].Interface(), nil
	}
	f, err := lookupField(obj, path)
	if err != nil {
		return nil, err
	}
	if !f.IsValid() {
		return nil, eris.Wrapf(ErrNoSuchProperty, "%s", path)
	}
	return f.Interface(), nil
}

// lookupField walks a dotted path of exported fields. A missing field yields an
// invalid value and no error so callers can fall back to methods.
func lookupField(obj any, path string) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, eris.Wrapf(ErrNotPointer, "%T", obj)
	}
	v = v.Elem()
	for _, name := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, nil
		}
		sf, ok := v.Type().FieldByName(name)
		if !ok || !sf.IsExported() {
			return reflect.Value{}, nil
		}
		v = v.FieldByIndex(sf.Index)
	}
	return v, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
