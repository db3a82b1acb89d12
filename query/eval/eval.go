package eval

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned, wrapped in a *NotFoundError, when a path names a
// property the value does not have.
var ErrNotFound = errors.New("property not found")

// NotFoundError names the path that could not be resolved.
type NotFoundError struct {
	Path   string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("property %q not found: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("property %q not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Getter lets a parameter type answer path lookups itself instead of being
// inspected with reflection.
type Getter interface {
	GetPath(path string) (any, bool)
}

// Get returns the value at path. A nil value met half way resolves to nil.
func Get(root any, path string) (any, error) {
	v, _, err := Lookup(root, path)
	return v, err
}

// TypeOf returns the declared type of the property at path, or nil when it
// is only known dynamically and the value is nil.
func TypeOf(root any, path string) (reflect.Type, error) {
	_, t, err := Lookup(root, path)
	return t, err
}

// Lookup resolves path against root and returns the value together with its
// declared type.
func Lookup(root any, path string) (any, reflect.Type, error) {
	if g, ok := root.(Getter); ok {
		v, ok := g.GetPath(path)
		if !ok {
			return nil, nil, &NotFoundError{Path: path}
		}
		return v, typeOfValue(v), nil
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, nil, err
	}
	v := reflect.ValueOf(root)
	var t reflect.Type
	if v.IsValid() {
		t = v.Type()
	}
	for i, seg := range segs {
		v, t = indirect(v, t)
		if v.IsValid() && v.CanInterface() {
			if g, ok := v.Interface().(Getter); ok {
				rest := strings.TrimPrefix(joinSegments(segs[i:]), ".")
				out, ok := g.GetPath(rest)
				if !ok {
					return nil, nil, &NotFoundError{Path: path}
				}
				return out, typeOfValue(out), nil
			}
		}
		nv, nt, err := step(v, t, seg)
		if err != nil {
			return nil, nil, &NotFoundError{Path: joinSegments(segs[:i+1]), Reason: err.Error()}
		}
		v, t = nv, nt
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, t, nil
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return nil, t, nil
	}
	return v.Interface(), t, nil
}

// indirect follows pointers and interfaces. Once a nil is met the value
// becomes invalid and only the type keeps being followed.
func indirect(v reflect.Value, t reflect.Type) (reflect.Value, reflect.Type) {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer:
			t = t.Elem()
			if v.IsValid() {
				if v.IsNil() {
					v = reflect.Value{}
				} else {
					v = v.Elem()
				}
			}
		case reflect.Interface:
			if !v.IsValid() || v.IsNil() {
				return reflect.Value{}, t
			}
			v = v.Elem()
			t = v.Type()
		default:
			return v, t
		}
	}
	return v, t
}

func step(v reflect.Value, t reflect.Type, seg segment) (reflect.Value, reflect.Type, error) {
	if t == nil {
		return reflect.Value{}, nil, nil
	}
	switch t.Kind() {
	case reflect.Interface:
		return reflect.Value{}, nil, nil
	case reflect.Struct:
		if seg.kind != segField {
			return reflect.Value{}, nil, fmt.Errorf("cannot index struct %s", t)
		}
		f, ok := fieldByName(t, seg.name)
		if !ok {
			return reflect.Value{}, nil, fmt.Errorf("%s has no field %s", t, seg.name)
		}
		if !v.IsValid() {
			return reflect.Value{}, f.Type, nil
		}
		fv, err := v.FieldByIndexErr(f.Index)
		if err != nil {
			return reflect.Value{}, f.Type, nil
		}
		return fv, f.Type, nil
	case reflect.Map:
		if !v.IsValid() || v.IsNil() {
			return reflect.Value{}, t.Elem(), nil
		}
		key, err := mapKey(t.Key(), seg)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		mv := v.MapIndex(key)
		if !mv.IsValid() {
			return reflect.Value{}, nil, fmt.Errorf("key %s not present", seg)
		}
		et := t.Elem()
		if et.Kind() == reflect.Interface && !mv.IsNil() {
			et = mv.Elem().Type()
			mv = mv.Elem()
		}
		return mv, et, nil
	case reflect.Slice, reflect.Array:
		if seg.kind != segIndex {
			return reflect.Value{}, nil, fmt.Errorf("cannot select %s on %s", seg, t)
		}
		if !v.IsValid() {
			return reflect.Value{}, t.Elem(), nil
		}
		if seg.index < 0 || seg.index >= v.Len() {
			return reflect.Value{}, nil, fmt.Errorf("index %d out of range [0,%d)", seg.index, v.Len())
		}
		return v.Index(seg.index), t.Elem(), nil
	default:
		return reflect.Value{}, nil, fmt.Errorf("cannot select %s on %s", seg, t)
	}
}

func mapKey(kt reflect.Type, seg segment) (reflect.Value, error) {
	var raw any
	switch seg.kind {
	case segIndex:
		raw = seg.index
	default:
		raw = seg.name
	}
	switch kt.Kind() {
	case reflect.String:
		if seg.kind == segIndex {
			return reflect.ValueOf(strconv.Itoa(seg.index)).Convert(kt), nil
		}
		return reflect.ValueOf(seg.name).Convert(kt), nil
	case reflect.Interface:
		return reflect.ValueOf(raw), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int64(seg.index)
		if seg.kind != segIndex {
			parsed, err := strconv.ParseInt(seg.name, 10, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %s does not fit %s", seg, kt)
			}
			n = parsed
		}
		return reflect.ValueOf(n).Convert(kt), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported map key type %s", kt)
	}
}

type fieldSet struct {
	exact map[string]reflect.StructField
	fold  map[string]reflect.StructField
}

var fieldCache sync.Map // reflect.Type -> *fieldSet

// fieldByName matches the Go field name, then the db tag, then the field
// name case-insensitively.
func fieldByName(t reflect.Type, name string) (reflect.StructField, bool) {
	fs := fieldsOf(t)
	if f, ok := fs.exact[name]; ok {
		return f, true
	}
	f, ok := fs.fold[strings.ToLower(name)]
	return f, ok
}

func fieldsOf(t reflect.Type) *fieldSet {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(*fieldSet)
	}
	fs := &fieldSet{
		exact: map[string]reflect.StructField{},
		fold:  map[string]reflect.StructField{},
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && f.Type.Kind() == reflect.Struct) {
			continue
		}
		if _, dup := fs.exact[f.Name]; !dup {
			fs.exact[f.Name] = f
		}
		if tag := strings.Split(f.Tag.Get("db"), ",")[0]; tag != "" && tag != "-" {
			if _, dup := fs.exact[tag]; !dup {
				fs.exact[tag] = f
			}
		}
		if _, dup := fs.fold[strings.ToLower(f.Name)]; !dup {
			fs.fold[strings.ToLower(f.Name)] = f
		}
	}
	actual, _ := fieldCache.LoadOrStore(t, fs)
	return actual.(*fieldSet)
}

func typeOfValue(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// IsScalar reports whether v is bound as a single value rather than inspected
// for properties: nil, booleans, numbers, strings, byte slices, time.Time and
// driver.Valuer implementations, or pointers to any of these.
func IsScalar(v any) bool {
	if v == nil {
		return true
	}
	return IsScalarType(reflect.TypeOf(v))
}

// IsScalarType is IsScalar for a static type.
func IsScalarType(t reflect.Type) bool {
	if t == nil {
		return true
	}
	if t.Implements(valuerType) {
		return true
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t.Implements(valuerType) {
			return true
		}
	}
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}
