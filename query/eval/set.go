package eval

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Setter lets a parameter type accept write-backs (generated keys, output
// parameters) without reflection.
type Setter interface {
	SetPath(path string, value any) error
}

// Set writes value at path inside root. Root must be a pointer to a struct
// or a map; nil intermediate pointers and maps are allocated on the way.
func Set(root any, path string, value any) error {
	if s, ok := root.(Setter); ok {
		return s.SetPath(path, value)
	}
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(root)
	if !v.IsValid() {
		return fmt.Errorf("cannot set %q on nil", path)
	}
	if v.Kind() != reflect.Pointer && v.Kind() != reflect.Map {
		return fmt.Errorf("cannot set %q on non-pointer %T", path, root)
	}
	return setIn(v, segs, value, path)
}

func setIn(v reflect.Value, segs []segment, value any, path string) error {
	for {
		switch v.Kind() {
		case reflect.Pointer:
			if v.IsNil() {
				if !v.CanSet() {
					return fmt.Errorf("cannot set %q: nil pointer", path)
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
			continue
		case reflect.Interface:
			if v.IsNil() {
				return fmt.Errorf("cannot set %q: nil interface", path)
			}
			inner := v.Elem()
			if inner.Kind() == reflect.Pointer || inner.Kind() == reflect.Map {
				v = inner
				continue
			}
			return fmt.Errorf("cannot set %q on non-addressable %s", path, inner.Type())
		}
		break
	}
	seg := segs[0]
	last := len(segs) == 1
	switch v.Kind() {
	case reflect.Struct:
		if seg.kind != segField {
			return fmt.Errorf("cannot index struct %s in %q", v.Type(), path)
		}
		f, ok := fieldByName(v.Type(), seg.name)
		if !ok {
			return &NotFoundError{Path: path, Reason: fmt.Sprintf("%s has no field %s", v.Type(), seg.name)}
		}
		fv, err := v.FieldByIndexErr(f.Index)
		if err != nil {
			return fmt.Errorf("cannot set %q: %w", path, err)
		}
		if !fv.CanSet() {
			return fmt.Errorf("cannot set %q: field is not settable", path)
		}
		if last {
			return Assign(fv, value)
		}
		if fv.Kind() == reflect.Map && fv.IsNil() {
			fv.Set(reflect.MakeMap(fv.Type()))
		}
		return setIn(fv, segs[1:], value, path)
	case reflect.Map:
		if v.IsNil() {
			return fmt.Errorf("cannot set %q: nil map", path)
		}
		key, err := mapKey(v.Type().Key(), seg)
		if err != nil {
			return err
		}
		if last {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := Assign(elem, value); err != nil {
				return err
			}
			v.SetMapIndex(key, elem)
			return nil
		}
		cur := v.MapIndex(key)
		if !cur.IsValid() {
			if v.Type().Elem().Kind() != reflect.Map {
				return &NotFoundError{Path: path, Reason: fmt.Sprintf("key %s not present", seg)}
			}
			cur = reflect.MakeMap(v.Type().Elem())
			v.SetMapIndex(key, cur)
		}
		return setIn(cur, segs[1:], value, path)
	case reflect.Slice:
		if seg.kind != segIndex || seg.index < 0 || seg.index >= v.Len() {
			return &NotFoundError{Path: path, Reason: fmt.Sprintf("bad index %s", seg)}
		}
		if last {
			return Assign(v.Index(seg.index), value)
		}
		return setIn(v.Index(seg.index).Addr(), segs[1:], value, path)
	default:
		return fmt.Errorf("cannot set %q on %s", path, v.Type())
	}
}

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// Assign stores value into dst, converting between numeric kinds, parsing
// booleans and formatting into strings where needed. A nil value stores the
// zero value.
func Assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(value)
	}
	src := reflect.ValueOf(value)
	if dst.Kind() == reflect.Pointer && src.Type() != dst.Type() {
		elem := reflect.New(dst.Type().Elem())
		if err := Assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	switch dst.Kind() {
	case reflect.Bool:
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		if s, ok := value.(string); ok {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("cannot convert %q to %s", s, dst.Type())
			}
			dst.SetBool(b)
			return nil
		}
		if isNumber(src.Kind()) {
			dst.SetBool(!src.IsZero())
			return nil
		}
	case reflect.Slice:
		if s, ok := value.(string); ok && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(s))
			return nil
		}
	case reflect.String:
		switch s := value.(type) {
		case []byte:
			dst.SetString(string(s))
		case fmt.Stringer:
			dst.SetString(s.String())
		default:
			dst.SetString(fmt.Sprint(value))
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if b, ok := value.([]byte); ok {
			value = string(b)
			src = reflect.ValueOf(value)
		}
		if s, ok := value.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("cannot convert %q to %s", s, dst.Type())
			}
			src = reflect.ValueOf(f)
		}
		if isNumber(src.Kind()) {
			dst.Set(src.Convert(dst.Type()))
			return nil
		}
	}
	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind() {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Entry is one element of an iteration source.
type Entry struct {
	Key   any
	Value any
}

// Iterate turns v into an ordered list of entries. Slices and arrays yield
// their index as key, maps yield entries sorted by key, and any other value
// is promoted to a single entry with key 0.
func Iterate(v any) ([]Entry, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot iterate nil")
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot iterate nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return []Entry{{Key: 0, Value: v}}, nil
		}
		out := make([]Entry, rv.Len())
		for i := range out {
			out[i] = Entry{Key: i, Value: rv.Index(i).Interface()}
		}
		return out, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()}
		}
		return out, nil
	default:
		return []Entry{{Key: 0, Value: rv.Interface()}}, nil
	}
}

func lessKey(a, b reflect.Value) bool {
	for a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	for b.Kind() == reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.String:
			return a.String() < b.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return a.Uint() < b.Uint()
		case reflect.Float32, reflect.Float64:
			return a.Float() < b.Float()
		}
	}
	return fmt.Sprintf("%T%v", a.Interface(), a.Interface()) < fmt.Sprintf("%T%v", b.Interface(), b.Interface())
}
