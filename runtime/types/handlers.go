package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Param carries the placeholder options a handler may honour.
type Param struct {
	SQLType string
	Scale   int
}

// Handler converts a parameter value into a value the driver accepts.
type Handler interface {
	Value(v any, p Param) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(v any, p Param) (any, error)

func (f HandlerFunc) Value(v any, p Param) (any, error) { return f(v, p) }

// Registry maps handler names and Go types to handlers.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Handler
	byType map[reflect.Type]string
}

// NewRegistry returns a registry holding the built-in handlers:
// json, decimal, utc and string. Decimal values use the decimal handler by
// default.
func NewRegistry() *Registry {
	r := &Registry{
		byName: map[string]Handler{},
		byType: map[reflect.Type]string{},
	}
	r.Register("json", HandlerFunc(jsonValue))
	r.Register("decimal", HandlerFunc(decimalValue))
	r.Register("utc", HandlerFunc(utcValue))
	r.Register("string", HandlerFunc(stringValue))
	r.Map(reflect.TypeOf(Decimal{}), "decimal")
	return r
}

// Register adds or replaces a named handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = h
}

// Map makes the named handler the default for values of type t.
func (r *Registry) Map(t reflect.Type, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = name
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// ForType returns the default handler name for t, or "".
func (r *Registry) ForType(t reflect.Type) string {
	if t == nil {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.byType[t]; ok {
		return name
	}
	if t.Kind() == reflect.Pointer {
		return r.byType[t.Elem()]
	}
	return ""
}

// Names lists the registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Convert applies the named handler to v. An empty name passes v through.
func (r *Registry) Convert(name string, v any, p Param) (any, error) {
	if name == "" {
		return v, nil
	}
	h, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown type handler %q", name)
	}
	return h.Value(v, p)
}

func jsonValue(v any, _ Param) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return string(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decimalValue(v any, p Param) (any, error) {
	var d Decimal
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Decimal:
		d = x
	case *Decimal:
		if x == nil {
			return nil, nil
		}
		d = *x
	case string:
		d = NewDecimal(x)
	case float32:
		d = NewDecimal(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		d = NewDecimal(strconv.FormatFloat(x, 'f', -1, 64))
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			d = NewDecimal(strconv.FormatInt(rv.Int(), 10))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			d = NewDecimal(strconv.FormatUint(rv.Uint(), 10))
		default:
			return nil, fmt.Errorf("decimal handler cannot convert %T", v)
		}
	}
	if d.IsZero() {
		return nil, nil
	}
	if p.Scale > 0 {
		var err error
		if d, err = d.Round(p.Scale); err != nil {
			return nil, err
		}
	}
	return d.String(), nil
}

func utcValue(v any, _ Param) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC(), nil
	}
	return nil, fmt.Errorf("utc handler cannot convert %T", v)
}

func stringValue(v any, _ Param) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil || dv == nil {
			return nil, err
		}
		return fmt.Sprint(dv), nil
	}
	return fmt.Sprint(v), nil
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
	decType   = reflect.TypeOf(Decimal{})
)

// SQLTypeOf returns the SQL type name used when a placeholder does not
// declare one, derived from the Go type of the bound value.
func SQLTypeOf(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return "TIMESTAMP"
	case bytesType:
		return "BLOB"
	case decType:
		return "NUMERIC"
	}
	switch t.Kind() {
	case reflect.String:
		return "VARCHAR"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "SMALLINT"
	case reflect.Int32, reflect.Uint16:
		return "INTEGER"
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return "BIGINT"
	case reflect.Float32:
		return "REAL"
	case reflect.Float64:
		return "DOUBLE"
	case reflect.Map, reflect.Struct, reflect.Slice:
		return "OTHER"
	}
	return ""
}
