package expr

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Resolver supplies the value of a property path such as `user.name`.
type Resolver interface {
	Resolve(path string) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(path string) (any, error)

func (f ResolverFunc) Resolve(path string) (any, error) { return f(path) }

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root *orExpr
}

// Compile parses src.
func Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	root, err := parser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return &Expr{src: src, root: root}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string { return e.src }

// Eval computes the value of the expression.
func (e *Expr) Eval(r Resolver) (any, error) {
	v, err := e.root.eval(r)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", e.src, err)
	}
	return v, nil
}

// Bool evaluates the expression and converts the result to a boolean:
// nil, false, zero numbers and empty strings are false.
func (e *Expr) Bool(r Resolver) (bool, error) {
	v, err := e.Eval(r)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Paths lists the property paths the expression reads, in source order.
func (e *Expr) Paths() []string {
	var out []string
	e.root.paths(&out)
	return out
}

func (o *orExpr) eval(r Resolver) (any, error) {
	if len(o.And) == 1 {
		return o.And[0].eval(r)
	}
	for _, a := range o.And {
		v, err := a.eval(r)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func (a *andExpr) eval(r Resolver) (any, error) {
	if len(a.Unary) == 1 {
		return a.Unary[0].eval(r)
	}
	for _, u := range a.Unary {
		v, err := u.eval(r)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func (u *unaryExpr) eval(r Resolver) (any, error) {
	if u.Not != nil {
		v, err := u.Not.eval(r)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return u.Cmp.eval(r)
}

func (c *comparison) eval(r Resolver) (any, error) {
	left, err := c.Left.eval(r)
	if err != nil {
		return nil, err
	}
	if c.Op == "" {
		return left, nil
	}
	right, err := c.Right.eval(r)
	if err != nil {
		return nil, err
	}
	return compare(c.Op, left, right)
}

func (s *sum) eval(r Resolver) (any, error) {
	acc, err := s.Head.eval(r)
	if err != nil {
		return nil, err
	}
	for _, t := range s.Tail {
		v, err := t.Operand.eval(r)
		if err != nil {
			return nil, err
		}
		acc, err = arith(t.Op, acc, v)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (o *operand) eval(r Resolver) (any, error) {
	switch {
	case o.Null:
		return nil, nil
	case o.Bool != nil:
		return bool(*o.Bool), nil
	case o.Number != nil:
		return parseNumber(*o.Number)
	case o.String != nil:
		return *o.String, nil
	case o.Call != nil:
		return o.Call.eval(r)
	case o.Path != nil:
		return r.Resolve(o.Path.String())
	case o.Neg != nil:
		v, err := o.Neg.eval(r)
		if err != nil {
			return nil, err
		}
		return arith("-", int64(0), v)
	case o.Sub != nil:
		return o.Sub.eval(r)
	}
	return nil, fmt.Errorf("empty operand")
}

func (c *call) eval(r Resolver) (any, error) {
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := a.eval(r)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.Name {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
		}
		if args[0] == nil {
			return int64(0), nil
		}
		rv := reflect.Indirect(reflect.ValueOf(args[0]))
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
			return int64(rv.Len()), nil
		}
		return nil, fmt.Errorf("len of %T", args[0])
	case "empty":
		if len(args) != 1 {
			return nil, fmt.Errorf("empty expects 1 argument, got %d", len(args))
		}
		if args[0] == nil {
			return true, nil
		}
		rv := reflect.Indirect(reflect.ValueOf(args[0]))
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
			return rv.Len() == 0, nil
		}
		return false, nil
	}
	return nil, fmt.Errorf("unknown function %s", c.Name)
}

func (o *orExpr) paths(out *[]string) {
	for _, a := range o.And {
		for _, u := range a.Unary {
			u.paths(out)
		}
	}
}

func (u *unaryExpr) paths(out *[]string) {
	if u.Not != nil {
		u.Not.paths(out)
		return
	}
	u.Cmp.Left.paths(out)
	if u.Cmp.Right != nil {
		u.Cmp.Right.paths(out)
	}
}

func (s *sum) paths(out *[]string) {
	s.Head.paths(out)
	for _, t := range s.Tail {
		t.Operand.paths(out)
	}
}

func (o *operand) paths(out *[]string) {
	switch {
	case o.Path != nil:
		*out = append(*out, o.Path.String())
	case o.Call != nil:
		for _, a := range o.Call.Args {
			a.paths(out)
		}
	case o.Neg != nil:
		o.Neg.paths(out)
	case o.Sub != nil:
		o.Sub.paths(out)
	}
}

func parseNumber(s string) (any, error) {
	if strings.Contains(s, ".") {
		return strconv.ParseFloat(s, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

// normalize unwraps pointers and driver.Valuer values and widens numbers to
// int64, uint64 or float64.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	if dv, ok := v.(driver.Valuer); ok {
		inner, err := dv.Value()
		if err == nil {
			v = inner
		}
		if v == nil {
			return nil
		}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

func truthy(v any) bool {
	switch n := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return n
	case int64:
		return n != 0
	case uint64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return n != ""
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return ai == bi
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

func compare(op string, a, b any) (any, error) {
	switch op {
	case "==", "eq":
		return equal(a, b), nil
	case "!=", "neq":
		return !equal(a, b), nil
	}
	na, nb := normalize(a), normalize(b)
	if na == nil || nb == nil {
		return nil, fmt.Errorf("cannot order nil with %s", op)
	}
	var c int
	switch {
	case isInt(na) && isInt(nb):
		x, y := na.(int64), nb.(int64)
		c = cmp3(x < y, x > y)
	default:
		if af, ok := toFloat(na); ok {
			bf, ok := toFloat(nb)
			if !ok {
				return nil, fmt.Errorf("cannot compare %T with %T", a, b)
			}
			c = cmp3(af < bf, af > bf)
			break
		}
		if as, ok := na.(string); ok {
			bs, ok := nb.(string)
			if !ok {
				return nil, fmt.Errorf("cannot compare %T with %T", a, b)
			}
			c = strings.Compare(as, bs)
			break
		}
		if at, ok := na.(time.Time); ok {
			bt, ok := nb.(time.Time)
			if !ok {
				return nil, fmt.Errorf("cannot compare %T with %T", a, b)
			}
			c = at.Compare(bt)
			break
		}
		return nil, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch op {
	case "<", "lt":
		return c < 0, nil
	case "<=", "lte":
		return c <= 0, nil
	case ">", "gt":
		return c > 0, nil
	case ">=", "gte":
		return c >= 0, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func isInt(v any) bool {
	_, ok := v.(int64)
	return ok
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func arith(op string, a, b any) (any, error) {
	na, nb := normalize(a), normalize(b)
	_, aStr := na.(string)
	_, bStr := nb.(string)
	if op == "+" && (aStr || bStr) {
		return stringOf(na) + stringOf(nb), nil
	}
	if na == nil || nb == nil {
		return nil, fmt.Errorf("arithmetic on nil")
	}
	if isInt(na) && isInt(nb) {
		x, y := na.(int64), nb.(int64)
		if op == "+" {
			return x + y, nil
		}
		return x - y, nil
	}
	x, ok1 := toFloat(na)
	y, ok2 := toFloat(nb)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("cannot apply %s to %T and %T", op, a, b)
	}
	if op == "+" {
		return x + y, nil
	}
	return x - y, nil
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
