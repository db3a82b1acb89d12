package ast

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/satishbabariya/batis-go/query/eval"
)

const (
	// ParameterBinding names the whole parameter value inside a template.
	ParameterBinding = "_parameter"
	// DatabaseIDBinding names the active database id inside a template.
	DatabaseIDBinding = "_databaseId"

	foreachPrefix = "__frch_"
)

// Binding is one placeholder recorded during Apply, in the order it was met.
type Binding struct {
	Property string
	Value    any
	GoType   reflect.Type
	Options  Options
}

type state struct {
	param           any
	bindings        map[string]any
	recorded        []Binding
	counter         int
	nullableForEach bool
}

type alias struct {
	name, synthetic string
}

// Context accumulates the SQL text and bindings of one compilation.
// It is not safe for concurrent use.
type Context struct {
	st      *state
	aliases []alias
	buf     strings.Builder
	space   bool
}

// NewContext prepares a context for evaluating a tree against param.
// An empty databaseID binds _databaseId to nil.
func NewContext(param any, databaseID string, nullableForEach bool) *Context {
	var id any
	if databaseID != "" {
		id = databaseID
	}
	return &Context{st: &state{
		param: param,
		bindings: map[string]any{
			ParameterBinding:  param,
			DatabaseIDBinding: id,
		},
		nullableForEach: nullableForEach,
	}}
}

// SQL returns the text accumulated so far. Each recorded binding appears in
// it as a marker produced by Marker.
func (c *Context) SQL() string {
	return c.buf.String()
}

// Bindings returns the placeholders recorded so far, indexed by marker.
func (c *Context) Bindings() []Binding {
	return c.st.recorded
}

// Values returns the named values bound by bind and foreach nodes.
func (c *Context) Values() map[string]any {
	return c.st.bindings
}

// Bind makes value available under name for the rest of the compilation.
func (c *Context) Bind(name string, value any) {
	c.st.bindings[name] = value
}

// Resolve implements expr.Resolver.
func (c *Context) Resolve(path string) (any, error) {
	v, _, err := c.Lookup(path)
	return v, err
}

// Lookup resolves a property path. Iteration aliases are applied first, then
// named bindings, then the parameter value. A scalar parameter answers every
// single-name path with itself.
func (c *Context) Lookup(path string) (any, reflect.Type, error) {
	return c.lookup(c.rewrite(path))
}

func (c *Context) lookup(path string) (any, reflect.Type, error) {
	head, rest := eval.Head(path)
	if v, ok := c.st.bindings[head]; ok {
		if rest == "" {
			return v, typeOf(v), nil
		}
		return eval.Lookup(v, strings.TrimPrefix(rest, "."))
	}
	if eval.IsScalar(c.st.param) && rest == "" {
		return c.st.param, typeOf(c.st.param), nil
	}
	return eval.Lookup(c.st.param, path)
}

// rewrite maps the head of path to the synthetic name of the innermost
// iteration alias that declares it.
func (c *Context) rewrite(path string) string {
	head, rest := eval.Head(path)
	for i := len(c.aliases) - 1; i >= 0; i-- {
		if c.aliases[i].name == head {
			return c.aliases[i].synthetic + rest
		}
	}
	return path
}

func (c *Context) child() *Context {
	return &Context{st: c.st, aliases: c.aliases}
}

func (c *Context) withAliases(as ...alias) *Context {
	child := c.child()
	child.aliases = append(append(make([]alias, 0, len(c.aliases)+len(as)), c.aliases...), as...)
	return child
}

func (c *Context) nextNumber() int {
	n := c.st.counter
	c.st.counter++
	return n
}

// write appends s directly after the current text.
func (c *Context) write(s string) {
	if s == "" {
		return
	}
	if c.space {
		if c.buf.Len() > 0 && !endsInSpace(c.buf.String()) && !startsWithSpace(s) {
			c.buf.WriteByte(' ')
		}
		c.space = false
	}
	c.buf.WriteString(s)
}

// boundary makes the next write start a new word.
func (c *Context) boundary() {
	c.space = true
}

// block appends s as a separate word.
func (c *Context) block(s string) {
	if s == "" {
		return
	}
	c.boundary()
	c.write(s)
	c.boundary()
}

func (c *Context) record(b Binding) string {
	c.st.recorded = append(c.st.recorded, b)
	return Marker(len(c.st.recorded) - 1)
}

// MarkerByte delimits binding markers in the accumulated SQL.
const MarkerByte = '\x00'

// Marker returns the marker text for the binding with index i.
func Marker(i int) string {
	return string(MarkerByte) + strconv.Itoa(i) + string(MarkerByte)
}

func typeOf(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}

func endsInSpace(s string) bool {
	return s != "" && isSpace(s[len(s)-1])
}

func startsWithSpace(s string) bool {
	return s != "" && isSpace(s[0])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
