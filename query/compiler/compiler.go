// Package compiler compiles statement templates into bound statements.
//
// Compilation evaluates the template tree against one parameter value, then
// rewrites every recorded binding marker, left to right, into the dialect's
// positional placeholder. The parameter mappings of the result are in
// exactly that order.
package compiler

import (
	"strconv"
	"strings"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/sqlgen"
	"github.com/satishbabariya/batis-go/runtime/types"
)

// Compiler compiles statements for one dialect. It holds no per-call state
// and is safe for concurrent use.
type Compiler struct {
	dialect         sqlgen.Dialect
	types           *types.Registry
	databaseID      string
	shrink          bool
	nullableForEach bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTypes sets the type handler registry used to default handlers.
func WithTypes(r *types.Registry) Option {
	return func(c *Compiler) { c.types = r }
}

// WithDatabaseID sets the value of _databaseId inside templates.
func WithDatabaseID(id string) Option {
	return func(c *Compiler) { c.databaseID = id }
}

// WithShrinkWhitespace collapses runs of whitespace outside quoted literals.
func WithShrinkWhitespace(on bool) Option {
	return func(c *Compiler) { c.shrink = on }
}

// WithNullableForEach makes foreach skip a nil collection unless the node
// says otherwise.
func WithNullableForEach(on bool) Option {
	return func(c *Compiler) { c.nullableForEach = on }
}

// NewCompiler creates a new statement compiler
func NewCompiler(d sqlgen.Dialect, opts ...Option) *Compiler {
	c := &Compiler{dialect: d}
	for _, opt := range opts {
		opt(c)
	}
	if c.types == nil {
		c.types = types.NewRegistry()
	}
	return c
}

// ForRegistry creates a compiler configured from the settings and type
// handlers of r.
func ForRegistry(r *mapping.Registry, d sqlgen.Dialect) *Compiler {
	s := r.Settings()
	return NewCompiler(d,
		WithTypes(r.Types()),
		WithShrinkWhitespace(s.ShrinkWhitespace),
		WithNullableForEach(s.NullableOnForEach),
		WithDatabaseID(r.DatabaseID()),
	)
}

// Dialect returns the target dialect.
func (c *Compiler) Dialect() sqlgen.Dialect { return c.dialect }

// Compile evaluates s against param. Compiling the same statement against
// equal parameter values always yields identical results.
func (c *Compiler) Compile(s *mapping.Statement, param any) (*mapping.BoundStatement, error) {
	ctx := ast.NewContext(param, c.databaseID, c.nullableForEach)
	if err := ast.Apply(ctx, s.Root); err != nil {
		return nil, classify(s, err)
	}
	sql, params, err := c.bind(s, ctx)
	if err != nil {
		return nil, err
	}
	if c.shrink {
		sql = Shrink(sql)
	} else {
		sql = strings.TrimSpace(sql)
	}
	return &mapping.BoundStatement{
		SQL:        sql,
		Parameters: params,
		Parameter:  param,
		Additional: additional(ctx),
	}, nil
}

// bind replaces binding markers with dialect placeholders and builds the
// parameter mappings in marker order.
func (c *Compiler) bind(s *mapping.Statement, ctx *ast.Context) (string, []mapping.ParameterMapping, error) {
	text := ctx.SQL()
	bindings := ctx.Bindings()
	if len(bindings) == 0 {
		return text, nil, nil
	}
	var (
		b      strings.Builder
		params = make([]mapping.ParameterMapping, 0, len(bindings))
	)
	b.Grow(len(text))
	for {
		start := strings.IndexByte(text, ast.MarkerByte)
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.IndexByte(text[start+1:], ast.MarkerByte)
		idx, err := strconv.Atoi(text[start+1 : start+1+max(end, 0)])
		if end < 0 || err != nil || idx < 0 || idx >= len(bindings) {
			b.WriteString(text[:start+1])
			text = text[start+1:]
			continue
		}
		b.WriteString(text[:start])
		pm, err := c.mapping(s, bindings[idx])
		if err != nil {
			return "", nil, err
		}
		params = append(params, pm)
		b.WriteString(c.dialect.Placeholder(len(params)))
		text = text[start+end+2:]
	}
	return b.String(), params, nil
}

func (c *Compiler) mapping(s *mapping.Statement, b ast.Binding) (mapping.ParameterMapping, error) {
	mode, err := mapping.ParseMode(b.Options.Mode)
	if err != nil {
		return mapping.ParameterMapping{}, mapping.Configf(s.Resource, s.ID, "placeholder %s: %v", b.Property, err)
	}
	pm := mapping.ParameterMapping{
		Property: b.Property,
		Value:    b.Value,
		GoType:   b.GoType,
		SQLType:  b.Options.SQLType,
		Mode:     mode,
		Handler:  b.Options.Handler,
		Scale:    b.Options.Scale,
	}
	if pm.SQLType == "" {
		pm.SQLType = types.SQLTypeOf(b.GoType)
	}
	if pm.Handler == "" {
		pm.Handler = c.types.ForType(b.GoType)
	} else if _, ok := c.types.Lookup(pm.Handler); !ok {
		return mapping.ParameterMapping{}, mapping.Configf(s.Resource, s.ID, "placeholder %s: unknown type handler %q", b.Property, pm.Handler)
	}
	if mode != mapping.ModeIn && s.Type != mapping.Callable {
		return mapping.ParameterMapping{}, mapping.Configf(s.Resource, s.ID, "placeholder %s: mode %s requires a callable statement", b.Property, mode)
	}
	return pm, nil
}

func additional(ctx *ast.Context) map[string]any {
	values := ctx.Values()
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
