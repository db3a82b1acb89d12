// Package middleware provides the interceptor chain wrapped around the
// operations of the execution pipeline.
//
// An interceptor declares the operation signatures it wants to see. Only
// declared operations go through the chain; every other operation is
// dispatched directly. Interceptors run in configuration order, the first
// configured being the outermost.
package middleware

import (
	"context"
	"fmt"
)

// Signature names one interceptable operation.
type Signature struct {
	Target string
	Method string
}

func (s Signature) String() string { return s.Target + "." + s.Method }

// Interceptable operations and the arguments they are invoked with.
var (
	// ExecutorQuery: *mapping.Statement, parameter, mapping.RowBounds.
	// Returns the mapped rows.
	ExecutorQuery = Signature{"Executor", "Query"}
	// ExecutorUpdate: *mapping.Statement, parameter. Returns int64.
	ExecutorUpdate = Signature{"Executor", "Update"}
	// ExecutorFlushStatements: no arguments. Returns []executor.BatchResult.
	ExecutorFlushStatements = Signature{"Executor", "FlushStatements"}
	// ExecutorCommit: no arguments.
	ExecutorCommit = Signature{"Executor", "Commit"}
	// ExecutorRollback: no arguments.
	ExecutorRollback = Signature{"Executor", "Rollback"}
	// CompilerCompile: *mapping.Statement, parameter. Returns
	// *mapping.BoundStatement.
	CompilerCompile = Signature{"Compiler", "Compile"}
	// ParametersBind: *mapping.BoundStatement. Returns []any driver args.
	ParametersBind = Signature{"Parameters", "Bind"}
	// ResultsMap: *mapping.Statement, *sql.Rows, mapping.RowBounds. Returns
	// the mapped rows.
	ResultsMap = Signature{"Results", "Map"}
)

// Signatures lists every interceptable operation.
func Signatures() []Signature {
	return []Signature{
		ExecutorQuery, ExecutorUpdate, ExecutorFlushStatements, ExecutorCommit,
		ExecutorRollback, CompilerCompile, ParametersBind, ResultsMap,
	}
}

// Target is the operation at the end of a chain.
type Target func(ctx context.Context, args []any) (any, error)

// Invocation is one call passing through the chain. An interceptor may
// replace Ctx or Args before calling Proceed, or return without calling it
// to short-circuit the operation.
type Invocation struct {
	Ctx       context.Context
	Signature Signature
	Args      []any

	next Target
}

// Proceed invokes the next interceptor or the operation itself.
func (inv *Invocation) Proceed() (any, error) {
	return inv.next(inv.Ctx, inv.Args)
}

// Interceptor observes or overrides pipeline operations.
type Interceptor interface {
	Signatures() []Signature
	Intercept(inv *Invocation) (any, error)
}

type funcInterceptor struct {
	sigs []Signature
	fn   func(*Invocation) (any, error)
}

func (f funcInterceptor) Signatures() []Signature                { return f.sigs }
func (f funcInterceptor) Intercept(inv *Invocation) (any, error) { return f.fn(inv) }

// Func returns an interceptor running fn for the given signatures.
func Func(fn func(*Invocation) (any, error), sigs ...Signature) Interceptor {
	return funcInterceptor{sigs: sigs, fn: fn}
}

// Chain dispatches operations through the interceptors declaring them.
// A nil *Chain dispatches everything directly.
type Chain struct {
	interceptors []Interceptor
	bySignature  map[Signature][]Interceptor
}

// NewChain builds a chain. Interceptors run in the order given.
func NewChain(interceptors ...Interceptor) *Chain {
	c := &Chain{
		interceptors: interceptors,
		bySignature:  map[Signature][]Interceptor{},
	}
	for _, i := range interceptors {
		seen := map[Signature]bool{}
		for _, sig := range i.Signatures() {
			if seen[sig] {
				continue
			}
			seen[sig] = true
			c.bySignature[sig] = append(c.bySignature[sig], i)
		}
	}
	return c
}

// Len returns the number of interceptors.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.interceptors)
}

// Intercepts reports whether any interceptor declares sig.
func (c *Chain) Intercepts(sig Signature) bool {
	return c != nil && len(c.bySignature[sig]) > 0
}

// Invoke runs target for sig through the declaring interceptors.
func (c *Chain) Invoke(ctx context.Context, sig Signature, args []any, target Target) (any, error) {
	if !c.Intercepts(sig) {
		return target(ctx, args)
	}
	links := c.bySignature[sig]
	var call func(i int) Target
	call = func(i int) Target {
		if i == len(links) {
			return target
		}
		return func(ctx context.Context, args []any) (any, error) {
			return links[i].Intercept(&Invocation{Ctx: ctx, Signature: sig, Args: args, next: call(i + 1)})
		}
	}
	return call(0)(ctx, args)
}

// Result asserts the value returned through a chain. A nil value yields the
// zero T.
func Result[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("interceptor returned %T, want %T", v, zero)
	}
	return t, nil
}
