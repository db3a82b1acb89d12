// Package executor runs compiled statements against a database through the
// local and shared caches.
//
// An Executor serves one session. A read is answered from the shared cache
// as seen by the session's pending transaction, then from the local cache,
// and only then from the database. A mutation clears the local cache and
// queues a clear of its shared cache unit, applied when the session
// commits.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/cache"
	"github.com/satishbabariya/batis-go/query/compiler"
	"github.com/satishbabariya/batis-go/query/middleware"
	"github.com/satishbabariya/batis-go/query/sqlgen"
	"github.com/satishbabariya/batis-go/runtime/types"
	"github.com/satishbabariya/batis-go/telemetry"
)

// Executor is the execution pipeline of one session. It is not safe for
// concurrent use.
type Executor struct {
	id       uuid.UUID
	registry *mapping.Registry
	settings mapping.Settings
	dialect  sqlgen.Dialect
	compiler *compiler.Compiler
	types    *types.Registry
	mapper   *ResultMapper
	tx       *Transaction
	kind     mapping.ExecutorType
	runner   runner
	chain    *middleware.Chain
	logger   *slog.Logger

	databaseID string
	local      *cache.Perpetual
	outputs    *cache.Perpetual
	tcm        *cache.TransactionalManager
	closed     bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithExecutorType overrides the default executor type of the settings.
func WithExecutorType(t mapping.ExecutorType) Option {
	return func(e *Executor) { e.kind = t }
}

// WithChain sets the interceptor chain.
func WithChain(c *middleware.Chain) Option {
	return func(e *Executor) { e.chain = c }
}

// WithLogger sets the logger. Records carry the session id.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithResultMapper replaces the result mapper.
func WithResultMapper(m *ResultMapper) Option {
	return func(e *Executor) { e.mapper = m }
}

// New creates an executor for the statements of reg running on tx.
func New(reg *mapping.Registry, d sqlgen.Dialect, tx *Transaction, opts ...Option) *Executor {
	settings := reg.Settings()
	e := &Executor{
		id:       uuid.New(),
		registry: reg,
		settings: settings,
		dialect:  d,
		compiler: compiler.ForRegistry(reg, d),
		types:    reg.Types(),
		tx:       tx,
		kind:     settings.DefaultExecutorType,
		tcm:      cache.NewTransactionalManager(),

		databaseID: reg.DatabaseID(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mapper == nil {
		e.mapper = NewResultMapper(settings.MapUnderscoreToCamelCase)
	}
	e.runner = newRunner(e.kind)
	e.local = cache.NewPerpetual("local:" + e.id.String())
	e.outputs = cache.NewPerpetual("outputs:" + e.id.String())
	e.logger = debug.Or(e.logger).With("session", e.id.String())
	return e
}

// ID returns the session id.
func (e *Executor) ID() uuid.UUID { return e.id }

// Type returns the executor type.
func (e *Executor) Type() mapping.ExecutorType { return e.kind }

// Transaction returns the transaction statements run on.
func (e *Executor) Transaction() *Transaction { return e.tx }

// Closed reports whether Close was called.
func (e *Executor) Closed() bool { return e.closed }

// LocalCacheSize returns the number of entries in the local cache.
func (e *Executor) LocalCacheSize() int { return e.local.Len() }

// ClearLocalCache empties the local cache.
func (e *Executor) ClearLocalCache() {
	if e.closed {
		return
	}
	e.local.Clear()
	e.outputs.Clear()
}

// Query runs a read statement and returns the mapped rows.
func (e *Executor) Query(ctx context.Context, s *mapping.Statement, param any, bounds mapping.RowBounds) ([]any, error) {
	return middleware.Result[[]any](e.chain.Invoke(ctx, middleware.ExecutorQuery, []any{s, param, bounds},
		func(ctx context.Context, args []any) (any, error) {
			s, param, bounds, err := queryArgs(args)
			if err != nil {
				return nil, err
			}
			return box(e.query(ctx, s, param, bounds))
		}))
}

// Update runs a mutation and returns the number of affected rows, or
// BatchUpdateReturnValue in batch mode.
func (e *Executor) Update(ctx context.Context, s *mapping.Statement, param any) (int64, error) {
	return middleware.Result[int64](e.chain.Invoke(ctx, middleware.ExecutorUpdate, []any{s, param},
		func(ctx context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("update: want 2 arguments, got %d", len(args))
			}
			s, ok := args[0].(*mapping.Statement)
			if !ok {
				return nil, fmt.Errorf("update: statement argument is %T", args[0])
			}
			return box(e.update(ctx, s, args[1]))
		}))
}

// FlushStatements sends queued batch executions to the database.
func (e *Executor) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	return middleware.Result[[]BatchResult](e.chain.Invoke(ctx, middleware.ExecutorFlushStatements, nil,
		func(ctx context.Context, _ []any) (any, error) {
			if e.closed {
				return nil, mapping.ErrClosed
			}
			return box(e.flush(ctx))
		}))
}

// Commit clears the local cache, flushes queued statements, commits the
// database transaction when required, then publishes the pending shared
// cache operations.
func (e *Executor) Commit(ctx context.Context, required bool) error {
	_, err := e.chain.Invoke(ctx, middleware.ExecutorCommit, nil, func(ctx context.Context, _ []any) (any, error) {
		return nil, e.commit(ctx, required)
	})
	return err
}

// Rollback discards the local cache, queued statements and pending shared
// cache operations, and rolls the database transaction back when required.
func (e *Executor) Rollback(ctx context.Context, required bool) error {
	_, err := e.chain.Invoke(ctx, middleware.ExecutorRollback, nil, func(context.Context, []any) (any, error) {
		if e.closed {
			return nil, mapping.ErrClosed
		}
		return nil, e.rollback(required)
	})
	return err
}

// Close ends the session. Pending shared cache operations are published
// unless forceRollback is set, in which case they are discarded together
// with the database transaction.
func (e *Executor) Close(forceRollback bool) error {
	if e.closed {
		return nil
	}
	if forceRollback {
		e.tcm.Rollback()
	} else {
		e.tcm.Commit()
	}
	err := e.rollback(forceRollback)
	err = errors.Join(err, e.tx.Close())
	e.closed = true
	e.local.Clear()
	e.outputs.Clear()
	e.logger.Debug("session closed", "rollback", forceRollback)
	return err
}

// box passes a typed result through the interceptor chain.
func box[T any](v T, err error) (any, error) { return v, err }

func queryArgs(args []any) (*mapping.Statement, any, mapping.RowBounds, error) {
	if len(args) != 3 {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("query: want 3 arguments, got %d", len(args))
	}
	s, ok := args[0].(*mapping.Statement)
	if !ok {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("query: statement argument is %T", args[0])
	}
	bounds, ok := args[2].(mapping.RowBounds)
	if !ok {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("query: row bounds argument is %T", args[2])
	}
	return s, args[1], bounds, nil
}

func mapArgs(args []any) (*mapping.Statement, *sql.Rows, mapping.RowBounds, error) {
	if len(args) != 3 {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("map: want 3 arguments, got %d", len(args))
	}
	s, ok := args[0].(*mapping.Statement)
	if !ok {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("map: statement argument is %T", args[0])
	}
	rows, ok := args[1].(*sql.Rows)
	if !ok {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("map: rows argument is %T", args[1])
	}
	bounds, ok := args[2].(mapping.RowBounds)
	if !ok {
		return nil, nil, mapping.RowBounds{}, fmt.Errorf("map: row bounds argument is %T", args[2])
	}
	return s, rows, bounds, nil
}

// sharedUnit returns the shared cache unit of s, or nil when shared caching
// does not apply.
func (e *Executor) sharedUnit(s *mapping.Statement) cache.Unit {
	if !e.settings.CacheEnabled || s.Cache == "" {
		return nil
	}
	u, ok := e.registry.Cache(s.Cache)
	if !ok {
		return nil
	}
	return u
}

func (e *Executor) query(ctx context.Context, s *mapping.Statement, param any, bounds mapping.RowBounds) ([]any, error) {
	if e.closed {
		return nil, mapping.ErrClosed
	}
	b, err := e.compile(ctx, s, param)
	if err != nil {
		return nil, err
	}
	key, err := cache.NewKey(s.ID, b.SQL, b.Values(), bounds.Offset, bounds.Limit, e.databaseID)
	if err != nil {
		return nil, &mapping.BindingError{Statement: s.ID, Cause: fmt.Errorf("building cache key: %w", err)}
	}

	unit := e.sharedUnit(s)
	if unit == nil {
		return e.queryLocal(ctx, s, b, key, bounds)
	}
	if s.FlushCache {
		e.tcm.Clear(unit)
	}
	if !s.UseCache {
		return e.queryLocal(ctx, s, b, key, bounds)
	}
	if outs := b.OutParameters(); len(outs) > 0 {
		return nil, &mapping.CacheConsistencyError{Statement: s.ID, Cache: unit.ID(), Properties: outs}
	}
	if v, ok := e.tcm.Get(unit, key); ok {
		e.logger.Debug("shared cache hit", "statement", s.ID, "cache", unit.ID(), "key", key.String())
		return slices.Clone(v.([]any)), nil
	}
	list, err := e.queryLocal(ctx, s, b, key, bounds)
	if err != nil {
		return nil, err
	}
	// The shared tier keeps its own copy of the slice.
	e.tcm.Put(unit, key, slices.Clone(list))
	return list, nil
}

func (e *Executor) queryLocal(ctx context.Context, s *mapping.Statement, b *mapping.BoundStatement, key cache.Key, bounds mapping.RowBounds) ([]any, error) {
	if s.FlushCache {
		e.ClearLocalCache()
	}
	if v, ok := e.local.Get(key); ok {
		e.logger.Debug("local cache hit", "statement", s.ID, "key", key.String())
		if s.Type == mapping.Callable {
			if out, ok := e.outputs.Get(key); ok {
				if err := writeOutputs(s, b.Parameter, out.(map[string]any)); err != nil {
					return nil, err
				}
			}
		}
		return v.([]any), nil
	}
	list, err := e.queryDatabase(ctx, s, b, bounds, key)
	if err != nil {
		return nil, err
	}
	e.local.Put(key, list)
	if e.settings.LocalCacheScope == mapping.ScopeStatement {
		e.ClearLocalCache()
	}
	return list, nil
}

func (e *Executor) queryDatabase(ctx context.Context, s *mapping.Statement, b *mapping.BoundStatement, bounds mapping.RowBounds, key cache.Key) (list []any, err error) {
	if e.kind == mapping.ExecutorBatch {
		if _, err := e.flush(ctx); err != nil {
			return nil, err
		}
	}
	args, err := e.bind(ctx, s, b)
	if err != nil {
		return nil, err
	}
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return nil, &mapping.ExecutionError{Statement: s.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	ctx, cancel := e.withTimeout(ctx, s)
	defer cancel()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		telemetry.RecordStatement(s.ID, s.Kind.String(), elapsed, err)
		if err != nil {
			e.logger.Debug("query failed", "statement", s.ID, "sql", b.SQL, "args", args, "error", err)
			return
		}
		e.logger.Debug("query", "statement", s.ID, "sql", b.SQL, "args", args, "rows", len(list), "duration", elapsed)
	}()

	rows, err := e.runner.query(ctx, conn, b.SQL, args)
	if err != nil {
		return nil, &mapping.ExecutionError{Statement: s.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	defer rows.Close()
	list, err = middleware.Result[[]any](e.chain.Invoke(ctx, middleware.ResultsMap, []any{s, rows, bounds},
		func(_ context.Context, args []any) (any, error) {
			s, rows, bounds, err := mapArgs(args)
			if err != nil {
				return nil, err
			}
			t, err := e.resultType(s)
			if err != nil {
				return nil, err
			}
			return box(e.mapper.Map(rows, t, bounds))
		}))
	if err != nil {
		if mapping.IsConfigurationError(err) {
			return nil, err
		}
		return nil, &mapping.ExecutionError{Statement: s.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	if out := outputs(b, args); out != nil {
		e.outputs.Put(key, out)
		if err := writeOutputs(s, b.Parameter, out); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (e *Executor) resultType(s *mapping.Statement) (reflect.Type, error) {
	if s.ResultType == "" {
		return nil, nil
	}
	t, ok := e.registry.ResultType(s.ResultType)
	if !ok {
		return nil, mapping.Configf(s.Resource, s.ID, "unknown result type %q", s.ResultType)
	}
	return t, nil
}

func (e *Executor) update(ctx context.Context, s *mapping.Statement, param any) (n int64, err error) {
	if e.closed {
		return 0, mapping.ErrClosed
	}
	if unit := e.sharedUnit(s); unit != nil && s.FlushCache {
		e.tcm.Clear(unit)
	}
	e.ClearLocalCache()

	if s.SelectKey != nil && s.SelectKey.Order == mapping.KeyBefore {
		if err := e.selectKey(ctx, s, param); err != nil {
			return 0, err
		}
	}
	b, err := e.compile(ctx, s, param)
	if err != nil {
		return 0, err
	}
	args, err := e.bind(ctx, s, b)
	if err != nil {
		return 0, err
	}
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return 0, &mapping.ExecutionError{Statement: s.ID, SQL: b.SQL, Args: args, Cause: err}
	}

	ctx, cancel := e.withTimeout(ctx, s)
	defer cancel()
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		telemetry.RecordStatement(s.ID, s.Kind.String(), elapsed, err)
		e.logger.Debug("update", "statement", s.ID, "sql", b.SQL, "args", args, "affected", n, "duration", elapsed, "error", err)
	}()

	if e.usesReturning(s) {
		if e.kind == mapping.ExecutorBatch {
			return 0, mapping.Configf(s.Resource, s.ID, "generated keys through RETURNING are not supported in batch mode")
		}
		n, err = e.updateReturning(ctx, conn, s, b, args)
		if err != nil {
			return n, e.executionError(s, b, args, err)
		}
		return n, e.afterUpdate(ctx, s, b, args, nil)
	}

	n, err = e.runner.update(ctx, conn, s, b, args, func(ctx context.Context, res sql.Result) error {
		return e.afterUpdate(ctx, s, b, args, res)
	})
	if err != nil {
		return n, e.executionError(s, b, args, err)
	}
	return n, nil
}

// afterUpdate reads generated keys and output parameters once a mutation
// has executed.
func (e *Executor) afterUpdate(ctx context.Context, s *mapping.Statement, b *mapping.BoundStatement, args []any, res sql.Result) error {
	if res != nil {
		if err := e.lastInsertID(s, b.Parameter, res); err != nil {
			return err
		}
	}
	if s.SelectKey != nil && s.SelectKey.Order == mapping.KeyAfter {
		if err := e.selectKey(ctx, s, b.Parameter); err != nil {
			return err
		}
	}
	return writeOutputs(s, b.Parameter, outputs(b, args))
}

// executionError wraps err unless it already belongs to the error taxonomy.
func (e *Executor) executionError(s *mapping.Statement, b *mapping.BoundStatement, args []any, err error) error {
	if mapping.IsBindingError(err) || mapping.IsConfigurationError(err) || mapping.IsExecutionError(err) {
		return err
	}
	return &mapping.ExecutionError{Statement: s.ID, SQL: b.SQL, Args: args, Cause: err}
}

func (e *Executor) flush(ctx context.Context) ([]BatchResult, error) {
	results, err := e.runner.flush(ctx)
	if len(results) > 0 {
		e.logger.Debug("flushed statements", "groups", len(results), "error", err)
	}
	return results, err
}

func (e *Executor) commit(ctx context.Context, required bool) error {
	if e.closed {
		return mapping.ErrClosed
	}
	e.ClearLocalCache()
	if _, err := e.flush(ctx); err != nil {
		return err
	}
	e.runner.release()
	if required {
		if err := e.tx.Commit(); err != nil {
			return err
		}
	}
	e.tcm.Commit()
	e.logger.Debug("committed", "required", required)
	return nil
}

func (e *Executor) rollback(required bool) error {
	e.ClearLocalCache()
	e.runner.release()
	e.tcm.Rollback()
	if required {
		return e.tx.Rollback()
	}
	return nil
}

func (e *Executor) compile(ctx context.Context, s *mapping.Statement, param any) (*mapping.BoundStatement, error) {
	return middleware.Result[*mapping.BoundStatement](e.chain.Invoke(ctx, middleware.CompilerCompile, []any{s, param},
		func(_ context.Context, args []any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("compile: want 2 arguments, got %d", len(args))
			}
			s, ok := args[0].(*mapping.Statement)
			if !ok {
				return nil, fmt.Errorf("compile: statement argument is %T", args[0])
			}
			return box(e.compiler.Compile(s, args[1]))
		}))
}

func (e *Executor) bind(ctx context.Context, s *mapping.Statement, b *mapping.BoundStatement) ([]any, error) {
	return middleware.Result[[]any](e.chain.Invoke(ctx, middleware.ParametersBind, []any{b},
		func(_ context.Context, args []any) (any, error) {
			b, ok := args[0].(*mapping.BoundStatement)
			if !ok {
				return nil, fmt.Errorf("bind: bound statement argument is %T", args[0])
			}
			return box(bindArgs(e.types, s, b))
		}))
}

func (e *Executor) withTimeout(ctx context.Context, s *mapping.Statement) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = e.settings.DefaultStatementTimeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
