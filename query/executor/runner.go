package executor

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/satishbabariya/batis-go/mapping"
)

// BatchUpdateReturnValue is returned by Update in batch mode, where the
// affected row count is only known after FlushStatements.
const BatchUpdateReturnValue = math.MinInt32 + 1002

// BatchResult reports one group of queued executions sharing a statement
// and SQL text.
type BatchResult struct {
	// Batch identifies the flush that produced the result.
	Batch        uuid.UUID
	Statement    *mapping.Statement
	SQL          string
	Parameters   []any
	UpdateCounts []int64
}

// afterFunc runs once a mutation has executed.
type afterFunc func(ctx context.Context, res sql.Result) error

// runner sends compiled statements to the database.
type runner interface {
	query(ctx context.Context, conn Conn, query string, args []any) (*sql.Rows, error)
	update(ctx context.Context, conn Conn, s *mapping.Statement, b *mapping.BoundStatement, args []any, after afterFunc) (int64, error)
	flush(ctx context.Context) ([]BatchResult, error)
	// release closes held statements and drops queued work.
	release()
}

func newRunner(t mapping.ExecutorType) runner {
	switch t {
	case mapping.ExecutorReuse:
		return &reuseRunner{stmts: map[string]*sql.Stmt{}}
	case mapping.ExecutorBatch:
		return &batchRunner{}
	}
	return simpleRunner{}
}

func execAndCount(ctx context.Context, res sql.Result, err error, after afterFunc) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if after != nil {
		if err := after(ctx, res); err != nil {
			return n, err
		}
	}
	return n, nil
}

type simpleRunner struct{}

func (simpleRunner) query(ctx context.Context, conn Conn, query string, args []any) (*sql.Rows, error) {
	return conn.QueryContext(ctx, query, args...)
}

func (simpleRunner) update(ctx context.Context, conn Conn, _ *mapping.Statement, b *mapping.BoundStatement, args []any, after afterFunc) (int64, error) {
	res, err := conn.ExecContext(ctx, b.SQL, args...)
	return execAndCount(ctx, res, err, after)
}

func (simpleRunner) flush(context.Context) ([]BatchResult, error) { return nil, nil }
func (simpleRunner) release()                                     {}

// reuseRunner keeps one prepared statement per SQL text until released.
type reuseRunner struct {
	stmts map[string]*sql.Stmt
}

// prepared gets a cached prepared statement or creates a new one
func (r *reuseRunner) prepared(ctx context.Context, conn Conn, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	r.stmts[query] = stmt
	return stmt, nil
}

func (r *reuseRunner) query(ctx context.Context, conn Conn, query string, args []any) (*sql.Rows, error) {
	stmt, err := r.prepared(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

func (r *reuseRunner) update(ctx context.Context, conn Conn, _ *mapping.Statement, b *mapping.BoundStatement, args []any, after afterFunc) (int64, error) {
	stmt, err := r.prepared(ctx, conn, b.SQL)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	return execAndCount(ctx, res, err, after)
}

func (r *reuseRunner) flush(context.Context) ([]BatchResult, error) {
	r.release()
	return nil, nil
}

func (r *reuseRunner) release() {
	for query, stmt := range r.stmts {
		_ = stmt.Close()
		delete(r.stmts, query)
	}
}

// Len returns the number of prepared statements held.
func (r *reuseRunner) Len() int { return len(r.stmts) }

type batchEntry struct {
	statement *mapping.Statement
	sql       string
	stmt      *sql.Stmt
	params    []any
	args      [][]any
	after     []afterFunc
}

// batchRunner queues mutations. Consecutive additions of the same statement
// and SQL text share one prepared statement.
type batchRunner struct {
	entries []*batchEntry
}

func (r *batchRunner) query(ctx context.Context, conn Conn, query string, args []any) (*sql.Rows, error) {
	return conn.QueryContext(ctx, query, args...)
}

func (r *batchRunner) update(ctx context.Context, conn Conn, s *mapping.Statement, b *mapping.BoundStatement, args []any, after afterFunc) (int64, error) {
	var last *batchEntry
	if n := len(r.entries); n > 0 {
		last = r.entries[n-1]
	}
	if last == nil || last.statement != s || last.sql != b.SQL {
		stmt, err := conn.PrepareContext(ctx, b.SQL)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare statement: %w", err)
		}
		last = &batchEntry{statement: s, sql: b.SQL, stmt: stmt}
		r.entries = append(r.entries, last)
	}
	last.params = append(last.params, b.Parameter)
	last.args = append(last.args, args)
	last.after = append(last.after, after)
	return BatchUpdateReturnValue, nil
}

// flush executes every queued entry in submission order. On failure the
// results of the groups that completed are returned with the error.
func (r *batchRunner) flush(ctx context.Context) ([]BatchResult, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	defer r.release()

	id := uuid.New()
	results := make([]BatchResult, 0, len(r.entries))
	for _, e := range r.entries {
		result := BatchResult{Batch: id, Statement: e.statement, SQL: e.sql, Parameters: e.params}
		for i, args := range e.args {
			res, err := e.stmt.ExecContext(ctx, args...)
			n, err := execAndCount(ctx, res, err, e.after[i])
			if err != nil {
				return results, &mapping.ExecutionError{Statement: e.statement.ID, SQL: e.sql, Args: args, Cause: err}
			}
			result.UpdateCounts = append(result.UpdateCounts, n)
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *batchRunner) release() {
	for _, e := range r.entries {
		_ = e.stmt.Close()
	}
	r.entries = nil
}

// Len returns the number of queued executions.
func (r *batchRunner) Len() int {
	n := 0
	for _, e := range r.entries {
		n += len(e.args)
	}
	return n
}
