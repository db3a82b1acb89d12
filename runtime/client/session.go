package client

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/eval"
	"github.com/satishbabariya/batis-go/query/executor"
)

// Session runs mapped statements for one unit of work. It owns a local
// cache and at most one open transaction, and must not be shared between
// goroutines.
type Session struct {
	registry   *mapping.Registry
	exec       *executor.Executor
	autoCommit bool
	dirty      bool
}

// ID returns the session id that appears in log records.
func (s *Session) ID() uuid.UUID { return s.exec.ID() }

// Executor returns the execution pipeline of the session.
func (s *Session) Executor() *executor.Executor { return s.exec }

// Dirty reports whether the session has uncommitted mutations.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) statement(id string) (*mapping.Statement, error) {
	if s.exec.Closed() {
		return nil, mapping.ErrClosed
	}
	return s.registry.Statement(id)
}

// SelectList runs the statement id and returns every mapped row. At most
// one RowBounds may be given. The slice belongs to the caller, but rows
// served from a shared cache are the same values for every session and
// must be treated as read-only.
func (s *Session) SelectList(ctx context.Context, id string, param any, bounds ...mapping.RowBounds) ([]any, error) {
	st, err := s.statement(id)
	if err != nil {
		return nil, err
	}
	rb := mapping.DefaultRowBounds
	switch len(bounds) {
	case 0:
	case 1:
		rb = bounds[0]
	default:
		return nil, fmt.Errorf("select %s: at most one RowBounds, got %d", id, len(bounds))
	}
	return s.exec.Query(ctx, st, param, rb)
}

// SelectOne runs the statement id and returns its single row, or nil when
// there is none. More than one row is ErrTooManyResults.
func (s *Session) SelectOne(ctx context.Context, id string, param any) (any, error) {
	list, err := s.SelectList(ctx, id, param)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, fmt.Errorf("%w: %s returned %d rows", mapping.ErrTooManyResults, id, len(list))
}

// SelectMap runs the statement id and indexes the rows by the value at
// mapKey. A later row replaces an earlier one with the same key.
func (s *Session) SelectMap(ctx context.Context, id string, param any, mapKey string) (map[any]any, error) {
	list, err := s.SelectList(ctx, id, param)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(list))
	for _, row := range list {
		k, err := eval.Get(row, mapKey)
		if err != nil {
			return nil, fmt.Errorf("select map %s: %w", id, err)
		}
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, fmt.Errorf("select map %s: key %q has uncomparable type %T", id, mapKey, k)
		}
		out[k] = row
	}
	return out, nil
}

// Insert runs an insert statement and returns the affected row count.
func (s *Session) Insert(ctx context.Context, id string, param any) (int64, error) {
	return s.Update(ctx, id, param)
}

// Update runs a mutating statement and returns the affected row count, or
// executor.BatchUpdateReturnValue in batch mode.
func (s *Session) Update(ctx context.Context, id string, param any) (int64, error) {
	st, err := s.statement(id)
	if err != nil {
		return 0, err
	}
	s.dirty = true
	return s.exec.Update(ctx, st, param)
}

// Delete runs a delete statement and returns the affected row count.
func (s *Session) Delete(ctx context.Context, id string, param any) (int64, error) {
	return s.Update(ctx, id, param)
}

// FlushStatements sends queued batch executions to the database.
func (s *Session) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	return s.exec.FlushStatements(ctx)
}

// Commit commits the session's transaction and publishes its shared cache
// updates.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.exec.Commit(ctx, !s.autoCommit); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Rollback rolls the session's transaction back and discards its shared
// cache updates.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.exec.Rollback(ctx, !s.autoCommit); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// ClearCache empties the local cache.
func (s *Session) ClearCache() { s.exec.ClearLocalCache() }

// Close ends the session. Uncommitted mutations are rolled back.
func (s *Session) Close() error {
	return s.exec.Close(!s.autoCommit && s.dirty)
}

// SelectListAs runs the statement id and converts every row to T. T may be
// the result type or a pointer to it.
func SelectListAs[T any](ctx context.Context, s *Session, id string, param any, bounds ...mapping.RowBounds) ([]T, error) {
	list, err := s.SelectList(ctx, id, param, bounds...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for _, row := range list {
		v, err := as[T](row)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SelectOneAs runs the statement id and converts its single row to T. It
// returns nil when there is no row.
func SelectOneAs[T any](ctx context.Context, s *Session, id string, param any) (*T, error) {
	row, err := s.SelectOne(ctx, id, param)
	if err != nil || row == nil {
		return nil, err
	}
	v, err := as[T](row)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", id, err)
	}
	return &v, nil
}

func as[T any](row any) (T, error) {
	if v, ok := row.(T); ok {
		return v, nil
	}
	var zero T
	t := reflect.TypeOf(zero)
	rv := reflect.ValueOf(row)
	if t != nil && t.Kind() == reflect.Pointer && rv.IsValid() && rv.Type() == t.Elem() {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p.Interface().(T), nil
	}
	return zero, fmt.Errorf("row of type %T is not %T", row, zero)
}
