package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/eval"
)

// keyColumns returns the columns holding generated keys, defaulting to the
// key properties.
func keyColumns(s *mapping.Statement) []string {
	if len(s.KeyColumn) > 0 {
		return s.KeyColumn
	}
	return s.KeyProperty
}

func wantsGeneratedKeys(s *mapping.Statement) bool {
	return s.UseGeneratedKeys && len(s.KeyProperty) > 0
}

// usesReturning reports whether generated keys must be read from a
// RETURNING clause because the driver has no LastInsertId.
func (e *Executor) usesReturning(s *mapping.Statement) bool {
	return wantsGeneratedKeys(s) && !e.dialect.SupportsLastInsertID() && e.dialect.Returning(keyColumns(s)) != ""
}

// lastInsertID writes the id reported by the driver into the first key
// property.
func (e *Executor) lastInsertID(s *mapping.Statement, param any, res sql.Result) error {
	if !wantsGeneratedKeys(s) || !e.dialect.SupportsLastInsertID() {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &mapping.ExecutionError{Statement: s.ID, Cause: fmt.Errorf("reading generated key: %w", err)}
	}
	if err := eval.Set(param, s.KeyProperty[0], id); err != nil {
		return &mapping.BindingError{Statement: s.ID, Path: s.KeyProperty[0], Cause: err}
	}
	return nil
}

// setKeys copies the values of one result row into the key properties.
// A single property with no key column takes the first column.
func setKeys(s *mapping.Statement, param any, properties, keyCols, columns []string, values []any) error {
	if len(properties) == 1 && len(keyCols) == 0 {
		if err := eval.Set(param, properties[0], values[0]); err != nil {
			return &mapping.BindingError{Statement: s.ID, Path: properties[0], Cause: err}
		}
		return nil
	}
	for i, property := range properties {
		col := property
		if i < len(keyCols) {
			col = keyCols[i]
		}
		idx := -1
		for j, c := range columns {
			if strings.EqualFold(c, col) {
				idx = j
				break
			}
		}
		if idx < 0 {
			return &mapping.BindingError{Statement: s.ID, Path: property, Cause: fmt.Errorf("no key column %q in %v", col, columns)}
		}
		if err := eval.Set(param, property, values[idx]); err != nil {
			return &mapping.BindingError{Statement: s.ID, Path: property, Cause: err}
		}
	}
	return nil
}

// updateReturning runs a mutation with a RETURNING clause for its key
// columns and writes every returned row into the parameter.
func (e *Executor) updateReturning(ctx context.Context, conn Conn, s *mapping.Statement, b *mapping.BoundStatement, args []any) (int64, error) {
	cols := keyColumns(s)
	rows, err := conn.QueryContext(ctx, b.SQL+e.dialect.Returning(cols), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	var n int64
	for rows.Next() {
		values := make([]any, len(columns))
		holders := make([]any, len(columns))
		for i := range holders {
			holders[i] = &values[i]
		}
		if err := rows.Scan(holders...); err != nil {
			return n, err
		}
		if n == 0 {
			if err := setKeys(s, b.Parameter, s.KeyProperty, cols, columns, values); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, rows.Err()
}

// selectKey runs the select-key companion of s and writes its single row
// into the parameter.
func (e *Executor) selectKey(ctx context.Context, s *mapping.Statement, param any) error {
	sk := s.SelectKey
	ks, err := e.registry.Statement(sk.StatementID)
	if err != nil {
		return mapping.Configf(s.Resource, s.ID, "select key: %v", err)
	}
	b, err := e.compile(ctx, ks, param)
	if err != nil {
		return err
	}
	args, err := e.bind(ctx, ks, b)
	if err != nil {
		return err
	}
	conn, err := e.tx.Conn(ctx)
	if err != nil {
		return &mapping.ExecutionError{Statement: ks.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	e.logger.Debug("select key", "statement", ks.ID, "order", sk.Order.String(), "sql", b.SQL, "args", args)
	rows, err := conn.QueryContext(ctx, b.SQL, args...)
	if err != nil {
		return &mapping.ExecutionError{Statement: ks.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	columns, values, err := singleRow(rows)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &mapping.ExecutionError{Statement: ks.ID, SQL: b.SQL, Args: args, Cause: errors.New("select key returned no rows")}
	case err != nil:
		return &mapping.ExecutionError{Statement: ks.ID, SQL: b.SQL, Args: args, Cause: err}
	}
	return setKeys(s, param, sk.KeyProperty, sk.KeyColumn, columns, values)
}
