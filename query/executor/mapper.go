package executor

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/eval"
)

var (
	mapType     = reflect.TypeOf(map[string]any{})
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// ResultMapper maps result rows onto values of a result type: maps keyed by
// column name, structs matched by db tag or field name, or a scalar taken
// from the first column.
type ResultMapper struct {
	underscoreToCamel bool
	plans             sync.Map // planKey -> []fieldPlan
}

// NewResultMapper creates a mapper. With underscoreToCamel, column user_name
// also matches field UserName.
func NewResultMapper(underscoreToCamel bool) *ResultMapper {
	return &ResultMapper{underscoreToCamel: underscoreToCamel}
}

// Map reads rows within bounds into values of type t. A nil t maps to
// map[string]any.
func (m *ResultMapper) Map(rows *sql.Rows, t reflect.Type, bounds mapping.RowBounds) ([]any, error) {
	if t == nil {
		t = mapType
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	binary := make([]bool, len(columnTypes))
	for i, ct := range columnTypes {
		binary[i] = isBinary(ct.DatabaseTypeName())
	}

	var convert func(values []any) (any, error)
	switch {
	case t.Kind() == reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("result type %s must have string keys", t)
		}
		convert = func(values []any) (any, error) { return mapRow(t, columns, binary, values) }
	case isStruct(t):
		plan := m.plan(t, columns)
		convert = func(values []any) (any, error) { return structRow(t, plan, values) }
	default:
		if len(columns) == 0 {
			return nil, mapping.Configf("", "", "result type %s needs at least one column", t)
		}
		convert = func(values []any) (any, error) {
			out := reflect.New(t).Elem()
			if err := eval.Assign(out, values[0]); err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[0], err)
			}
			return out.Interface(), nil
		}
	}

	for skipped := 0; skipped < bounds.Offset; skipped++ {
		if !rows.Next() {
			return []any{}, rows.Err()
		}
	}

	results := []any{}
	holders := make([]any, len(columns))
	values := make([]any, len(columns))
	for i := range holders {
		holders[i] = &values[i]
	}
	for rows.Next() {
		if bounds.Limit > mapping.NoRowLimit && len(results) >= bounds.Limit {
			break
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		v, err := convert(values)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func isStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != timeType && !reflect.PointerTo(t).Implements(scannerType)
}

func isBinary(dbType string) bool {
	dbType = strings.ToUpper(dbType)
	for _, s := range []string{"BLOB", "BINARY", "BYTEA", "IMAGE"} {
		if strings.Contains(dbType, s) {
			return true
		}
	}
	return false
}

func mapRow(t reflect.Type, columns []string, binary []bool, values []any) (any, error) {
	out := reflect.MakeMapWithSize(t, len(columns))
	for i, col := range columns {
		v := values[i]
		if b, ok := v.([]byte); ok && !binary[i] {
			v = string(b)
		}
		elem := reflect.New(t.Elem()).Elem()
		if err := eval.Assign(elem, v); err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out.SetMapIndex(reflect.ValueOf(col).Convert(t.Key()), elem)
	}
	return out.Interface(), nil
}

// fieldPlan maps one result column onto a struct field. A nil index
// discards the column.
type fieldPlan struct {
	column string
	index  []int
}

type planKey struct {
	t       reflect.Type
	columns string
}

func (m *ResultMapper) plan(t reflect.Type, columns []string) []fieldPlan {
	key := planKey{t: t, columns: strings.Join(columns, "\x00")}
	if p, ok := m.plans.Load(key); ok {
		return p.([]fieldPlan)
	}
	plan := make([]fieldPlan, len(columns))
	for i, col := range columns {
		plan[i] = fieldPlan{column: col}
		if f, ok := m.findField(t, col); ok {
			plan[i].index = f.Index
		}
	}
	m.plans.Store(key, plan)
	return plan
}

// findField finds a struct field by database column name (db tag or field name)
func (m *ResultMapper) findField(t reflect.Type, column string) (reflect.StructField, bool) {
	fields := mappableFields(t)
	// db tag first, then the field name
	for _, f := range fields {
		if tag := strings.Split(f.Tag.Get("db"), ",")[0]; tag != "" && tag == column {
			return f, true
		}
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, column) {
			return f, true
		}
	}
	if m.underscoreToCamel {
		camel := strings.ReplaceAll(column, "_", "")
		for _, f := range fields {
			if strings.EqualFold(f.Name, camel) {
				return f, true
			}
		}
	}
	return reflect.StructField{}, false
}

// mappableFields returns the exported fields of t, including those promoted
// through embedded structs that are not pointers.
func mappableFields(t reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Tag.Get("db") == "-" {
			continue
		}
		if f.Anonymous && isStruct(f.Type) {
			continue
		}
		if viaPointer(t, f.Index) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func viaPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

func structRow(t reflect.Type, plan []fieldPlan, values []any) (any, error) {
	out := reflect.New(t).Elem()
	for i, p := range plan {
		if p.index == nil {
			continue
		}
		if err := eval.Assign(out.FieldByIndex(p.index), values[i]); err != nil {
			return nil, fmt.Errorf("column %s: %w", p.column, err)
		}
	}
	return out.Interface(), nil
}

// singleRow reads exactly one row, returning its columns and values.
func singleRow(rows *sql.Rows) ([]string, []any, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, sql.ErrNoRows
	}
	values := make([]any, len(columns))
	holders := make([]any, len(columns))
	for i := range holders {
		holders[i] = &values[i]
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, nil, err
	}
	if rows.Next() {
		return nil, nil, mapping.ErrTooManyResults
	}
	return columns, values, rows.Err()
}
