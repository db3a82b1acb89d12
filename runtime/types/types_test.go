package types

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalRound(t *testing.T) {
	d, err := NewDecimal("1.005").Round(2)
	require.NoError(t, err)
	assert.Equal(t, "1.01", d.String())

	_, err = NewDecimal("abc").Round(2)
	assert.Error(t, err)
}

func TestDecimalScan(t *testing.T) {
	var d Decimal
	require.NoError(t, d.Scan([]byte("12.50")))
	assert.Equal(t, "12.50", d.String())
	require.NoError(t, d.Scan(int64(7)))
	assert.Equal(t, "7", d.String())
	require.NoError(t, d.Scan(2.5))
	assert.Equal(t, "2.5", d.String())
	assert.Error(t, d.Scan(true))

	v, err := Decimal{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBuiltinHandlers(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"decimal", "json", "string", "utc"}, r.Names())

	tests := []struct {
		name    string
		handler string
		in      any
		param   Param
		want    any
	}{
		{"json map", "json", map[string]int{"a": 1}, Param{}, `{"a":1}`},
		{"json nil", "json", nil, Param{}, nil},
		{"decimal scale", "decimal", 3.14159, Param{Scale: 2}, "3.14"},
		{"decimal int", "decimal", 42, Param{}, "42"},
		{"decimal value", "decimal", NewDecimal("9.9"), Param{Scale: 3}, "9.900"},
		{"string", "string", 12, Param{}, "12"},
		{"pass through", "", 12, Param{}, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Convert(tt.handler, tt.in, tt.param)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	loc := time.FixedZone("X", 3600)
	got, err := r.Convert("utc", time.Date(2024, 1, 1, 1, 0, 0, 0, loc), Param{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = r.Convert("nope", 1, Param{})
	assert.Error(t, err)
	_, err = r.Convert("decimal", true, Param{})
	assert.Error(t, err)
}

func TestRegistryByType(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "decimal", r.ForType(reflect.TypeOf(Decimal{})))
	assert.Equal(t, "decimal", r.ForType(reflect.TypeOf(&Decimal{})))
	assert.Equal(t, "", r.ForType(reflect.TypeOf("")))
	assert.Equal(t, "", r.ForType(nil))

	type tags []string
	r.Register("csv", HandlerFunc(func(v any, _ Param) (any, error) {
		out := ""
		for i, s := range v.(tags) {
			if i > 0 {
				out += ","
			}
			out += s
		}
		return out, nil
	}))
	r.Map(reflect.TypeOf(tags{}), "csv")
	name := r.ForType(reflect.TypeOf(tags{}))
	got, err := r.Convert(name, tags{"a", "b"}, Param{})
	require.NoError(t, err)
	assert.Equal(t, "a,b", got)
}

func TestSQLTypeOf(t *testing.T) {
	var s *string
	assert.Equal(t, "VARCHAR", SQLTypeOf(reflect.TypeOf(s)))
	assert.Equal(t, "BIGINT", SQLTypeOf(reflect.TypeOf(1)))
	assert.Equal(t, "INTEGER", SQLTypeOf(reflect.TypeOf(int32(1))))
	assert.Equal(t, "TIMESTAMP", SQLTypeOf(reflect.TypeOf(time.Time{})))
	assert.Equal(t, "BLOB", SQLTypeOf(reflect.TypeOf([]byte{})))
	assert.Equal(t, "NUMERIC", SQLTypeOf(reflect.TypeOf(Decimal{})))
	assert.Equal(t, "DOUBLE", SQLTypeOf(reflect.TypeOf(1.5)))
	assert.Equal(t, "", SQLTypeOf(nil))
}
