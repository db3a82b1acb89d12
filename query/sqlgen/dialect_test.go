package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		provider, name, driver, placeholder string
	}{
		{"postgresql", "postgresql", "postgres", "$3"},
		{"Postgres", "postgresql", "postgres", "$3"},
		{"mysql", "mysql", "mysql", "?"},
		{"sqlite", "sqlite", "sqlite3", "?"},
		{"sqlite3", "sqlite", "sqlite3", "?"},
		{"mssql", "sqlserver", "sqlserver", "@p3"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			d, err := Lookup(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
			assert.Equal(t, tt.driver, d.DriverName())
			assert.Equal(t, tt.placeholder, d.Placeholder(3))
		})
	}

	_, err := Lookup("oracle")
	assert.ErrorContains(t, err, "unsupported provider")
	assert.Panics(t, func() { MustLookup("oracle") })
}

func TestQuoteAndReturning(t *testing.T) {
	assert.Equal(t, `"user"`, PostgresDialect{}.QuoteIdentifier("user"))
	assert.Equal(t, "`a``b`", MySQLDialect{}.QuoteIdentifier("a`b"))
	assert.Equal(t, "[order]", SQLServerDialect{}.QuoteIdentifier("order"))

	assert.Equal(t, ` RETURNING "id", "created_at"`, PostgresDialect{}.Returning([]string{"id", "created_at"}))
	assert.Equal(t, "", PostgresDialect{}.Returning(nil))
	assert.Equal(t, "", MySQLDialect{}.Returning([]string{"id"}))
	assert.True(t, SQLiteDialect{}.SupportsLastInsertID())
	assert.False(t, PostgresDialect{}.SupportsLastInsertID())
}

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, "postgresql", DetectProvider("postgres://u@localhost/db"))
	assert.Equal(t, "mysql", DetectProvider("mysql://u@tcp(localhost)/db"))
	assert.Equal(t, "sqlite", DetectProvider("file:test.db"))
	assert.Equal(t, "sqlite", DetectProvider("app.db"))
	assert.Equal(t, "", DetectProvider("redis://x"))

	assert.Equal(t, "u@tcp(localhost)/db", DataSourceName("mysql", "mysql://u@tcp(localhost)/db"))
	assert.Equal(t, "app.db", DataSourceName("sqlite", "sqlite://app.db"))
	assert.Equal(t, "postgres://x", DataSourceName("postgresql", "postgres://x"))
}
