package sqlgen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dialect describes how one database provider spells the parts of a
// statement the compiler and executor produce themselves.
type Dialect interface {
	// Name is the canonical provider name.
	Name() string
	// DriverName is the database/sql driver the provider registers.
	DriverName() string
	// DatabaseID is the default database id selecting vendor statements.
	DatabaseID() string
	// Placeholder returns the positional marker for the n-th argument,
	// counting from 1.
	Placeholder(n int) string
	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string
	// SupportsLastInsertID reports whether sql.Result.LastInsertId works.
	SupportsLastInsertID() bool
	// Returning returns the clause appended to an insert to read back
	// generated columns, or "" when the provider has none.
	Returning(columns []string) string
}

// PostgresDialect is PostgreSQL: $n placeholders, RETURNING for keys.
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return "postgresql" }
func (PostgresDialect) DriverName() string { return "postgres" }
func (PostgresDialect) DatabaseID() string { return "postgresql" }

func (PostgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// QuoteIdentifier quotes an identifier for PostgreSQL
func (PostgresDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(name, `"`, `""`))
}

func (PostgresDialect) SupportsLastInsertID() bool { return false }

func (d PostgresDialect) Returning(columns []string) string {
	return returning(d, columns)
}

// MySQLDialect is MySQL and MariaDB.
type MySQLDialect struct{}

func (MySQLDialect) Name() string               { return "mysql" }
func (MySQLDialect) DriverName() string         { return "mysql" }
func (MySQLDialect) DatabaseID() string         { return "mysql" }
func (MySQLDialect) Placeholder(int) string     { return "?" }
func (MySQLDialect) SupportsLastInsertID() bool { return true }
func (MySQLDialect) Returning([]string) string  { return "" }

func (MySQLDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}

// SQLiteDialect is SQLite through mattn/go-sqlite3.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string               { return "sqlite" }
func (SQLiteDialect) DriverName() string         { return "sqlite3" }
func (SQLiteDialect) DatabaseID() string         { return "sqlite" }
func (SQLiteDialect) Placeholder(int) string     { return "?" }
func (SQLiteDialect) SupportsLastInsertID() bool { return true }

func (SQLiteDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(name, `"`, `""`))
}

func (d SQLiteDialect) Returning(columns []string) string {
	return returning(d, columns)
}

// SQLServerDialect is Microsoft SQL Server. No driver is bundled; it is
// available for rendering statements.
type SQLServerDialect struct{}

func (SQLServerDialect) Name() string               { return "sqlserver" }
func (SQLServerDialect) DriverName() string         { return "sqlserver" }
func (SQLServerDialect) DatabaseID() string         { return "sqlserver" }
func (SQLServerDialect) Placeholder(n int) string   { return fmt.Sprintf("@p%d", n) }
func (SQLServerDialect) SupportsLastInsertID() bool { return false }
func (SQLServerDialect) Returning([]string) string  { return "" }

// QuoteIdentifier quotes identifiers for SQL Server
func (SQLServerDialect) QuoteIdentifier(name string) string {
	return fmt.Sprintf("[%s]", strings.ReplaceAll(name, "]", "]]"))
}

func returning(d Dialect, columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return " RETURNING " + strings.Join(quoted, ", ")
}

var aliases = map[string]Dialect{
	"postgresql": PostgresDialect{},
	"postgres":   PostgresDialect{},
	"pgx":        PostgresDialect{},
	"mysql":      MySQLDialect{},
	"mariadb":    MySQLDialect{},
	"sqlite":     SQLiteDialect{},
	"sqlite3":    SQLiteDialect{},
	"sqlserver":  SQLServerDialect{},
	"mssql":      SQLServerDialect{},
}

// Lookup returns the dialect for a provider or driver name.
func Lookup(provider string) (Dialect, error) {
	if d, ok := aliases[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported provider %q (supported: %s)", provider, strings.Join(Providers(), ", "))
}

// MustLookup is Lookup that panics on an unknown provider.
func MustLookup(provider string) Dialect {
	d, err := Lookup(provider)
	if err != nil {
		panic(err)
	}
	return d
}

// Providers lists the accepted provider names.
func Providers() []string {
	names := make([]string, 0, len(aliases))
	for n := range aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DetectProvider guesses the provider from a connection URL.
func DetectProvider(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgresql"
	case strings.HasPrefix(url, "mysql://"):
		return "mysql"
	case strings.HasPrefix(url, "sqlserver://"):
		return "sqlserver"
	case strings.HasPrefix(url, "file:"), strings.HasPrefix(url, "sqlite://"),
		strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"), url == ":memory:":
		return "sqlite"
	}
	return ""
}

// DataSourceName converts a connection URL into the form the provider's
// driver expects.
func DataSourceName(provider, url string) string {
	switch provider {
	case "mysql":
		return strings.TrimPrefix(url, "mysql://")
	case "sqlite", "sqlite3":
		if strings.HasPrefix(url, "sqlite://") {
			return strings.TrimPrefix(url, "sqlite://")
		}
	}
	return url
}
