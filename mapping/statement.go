// Package mapping holds the loaded statement templates, settings and caches
// of a configuration, and the error taxonomy shared by every layer.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/satishbabariya/batis-go/query/ast"
)

// Kind is the statement kind.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses select, insert, update or delete.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "select", "":
		return KindSelect, nil
	case "insert":
		return KindInsert, nil
	case "update":
		return KindUpdate, nil
	case "delete":
		return KindDelete, nil
	}
	return 0, fmt.Errorf("unknown statement kind %q", s)
}

// StatementType selects how the statement is sent to the driver.
type StatementType int

const (
	Prepared StatementType = iota
	Callable
)

func (t StatementType) String() string {
	if t == Callable {
		return "callable"
	}
	return "prepared"
}

// KeyOrder places a select-key statement before or after the main statement.
type KeyOrder int

const (
	KeyAfter KeyOrder = iota
	KeyBefore
)

func (o KeyOrder) String() string {
	if o == KeyBefore {
		return "before"
	}
	return "after"
}

// SelectKeySuffix is appended to a statement id to name its select-key
// companion.
const SelectKeySuffix = "!selectKey"

// SelectKey configures a companion statement whose single result is written
// into the parameter value.
type SelectKey struct {
	StatementID string
	KeyProperty []string
	KeyColumn   []string
	Order       KeyOrder
}

// Statement is an immutable statement template.
type Statement struct {
	ID            string
	Namespace     string
	Kind          Kind
	Type          StatementType
	Root          ast.Node
	ParameterType string
	ResultType    string

	UseCache   bool
	FlushCache bool
	// Cache is the id of the shared cache unit, empty when the statement
	// does not use one.
	Cache string

	DatabaseID string
	Timeout    time.Duration
	FetchSize  int

	UseGeneratedKeys bool
	KeyProperty      []string
	KeyColumn        []string
	SelectKey        *SelectKey

	Resource string
}

// ShortID returns the id without its namespace.
func (s *Statement) ShortID() string {
	if i := strings.LastIndexByte(s.ID, '.'); i >= 0 {
		return s.ID[i+1:]
	}
	return s.ID
}

// IsSelect reports whether the statement reads rows.
func (s *Statement) IsSelect() bool { return s.Kind == KindSelect }

// Mode is the direction of a statement parameter.
type Mode int

const (
	ModeIn Mode = iota
	ModeOut
	ModeInOut
)

func (m Mode) String() string {
	switch m {
	case ModeOut:
		return "OUT"
	case ModeInOut:
		return "INOUT"
	}
	return "IN"
}

// ParseMode parses IN, OUT or INOUT.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN":
		return ModeIn, nil
	case "OUT":
		return ModeOut, nil
	case "INOUT":
		return ModeInOut, nil
	}
	return 0, fmt.Errorf("unknown parameter mode %q", s)
}

// ParameterMapping describes one positional argument of a bound statement.
type ParameterMapping struct {
	Property string
	Value    any
	GoType   reflect.Type
	SQLType  string
	Mode     Mode
	Handler  string
	Scale    int
}

// BoundStatement is a statement compiled against one parameter value.
type BoundStatement struct {
	SQL        string
	Parameters []ParameterMapping
	Parameter  any
	Additional map[string]any
}

// Values returns the argument values in placeholder order.
func (b *BoundStatement) Values() []any {
	out := make([]any, len(b.Parameters))
	for i, p := range b.Parameters {
		out[i] = p.Value
	}
	return out
}

// OutParameters returns the properties bound with mode OUT or INOUT.
func (b *BoundStatement) OutParameters() []string {
	var out []string
	for _, p := range b.Parameters {
		if p.Mode != ModeIn {
			out = append(out, p.Property)
		}
	}
	return out
}

// NoRowLimit disables the limit of RowBounds.
const NoRowLimit = 0

// RowBounds skips Offset rows and returns at most Limit rows.
type RowBounds struct {
	Offset int
	Limit  int
}

// DefaultRowBounds returns every row.
var DefaultRowBounds = RowBounds{}
