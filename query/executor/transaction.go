package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// IsolationDefault leaves the isolation level to the driver
	IsolationDefault IsolationLevel = iota
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

func (level IsolationLevel) String() string {
	switch level {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	case Serializable:
		return "SERIALIZABLE"
	}
	return "DEFAULT"
}

// ParseIsolationLevel parses names like "read_committed" or "SERIALIZABLE".
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	name := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for _, l := range []IsolationLevel{IsolationDefault, ReadUncommitted, ReadCommitted, RepeatableRead, Serializable} {
		if l.String() == name {
			return l, nil
		}
	}
	if name == "" {
		return IsolationDefault, nil
	}
	return 0, fmt.Errorf("unknown isolation level %q", s)
}

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// Conn is the part of *sql.DB and *sql.Tx statements run against.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Transaction hands out the connection statements run on. In auto-commit
// mode that is the pool itself; otherwise a database transaction is begun
// on first use and ended by Commit or Rollback.
type Transaction struct {
	db         *sql.DB
	opts       *sql.TxOptions
	autoCommit bool
	tx         *sql.Tx
}

// NewTransaction creates a lazy transaction over db.
func NewTransaction(db *sql.DB, opts *sql.TxOptions, autoCommit bool) *Transaction {
	return &Transaction{db: db, opts: opts, autoCommit: autoCommit}
}

// AutoCommit reports whether every statement commits on its own.
func (t *Transaction) AutoCommit() bool { return t.autoCommit }

// Active reports whether a database transaction is open.
func (t *Transaction) Active() bool { return t.tx != nil }

// Conn returns the connection to run the next statement on.
func (t *Transaction) Conn(ctx context.Context) (Conn, error) {
	if t.autoCommit {
		return t.db, nil
	}
	if t.tx == nil {
		tx, err := t.db.BeginTx(ctx, t.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		t.tx = tx
	}
	return t.tx, nil
}

// Commit commits the open transaction, if any.
func (t *Transaction) Commit() error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction, if any.
func (t *Transaction) Rollback() error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Close rolls back whatever was not committed.
func (t *Transaction) Close() error {
	return t.Rollback()
}
