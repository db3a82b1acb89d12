// Package client provides the session API for running mapped statements.
package client

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/executor"
	"github.com/satishbabariya/batis-go/query/middleware"
	"github.com/satishbabariya/batis-go/query/sqlgen"
)

// SessionFactory opens sessions over one database and one frozen registry.
// It is safe for concurrent use; the sessions it opens are not.
type SessionFactory struct {
	db       *sql.DB
	ownsDB   bool
	dialect  sqlgen.Dialect
	registry *mapping.Registry
	chain    *middleware.Chain
	config   Config
}

// Open connects to the database at url and creates a session factory for
// reg, freezing it if needed.
func Open(reg *mapping.Registry, provider, url string, opts ...Option) (*SessionFactory, error) {
	d, err := sqlgen.Lookup(provider)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), sqlgen.DataSourceName(provider, url))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name(), err)
	}
	f, err := NewSessionFactory(reg, db, d, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	f.ownsDB = true
	db.SetMaxOpenConns(f.config.MaxOpenConns)
	db.SetMaxIdleConns(f.config.MaxIdleConns)
	db.SetConnMaxLifetime(f.config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(f.config.ConnMaxIdleTime)
	return f, nil
}

// NewSessionFactory creates a session factory from an existing database
// connection. The caller keeps ownership of db.
func NewSessionFactory(reg *mapping.Registry, db *sql.DB, d sqlgen.Dialect, opts ...Option) (*SessionFactory, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if !reg.Frozen() {
		if err := reg.Freeze(); err != nil {
			return nil, err
		}
	}
	return &SessionFactory{
		db:       db,
		dialect:  d,
		registry: reg,
		chain:    middleware.NewChain(config.Interceptors...),
		config:   config,
	}, nil
}

// Registry returns the statement registry.
func (f *SessionFactory) Registry() *mapping.Registry { return f.registry }

// Dialect returns the database dialect.
func (f *SessionFactory) Dialect() sqlgen.Dialect { return f.dialect }

// DB returns the underlying database connection
func (f *SessionFactory) DB() *sql.DB { return f.db }

// Ping verifies the database connection
func (f *SessionFactory) Ping(ctx context.Context) error {
	return f.db.PingContext(ctx)
}

// Close closes the database connection when the factory opened it.
func (f *SessionFactory) Close() error {
	if !f.ownsDB {
		return nil
	}
	return f.db.Close()
}

// OpenSession opens a session. Sessions do not auto-commit unless asked to.
func (f *SessionFactory) OpenSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sc sessionConfig
	for _, opt := range opts {
		opt(&sc)
	}
	var txOpts *sql.TxOptions
	if sc.isolation != executor.IsolationDefault || sc.readOnly {
		txOpts = executor.NewTxOptions(sc.isolation, sc.readOnly)
	}
	execOpts := []executor.Option{executor.WithChain(f.chain)}
	if sc.executorType != nil {
		execOpts = append(execOpts, executor.WithExecutorType(*sc.executorType))
	}
	if f.config.Logger != nil {
		execOpts = append(execOpts, executor.WithLogger(f.config.Logger))
	}
	tx := executor.NewTransaction(f.db, txOpts, sc.autoCommit)
	return &Session{
		registry:   f.registry,
		exec:       executor.New(f.registry, f.dialect, tx, execOpts...),
		autoCommit: sc.autoCommit,
	}, nil
}

// InSession runs fn in a new session and commits when fn returns nil.
// If fn returns an error or panics, the session is rolled back.
func (f *SessionFactory) InSession(ctx context.Context, fn func(*Session) error, opts ...SessionOption) (err error) {
	s, err := f.OpenSession(ctx, append(opts, AutoCommit(false))...)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback(ctx)
			_ = s.Close()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(s); err != nil {
		if rbErr := s.Rollback(ctx); rbErr != nil {
			err = fmt.Errorf("session error: %v, rollback error: %w", err, rbErr)
		}
		_ = s.Close()
		return err
	}
	if err := s.Commit(ctx); err != nil {
		_ = s.Close()
		return err
	}
	return s.Close()
}
