package client

import (
	"log/slog"
	"time"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/executor"
	"github.com/satishbabariya/batis-go/query/middleware"
)

// Config holds the connection pool and pipeline settings of a
// SessionFactory.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	Interceptors []middleware.Interceptor
	Logger       *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// Option configures a SessionFactory.
type Option func(*Config)

// WithMaxOpenConns limits the number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *Config) { c.MaxOpenConns = n }
}

// WithMaxIdleConns limits the number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *Config) { c.MaxIdleConns = n }
}

// WithConnMaxLifetime closes connections older than d.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *Config) { c.ConnMaxLifetime = d }
}

// WithConnMaxIdleTime closes connections idle for longer than d.
func WithConnMaxIdleTime(d time.Duration) Option {
	return func(c *Config) { c.ConnMaxIdleTime = d }
}

// WithInterceptors appends interceptors to the chain of every session.
// The first one given is the outermost.
func WithInterceptors(is ...middleware.Interceptor) Option {
	return func(c *Config) { c.Interceptors = append(c.Interceptors, is...) }
}

// WithLogger sets the logger handed to sessions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

type sessionConfig struct {
	autoCommit   bool
	executorType *mapping.ExecutorType
	isolation    executor.IsolationLevel
	readOnly     bool
}

// SessionOption configures one session.
type SessionOption func(*sessionConfig)

// AutoCommit makes every statement commit on its own.
func AutoCommit(on bool) SessionOption {
	return func(c *sessionConfig) { c.autoCommit = on }
}

// WithExecutorType overrides the defaultExecutorType setting.
func WithExecutorType(t mapping.ExecutorType) SessionOption {
	return func(c *sessionConfig) { c.executorType = &t }
}

// WithIsolation sets the isolation level of the session's transactions.
func WithIsolation(level executor.IsolationLevel) SessionOption {
	return func(c *sessionConfig) { c.isolation = level }
}

// ReadOnly begins read-only transactions.
func ReadOnly() SessionOption {
	return func(c *sessionConfig) { c.readOnly = true }
}
