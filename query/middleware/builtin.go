package middleware

import (
	"log/slog"
	"time"

	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/mapping"
)

// Event describes one intercepted call after it returned.
type Event struct {
	Signature Signature
	Statement string
	Duration  time.Duration
	Error     error
}

// statementOf returns the id of the statement argument of an operation, if
// it has one.
func statementOf(args []any) string {
	for _, a := range args {
		if s, ok := a.(*mapping.Statement); ok {
			return s.ID
		}
	}
	return ""
}

func observe(inv *Invocation, fn func(Event)) (any, error) {
	start := time.Now()
	out, err := inv.Proceed()
	fn(Event{
		Signature: inv.Signature,
		Statement: statementOf(inv.Args),
		Duration:  time.Since(start),
		Error:     err,
	})
	return out, err
}

// Logging creates an interceptor that logs every call of the given
// operations, all executor operations when none are given.
func Logging(logger *slog.Logger, sigs ...Signature) Interceptor {
	if len(sigs) == 0 {
		sigs = []Signature{ExecutorQuery, ExecutorUpdate, ExecutorFlushStatements, ExecutorCommit, ExecutorRollback}
	}
	return Func(func(inv *Invocation) (any, error) {
		l := debug.Or(logger)
		l.Debug("invoking", "op", inv.Signature.String(), "statement", statementOf(inv.Args))
		return observe(inv, func(e Event) {
			if e.Error != nil {
				l.Warn("operation failed", "op", e.Signature.String(), "statement", e.Statement, "error", e.Error)
				return
			}
			l.Debug("operation completed", "op", e.Signature.String(), "statement", e.Statement, "duration", e.Duration)
		})
	}, sigs...)
}

// Timing creates an interceptor that reports the duration of every query
// and update.
func Timing(onTiming func(e Event)) Interceptor {
	return Func(func(inv *Invocation) (any, error) {
		return observe(inv, func(e Event) {
			if onTiming != nil {
				onTiming(e)
			}
		})
	}, ExecutorQuery, ExecutorUpdate)
}

// Errors creates an interceptor that reports failed queries and updates.
func Errors(onError func(e Event)) Interceptor {
	return Func(func(inv *Invocation) (any, error) {
		return observe(inv, func(e Event) {
			if e.Error != nil && onError != nil {
				onError(e)
			}
		})
	}, ExecutorQuery, ExecutorUpdate, ExecutorFlushStatements)
}

// SlowQuery creates an interceptor that warns about queries and updates
// taking longer than threshold.
func SlowQuery(logger *slog.Logger, threshold time.Duration) Interceptor {
	return Timing(func(e Event) {
		if e.Duration >= threshold {
			debug.Or(logger).Warn("slow statement", "statement", e.Statement, "duration", e.Duration, "threshold", threshold)
		}
	})
}
