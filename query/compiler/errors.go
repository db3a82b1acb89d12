package compiler

import (
	"errors"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/ast"
)

// classify maps a template evaluation failure onto the error taxonomy: an
// unresolved include is a configuration error, anything else a binding error
// naming the property path.
func classify(s *mapping.Statement, err error) error {
	if errors.Is(err, ast.ErrUnresolvedFragment) {
		return &mapping.ConfigurationError{Resource: s.Resource, ID: s.ID, Message: "cannot compile statement", Cause: err}
	}
	path := ""
	var evalErr *ast.EvalError
	if errors.As(err, &evalErr) {
		path = evalErr.Path
	}
	return &mapping.BindingError{Statement: s.ID, Path: path, Cause: err}
}
