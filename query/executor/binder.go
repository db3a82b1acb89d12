package executor

import (
	"database/sql"
	"maps"
	"slices"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/eval"
	"github.com/satishbabariya/batis-go/runtime/types"
)

// bindArgs converts the parameter mappings of b into driver arguments,
// applying type handlers. Output parameters are passed as sql.Out.
func bindArgs(reg *types.Registry, s *mapping.Statement, b *mapping.BoundStatement) ([]any, error) {
	args := make([]any, len(b.Parameters))
	for i, p := range b.Parameters {
		v, err := reg.Convert(p.Handler, p.Value, types.Param{SQLType: p.SQLType, Scale: p.Scale})
		if err != nil {
			return nil, &mapping.BindingError{Statement: s.ID, Path: p.Property, Cause: err}
		}
		if p.Mode == mapping.ModeIn {
			args[i] = v
			continue
		}
		dest := new(any)
		*dest = v
		args[i] = sql.Out{Dest: dest, In: p.Mode == mapping.ModeInOut}
	}
	return args, nil
}

// outputs collects the values drivers wrote into output parameters, keyed
// by property.
func outputs(b *mapping.BoundStatement, args []any) map[string]any {
	var out map[string]any
	for i, p := range b.Parameters {
		if p.Mode == mapping.ModeIn || i >= len(args) {
			continue
		}
		o, ok := args[i].(sql.Out)
		if !ok {
			continue
		}
		dest, ok := o.Dest.(*any)
		if !ok {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[p.Property] = *dest
	}
	return out
}

// writeOutputs stores output parameter values back into the parameter.
func writeOutputs(s *mapping.Statement, param any, values map[string]any) error {
	for _, property := range slices.Sorted(maps.Keys(values)) {
		if err := eval.Set(param, property, values[property]); err != nil {
			return &mapping.BindingError{Statement: s.ID, Path: property, Cause: err}
		}
	}
	return nil
}
