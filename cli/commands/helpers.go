package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/satishbabariya/batis-go/cli/internal/config"
	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/mapping/builder"
	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/sqlgen"
)

// resolveDialect picks the dialect from the flag, the config or the
// database url, in that order.
func resolveDialect(flagValue string, c *config.Config) (sqlgen.Dialect, error) {
	provider := flagValue
	if provider == "" {
		provider = c.Provider
	}
	if provider == "" {
		provider = sqlgen.DetectProvider(c.DatabaseURL)
	}
	if provider == "" {
		return nil, fmt.Errorf("no provider configured: set provider in .batis.yaml, BATIS_PROVIDER or --provider")
	}
	return sqlgen.Lookup(provider)
}

// loadRegistry builds and freezes the registry of the configured mapper
// directory. Without a databaseId setting, the dialect's id is used.
func loadRegistry(ctx context.Context, c *config.Config, d sqlgen.Dialect) (*mapping.Registry, error) {
	settings, err := c.MappingSettings()
	if err != nil {
		return nil, err
	}
	if settings.DatabaseID == "" && d != nil {
		settings.DatabaseID = d.DatabaseID()
	}
	return builder.Build(ctx, config.AppFs, settings, c.Mappers)
}

// parseParams decodes a JSON parameter object. Whole numbers become int64
// so they bind as integers.
func parseParams(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid --params: %w", err)
	}
	return normalizeJSON(v), nil
}

func normalizeJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeJSON(e)
		}
		return v
	}
	return v
}

// formatValue renders a bound or fetched value for a table cell.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// rowTable lays result rows out as table columns. Map rows get one column
// per key; other rows a single value column.
func rowTable(rows []any) ([]string, [][]string) {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		for k := range m {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	if len(columns) == 0 {
		out := make([][]string, len(rows))
		for i, row := range rows {
			out[i] = []string{formatValue(row)}
		}
		return []string{"value"}, out
	}
	sort.Strings(columns)
	out := make([][]string, len(rows))
	for i, row := range rows {
		m, _ := row.(map[string]any)
		cells := make([]string, len(columns))
		for j, col := range columns {
			cells[j] = formatValue(m[col])
		}
		out[i] = cells
	}
	return columns, out
}

// describeStatement renders a statement as markdown.
func describeStatement(s *mapping.Statement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.ID)
	fmt.Fprintf(&b, "| property | value |\n|---|---|\n")
	row := func(k string, v any) { fmt.Fprintf(&b, "| %s | %v |\n", k, v) }
	row("kind", s.Kind)
	row("type", s.Type)
	row("resource", s.Resource)
	if s.ResultType != "" {
		row("result type", s.ResultType)
	}
	if s.Cache != "" {
		row("cache", s.Cache)
	}
	row("use cache", s.UseCache)
	row("flush cache", s.FlushCache)
	if s.DatabaseID != "" {
		row("database id", s.DatabaseID)
	}
	if s.Timeout > 0 {
		row("timeout", s.Timeout)
	}
	if s.UseGeneratedKeys {
		row("generated keys", strings.Join(s.KeyProperty, ", "))
	}
	if s.SelectKey != nil {
		row("select key", fmt.Sprintf("%s (%s)", s.SelectKey.StatementID, s.SelectKey.Order))
	}

	props, dynamic := templateInputs(s.Root)
	if len(props) > 0 {
		b.WriteString("\n## Parameters\n\n")
		for _, p := range props {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
	}
	if dynamic {
		b.WriteString("\nThe SQL text depends on the parameter value.\n")
	}
	return b.String()
}

// templateInputs lists the properties read by the placeholders, raw
// substitutions and predicates of a template.
func templateInputs(root ast.Node) ([]string, bool) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	ast.Walk(root, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Placeholder:
			add(n.Property)
		case *ast.Raw:
			add("${" + n.Property + "}")
		case *ast.If:
			for _, p := range n.Test.Paths() {
				add(p)
			}
		case *ast.ForEach:
			add(n.Collection)
		}
		return true
	})
	return out, ast.IsDynamic(root)
}
