package builder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/expr"
)

// Document is the decoded form of one mapper file.
type Document struct {
	Version    string         `yaml:"version"`
	Namespace  string         `yaml:"namespace"`
	Cache      *CacheConfig   `yaml:"cache,omitempty"`
	CacheRef   string         `yaml:"cacheRef,omitempty"`
	Fragments  []FragmentDoc  `yaml:"fragments,omitempty"`
	Statements []StatementDoc `yaml:"statements"`
}

// CacheConfig declares the shared cache of a namespace.
type CacheConfig struct {
	Eviction string `yaml:"eviction,omitempty"`
	Size     int    `yaml:"size,omitempty"`
	TTL      string `yaml:"ttl,omitempty"`
}

// FragmentDoc is a reusable sql body.
type FragmentDoc struct {
	ID         string    `yaml:"id"`
	DatabaseID string    `yaml:"databaseId,omitempty"`
	SQL        yaml.Node `yaml:"sql"`
}

// StatementDoc is one mapped statement. Unset booleans take the defaults of
// the statement kind.
type StatementDoc struct {
	ID               string        `yaml:"id"`
	Kind             string        `yaml:"kind"`
	StatementType    string        `yaml:"statementType,omitempty"`
	ParameterType    string        `yaml:"parameterType,omitempty"`
	ResultType       string        `yaml:"resultType,omitempty"`
	UseCache         *bool         `yaml:"useCache,omitempty"`
	FlushCache       *bool         `yaml:"flushCache,omitempty"`
	Timeout          string        `yaml:"timeout,omitempty"`
	FetchSize        int           `yaml:"fetchSize,omitempty"`
	DatabaseID       string        `yaml:"databaseId,omitempty"`
	UseGeneratedKeys *bool         `yaml:"useGeneratedKeys,omitempty"`
	KeyProperty      string        `yaml:"keyProperty,omitempty"`
	KeyColumn        string        `yaml:"keyColumn,omitempty"`
	SelectKey        *SelectKeyDoc `yaml:"selectKey,omitempty"`
	SQL              yaml.Node     `yaml:"sql"`
}

// SelectKeyDoc declares the key statement run before or after an insert.
type SelectKeyDoc struct {
	Order       string    `yaml:"order,omitempty"`
	KeyProperty string    `yaml:"keyProperty"`
	KeyColumn   string    `yaml:"keyColumn,omitempty"`
	ResultType  string    `yaml:"resultType,omitempty"`
	SQL         yaml.Node `yaml:"sql"`
}

type ifDoc struct {
	Test string    `yaml:"test"`
	SQL  yaml.Node `yaml:"sql"`
}

type chooseDoc struct {
	When      []ifDoc   `yaml:"when"`
	Otherwise yaml.Node `yaml:"otherwise,omitempty"`
}

type trimDoc struct {
	Prefix          string    `yaml:"prefix,omitempty"`
	Suffix          string    `yaml:"suffix,omitempty"`
	PrefixOverrides string    `yaml:"prefixOverrides,omitempty"`
	SuffixOverrides string    `yaml:"suffixOverrides,omitempty"`
	SQL             yaml.Node `yaml:"sql"`
}

type foreachDoc struct {
	Collection string    `yaml:"collection"`
	Item       string    `yaml:"item,omitempty"`
	Index      string    `yaml:"index,omitempty"`
	Open       string    `yaml:"open,omitempty"`
	Close      string    `yaml:"close,omitempty"`
	Separator  string    `yaml:"separator,omitempty"`
	Nullable   *bool     `yaml:"nullable,omitempty"`
	SQL        yaml.Node `yaml:"sql"`
}

type bindDoc struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// ParseSQL converts an sql body into a node tree. A body is a string, a
// list of bodies, or a single-key mapping naming a control node: if,
// choose, where, set, trim, foreach, bind or include.
func ParseSQL(n *yaml.Node) (ast.Node, error) {
	switch n.Kind {
	case 0:
		return nil, fmt.Errorf("missing sql")
	case yaml.ScalarNode:
		return parseText(n)
	case yaml.SequenceNode:
		seq := make(ast.Sequence, 0, len(n.Content))
		for i, item := range n.Content {
			child, err := parseItem(item, i < len(n.Content)-1)
			if err != nil {
				return nil, err
			}
			seq = append(seq, child)
		}
		return seq, nil
	case yaml.MappingNode:
		return parseControl(n)
	case yaml.AliasNode:
		return ParseSQL(n.Alias)
	}
	return nil, lineErr(n, "unexpected sql node")
}

func parseItem(n *yaml.Node, more bool) (ast.Node, error) {
	if n.Kind != yaml.ScalarNode || !more {
		return ParseSQL(n)
	}
	// Keep consecutive text items apart.
	value := n.Value
	if value != "" && !strings.ContainsAny(value[len(value)-1:], " \t\r\n") {
		value += "\n"
	}
	return parseString(n, value)
}

func parseText(n *yaml.Node) (ast.Node, error) {
	return parseString(n, n.Value)
}

func parseString(n *yaml.Node, s string) (ast.Node, error) {
	node, err := ast.ParseText(s)
	if err != nil {
		return nil, lineErr(n, "%v", err)
	}
	return node, nil
}

func parseControl(n *yaml.Node) (ast.Node, error) {
	if len(n.Content) != 2 {
		return nil, lineErr(n, "a control node has exactly one key")
	}
	key, body := n.Content[0].Value, n.Content[1]
	switch key {
	case "if":
		var d ifDoc
		if err := decode(body, &d); err != nil {
			return nil, err
		}
		return parseIf(body, d)
	case "choose":
		var d chooseDoc
		if err := decode(body, &d); err != nil {
			return nil, err
		}
		if len(d.When) == 0 {
			return nil, lineErr(body, "choose without when")
		}
		c := &ast.Choose{}
		for _, w := range d.When {
			branch, err := parseIf(body, w)
			if err != nil {
				return nil, err
			}
			c.When = append(c.When, branch)
		}
		if d.Otherwise.Kind != 0 {
			other, err := ParseSQL(&d.Otherwise)
			if err != nil {
				return nil, err
			}
			c.Otherwise = other
		}
		return c, nil
	case "where", "set":
		inner, err := ParseSQL(body)
		if err != nil {
			return nil, err
		}
		if key == "where" {
			return ast.Where(inner), nil
		}
		return ast.Set(inner), nil
	case "trim":
		var d trimDoc
		if err := decode(body, &d); err != nil {
			return nil, err
		}
		inner, err := ParseSQL(&d.SQL)
		if err != nil {
			return nil, err
		}
		return &ast.Trim{
			Prefix:          d.Prefix,
			Suffix:          d.Suffix,
			PrefixOverrides: overrides(d.PrefixOverrides),
			SuffixOverrides: overrides(d.SuffixOverrides),
			Body:            inner,
		}, nil
	case "foreach":
		var d foreachDoc
		if err := decode(body, &d); err != nil {
			return nil, err
		}
		if d.Collection == "" {
			return nil, lineErr(body, "foreach without collection")
		}
		inner, err := ParseSQL(&d.SQL)
		if err != nil {
			return nil, err
		}
		return &ast.ForEach{
			Collection: d.Collection,
			Item:       d.Item,
			Index:      d.Index,
			Open:       d.Open,
			Close:      d.Close,
			Separator:  d.Separator,
			Nullable:   d.Nullable,
			Body:       inner,
		}, nil
	case "bind":
		var d bindDoc
		if err := decode(body, &d); err != nil {
			return nil, err
		}
		if d.Name == "" {
			return nil, lineErr(body, "bind without name")
		}
		e, err := expr.Compile(d.Value)
		if err != nil {
			return nil, lineErr(body, "bind %s: %v", d.Name, err)
		}
		return &ast.Bind{Name: d.Name, Value: e}, nil
	case "include":
		if body.Kind != yaml.ScalarNode || body.Value == "" {
			return nil, lineErr(body, "include takes a fragment id")
		}
		return &ast.Include{RefID: body.Value}, nil
	}
	return nil, lineErr(n, "unknown control node %q", key)
}

func parseIf(n *yaml.Node, d ifDoc) (*ast.If, error) {
	if d.Test == "" {
		return nil, lineErr(n, "missing test")
	}
	e, err := expr.Compile(d.Test)
	if err != nil {
		return nil, lineErr(n, "test %q: %v", d.Test, err)
	}
	body, err := ParseSQL(&d.SQL)
	if err != nil {
		return nil, err
	}
	return &ast.If{Test: e, Body: body}, nil
}

// overrides splits a pipe separated override list. Spaces are kept, so
// "AND |OR " matches only whole words.
func overrides(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration accepts a Go duration or a whole number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}

func decode(n *yaml.Node, v any) error {
	if n.Kind != yaml.MappingNode {
		return lineErr(n, "expected a mapping")
	}
	if err := n.Decode(v); err != nil {
		return lineErr(n, "%v", err)
	}
	return nil
}

func lineErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}
