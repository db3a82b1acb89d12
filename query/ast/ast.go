// Package ast defines the control node tree of a statement template.
//
// A template is parsed once at load time into an immutable tree. Each
// compilation walks the tree with a fresh Context via Apply.
package ast

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/batis-go/query/expr"
)

// Node is one node of a template tree. The set of implementations is closed;
// Apply switches over it.
type Node interface {
	Type() NodeType
}

// NodeType identifies the node variant
type NodeType string

const (
	NodeTypeText        NodeType = "Text"
	NodeTypePlaceholder NodeType = "Placeholder"
	NodeTypeRaw         NodeType = "Raw"
	NodeTypeSequence    NodeType = "Sequence"
	NodeTypeIf          NodeType = "If"
	NodeTypeChoose      NodeType = "Choose"
	NodeTypeTrim        NodeType = "Trim"
	NodeTypeForEach     NodeType = "ForEach"
	NodeTypeInclude     NodeType = "Include"
	NodeTypeBind        NodeType = "Bind"
)

// Text is literal SQL, appended verbatim.
type Text struct {
	Value string
}

func (*Text) Type() NodeType { return NodeTypeText }

// Placeholder is a #{property} reference bound as a statement argument.
type Placeholder struct {
	Property string
	Options  Options
}

func (*Placeholder) Type() NodeType { return NodeTypePlaceholder }

// Options are the settings written after the property in #{...}.
type Options struct {
	SQLType string
	Mode    string
	Handler string
	Scale   int
}

// Raw is a ${property} substitution inlined into the SQL text. Its value is
// never escaped, so it must not carry untrusted input.
type Raw struct {
	Property string
}

func (*Raw) Type() NodeType { return NodeTypeRaw }

// Sequence applies its nodes in order.
type Sequence []Node

func (Sequence) Type() NodeType { return NodeTypeSequence }

// If applies Body when Test holds.
type If struct {
	Test *expr.Expr
	Body Node
}

func (*If) Type() NodeType { return NodeTypeIf }

// Choose applies the first When whose test holds, or Otherwise.
type Choose struct {
	When      []*If
	Otherwise Node
}

func (*Choose) Type() NodeType { return NodeTypeChoose }

// Trim renders Body and, when it is not blank, strips the first matching
// prefix and suffix override and wraps it in Prefix and Suffix.
type Trim struct {
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
	Body            Node
}

func (*Trim) Type() NodeType { return NodeTypeTrim }

// Where is a Trim that emits WHERE and drops a leading AND or OR.
func Where(body Node) *Trim {
	return &Trim{
		Prefix: "WHERE",
		PrefixOverrides: []string{
			"AND ", "OR ", "AND\n", "OR\n", "AND\r", "OR\r", "AND\t", "OR\t",
		},
		Body: body,
	}
}

// Set is a Trim that emits SET and drops a dangling comma.
func Set(body Node) *Trim {
	return &Trim{
		Prefix:          "SET",
		PrefixOverrides: []string{","},
		SuffixOverrides: []string{","},
		Body:            body,
	}
}

// ForEach applies Body once per element of Collection.
type ForEach struct {
	Collection string
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
	// Nullable overrides the compiler default for a nil collection.
	Nullable *bool
	Body     Node
}

func (*ForEach) Type() NodeType { return NodeTypeForEach }

// Include references a fragment. Body is filled in when the registry is built.
type Include struct {
	RefID string
	Body  Node
}

func (*Include) Type() NodeType { return NodeTypeInclude }

// Bind evaluates Value and makes it available under Name.
type Bind struct {
	Name  string
	Value *expr.Expr
}

func (*Bind) Type() NodeType { return NodeTypeBind }

// ErrUnresolvedFragment is returned when an Include has no body.
var ErrUnresolvedFragment = errors.New("unresolved fragment reference")

// EvalError reports a property that could not be evaluated while applying
// a node.
type EvalError struct {
	Node NodeType
	Path string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Node, e.Path, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the node just visited.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case Sequence:
		for _, c := range v {
			Walk(c, fn)
		}
	case *If:
		Walk(v.Body, fn)
	case *Choose:
		for _, w := range v.When {
			Walk(w, fn)
		}
		Walk(v.Otherwise, fn)
	case *Trim:
		Walk(v.Body, fn)
	case *ForEach:
		Walk(v.Body, fn)
	case *Include:
		Walk(v.Body, fn)
	}
}

// IsDynamic reports whether the output of n depends on the parameter value
// beyond the placeholders it binds.
func IsDynamic(n Node) bool {
	dynamic := false
	Walk(n, func(n Node) bool {
		switch n.(type) {
		case *Raw, *If, *Choose, *Trim, *ForEach, *Bind:
			dynamic = true
			return false
		}
		return !dynamic
	})
	return dynamic
}
