package ast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/batis-go/query/eval"
)

// Apply appends the contribution of n to ctx.
func Apply(ctx *Context, n Node) error {
	switch n := n.(type) {
	case nil:
		return nil
	case *Text:
		ctx.write(n.Value)
		return nil
	case *Placeholder:
		return applyPlaceholder(ctx, n)
	case *Raw:
		return applyRaw(ctx, n)
	case Sequence:
		for _, child := range n {
			if err := Apply(ctx, child); err != nil {
				return err
			}
		}
		return nil
	case *If:
		ok, err := test(ctx, n)
		if err != nil || !ok {
			return err
		}
		ctx.boundary()
		if err := Apply(ctx, n.Body); err != nil {
			return err
		}
		ctx.boundary()
		return nil
	case *Choose:
		return applyChoose(ctx, n)
	case *Trim:
		return applyTrim(ctx, n)
	case *ForEach:
		return applyForEach(ctx, n)
	case *Include:
		if n.Body == nil {
			return fmt.Errorf("%w %q", ErrUnresolvedFragment, n.RefID)
		}
		ctx.boundary()
		if err := Apply(ctx, n.Body); err != nil {
			return err
		}
		ctx.boundary()
		return nil
	case *Bind:
		v, err := n.Value.Eval(ctx)
		if err != nil {
			return &EvalError{Node: NodeTypeBind, Path: n.Name, Err: err}
		}
		ctx.Bind(n.Name, v)
		return nil
	default:
		return fmt.Errorf("unknown node type %s", n.Type())
	}
}

func test(ctx *Context, n *If) (bool, error) {
	ok, err := n.Test.Bool(ctx)
	if err != nil {
		return false, &EvalError{Node: NodeTypeIf, Path: n.Test.String(), Err: err}
	}
	return ok, nil
}

func applyPlaceholder(ctx *Context, n *Placeholder) error {
	prop := ctx.rewrite(n.Property)
	v, t, err := ctx.lookup(prop)
	if err != nil {
		return &EvalError{Node: NodeTypePlaceholder, Path: n.Property, Err: err}
	}
	ctx.write(ctx.record(Binding{Property: prop, Value: v, GoType: t, Options: n.Options}))
	return nil
}

func applyRaw(ctx *Context, n *Raw) error {
	v, _, err := ctx.Lookup(n.Property)
	if err != nil {
		return &EvalError{Node: NodeTypeRaw, Path: n.Property, Err: err}
	}
	ctx.write(strings.ReplaceAll(rawString(v), string(MarkerByte), ""))
	return nil
}

func rawString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func applyChoose(ctx *Context, n *Choose) error {
	for _, w := range n.When {
		ok, err := test(ctx, w)
		if err != nil {
			return err
		}
		if ok {
			ctx.boundary()
			if err := Apply(ctx, w.Body); err != nil {
				return err
			}
			ctx.boundary()
			return nil
		}
	}
	if n.Otherwise == nil {
		return nil
	}
	ctx.boundary()
	if err := Apply(ctx, n.Otherwise); err != nil {
		return err
	}
	ctx.boundary()
	return nil
}

func applyTrim(ctx *Context, n *Trim) error {
	child := ctx.child()
	if err := Apply(child, n.Body); err != nil {
		return err
	}
	body := strings.TrimSpace(child.SQL())
	if body == "" {
		return nil
	}
	for _, p := range n.PrefixOverrides {
		if len(body) >= len(p) && strings.EqualFold(body[:len(p)], p) {
			body = strings.TrimSpace(body[len(p):])
			break
		}
	}
	for _, s := range n.SuffixOverrides {
		if len(body) >= len(s) && strings.EqualFold(body[len(body)-len(s):], s) {
			body = strings.TrimSpace(body[:len(body)-len(s)])
			break
		}
	}
	ctx.block(n.Prefix)
	ctx.block(body)
	ctx.block(n.Suffix)
	return nil
}

func applyForEach(ctx *Context, n *ForEach) error {
	src, _, err := ctx.Lookup(n.Collection)
	if err != nil {
		return &EvalError{Node: NodeTypeForEach, Path: n.Collection, Err: err}
	}
	if src == nil {
		nullable := ctx.st.nullableForEach
		if n.Nullable != nil {
			nullable = *n.Nullable
		}
		if nullable {
			return nil
		}
		return &EvalError{Node: NodeTypeForEach, Path: n.Collection, Err: errors.New("collection is nil")}
	}
	entries, err := eval.Iterate(src)
	if err != nil {
		return &EvalError{Node: NodeTypeForEach, Path: n.Collection, Err: err}
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		num := strconv.Itoa(ctx.nextNumber())
		var as []alias
		if n.Item != "" {
			name := foreachPrefix + n.Item + "_" + num
			ctx.Bind(name, e.Value)
			as = append(as, alias{name: n.Item, synthetic: name})
		}
		if n.Index != "" {
			name := foreachPrefix + n.Index + "_" + num
			ctx.Bind(name, e.Key)
			as = append(as, alias{name: n.Index, synthetic: name})
		}
		child := ctx.withAliases(as...)
		if err := Apply(child, n.Body); err != nil {
			return err
		}
		if part := strings.TrimSpace(child.SQL()); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	ctx.block(n.Open)
	ctx.block(strings.Join(parts, n.Separator))
	ctx.block(n.Close)
	return nil
}
