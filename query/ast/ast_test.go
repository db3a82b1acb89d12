package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/batis-go/query/eval"
	"github.com/satishbabariya/batis-go/query/expr"
)

func mustText(t *testing.T, s string) Node {
	t.Helper()
	n, err := ParseText(s)
	require.NoError(t, err)
	return n
}

// render replaces markers with ? so assertions read like SQL.
func render(ctx *Context) string {
	out := ctx.SQL()
	for i := range ctx.Bindings() {
		out = strings.Replace(out, Marker(i), "?", 1)
	}
	return out
}

func boundValues(ctx *Context) []any {
	var out []any
	for _, b := range ctx.Bindings() {
		out = append(out, b.Value)
	}
	return out
}

func TestParseText(t *testing.T) {
	n := mustText(t, "a = #{a} AND b = ${b} AND c = \\#{c}")
	seq, ok := n.(Sequence)
	require.True(t, ok)
	assert.Equal(t, Sequence{
		&Text{Value: "a = "},
		&Placeholder{Property: "a", Options: Options{Mode: "IN"}},
		&Text{Value: " AND b = "},
		&Raw{Property: "b"},
		&Text{Value: " AND c = #{c}"},
	}, seq)

	single := mustText(t, "SELECT 1")
	assert.Equal(t, &Text{Value: "SELECT 1"}, single)
}

func TestParseTextErrors(t *testing.T) {
	for _, s := range []string{"a = #{a", "a = #{}", "#{a,mode=SIDEWAYS}", "#{a,color=red}", "#{a,scale=x}", "#{a,novalue}"} {
		_, err := ParseText(s)
		assert.Error(t, err, s)
	}
}

func TestParsePlaceholderOptions(t *testing.T) {
	p, err := ParsePlaceholder("price, jdbcType=numeric, numericScale=2, typeHandler=decimal, mode=inout")
	require.NoError(t, err)
	assert.Equal(t, "price", p.Property)
	assert.Equal(t, Options{SQLType: "NUMERIC", Mode: "INOUT", Handler: "decimal", Scale: 2}, p.Options)
}

func TestForEachInList(t *testing.T) {
	tree := Sequence{
		&Text{Value: "WHERE id IN"},
		&ForEach{Collection: "ids", Item: "item", Open: "(", Close: ")", Separator: ",", Body: mustText(t, "#{item}")},
	}
	ctx := NewContext(map[string]any{"ids": []int{1, 2, 3}}, "", false)
	require.NoError(t, Apply(ctx, tree))

	assert.Equal(t, "WHERE id IN ( ?,?,? )", render(ctx))
	assert.Equal(t, []any{1, 2, 3}, boundValues(ctx))
	props := []string{}
	for _, b := range ctx.Bindings() {
		props = append(props, b.Property)
	}
	assert.Equal(t, []string{"__frch_item_0", "__frch_item_1", "__frch_item_2"}, props)
}

func TestForEachIndexAndNesting(t *testing.T) {
	tree := &ForEach{
		Collection: "rows", Item: "row", Index: "i", Separator: ", ",
		Body: Sequence{
			mustText(t, "(#{i}, "),
			&ForEach{Collection: "row", Item: "cell", Separator: "|", Body: mustText(t, "#{cell}")},
			&Text{Value: ")"},
		},
	}
	ctx := NewContext(map[string]any{"rows": [][]string{{"a", "b"}, {"c"}}}, "", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "(?, ?|? ), (?, ? )", render(ctx))
	assert.Equal(t, []any{0, "a", "b", 1, "c"}, boundValues(ctx))
}

func TestForEachMapIsSorted(t *testing.T) {
	tree := &ForEach{Collection: "m", Item: "v", Index: "k", Separator: " AND ", Body: mustText(t, "${k} = #{v}")}
	ctx := NewContext(map[string]any{"m": map[string]int{"b": 2, "a": 1}}, "", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "a = ? AND b = ?", render(ctx))
	assert.Equal(t, []any{1, 2}, boundValues(ctx))
}

func TestForEachNil(t *testing.T) {
	tree := &ForEach{Collection: "ids", Item: "id", Body: mustText(t, "#{id}")}

	err := Apply(NewContext(map[string]any{"ids": nil}, "", false), tree)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "ids", evalErr.Path)

	require.NoError(t, Apply(NewContext(map[string]any{"ids": nil}, "", true), tree))

	no := false
	tree.Nullable = &no
	assert.Error(t, Apply(NewContext(map[string]any{"ids": nil}, "", true), tree))

	ctx := NewContext(map[string]any{"ids": []int{}}, "", false)
	require.NoError(t, Apply(ctx, &ForEach{Collection: "ids", Item: "id", Open: "(", Close: ")", Body: mustText(t, "#{id}")}))
	assert.Empty(t, ctx.SQL())
}

func TestForEachScalarPromoted(t *testing.T) {
	ctx := NewContext(map[string]any{"id": 5}, "", false)
	require.NoError(t, Apply(ctx, &ForEach{Collection: "id", Item: "x", Open: "(", Close: ")", Body: mustText(t, "#{x}")}))
	assert.Equal(t, "( ? )", render(ctx))
	assert.Equal(t, []any{5}, boundValues(ctx))
}

func TestIfNullCheck(t *testing.T) {
	tree := Sequence{
		&Text{Value: "SELECT * FROM users WHERE 1=1"},
		&If{Test: expr.MustCompile("name != null"), Body: mustText(t, "AND name = #{name}")},
	}

	ctx := NewContext(map[string]any{"name": nil}, "", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "SELECT * FROM users WHERE 1=1", render(ctx))
	assert.Empty(t, ctx.Bindings())

	ctx = NewContext(map[string]any{"name": "a"}, "", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "SELECT * FROM users WHERE 1=1 AND name = ?", render(ctx))
	assert.Equal(t, []any{"a"}, boundValues(ctx))
}

func TestIfMissingFieldIsAnError(t *testing.T) {
	tree := &If{Test: expr.MustCompile("nme != null"), Body: &Text{Value: "x"}}
	err := Apply(NewContext(map[string]any{"name": "a"}, "", false), tree)
	require.Error(t, err)
	assert.ErrorIs(t, err, eval.ErrNotFound)
}

func TestWhereAndSet(t *testing.T) {
	where := Where(Sequence{
		&If{Test: expr.MustCompile("a != null"), Body: mustText(t, "AND a = #{a}")},
		&If{Test: expr.MustCompile("b != null"), Body: mustText(t, "OR b = #{b}")},
	})

	ctx := NewContext(map[string]any{"a": nil, "b": 2}, "", false)
	require.NoError(t, Apply(ctx, Sequence{&Text{Value: "SELECT * FROM t"}, where}))
	assert.Equal(t, "SELECT * FROM t WHERE b = ?", render(ctx))

	ctx = NewContext(map[string]any{"a": nil, "b": nil}, "", false)
	require.NoError(t, Apply(ctx, Sequence{&Text{Value: "SELECT * FROM t"}, where}))
	assert.Equal(t, "SELECT * FROM t", render(ctx))

	set := Set(Sequence{
		&If{Test: expr.MustCompile("name != null"), Body: mustText(t, "name = #{name},")},
		&If{Test: expr.MustCompile("age != null"), Body: mustText(t, "age = #{age},")},
	})
	ctx = NewContext(map[string]any{"name": "x", "age": nil, "id": 1}, "", false)
	require.NoError(t, Apply(ctx, Sequence{&Text{Value: "UPDATE t"}, set, mustText(t, "WHERE id = #{id}")}))
	assert.Equal(t, "UPDATE t SET name = ? WHERE id = ?", render(ctx))
}

func TestTrimCustom(t *testing.T) {
	tree := &Trim{Prefix: "(", Suffix: ")", PrefixOverrides: []string{"and "}, Body: mustText(t, " AND x = 1 ")}
	ctx := NewContext(nil, "", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "( x = 1 )", ctx.SQL())
}

func TestChoose(t *testing.T) {
	tree := &Choose{
		When: []*If{
			{Test: expr.MustCompile("id != null"), Body: mustText(t, "id = #{id}")},
			{Test: expr.MustCompile("name != null"), Body: mustText(t, "name = #{name}")},
		},
		Otherwise: &Text{Value: "1 = 1"},
	}
	cases := []struct {
		param map[string]any
		want  string
	}{
		{map[string]any{"id": 1, "name": "x"}, "id = ?"},
		{map[string]any{"id": nil, "name": "x"}, "name = ?"},
		{map[string]any{"id": nil, "name": nil}, "1 = 1"},
	}
	for _, c := range cases {
		ctx := NewContext(c.param, "", false)
		require.NoError(t, Apply(ctx, tree))
		assert.Equal(t, c.want, render(ctx))
	}
}

func TestRawSubstitution(t *testing.T) {
	ctx := NewContext(map[string]any{"column": "created_at"}, "", false)
	require.NoError(t, Apply(ctx, mustText(t, "ORDER BY ${column}")))
	assert.Equal(t, "ORDER BY created_at", ctx.SQL())
	assert.Empty(t, ctx.Bindings())
}

func TestBindAndBuiltins(t *testing.T) {
	tree := Sequence{
		&Bind{Name: "pattern", Value: expr.MustCompile("'%' + name + '%'")},
		mustText(t, "name LIKE #{pattern} /* ${_databaseId} */"),
	}
	ctx := NewContext(map[string]any{"name": "ada"}, "sqlite", false)
	require.NoError(t, Apply(ctx, tree))
	assert.Equal(t, "name LIKE ? /* sqlite */", render(ctx))
	assert.Equal(t, []any{"%ada%"}, boundValues(ctx))

	v, _, err := NewContext(nil, "", false).Lookup(DatabaseIDBinding)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestScalarParameter(t *testing.T) {
	ctx := NewContext(42, "", false)
	require.NoError(t, Apply(ctx, mustText(t, "id = #{id} OR id = #{_parameter}")))
	assert.Equal(t, []any{42, 42}, boundValues(ctx))
}

func TestIncludeUnresolved(t *testing.T) {
	err := Apply(NewContext(nil, "", false), &Include{RefID: "cols"})
	assert.ErrorIs(t, err, ErrUnresolvedFragment)

	ctx := NewContext(nil, "", false)
	require.NoError(t, Apply(ctx, Sequence{&Text{Value: "SELECT"}, &Include{RefID: "cols", Body: &Text{Value: "id, name"}}, &Text{Value: "FROM t"}}))
	assert.Equal(t, "SELECT id, name FROM t", ctx.SQL())
}

func TestIsDynamic(t *testing.T) {
	assert.False(t, IsDynamic(mustText(t, "SELECT * FROM t WHERE id = #{id}")))
	assert.True(t, IsDynamic(mustText(t, "ORDER BY ${c}")))
	assert.True(t, IsDynamic(Sequence{&If{Test: expr.MustCompile("a"), Body: &Text{Value: "x"}}}))
}

func TestCompilationIsolation(t *testing.T) {
	tree := &ForEach{Collection: "ids", Item: "id", Separator: ",", Body: mustText(t, "#{id}")}
	param := map[string]any{"ids": []int{1, 2}}

	first := NewContext(param, "", false)
	require.NoError(t, Apply(first, tree))
	second := NewContext(param, "", false)
	require.NoError(t, Apply(second, tree))

	assert.Equal(t, first.SQL(), second.SQL())
	assert.Equal(t, first.Bindings(), second.Bindings())
}
