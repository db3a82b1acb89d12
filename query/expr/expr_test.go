package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

func mapResolver(m map[string]any) Resolver {
	return ResolverFunc(func(path string) (any, error) {
		v, ok := m[path]
		if !ok {
			return nil, errMissing
		}
		return v, nil
	})
}

func TestBool(t *testing.T) {
	name := "ada"
	vars := map[string]any{
		"name":       "a",
		"empty":      "",
		"nothing":    nil,
		"age":        21,
		"ratio":      0.5,
		"ids":        []int{1, 2, 3},
		"none":       []int{},
		"admin":      true,
		"ptr":        &name,
		"user.name":  "grace",
		"tags[0]":    "x",
		`m["a-b"]`:   int8(4),
		"big":        uint64(10),
		"status":     "active",
		"item.count": int32(0),
	}

	tests := []struct {
		src  string
		want bool
	}{
		{"name != null", true},
		{"nothing != null", false},
		{"nothing == null", true},
		{"name == 'a'", true},
		{`name == "b"`, false},
		{"age >= 18", true},
		{"age gt 30", false},
		{"age > 18 and admin", true},
		{"age > 30 || admin", true},
		{"not admin", false},
		{"!admin or name == 'a'", true},
		{"(age > 30 or name == 'a') && status eq 'active'", true},
		{"len(ids) > 0", true},
		{"len(none) == 0", true},
		{"empty(none)", true},
		{"empty(ids)", false},
		{"ratio < 1", true},
		{"ratio == 0.5", true},
		{"ptr == 'ada'", true},
		{"user.name == 'grace'", true},
		{"tags[0] == 'x'", true},
		{`m["a-b"] == 4`, true},
		{"big == 10", true},
		{"item.count", false},
		{"empty", false},
		{"name", true},
		{"age - 1 == 20", true},
		{"age > -1", true},
		{"status neq 'gone'", true},
	}
	r := mapResolver(vars)
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Compile(tt.src)
			require.NoError(t, err)
			got, err := e.Bool(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalValues(t *testing.T) {
	r := mapResolver(map[string]any{"keyword": "go", "n": 2})

	v, err := MustCompile("'%' + keyword + '%'").Eval(r)
	require.NoError(t, err)
	assert.Equal(t, "%go%", v)

	v, err = MustCompile("n + 3").Eval(r)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = MustCompile(`'it\'s'`).Eval(r)
	require.NoError(t, err)
	assert.Equal(t, "it's", v)
}

func TestMissingPropertyIsAnError(t *testing.T) {
	e := MustCompile("missing != null")
	_, err := e.Bool(mapResolver(map[string]any{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissing)
}

func TestShortCircuit(t *testing.T) {
	r := mapResolver(map[string]any{"a": false})
	ok, err := MustCompile("a and missing").Bool(r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderingNil(t *testing.T) {
	_, err := MustCompile("x > 1").Bool(mapResolver(map[string]any{"x": nil}))
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	for _, src := range []string{"", "a ==", "(a", "a b", "len(", "1 +"} {
		_, err := Compile(src)
		assert.Error(t, err, src)
	}
}

func TestPaths(t *testing.T) {
	e := MustCompile("user.name != null and len(ids) > 0 or not (flag)")
	assert.Equal(t, []string{"user.name", "ids", "flag"}, e.Paths())
}
