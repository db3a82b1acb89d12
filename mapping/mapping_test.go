package mapping

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/cache"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("no such column")
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"configuration", Configf("users.yaml", "users.find", "duplicate"), ErrConfiguration},
		{"binding", &BindingError{Statement: "users.find", Path: "name", Cause: cause}, ErrBinding},
		{"execution", &ExecutionError{Statement: "users.find", Cause: cause}, ErrExecution},
		{"cache", &CacheConsistencyError{Statement: "p.call", Cache: "p", Properties: []string{"out"}}, ErrCacheConsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.is)
			for _, other := range []error{ErrConfiguration, ErrBinding, ErrExecution, ErrCacheConsistency} {
				if other != tt.is {
					assert.NotErrorIs(t, tt.err, other)
				}
			}
		})
	}

	exec := &ExecutionError{Statement: "users.find", Cause: cause}
	assert.ErrorIs(t, exec, cause)
	assert.True(t, IsExecutionError(exec))
	assert.Equal(t, `binding error in users.find at "name": no such column`,
		(&BindingError{Statement: "users.find", Path: "name", Cause: cause}).Error())
	assert.Equal(t, "configuration error in users.yaml (users.find): duplicate",
		Configf("users.yaml", "users.find", "duplicate").Error())
}

func TestParseKindAndMode(t *testing.T) {
	k, err := ParseKind("INSERT")
	require.NoError(t, err)
	assert.Equal(t, KindInsert, k)
	_, err = ParseKind("merge")
	assert.Error(t, err)

	m, err := ParseMode("inout")
	require.NoError(t, err)
	assert.Equal(t, ModeInOut, m)
	assert.Equal(t, "OUT", ModeOut.String())
}

func TestBoundStatement(t *testing.T) {
	b := &BoundStatement{Parameters: []ParameterMapping{
		{Property: "id", Value: 1},
		{Property: "total", Mode: ModeOut},
		{Property: "name", Value: "a"},
	}}
	assert.Equal(t, []any{1, nil, "a"}, b.Values())
	assert.Equal(t, []string{"total"}, b.OutParameters())
}

func TestSettingsApply(t *testing.T) {
	s, err := ApplySettings(map[string]string{
		"cacheEnabled":            "false",
		"localcachescope":         "statement",
		"defaultExecutorType":     "batch",
		"defaultStatementTimeout": "30",
		"databaseId":              "sqlite",
	})
	require.NoError(t, err)
	assert.False(t, s.CacheEnabled)
	assert.Equal(t, ScopeStatement, s.LocalCacheScope)
	assert.Equal(t, ExecutorBatch, s.DefaultExecutorType)
	assert.Equal(t, 30*time.Second, s.DefaultStatementTimeout)
	assert.Equal(t, "sqlite", s.DatabaseID)

	_, err = ApplySettings(map[string]string{"lazyLoadingEnabled": "true"})
	assert.True(t, IsConfigurationError(err))

	_, err = ApplySettings(map[string]string{"cacheEnabled": "maybe"})
	assert.True(t, IsConfigurationError(err))
}

func stmt(id, db string) *Statement {
	ns := ""
	if i := len(id) - len((&Statement{ID: id}).ShortID()) - 1; i > 0 {
		ns = id[:i]
	}
	return &Statement{ID: id, Namespace: ns, DatabaseID: db, Root: &ast.Text{Value: "SELECT 1"}, Resource: id + "@" + db}
}

func TestDatabaseIDResolution(t *testing.T) {
	for _, order := range [][]*Statement{
		{stmt("users.find", ""), stmt("users.find", "sqlite")},
		{stmt("users.find", "sqlite"), stmt("users.find", "")},
	} {
		r := NewRegistry(Settings{DatabaseID: "sqlite"})
		for _, s := range order {
			require.NoError(t, r.AddStatement(s))
		}
		require.NoError(t, r.AddStatement(stmt("users.find", "mysql")), "other vendors are skipped")
		got, err := r.Statement("users.find")
		require.NoError(t, err)
		assert.Equal(t, "sqlite", got.DatabaseID)
	}

	r := NewRegistry(Settings{DatabaseID: "sqlite"})
	require.NoError(t, r.AddStatement(stmt("users.find", "")))
	assert.True(t, IsConfigurationError(r.AddStatement(stmt("users.find", ""))))
	require.NoError(t, r.AddStatement(stmt("users.find", "sqlite")))
	assert.True(t, IsConfigurationError(r.AddStatement(stmt("users.find", "sqlite"))))

	generic := NewRegistry(Settings{})
	require.NoError(t, generic.AddStatement(stmt("users.find", "sqlite")))
	_, err := generic.Statement("users.find")
	assert.ErrorIs(t, err, ErrStatementNotFound)
}

func TestShortIDs(t *testing.T) {
	r := NewRegistry(DefaultSettings())
	require.NoError(t, r.AddStatement(stmt("users.find", "")))
	require.NoError(t, r.AddStatement(stmt("users.count", "")))
	require.NoError(t, r.AddStatement(stmt("orders.count", "")))

	s, err := r.Statement("find")
	require.NoError(t, err)
	assert.Equal(t, "users.find", s.ID)

	_, err = r.Statement("count")
	assert.ErrorIs(t, err, ErrStatementNotFound)
	assert.ErrorContains(t, err, "ambiguous")

	ids := []string{}
	for _, s := range r.Statements() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"orders.count", "users.count", "users.find"}, ids)
}

func TestFreezeResolvesIncludesAndCaches(t *testing.T) {
	r := NewRegistry(DefaultSettings())
	shared, err := cache.NewShared("users")
	require.NoError(t, err)
	require.NoError(t, r.AddCache("users", shared))
	require.NoError(t, r.AddCacheRef("profiles", "users"))

	require.NoError(t, r.AddFragment(&Fragment{ID: "cols", Namespace: "users", Root: &ast.Text{Value: "id, name"}}))
	require.NoError(t, r.AddFragment(&Fragment{ID: "base", Namespace: "users", Root: ast.Sequence{
		&ast.Text{Value: "SELECT"}, &ast.Include{RefID: "cols"}, &ast.Text{Value: "FROM users"},
	}}))
	inc := &ast.Include{RefID: "users.base"}
	s := stmt("profiles.find", "")
	s.Root = inc
	s.Cache = "profiles"
	require.NoError(t, r.AddStatement(s))

	require.NoError(t, r.Freeze())
	assert.True(t, r.Frozen())
	assert.Equal(t, "users", s.Cache)

	ctx := ast.NewContext(nil, "", false)
	require.NoError(t, ast.Apply(ctx, s.Root))
	assert.Equal(t, "SELECT id, name FROM users", ctx.SQL())

	assert.ErrorIs(t, r.AddStatement(stmt("users.late", "")), ErrFrozen)
	unit, ok := r.Cache("users")
	require.True(t, ok)
	assert.Same(t, shared, unit)
}

func TestFreezeReportsProblems(t *testing.T) {
	r := NewRegistry(DefaultSettings())
	a := stmt("users.a", "")
	a.Root = &ast.Include{RefID: "missing"}
	b := stmt("users.b", "")
	b.Cache = "nowhere"
	c := stmt("users.c", "")
	c.SelectKey = &SelectKey{StatementID: "users.c!selectKey"}
	for _, s := range []*Statement{a, b, c} {
		require.NoError(t, r.AddStatement(s))
	}
	require.NoError(t, r.AddFragment(&Fragment{ID: "loop", Namespace: "x", Root: &ast.Include{RefID: "loop"}}))

	err := r.Freeze()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ast.ErrUnresolvedFragment)
	assert.ErrorContains(t, err, "includes itself")
	assert.ErrorContains(t, err, `unknown cache "nowhere"`)
	assert.ErrorContains(t, err, "select key statement")
	assert.False(t, r.Frozen())
}

func TestResultTypes(t *testing.T) {
	r := NewRegistry(DefaultSettings())
	type user struct{ ID int }
	require.NoError(t, r.RegisterResultType("User", reflect.TypeOf(user{})))
	got, ok := r.ResultType("User")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(user{}), got)

	m, ok := r.ResultType("map")
	require.True(t, ok)
	assert.Equal(t, reflect.Map, m.Kind())
}
