package client

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/batis-go/mapping"
	"github.com/satishbabariya/batis-go/query/ast"
	"github.com/satishbabariya/batis-go/query/cache"
	"github.com/satishbabariya/batis-go/query/executor"
	"github.com/satishbabariya/batis-go/query/expr"
	"github.com/satishbabariya/batis-go/query/middleware"
)

type user struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func text(t *testing.T, s string) ast.Node {
	t.Helper()
	n, err := ast.ParseText(s)
	require.NoError(t, err)
	return n
}

func newRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	reg := mapping.NewRegistry(mapping.DefaultSettings())
	unit, err := cache.NewShared("users")
	require.NoError(t, err)
	require.NoError(t, reg.AddCache("users", unit))
	require.NoError(t, reg.RegisterResultType("user", reflect.TypeOf(user{})))
	for _, s := range []*mapping.Statement{
		{ID: "users.all", Kind: mapping.KindSelect, ResultType: "user", UseCache: true, Cache: "users",
			Root: text(t, "SELECT id, name FROM users ORDER BY id")},
		{ID: "users.byID", Kind: mapping.KindSelect, ResultType: "user", UseCache: true, Cache: "users",
			Root: text(t, "SELECT id, name FROM users WHERE id = #{id}")},
		{ID: "users.insert", Kind: mapping.KindInsert, FlushCache: true, Cache: "users",
			UseGeneratedKeys: true, KeyProperty: []string{"ID"},
			Root: text(t, "INSERT INTO users (name) VALUES (#{Name})")},
		{ID: "users.rename", Kind: mapping.KindUpdate, FlushCache: true, Cache: "users",
			Root: text(t, "UPDATE users SET name = #{Name} WHERE id = #{ID}")},
		{ID: "users.remove", Kind: mapping.KindDelete, FlushCache: true, Cache: "users",
			Root: text(t, "DELETE FROM users WHERE id = #{id}")},
	} {
		s.Namespace = "users"
		require.NoError(t, reg.AddStatement(s))
	}
	return reg
}

func openFactory(t *testing.T, opts ...Option) *SessionFactory {
	t.Helper()
	url := "file:" + filepath.Join(t.TempDir(), "client.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	f, err := Open(newRegistry(t), "sqlite", url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Ping(context.Background()))
	_, err = f.DB().Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = f.DB().Exec(`INSERT INTO users (name) VALUES ('ada'), ('grace')`)
	require.NoError(t, err)
	return f
}

func count(t *testing.T, f *SessionFactory) int {
	t.Helper()
	var n int
	require.NoError(t, f.DB().QueryRow("SELECT COUNT(*) FROM users").Scan(&n))
	return n
}

func TestSessionCRUD(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	assert.True(t, f.Registry().Frozen())
	s, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	u := &user{Name: "linus"}
	n, err := s.Insert(ctx, "users.insert", u)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(3), u.ID)
	assert.True(t, s.Dirty())

	row, err := s.SelectOne(ctx, "byID", map[string]any{"id": 3})
	require.NoError(t, err)
	assert.Equal(t, user{ID: 3, Name: "linus"}, row)

	one, err := SelectOneAs[user](ctx, s, "users.byID", map[string]any{"id": 1})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "ada", one.Name)

	none, err := SelectOneAs[user](ctx, s, "users.byID", map[string]any{"id": 99})
	require.NoError(t, err)
	assert.Nil(t, none)

	u.Name = "torvalds"
	_, err = s.Update(ctx, "users.rename", u)
	require.NoError(t, err)

	all, err := SelectListAs[*user](ctx, s, "users.all", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "torvalds", all[2].Name)

	byName, err := s.SelectMap(ctx, "users.all", nil, "Name")
	require.NoError(t, err)
	assert.Len(t, byName, 3)
	assert.Equal(t, user{ID: 1, Name: "ada"}, byName["ada"])

	n, err = s.Delete(ctx, "users.remove", map[string]any{"id": 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Commit(ctx))
	assert.False(t, s.Dirty())
	assert.Equal(t, 2, count(t, f))
}

func TestSelectErrors(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	s, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SelectOne(ctx, "users.all", nil)
	assert.ErrorIs(t, err, mapping.ErrTooManyResults)

	_, err = s.SelectList(ctx, "users.nope", nil)
	assert.ErrorIs(t, err, mapping.ErrStatementNotFound)

	_, err = s.SelectList(ctx, "users.all", nil, mapping.DefaultRowBounds, mapping.DefaultRowBounds)
	assert.Error(t, err)

	_, err = SelectListAs[string](ctx, s, "users.all", nil)
	assert.Error(t, err)

	page, err := SelectListAs[user](ctx, s, "users.all", nil, mapping.RowBounds{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []user{{ID: 2, Name: "grace"}}, page)
}

func TestCloseRollsBackDirtySession(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	s, err := f.OpenSession(ctx)
	require.NoError(t, err)
	_, err = s.Insert(ctx, "users.insert", &user{Name: "temp"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 2, count(t, f))

	_, err = s.SelectList(ctx, "users.all", nil)
	assert.ErrorIs(t, err, mapping.ErrClosed)
}

func TestAutoCommitSession(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	s, err := f.OpenSession(ctx, AutoCommit(true))
	require.NoError(t, err)
	_, err = s.Insert(ctx, "users.insert", &user{Name: "kept"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, 3, count(t, f))
}

func TestSharedCacheAcrossSessions(t *testing.T) {
	ctx := context.Background()
	var maps int
	f := openFactory(t, WithInterceptors(middleware.Func(func(inv *middleware.Invocation) (any, error) {
		maps++
		return inv.Proceed()
	}, middleware.ResultsMap)))

	first, err := f.OpenSession(ctx)
	require.NoError(t, err)
	_, err = first.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx))
	require.NoError(t, first.Close())

	second, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer second.Close()
	rows, err := second.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, maps)

	second.ClearCache()
	_, err = second.Insert(ctx, "users.insert", &user{Name: "new"})
	require.NoError(t, err)
	rows, err = second.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 2, maps)
}

func TestSharedCacheHandsOutCopies(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	want := []any{user{ID: 1, Name: "ada"}, user{ID: 2, Name: "grace"}}

	first, err := f.OpenSession(ctx)
	require.NoError(t, err)
	rows, err := first.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx))
	require.NoError(t, first.Close())
	rows[0] = user{Name: "changed"}

	second, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer second.Close()
	rows, err = second.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	assert.Equal(t, want, rows)
	rows[1] = nil
	_ = append(rows[:1], user{Name: "appended"})

	third, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer third.Close()
	rows, err = third.SelectList(ctx, "users.all", nil)
	require.NoError(t, err)
	assert.Equal(t, want, rows)
}

func TestUnsetDatabaseIDPicksGenericStatements(t *testing.T) {
	ctx := context.Background()
	reg := mapping.NewRegistry(mapping.DefaultSettings())
	for _, s := range []*mapping.Statement{
		{ID: "clock.now", Kind: mapping.KindSelect, ResultType: "string",
			Root: text(t, "SELECT 'generic:${_databaseId}'")},
		{ID: "clock.now", Kind: mapping.KindSelect, ResultType: "string", DatabaseID: "sqlite",
			Root: text(t, "SELECT 'sqlite'")},
		{ID: "clock.unset", Kind: mapping.KindSelect, ResultType: "string",
			Root: &ast.If{Test: expr.MustCompile("_databaseId == null"), Body: text(t, "SELECT 'unset'")}},
	} {
		s.Namespace = "clock"
		require.NoError(t, reg.AddStatement(s))
	}
	url := "file:" + filepath.Join(t.TempDir(), "clock.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	f, err := Open(reg, "sqlite", url)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	assert.Empty(t, f.Registry().DatabaseID())

	s, err := f.OpenSession(ctx)
	require.NoError(t, err)
	defer s.Close()
	now, err := s.SelectOne(ctx, "clock.now", nil)
	require.NoError(t, err)
	assert.Equal(t, "generic:", now)
	unset, err := s.SelectOne(ctx, "clock.unset", nil)
	require.NoError(t, err)
	assert.Equal(t, "unset", unset)
}

func TestInSession(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)

	err := f.InSession(ctx, func(s *Session) error {
		_, err := s.Insert(ctx, "users.insert", &user{Name: "committed"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count(t, f))

	boom := errors.New("boom")
	err = f.InSession(ctx, func(s *Session) error {
		if _, err := s.Insert(ctx, "users.insert", &user{Name: "discarded"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, count(t, f))

	assert.Panics(t, func() {
		_ = f.InSession(ctx, func(s *Session) error {
			_, _ = s.Insert(ctx, "users.insert", &user{Name: "panicked"})
			panic("boom")
		})
	})
	assert.Equal(t, 3, count(t, f))
}

func TestBatchSession(t *testing.T) {
	ctx := context.Background()
	f := openFactory(t)
	s, err := f.OpenSession(ctx, WithExecutorType(mapping.ExecutorBatch), WithIsolation(executor.IsolationDefault))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, mapping.ExecutorBatch, s.Executor().Type())

	for _, name := range []string{"a", "b", "c"} {
		n, err := s.Insert(ctx, "users.insert", &user{Name: name})
		require.NoError(t, err)
		assert.Equal(t, int64(executor.BatchUpdateReturnValue), n)
	}
	results, err := s.FlushStatements(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []int64{1, 1, 1}, results[0].UpdateCounts)
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 5, count(t, f))
}

func TestOpenUnknownProvider(t *testing.T) {
	_, err := Open(newRegistry(t), "oracle", "whatever")
	assert.Error(t, err)
}

func TestNewSessionFactoryReportsFreezeErrors(t *testing.T) {
	reg := mapping.NewRegistry(mapping.DefaultSettings())
	require.NoError(t, reg.AddStatement(&mapping.Statement{ID: "a.b", Namespace: "a", Cache: "missing", Root: &ast.Text{Value: "SELECT 1"}}))
	_, err := NewSessionFactory(reg, nil, nil)
	assert.True(t, mapping.IsConfigurationError(err))
}
