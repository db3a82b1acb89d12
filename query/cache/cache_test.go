package cache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/batis-go/runtime/types"
)

func mustKey(t *testing.T, id, sql string, args []any, offset, limit int, db string) Key {
	t.Helper()
	k, err := NewKey(id, sql, args, offset, limit, db)
	require.NoError(t, err)
	return k
}

func TestKeyEquality(t *testing.T) {
	a := mustKey(t, "users.find", "SELECT * FROM users WHERE id = ?", []any{1}, 0, 0, "")
	b := mustKey(t, "users.find", "SELECT * FROM users WHERE id = ?", []any{int64(1)}, 0, 0, "")
	assert.Equal(t, a, b, "integer width must not matter")

	one := 1
	c := mustKey(t, "users.find", "SELECT * FROM users WHERE id = ?", []any{&one}, 0, 0, "")
	assert.Equal(t, a, c, "pointers are followed")

	d := mustKey(t, "users.find", "SELECT * FROM users WHERE id = ?", []any{types.NewDecimal("1")}, 0, 0, "")
	e := mustKey(t, "users.find", "SELECT * FROM users WHERE id = ?", []any{"1"}, 0, 0, "")
	assert.Equal(t, d, e, "driver values are resolved")

	assert.False(t, a.IsZero())
	assert.True(t, Key{}.IsZero())
	assert.Len(t, a.String(), 16)
}

func TestKeyDiffers(t *testing.T) {
	base := mustKey(t, "s", "SELECT ? , ?", []any{1, 2}, 0, 0, "")
	variants := map[string]Key{
		"statement": mustKey(t, "t", "SELECT ? , ?", []any{1, 2}, 0, 0, ""),
		"sql":       mustKey(t, "s", "SELECT ?, ?", []any{1, 2}, 0, 0, ""),
		"order":     mustKey(t, "s", "SELECT ? , ?", []any{2, 1}, 0, 0, ""),
		"value":     mustKey(t, "s", "SELECT ? , ?", []any{1, 3}, 0, 0, ""),
		"type":      mustKey(t, "s", "SELECT ? , ?", []any{"1", 2}, 0, 0, ""),
		"offset":    mustKey(t, "s", "SELECT ? , ?", []any{1, 2}, 5, 0, ""),
		"limit":     mustKey(t, "s", "SELECT ? , ?", []any{1, 2}, 0, 5, ""),
		"database":  mustKey(t, "s", "SELECT ? , ?", []any{1, 2}, 0, 0, "sqlite"),
		"nil":       mustKey(t, "s", "SELECT ? , ?", []any{nil, 2}, 0, 0, ""),
		"count":     mustKey(t, "s", "SELECT ? , ?", []any{1, 2, nil}, 0, 0, ""),
	}
	for name, k := range variants {
		assert.NotEqual(t, base, k, name)
	}
	// Boundaries between parts must be unambiguous.
	assert.NotEqual(t,
		mustKey(t, "ab", "c", nil, 0, 0, ""),
		mustKey(t, "a", "bc", nil, 0, 0, ""))
	assert.NotEqual(t,
		mustKey(t, "s", "q", []any{[]any{1, 2}}, 0, 0, ""),
		mustKey(t, "s", "q", []any{1, 2}, 0, 0, ""))
}

func TestKeyMapsAndStructs(t *testing.T) {
	m1 := map[string]any{"a": 1, "b": []int{1, 2}, "c": nil}
	m2 := map[string]any{"c": nil, "b": []int{1, 2}, "a": 1}
	assert.Equal(t,
		mustKey(t, "s", "q", []any{m1}, 0, 0, ""),
		mustKey(t, "s", "q", []any{m2}, 0, 0, ""))

	type point struct {
		X, Y   int
		hidden int
	}
	assert.Equal(t,
		mustKey(t, "s", "q", []any{point{1, 2, 3}}, 0, 0, ""),
		mustKey(t, "s", "q", []any{point{1, 2, 4}}, 0, 0, ""))
	assert.NotEqual(t,
		mustKey(t, "s", "q", []any{point{1, 2, 0}}, 0, 0, ""),
		mustKey(t, "s", "q", []any{point{2, 1, 0}}, 0, 0, ""))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t,
		mustKey(t, "s", "q", []any{at}, 0, 0, ""),
		mustKey(t, "s", "q", []any{at.In(time.FixedZone("X", 7200))}, 0, 0, ""))

	_, err := NewKey("s", "q", []any{func() {}}, 0, 0, "")
	assert.Error(t, err)
}

// TestKeyDifferential builds keys for random argument lists and checks that
// two keys are equal exactly when the argument lists are equal.
func TestKeyDifferential(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	gen := func() any {
		switch rng.Intn(5) {
		case 0:
			return rng.Intn(4)
		case 1:
			return fmt.Sprintf("s%d", rng.Intn(4))
		case 2:
			return rng.Intn(2) == 0
		case 3:
			return nil
		default:
			return float64(rng.Intn(3)) + 0.5
		}
	}
	type sample struct {
		sql  string
		args []any
		key  Key
	}
	samples := make([]sample, 0, 400)
	for i := 0; i < 400; i++ {
		n := rng.Intn(3)
		args := make([]any, n)
		for j := range args {
			args[j] = gen()
		}
		sql := fmt.Sprintf("SELECT %d", rng.Intn(2))
		samples = append(samples, sample{sql, args, mustKey(t, "s", sql, args, 0, 0, "")})
	}
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			a, b := samples[i], samples[j]
			same := a.sql == b.sql && fmt.Sprintf("%#v", a.args) == fmt.Sprintf("%#v", b.args)
			if same {
				assert.Equal(t, a.key, b.key, "%v %v", a.args, b.args)
			} else {
				assert.NotEqual(t, a.key, b.key, "%v %v", a.args, b.args)
			}
		}
	}
}

func TestPerpetual(t *testing.T) {
	c := NewPerpetual("local")
	k := mustKey(t, "s", "q", nil, 0, 0, "")
	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Put(k, []string{"row"})
	v, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []string{"row"}, v)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "local", c.ID())
}

func keyN(t *testing.T, n int) Key {
	return mustKey(t, "s", "q", []any{n}, 0, 0, "")
}

func TestSharedLRUEviction(t *testing.T) {
	c, err := NewShared("users", WithSize(2))
	require.NoError(t, err)

	c.Put(keyN(t, 1), "a")
	c.Put(keyN(t, 2), "b")
	_, ok := c.Get(keyN(t, 1))
	require.True(t, ok)
	c.Put(keyN(t, 3), "c")

	_, ok = c.Get(keyN(t, 2))
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get(keyN(t, 1))
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.MaxSize)
}

func TestSharedPolicies(t *testing.T) {
	for _, e := range []Eviction{EvictLRU, EvictARC, EvictTwoQueue, EvictUnbounded} {
		t.Run(string(e), func(t *testing.T) {
			c, err := NewShared("p", WithEviction(e), WithSize(8))
			require.NoError(t, err)
			c.Put(keyN(t, 1), 1)
			v, ok := c.Get(keyN(t, 1))
			require.True(t, ok)
			assert.Equal(t, 1, v)
			c.Remove(keyN(t, 1))
			_, ok = c.Get(keyN(t, 1))
			assert.False(t, ok)
			assert.Equal(t, e, c.Eviction())
		})
	}

	_, err := NewShared("p", WithSize(0))
	assert.Error(t, err)
	_, err = NewShared("p", WithEviction("FIFO"))
	assert.Error(t, err)
	_, err = ParseEviction("fifo")
	assert.Error(t, err)
	e, err := ParseEviction("arc")
	require.NoError(t, err)
	assert.Equal(t, EvictARC, e)
}

func TestSharedTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	c, err := NewShared("ttl", WithTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.TTL())
	c.Put(keyN(t, 1), "a")

	now = now.Add(59 * time.Second)
	_, ok := c.Get(keyN(t, 1))
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get(keyN(t, 1))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSharedApply(t *testing.T) {
	c, err := NewShared("apply")
	require.NoError(t, err)
	c.Put(keyN(t, 1), "old")
	c.Apply(true, []Entry{{Key: keyN(t, 2), Value: "b"}, {Key: keyN(t, 2), Value: "c"}})

	_, ok := c.Get(keyN(t, 1))
	assert.False(t, ok)
	v, ok := c.Get(keyN(t, 2))
	require.True(t, ok)
	assert.Equal(t, "c", v, "later puts win")
}

func TestSharedConcurrentAccess(t *testing.T) {
	c, err := NewShared("concurrent", WithSize(64))
	require.NoError(t, err)
	keys := make([]Key, 16)
	for i := range keys {
		keys[i] = keyN(t, i)
	}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := keys[i%16]
				if i%5 == 0 {
					c.Apply(i%50 == 0, []Entry{{Key: k, Value: g}})
				} else {
					c.Get(k)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}

func TestTransactionalBuffersUntilCommit(t *testing.T) {
	shared, err := NewShared("tx")
	require.NoError(t, err)
	tx := NewTransactional(shared)

	tx.Put(keyN(t, 1), "a")
	_, ok := shared.Get(keyN(t, 1))
	assert.False(t, ok, "pending puts are invisible")
	assert.True(t, tx.Pending())

	tx.Commit()
	v, ok := shared.Get(keyN(t, 1))
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.False(t, tx.Pending())
}

func TestTransactionalClear(t *testing.T) {
	shared, err := NewShared("tx")
	require.NoError(t, err)
	shared.Put(keyN(t, 1), "committed")

	tx := NewTransactional(shared)
	v, ok := tx.Get(keyN(t, 1))
	require.True(t, ok)
	assert.Equal(t, "committed", v)

	tx.Put(keyN(t, 2), "dropped")
	tx.Clear()
	_, ok = tx.Get(keyN(t, 1))
	assert.False(t, ok, "a pending clear hides the unit")

	other := NewTransactional(shared)
	_, ok = other.Get(keyN(t, 1))
	assert.True(t, ok, "other transactions still see committed data")

	tx.Put(keyN(t, 3), "fresh")
	tx.Commit()

	_, ok = shared.Get(keyN(t, 1))
	assert.False(t, ok)
	_, ok = shared.Get(keyN(t, 2))
	assert.False(t, ok)
	_, ok = shared.Get(keyN(t, 3))
	assert.True(t, ok)
}

func TestTransactionalRollback(t *testing.T) {
	shared, err := NewShared("tx")
	require.NoError(t, err)
	shared.Put(keyN(t, 1), "committed")

	tx := NewTransactional(shared)
	tx.Clear()
	tx.Put(keyN(t, 2), "uncommitted")
	tx.Rollback()

	_, ok := shared.Get(keyN(t, 1))
	assert.True(t, ok)
	_, ok = shared.Get(keyN(t, 2))
	assert.False(t, ok)

	_, ok = tx.Get(keyN(t, 1))
	assert.True(t, ok, "the transaction sees the unit again after rollback")
}

func TestTransactionalManager(t *testing.T) {
	users, err := NewShared("users")
	require.NoError(t, err)
	orders, err := NewShared("orders")
	require.NoError(t, err)
	orders.Put(keyN(t, 9), "order")

	m := NewTransactionalManager()
	assert.False(t, m.Pending())
	m.Put(users, keyN(t, 1), "u")
	m.Clear(orders)
	assert.True(t, m.Pending())

	_, ok := m.Get(orders, keyN(t, 9))
	assert.False(t, ok)
	_, ok = m.Get(users, keyN(t, 1))
	assert.False(t, ok)

	m.Commit()
	assert.False(t, m.Pending())
	_, ok = users.Get(keyN(t, 1))
	assert.True(t, ok)
	assert.Equal(t, 0, orders.Len())

	m.Put(users, keyN(t, 2), "u2")
	m.Rollback()
	_, ok = users.Get(keyN(t, 2))
	assert.False(t, ok)
}
