package cache

// Unit is a cache that can take a transaction's pending operations in one
// step. Shared implements it.
type Unit interface {
	Cache
	Apply(purge bool, puts []Entry)
}

// Transactional buffers the puts and clears one transaction makes against a
// Unit. Nothing reaches the unit before Commit.
type Transactional struct {
	unit          Unit
	clearOnCommit bool
	pending       []Entry
}

// NewTransactional wraps unit.
func NewTransactional(unit Unit) *Transactional {
	return &Transactional{unit: unit}
}

// Get reads the committed unit. After Clear it always misses until the
// transaction ends.
func (t *Transactional) Get(key Key) (any, bool) {
	if t.clearOnCommit {
		return nil, false
	}
	return t.unit.Get(key)
}

// Put records a pending put.
func (t *Transactional) Put(key Key, value any) {
	t.pending = append(t.pending, Entry{Key: key, Value: value})
}

// Clear records a pending clear and drops the puts recorded before it.
func (t *Transactional) Clear() {
	t.clearOnCommit = true
	t.pending = t.pending[:0]
}

// Commit applies the pending clear, then the pending puts in the order they
// were recorded.
func (t *Transactional) Commit() {
	if t.clearOnCommit || len(t.pending) > 0 {
		t.unit.Apply(t.clearOnCommit, t.pending)
	}
	t.reset()
}

// Rollback discards the pending operations.
func (t *Transactional) Rollback() {
	t.reset()
}

func (t *Transactional) reset() {
	t.clearOnCommit = false
	t.pending = nil
}

// Pending reports whether operations are waiting for Commit.
func (t *Transactional) Pending() bool {
	return t.clearOnCommit || len(t.pending) > 0
}

// TransactionalManager owns the Transactional buffer of every unit one
// session touches. It is not safe for concurrent use.
type TransactionalManager struct {
	units map[Unit]*Transactional
	order []*Transactional
}

// NewTransactionalManager returns an empty manager.
func NewTransactionalManager() *TransactionalManager {
	return &TransactionalManager{units: make(map[Unit]*Transactional)}
}

func (m *TransactionalManager) buffer(u Unit) *Transactional {
	t, ok := m.units[u]
	if !ok {
		t = NewTransactional(u)
		m.units[u] = t
		m.order = append(m.order, t)
	}
	return t
}

// Get looks key up in the transaction's view of u.
func (m *TransactionalManager) Get(u Unit, key Key) (any, bool) {
	return m.buffer(u).Get(key)
}

// Put records a pending put against u.
func (m *TransactionalManager) Put(u Unit, key Key, value any) {
	m.buffer(u).Put(key, value)
}

// Clear records a pending clear of u.
func (m *TransactionalManager) Clear(u Unit) {
	m.buffer(u).Clear()
}

// Commit applies the pending operations of every unit, in first use order.
func (m *TransactionalManager) Commit() {
	for _, t := range m.order {
		t.Commit()
	}
}

// Rollback discards the pending operations of every unit.
func (m *TransactionalManager) Rollback() {
	for _, t := range m.order {
		t.Rollback()
	}
}

// Pending reports whether any unit has operations waiting for Commit.
func (m *TransactionalManager) Pending() bool {
	for _, t := range m.order {
		if t.Pending() {
			return true
		}
	}
	return false
}
