// Package cache provides query result caching: the key builder, the
// session-local cache, the shared size and age bounded cache units and the
// transactional buffer that keeps uncommitted results out of them.
package cache

// Cache stores query results by Key.
type Cache interface {
	// ID names the cache unit.
	ID() string
	// Get retrieves a value from the cache
	Get(key Key) (any, bool)
	// Put stores a value in the cache
	Put(key Key, value any)
	// Remove removes a specific key from the cache
	Remove(key Key)
	// Clear removes all entries from the cache
	Clear()
	// Len returns the number of entries.
	Len() int
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Size      int
	MaxSize   int
	Evictions int64
	HitRate   float64
}

// hitRate returns hits as a percentage of all lookups.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Perpetual is an unbounded map backed cache. It is the session-local tier
// and is not safe for concurrent use.
type Perpetual struct {
	id   string
	data map[Key]any
}

// NewPerpetual creates an empty cache named id.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, data: make(map[Key]any)}
}

func (c *Perpetual) ID() string { return c.id }

func (c *Perpetual) Get(key Key) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

func (c *Perpetual) Put(key Key, value any) { c.data[key] = value }

func (c *Perpetual) Remove(key Key) { delete(c.data, key) }

// Clear drops every entry.
func (c *Perpetual) Clear() {
	if len(c.data) > 0 {
		c.data = make(map[Key]any)
	}
}

func (c *Perpetual) Len() int { return len(c.data) }
