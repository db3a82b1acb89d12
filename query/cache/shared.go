package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru"

	"github.com/satishbabariya/batis-go/internal/debug"
	"github.com/satishbabariya/batis-go/telemetry"
)

// Eviction selects the replacement policy of a shared cache.
type Eviction string

const (
	EvictLRU       Eviction = "LRU"
	EvictARC       Eviction = "ARC"
	EvictTwoQueue  Eviction = "2Q"
	EvictUnbounded Eviction = "NONE"
)

// DefaultSize is the entry bound of a shared cache without an explicit size.
const DefaultSize = 1024

// ParseEviction parses LRU, ARC, 2Q or NONE. The empty string means LRU.
func ParseEviction(s string) (Eviction, error) {
	switch e := Eviction(strings.ToUpper(strings.TrimSpace(s))); e {
	case "":
		return EvictLRU, nil
	case EvictLRU, EvictARC, EvictTwoQueue, EvictUnbounded:
		return e, nil
	}
	return "", fmt.Errorf("unknown eviction policy %q", s)
}

// store is the thread-safe container behind a Shared cache.
type store interface {
	Add(key, value interface{})
	Get(key interface{}) (interface{}, bool)
	Remove(key interface{})
	Purge()
	Len() int
}

type lruStore struct {
	*lru.Cache
	onEvict func()
}

func (s lruStore) Add(key, value interface{}) {
	if s.Cache.Add(key, value) {
		s.onEvict()
	}
}

func (s lruStore) Remove(key interface{}) { s.Cache.Remove(key) }

type mapStore struct {
	mu   sync.Mutex
	data map[interface{}]interface{}
}

func (s *mapStore) Add(key, value interface{}) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *mapStore) Get(key interface{}) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *mapStore) Remove(key interface{}) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *mapStore) Purge() {
	s.mu.Lock()
	s.data = make(map[interface{}]interface{})
	s.mu.Unlock()
}

func (s *mapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

type cachedValue struct {
	value any
	at    time.Time
}

var timeNow = time.Now

// Shared is a cache unit shared by every session of a registry. Lookups run
// concurrently; Put, Clear and Apply are serialized, and a reader never
// observes half of an Apply.
type Shared struct {
	id       string
	eviction Eviction
	size     int
	ttl      time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	store store

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// SharedOption configures a Shared cache.
type SharedOption func(*Shared)

// WithSize bounds the number of entries. Ignored by EvictUnbounded.
func WithSize(n int) SharedOption {
	return func(s *Shared) { s.size = n }
}

// WithTTL expires entries older than d. Zero keeps entries until evicted.
func WithTTL(d time.Duration) SharedOption {
	return func(s *Shared) { s.ttl = d }
}

// WithEviction selects the replacement policy.
func WithEviction(e Eviction) SharedOption {
	return func(s *Shared) { s.eviction = e }
}

// WithLogger sets the logger used for hit ratio reports.
func WithLogger(l *slog.Logger) SharedOption {
	return func(s *Shared) { s.logger = l }
}

// NewShared creates a shared cache unit named id.
func NewShared(id string, opts ...SharedOption) (*Shared, error) {
	s := &Shared{id: id, eviction: EvictLRU, size: DefaultSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.eviction != EvictUnbounded && s.size <= 0 {
		return nil, fmt.Errorf("cache %s: size must be positive, got %d", id, s.size)
	}
	if s.ttl < 0 {
		return nil, fmt.Errorf("cache %s: negative ttl %s", id, s.ttl)
	}
	var err error
	switch s.eviction {
	case EvictLRU:
		var c *lru.Cache
		c, err = lru.New(s.size)
		s.store = lruStore{Cache: c, onEvict: s.evicted}
	case EvictARC:
		s.store, err = lru.NewARC(s.size)
	case EvictTwoQueue:
		s.store, err = lru.New2Q(s.size)
	case EvictUnbounded:
		s.store = &mapStore{data: make(map[interface{}]interface{})}
	default:
		err = fmt.Errorf("unknown eviction policy %q", s.eviction)
	}
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", id, err)
	}
	return s, nil
}

func (s *Shared) ID() string { return s.id }

// Get returns a live entry. Expired entries are dropped and reported as
// misses.
func (s *Shared) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.store.Get(key)
	if ok {
		cv := v.(cachedValue)
		if s.ttl > 0 && cv.at.Add(s.ttl).Before(timeNow()) {
			s.store.Remove(key)
			s.evicted()
			ok = false
		} else {
			v = cv.value
		}
	}
	s.record(ok)
	if !ok {
		return nil, false
	}
	return v, true
}

func (s *Shared) record(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	telemetry.RecordCacheRequest(s.id, hit)
	if l := debug.Or(s.logger); l.Enabled(context.Background(), slog.LevelDebug) {
		l.Debug("cache lookup", "cache", s.id, "hit", hit,
			"ratio", hitRate(s.hits.Load(), s.misses.Load()))
	}
}

func (s *Shared) evicted() {
	s.evictions.Add(1)
	telemetry.RecordCacheEviction(s.id)
}

// Put stores value under key.
func (s *Shared) Put(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

func (s *Shared) put(key Key, value any) {
	s.store.Add(key, cachedValue{value: value, at: timeNow()})
}

// Remove removes a specific key from the cache
func (s *Shared) Remove(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Remove(key)
}

// Clear removes all entries from the cache
func (s *Shared) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Purge()
}

// Entry is a pending put.
type Entry struct {
	Key   Key
	Value any
}

// Apply clears the cache when purge is set and then stores puts in order,
// as one step with respect to readers.
func (s *Shared) Apply(purge bool, puts []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if purge {
		s.store.Purge()
	}
	for _, e := range puts {
		s.put(e.Key, e.Value)
	}
}

func (s *Shared) Len() int { return s.store.Len() }

// Stats returns cache statistics
func (s *Shared) Stats() Stats {
	hits, misses := s.hits.Load(), s.misses.Load()
	maxSize := s.size
	if s.eviction == EvictUnbounded {
		maxSize = 0
	}
	return Stats{
		Hits:      hits,
		Misses:    misses,
		Size:      s.store.Len(),
		MaxSize:   maxSize,
		Evictions: s.evictions.Load(),
		HitRate:   hitRate(hits, misses),
	}
}

// Eviction returns the replacement policy.
func (s *Shared) Eviction() Eviction { return s.eviction }

// TTL returns the entry lifetime, zero when entries do not expire.
func (s *Shared) TTL() time.Duration { return s.ttl }
