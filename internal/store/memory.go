package store

import (
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/bluele/gcache"

	"github.com/sb4client/safebrowsing4/internal/hashutil"
	"github.com/sb4client/safebrowsing4/internal/threatlist"
)

// Memory is an in-process [Storage] with no durability: data is lost when
// the process exits. It is useful for short-lived processes and tests.
type Memory struct {
	mu       *sync.Mutex
	tables   map[threatlist.ID][]string
	states   map[threatlist.ID]string
	fullHash gcache.Cache
	schedule Schedule
}

// fullHashCacheSize bounds the number of cached full-hash entries kept in
// memory; the least-recently-used entry is evicted once the bound is
// reached.
const fullHashCacheSize = 100_000

// NewMemory returns a new, empty [Memory] store.
func NewMemory() (m *Memory) {
	return &Memory{
		mu:       &sync.Mutex{},
		tables:   map[threatlist.ID][]string{},
		states:   map[threatlist.ID]string{},
		fullHash: gcache.New(fullHashCacheSize).LRU().Build(),
	}
}

// type check
var _ Storage = (*Memory)(nil)

// Save implements the [Storage] interface for *Memory.
func (m *Memory) Save(
	list threatlist.ID,
	state string,
	add []string,
	removeIndices []int,
	override bool,
) (sorted []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted = applyUpdate(m.tables[list], add, removeIndices, override)
	m.tables[list] = sorted
	m.states[list] = state

	return append([]string(nil), sorted...), nil
}

// Reset implements the [Storage] interface for *Memory.
func (m *Memory) Reset(list threatlist.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tables, list)
	delete(m.states, list)

	return nil
}

// GetState implements the [Storage] interface for *Memory.
func (m *Memory) GetState(list threatlist.ID) (state string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.states[list], nil
}

// GetPrefixes implements the [Storage] interface for *Memory.
func (m *Memory) GetPrefixes(
	hashes []hashutil.FullHash,
	lists []threatlist.ID,
) (matches []PrefixMatch, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range lists {
		table, ok := m.tables[list]
		if !ok {
			continue
		}

		for _, h := range hashes {
			prefix, ok := longestMatchingPrefix(table, h.String())
			if !ok {
				continue
			}

			matches = append(matches, PrefixMatch{Prefix: prefix, List: list})
		}
	}

	return matches, nil
}

// fullHashKey is the composite key under which full-hash cache entries are
// stored: a cache entry is scoped to a single (hash, list) pair.
type fullHashKey struct {
	hash hashutil.FullHash
	list threatlist.ID
}

// AddFullHashes implements the [Storage] interface for *Memory.
func (m *Memory) AddFullHashes(entries []FullHashEntry, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		ttl := e.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}

		key := fullHashKey{hash: e.Hash, list: e.List}
		err := m.fullHash.SetWithExpire(key, e, ttl)
		if err != nil {
			return errors.Annotate(err, "caching full hash: %w")
		}
	}

	return nil
}

// GetFullHashes implements the [Storage] interface for *Memory.
func (m *Memory) GetFullHashes(
	hash hashutil.FullHash,
	lists []threatlist.ID,
	now time.Time,
) (entries []FullHashEntry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range lists {
		v, cacheErr := m.fullHash.Get(fullHashKey{hash: hash, list: list})
		if cacheErr != nil {
			if errors.Is(cacheErr, gcache.KeyNotFoundError) {
				continue
			}

			return nil, errors.Annotate(cacheErr, "reading full hash cache: %w")
		}

		e, ok := v.(FullHashEntry)
		if !ok || !e.ExpiresAt.After(now) {
			continue
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// NextUpdate implements the [Storage] interface for *Memory.
func (m *Memory) NextUpdate() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.schedule.NextUpdate, nil
}

// Updated implements the [Storage] interface for *Memory.
func (m *Memory) Updated(now, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.schedule.LastUpdate = now
	m.schedule.NextUpdate = next
	m.schedule.ConsecutiveErrors = 0

	return nil
}

// UpdateError implements the [Storage] interface for *Memory.
func (m *Memory) UpdateError(now time.Time, wait time.Duration, errs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.schedule.LastUpdate = now
	m.schedule.NextUpdate = now.Add(wait)
	m.schedule.ConsecutiveErrors = errs

	return nil
}

// LastUpdate implements the [Storage] interface for *Memory.
func (m *Memory) LastUpdate() (Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.schedule, nil
}

// snapshot returns a deep-enough copy of the store's state for
// serialization by [File]. Called with m.mu held by the caller.
func (m *Memory) snapshot() (tables map[threatlist.ID][]string, states map[threatlist.ID]string, sched Schedule, cache []FullHashEntry) {
	tables = make(map[threatlist.ID][]string, len(m.tables))
	for list, t := range m.tables {
		tables[list] = append([]string(nil), t...)
	}

	states = make(map[threatlist.ID]string, len(m.states))
	for list, s := range m.states {
		states[list] = s
	}

	for _, v := range m.fullHash.GetALL(false) {
		if e, ok := v.(FullHashEntry); ok {
			cache = append(cache, e)
		}
	}

	return tables, states, m.schedule, cache
}

// restore replaces the store's state with a previously snapshotted one.
// Called with m.mu held by the caller.
func (m *Memory) restore(
	tables map[threatlist.ID][]string,
	states map[threatlist.ID]string,
	sched Schedule,
	cache []FullHashEntry,
	now time.Time,
) {
	if tables != nil {
		m.tables = tables
	}
	if states != nil {
		m.states = states
	}
	m.schedule = sched

	for _, e := range cache {
		if !e.ExpiresAt.After(now) {
			continue
		}

		key := fullHashKey{hash: e.Hash, list: e.List}
		_ = m.fullHash.SetWithExpire(key, e, e.ExpiresAt.Sub(now))
	}
}
