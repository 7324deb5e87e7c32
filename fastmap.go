package bincodec

import "golang.org/x/exp/constraints"

// linearSearchLimit is the table size up to which Get scans keys linearly.
// Below it a flat scan beats the unpredictable branches of a binary search.
const linearSearchLimit = 16

// FastMap is a small map from integer keys to values, built once and read
// often. Keys are kept in a sorted array parallel to the values.
//
// A FastMap is not safe for concurrent mutation. The registry publishes
// immutable snapshots (see Clone) so that readers never observe an insert.
type FastMap[K constraints.Integer, V any] struct {
	keys   []K
	values []V
}

// NewFastMap creates a FastMap with room for capacity entries.
func NewFastMap[K constraints.Integer, V any](capacity int) *FastMap[K, V] {
	capacity = max(capacity, minCapacity)
	return &FastMap[K, V]{
		keys:   make([]K, 0, capacity),
		values: make([]V, 0, capacity),
	}
}

// Len returns the number of entries.
func (m *FastMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in ascending order. The slice must not be modified.
func (m *FastMap[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return m.keys
}

// search returns the index of key, or the bitwise complement of its
// insertion point when absent.
func (m *FastMap[K, V]) search(key K) int {
	lo, hi := 0, len(m.keys)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch k := m.keys[mid]; {
		case k == key:
			return mid
		case k < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return ^lo
}

// Insert adds or updates the value for key.
func (m *FastMap[K, V]) Insert(key K, value V) {
	i := m.search(key)
	if i >= 0 {
		m.values[i] = value
		return
	}
	i = ^i

	n := len(m.keys)
	if n == cap(m.keys) {
		m.grow(n + 1)
	}
	m.keys = m.keys[:n+1]
	m.values = m.values[:n+1]
	copy(m.keys[i+1:], m.keys[i:n])
	copy(m.values[i+1:], m.values[i:n])
	m.keys[i] = key
	m.values[i] = value
}

func (m *FastMap[K, V]) grow(need int) {
	c := growCap(cap(m.keys), need)
	keys := make([]K, len(m.keys), c)
	values := make([]V, len(m.values), c)
	copy(keys, m.keys)
	copy(values, m.values)
	m.keys, m.values = keys, values
}

// Get returns the value for key.
func (m *FastMap[K, V]) Get(key K) (V, bool) {
	var i int
	switch n := m.Len(); {
	case n == 0:
		i = -1
	case n <= linearSearchLimit:
		i = m.linearSearch(key)
	default:
		i = m.search(key)
	}
	if i < 0 {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// Contains reports whether key is present.
func (m *FastMap[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *FastMap[K, V]) linearSearch(key K) int {
	for i, k := range m.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Remove deletes key and reports whether it was present.
func (m *FastMap[K, V]) Remove(key K) bool {
	i := m.search(key)
	if i < 0 {
		return false
	}
	n := len(m.keys)
	copy(m.keys[i:], m.keys[i+1:])
	copy(m.values[i:], m.values[i+1:])
	var zero V
	m.values[n-1] = zero
	m.keys = m.keys[:n-1]
	m.values = m.values[:n-1]
	return true
}

// Range calls fn for each entry in key order until fn returns false.
func (m *FastMap[K, V]) Range(fn func(key K, value V) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !fn(k, m.values[i]) {
			return
		}
	}
}

// Clone returns an independent copy with room for at least one more entry.
func (m *FastMap[K, V]) Clone() *FastMap[K, V] {
	if m == nil {
		return NewFastMap[K, V](0)
	}
	c := NewFastMap[K, V](growCap(len(m.keys), len(m.keys)+1))
	c.keys = append(c.keys, m.keys...)
	c.values = append(c.values, m.values...)
	return c
}
