// Package decaymap is a generic map whose entries expire after a
// deadline. Expired entries are evicted lazily on read and in bulk by
// Cleanup, which the owner is expected to call on a timer.
package decaymap

import (
	"sync"
	"time"
)

// Zilch returns the zero value of any type.
func Zilch[T any]() T {
	var zero T
	return zero
}

type decayEntry[V any] struct {
	value  V
	expiry time.Time
}

// Impl is a TTL map safe for concurrent use.
type Impl[K comparable, V any] struct {
	data map[K]decayEntry[V]
	lock sync.RWMutex
}

func New[K comparable, V any]() *Impl[K, V] {
	return &Impl[K, V]{
		data: map[K]decayEntry[V]{},
	}
}

func (m *Impl[K, V]) expire(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	ent, ok := m.data[key]
	if !ok {
		return false
	}

	if time.Now().After(ent.expiry) {
		delete(m.data, key)
		return true
	}

	return false
}

// Get fetches a value if it exists and has not expired.
func (m *Impl[K, V]) Get(key K) (V, bool) {
	if m.expire(key) {
		return Zilch[V](), false
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	ent, ok := m.data[key]
	if !ok {
		return Zilch[V](), false
	}

	return ent.value, true
}

// Set stores a value that decays after ttl.
func (m *Impl[K, V]) Set(key K, value V, ttl time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.data[key] = decayEntry[V]{
		value:  value,
		expiry: time.Now().Add(ttl),
	}
}

// Delete removes a key, reporting whether it was present.
func (m *Impl[K, V]) Delete(key K) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.data[key]
	if ok {
		delete(m.data, key)
	}

	return ok
}

// Cleanup removes every expired entry in one pass.
func (m *Impl[K, V]) Cleanup() {
	now := time.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	for key, ent := range m.data {
		if now.After(ent.expiry) {
			delete(m.data, key)
		}
	}
}

// Len reports the number of live and not-yet-swept entries.
func (m *Impl[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.data)
}
