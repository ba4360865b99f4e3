// Package resilience guards registry hosts with circuit breakers and token
// bucket rate limiters, one of each per host.
package resilience

import "sync"

// hostMap lazily creates one value per host.
type hostMap[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	create func(host string) T
}

func newHostMap[T any](create func(host string) T) *hostMap[T] {
	return &hostMap[T]{items: make(map[string]T), create: create}
}

func (m *hostMap[T]) get(host string) T {
	m.mu.RLock()
	v, ok := m.items[host]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = m.items[host]; ok {
		return v
	}
	v = m.create(host)
	m.items[host] = v
	return v
}

func (m *hostMap[T]) lookup(host string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[host]
	return v, ok
}

func (m *hostMap[T]) each(fn func(host string, v T)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for h, v := range m.items {
		fn(h, v)
	}
}
