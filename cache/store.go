// Package cache provides the process-lifetime memo store used by the
// registry client, an optional on-disk tarball cache, and the per-run
// session identity.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/willibrandon/gonpm/observability"
)

// Store is a write-once, single-flight memo keyed by string. Concurrent
// callers for a missing key share one fetch; the first stored value wins
// and is returned to every later caller. Failed fetches are not stored.
type Store[V any] struct {
	name   string
	values sync.Map // key -> V
	group  singleflight.Group
}

// NewStore creates an empty store. name labels its cache metrics.
func NewStore[V any](name string) *Store[V] {
	return &Store[V]{name: name}
}

// Get returns the value for key, running fetch at most once among
// concurrent callers. The fetch runs with the context of the caller that
// started it; a caller whose own ctx ends stops waiting.
func (s *Store[V]) Get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := s.values.Load(key); ok {
		observability.CacheHitsTotal.WithLabelValues(s.name).Inc()
		return v.(V), nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		if v, ok := s.values.Load(key); ok {
			return v, nil
		}
		observability.CacheMissesTotal.WithLabelValues(s.name).Inc()

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		actual, _ := s.values.LoadOrStore(key, v)
		return actual, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		if res.Shared {
			observability.CacheHitsTotal.WithLabelValues(s.name).Inc()
		}
		return res.Val.(V), nil
	}
}

// Peek returns the stored value for key without fetching.
func (s *Store[V]) Peek(key string) (V, bool) {
	v, ok := s.values.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Put stores v unless key already holds a value, and returns the value
// that ends up stored.
func (s *Store[V]) Put(key string, v V) V {
	actual, _ := s.values.LoadOrStore(key, v)
	return actual.(V)
}

// Len returns the number of stored values.
func (s *Store[V]) Len() int {
	n := 0
	s.values.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
