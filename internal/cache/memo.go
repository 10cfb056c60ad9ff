package cache

import (
	"context"
	"reflect"
	"runtime"
	"time"
)

// Memo caches function results for a TTL. Entries are keyed by the identity
// of the function plus a caller supplied key, so two loaders sharing one
// Memo never collide. Failed calls are not cached and leave earlier entries
// in place.
type Memo[T any] struct {
	store    *LRUCache[T]
	name     string
	observer Observer
}

func NewMemo[T any](name string, maxEntries int, ttl time.Duration, observer Observer) *Memo[T] {
	return &Memo[T]{
		store:    NewLRUCache[T](maxEntries, ttl),
		name:     name,
		observer: observer,
	}
}

// Do returns the cached result of fn for key, calling fn on a miss. hit
// reports whether the value came from the cache.
func (m *Memo[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (value T, hit bool, err error) {
	k := FuncName(fn) + "|" + key
	if v, ok := m.store.Get(ctx, k); ok {
		m.observe(true)
		return v, true, nil
	}
	m.observe(false)

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	m.store.Set(ctx, k, v)
	return v, false, nil
}

func (m *Memo[T]) observe(hit bool) {
	if m.observer != nil {
		m.observer.CacheLookup(m.name, hit)
	}
}

func (m *Memo[T]) CleanExpired() int { return m.store.CleanExpired() }

func (m *Memo[T]) Size() int { return m.store.Size() }

// Invalidate drops every memoized result.
func (m *Memo[T]) Invalidate() { m.store.Clear() }

// FuncName returns the fully qualified name of fn.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "<nil>"
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}
