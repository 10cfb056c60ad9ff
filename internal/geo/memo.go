package geo

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type resolution struct {
	code string
	ok   bool
}

// MemoResolver caches resolutions per distinct input string. Concurrent
// lookups of the same string share one call to the wrapped resolver. A panic
// in the wrapped resolver is recorded as a miss.
type MemoResolver struct {
	inner  Resolver
	logger *slog.Logger

	mu    sync.RWMutex
	memo  map[string]resolution
	group singleflight.Group

	calls    atomic.Int64
	failures atomic.Int64
}

func NewMemoResolver(inner Resolver, logger *slog.Logger) *MemoResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoResolver{
		inner:  inner,
		logger: logger,
		memo:   make(map[string]resolution),
	}
}

func (m *MemoResolver) Resolve(name string) (string, bool) {
	m.mu.RLock()
	res, ok := m.memo[name]
	m.mu.RUnlock()
	if ok {
		return res.code, res.ok
	}

	v, _, _ := m.group.Do(name, func() (any, error) {
		m.mu.RLock()
		res, ok := m.memo[name]
		m.mu.RUnlock()
		if ok {
			return res, nil
		}

		res = m.resolve(name)
		m.mu.Lock()
		m.memo[name] = res
		m.mu.Unlock()
		return res, nil
	})
	res = v.(resolution)
	return res.code, res.ok
}

func (m *MemoResolver) resolve(name string) (res resolution) {
	m.calls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			m.failures.Add(1)
			m.logger.Debug("country resolver failed", "country", name, "error", fmt.Sprint(r))
			res = resolution{}
		}
	}()
	code, ok := m.inner.Resolve(name)
	return resolution{code: code, ok: ok}
}

// Calls returns how many times the wrapped resolver was invoked.
func (m *MemoResolver) Calls() int64 { return m.calls.Load() }

// Failures returns how many wrapped calls panicked.
func (m *MemoResolver) Failures() int64 { return m.failures.Load() }

func (m *MemoResolver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memo)
}
