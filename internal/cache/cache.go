// Package cache holds the in-process read caches in front of the backing
// medium.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically drops expired entries from registered caches.
type Manager struct {
	caches []Cleaner
	logger *slog.Logger
}

// NewManager creates a new cache manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// CleanOnce runs one cleanup pass and returns the number of entries removed.
func (m *Manager) CleanOnce() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run cleans every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanOnce(); n > 0 {
				m.logger.DebugContext(ctx, "Expired cache entries removed", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
