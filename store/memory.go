package store

import (
	"context"
	"sync"
	"time"

	"github.com/replaygate/idempotency"
)

// Memory is an in-memory implementation of idempotency.Store with per-entry
// TTL. Suitable for tests and single-process deployments; entries are not
// shared across processes.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry
	stop chan struct{}
	once sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory store and starts its expiry sweeper.
func NewMemory() *Memory {
	s := &Memory{
		data: make(map[string]entry),
		stop: make(chan struct{}),
	}

	go s.sweep()

	return s
}

// Get retrieves the stored bytes for key. Expired entries are reported as
// missing even before the sweeper removes them.
func (s *Memory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, idempotency.ErrNotFound
	}

	return e.value, nil
}

// Set stores value under key with the given TTL.
func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Close stops the background sweeper. Safe to call more than once.
func (s *Memory) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
}

// sweep periodically removes expired entries.
func (s *Memory) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, e := range s.data {
				if now.After(e.expiresAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
