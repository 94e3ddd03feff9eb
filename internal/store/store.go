// Package store keeps the latest View so HTTP clients can read what the
// session last delivered.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

// LatestKey is the key the session writes its view under.
const LatestKey = "latest"

// Store defines the interface for view storage implementations.
// Get returns the stored view if present and not expired, Set stores it with TTL.
type Store interface {
	Get(ctx context.Context, key string) (models.View, bool, error)
	Set(ctx context.Context, key string, value models.View, ttl time.Duration) error
}

// InMemoryStore implements Store using a map with TTL-based expiration.
// Safe for concurrent use. A ttl <= 0 never expires.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     models.View
	expiresAt time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get returns (view, true, nil) when present, (zero, false, nil) on miss or expiry.
// Expired entries are removed on access.
func (s *InMemoryStore) Get(ctx context.Context, key string) (models.View, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.View{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return models.View{}, false, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.data, key)
		return models.View{}, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key, replacing any previous view.
func (s *InMemoryStore) Set(ctx context.Context, key string, value models.View, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.data[key] = entry{value: value, expiresAt: exp}
	return nil
}
