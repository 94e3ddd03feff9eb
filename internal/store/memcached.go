package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/uv-alert-service/internal/models"
)

const keyPrefix = "uvalert:view:"

// maxRelativeExp is memcached's limit for relative expirations (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedStore implements Store using memcached, so several replicas
// serve the same latest view.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(k string) string {
	return keyPrefix + k
}

// Get implements Store.Get. Returns false, nil on miss; false, err on error.
func (s *MemcachedStore) Get(ctx context.Context, key string) (models.View, bool, error) {
	if ctx.Err() != nil {
		return models.View{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.View{}, false, nil
		}
		return models.View{}, false, err
	}
	var v models.View
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return models.View{}, false, err
	}
	return v, true, nil
}

// Set implements Store.Set. A ttl <= 0 stores without expiration.
func (s *MemcachedStore) Set(ctx context.Context, key string, value models.View, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(key),
		Value:      raw,
		Expiration: expiration(ttl),
	})
}

func expiration(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	switch {
	case sec <= 0:
		return 0
	case sec > maxRelativeExp:
		return maxRelativeExp
	default:
		return int32(sec)
	}
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
