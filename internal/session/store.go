package session

import (
	"context"
	"fmt"
	"sync"

	"aceinterview/internal/config"
)

// Store is the best-effort key-value cache a session survives restarts with.
// Nothing read from a Store is treated as authoritative; last write wins.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// NewStore builds the store selected by cfg.Store
func NewStore(cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "", "none":
		return NopStore{}, nil
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.FilePath), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.KeyPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Store)
	}
}

// NopStore remembers nothing
type NopStore struct{}

func (NopStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopStore) Set(context.Context, string, string) error         { return nil }
func (NopStore) Delete(context.Context, ...string) error           { return nil }
func (NopStore) Close() error                                      { return nil }

// MemoryStore keeps values in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// namespacedStore prefixes every key so several sessions can share one backing store
type namespacedStore struct {
	Store
	prefix string
}

// Namespaced returns a view of store whose keys are prefixed with prefix.
// Closing the view does not close the backing store.
func Namespaced(store Store, prefix string) Store {
	return &namespacedStore{Store: store, prefix: prefix}
}

func (n *namespacedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return n.Store.Get(ctx, n.prefix+key)
}

func (n *namespacedStore) Set(ctx context.Context, key, value string) error {
	return n.Store.Set(ctx, n.prefix+key, value)
}

func (n *namespacedStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = n.prefix + k
	}
	return n.Store.Delete(ctx, prefixed...)
}

func (n *namespacedStore) Close() error { return nil }
