package identitycache

import (
	"context"
	"errors"
	"sync"

	"myidoru.app/web/internal/web/identity"
)

// Key is the fixed cache key the identity is stored under.
const Key = "userData"

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("identitycache: key not found")

// Store is a per-client key/value store.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
}

// Put caches the identity under Key, replacing any previous value.
func Put(ctx context.Context, store Store, id identity.Identity) error {
	if store == nil {
		return errors.New("identitycache: store is nil")
	}
	if id.IsZero() {
		return errors.New("identitycache: empty identity")
	}
	return store.Set(ctx, Key, id.String())
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Set stores the value.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Get returns the stored value or ErrNotFound.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Scoped namespaces every key of a shared store with a client scope such as a session id.
func Scoped(store Store, scope string) Store {
	return scoped{next: store, scope: scope}
}

type scoped struct {
	next  Store
	scope string
}

func (s scoped) Set(ctx context.Context, key, value string) error {
	return s.next.Set(ctx, s.scope+":"+key, value)
}

func (s scoped) Get(ctx context.Context, key string) (string, error) {
	return s.next.Get(ctx, s.scope+":"+key)
}
