// Package store provides the durable key/value capability backing
// subscription records and incremental-sync cursors. Backends register
// themselves through a factory registry; callers pick one by type name.
package store

import (
	"context"
	"errors"
	"sync"

	apperrors "triggerhub/internal/common/errors"
)

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the persistence capability injected into the trigger subsystem.
// Implementations must be safe for concurrent use and must bound every
// operation with the caller's context.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys with the given prefix. Used by the renewal
	// scheduler to enumerate subscription records.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Config carries backend connection settings.
type Config struct {
	// SQLite
	Path string
	// Postgres
	URL string
	// Redis
	Address  string
	Password string
	DB       int
}

// Factory creates a Store from a Config.
type Factory interface {
	Create(config Config) (Store, error)
	GetType() string
}

// Registry is a thread-safe factory registry for store backends.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a backend factory.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.GetType()] = factory
}

// Create builds a store of the given backend type.
func (r *Registry) Create(storeType string, config Config) (Store, error) {
	r.mu.RLock()
	factory, exists := r.factories[storeType]
	r.mu.RUnlock()

	if !exists {
		return nil, apperrors.ConfigError("store type not registered: " + storeType)
	}

	return factory.Create(config)
}

// GetAvailableTypes lists registered backend names.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	return types
}

// DefaultRegistry is populated by backend init functions.
var DefaultRegistry = NewRegistry()
