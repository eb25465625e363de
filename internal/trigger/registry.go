package trigger

import (
	"fmt"
	"sync"
)

// providerEntry holds one provider's registered surfaces.
type providerEntry struct {
	dispatcher Dispatcher
	lifecycle  Lifecycle
	events     map[string]Projector
}

// Registry maps provider names to dispatchers and lifecycles, and logical
// event names to projectors. Registration and resolution are two phases: a
// provider registers its dispatcher and lifecycle first, then events
// register incrementally against it. Duplicate registration is an error,
// never a silent overwrite.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*providerEntry)}
}

// RegisterProvider installs the dispatcher and lifecycle for a provider
// name. Registering a name twice fails with ErrProviderAlreadyRegistered.
func (r *Registry) RegisterProvider(name string, d Dispatcher, l Lifecycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}
	r.providers[name] = &providerEntry{
		dispatcher: d,
		lifecycle:  l,
		events:     make(map[string]Projector),
	}
	return nil
}

// RegisterEvent installs a projector for a logical event name under an
// already-registered provider. Registering the same event twice fails with
// ErrEventAlreadyRegistered.
func (r *Registry) RegisterEvent(provider, event string, p Projector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.providers[provider]
	if !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}
	if _, exists := entry.events[event]; exists {
		return fmt.Errorf("%w: %s/%s", ErrEventAlreadyRegistered, provider, event)
	}
	entry.events[event] = p
	return nil
}

// MustRegisterProvider panics on registration failure. Intended for
// assembly at startup where a duplicate is a programming error.
func (r *Registry) MustRegisterProvider(name string, d Dispatcher, l Lifecycle) {
	if err := r.RegisterProvider(name, d, l); err != nil {
		panic(err)
	}
}

// MustRegisterEvent panics on registration failure.
func (r *Registry) MustRegisterEvent(provider, event string, p Projector) {
	if err := r.RegisterEvent(provider, event, p); err != nil {
		panic(err)
	}
}

// Dispatcher resolves the dispatcher for a provider name.
func (r *Registry) Dispatcher(provider string) (Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.providers[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}
	return entry.dispatcher, nil
}

// Lifecycle resolves the lifecycle for a provider name.
func (r *Registry) Lifecycle(provider string) (Lifecycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.providers[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}
	return entry.lifecycle, nil
}

// Projector resolves the projector for a provider/event pair.
func (r *Registry) Projector(provider, event string) (Projector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.providers[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, provider)
	}
	p, exists := entry.events[event]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrEventNotRegistered, provider, event)
	}
	return p, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Events returns the logical event names registered under a provider.
func (r *Registry) Events(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.providers[provider]
	if !exists {
		return nil
	}
	events := make([]string, 0, len(entry.events))
	for event := range entry.events {
		events = append(events, event)
	}
	return events
}
