package registry

import (
	"sync"

	logger "github.com/sirupsen/logrus"
)

// SettingsCacheHolder is implemented by instances that embed their own
// settings cache. The registry clears that cache before evicting an instance
// so no stale settings leak through a half-evicted adapter.
type SettingsCacheHolder interface {
	ClearSettingsCache()
	HasCachedSettings() bool
}

// Factory builds the instance for an entity id. It may be slow (settings
// loads, credential decryption); the registry never holds its own lock while
// the factory runs.
type Factory[T any] func(id uint) (T, error)

// Stats is the introspection snapshot exposed for diagnostics.
type Stats struct {
	Count                   int `json:"count"`
	CountWithCachedSettings int `json:"count_with_cached_settings"`
}

// Registry enforces a single in-memory instance per entity id for expensive,
// stateful service objects such as account or expert adapters.
type Registry[T any] struct {
	name string

	mu      sync.Mutex
	entries map[uint]*entry[T]
}

// entry carries a per-key initialization guard so building one instance never
// blocks lookups or construction for other ids.
type entry[T any] struct {
	mu       sync.Mutex
	built    bool
	instance T
}

// New creates an empty registry. The name is only used for logging.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		entries: make(map[uint]*entry[T]),
	}
}

// GetOrCreate returns the cached instance for the id, invoking the factory
// when it is absent or forceNew is set. Concurrent callers for the same id get
// the identical instance and the factory runs exactly once.
func (r *Registry[T]) GetOrCreate(id uint, factory Factory[T], forceNew bool) (T, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || forceNew {
		if ok && forceNew {
			r.clearSettingsLocked(e)
		}
		e = &entry[T]{}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.built {
		return e.instance, nil
	}

	instance, err := factory(id)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"registry": r.name,
			"id":       id,
		}).WithError(err).Error("Instance factory failed")

		// Drop the failed entry so the next caller retries, unless another
		// GetOrCreate already replaced it.
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()

		var zero T
		return zero, err
	}

	e.instance = instance
	e.built = true

	logger.WithFields(map[string]interface{}{
		"registry": r.name,
		"id":       id,
	}).Debug("Instance constructed and cached")

	return e.instance, nil
}

// Get returns the cached instance without constructing one.
func (r *Registry[T]) Get(id uint) (T, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		var zero T
		return zero, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.built {
		var zero T
		return zero, false
	}
	return e.instance, true
}

// Invalidate removes the cached instance for the id, clearing its embedded
// settings cache first. Subsequent GetOrCreate calls construct fresh.
func (r *Registry[T]) Invalidate(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}

	r.clearSettingsLocked(e)
	delete(r.entries, id)

	logger.WithFields(map[string]interface{}{
		"registry": r.name,
		"id":       id,
	}).Debug("Instance invalidated")
}

// Clear evicts all instances. Used for full-reset scenarios such as test
// isolation.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		r.clearSettingsLocked(e)
		delete(r.entries, id)
	}

	logger.WithField("registry", r.name).Debug("Registry cleared")
}

// Stats reports the number of cached instances and how many of them currently
// hold cached settings.
func (r *Registry[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{}
	for _, e := range r.entries {
		e.mu.Lock()
		built := e.built
		instance := e.instance
		e.mu.Unlock()

		if !built {
			continue
		}
		stats.Count++
		if holder, ok := any(instance).(SettingsCacheHolder); ok && holder.HasCachedSettings() {
			stats.CountWithCachedSettings++
		}
	}

	return stats
}

func (r *Registry[T]) clearSettingsLocked(e *entry[T]) {
	e.mu.Lock()
	built := e.built
	instance := e.instance
	e.mu.Unlock()

	if !built {
		return
	}
	if holder, ok := any(instance).(SettingsCacheHolder); ok {
		holder.ClearSettingsCache()
	}
}
