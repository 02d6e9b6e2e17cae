package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ModelInitFunc constructs a model-backed resource on first use. Heavy model
// servers (TTS, animation) are not touched until a request actually needs
// them, so a misconfigured backend only fails the requests that reach it.
type ModelInitFunc func(ctx context.Context) (any, error)

// modelEntry is one lazily initialised model slot.
type modelEntry struct {
	mu   sync.Mutex
	init ModelInitFunc

	// sem serialises heavy requests against the model. GPU-backed servers
	// degrade badly under concurrent load, so each model admits one request
	// at a time.
	sem *semaphore.Weighted

	value  any
	loaded bool
}

// ModelRegistry caches lazily initialised model-backed resources keyed by
// name, with per-model request serialisation and an explicit shutdown hook.
type ModelRegistry struct {
	mu      sync.Mutex
	entries map[string]*modelEntry
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{entries: make(map[string]*modelEntry)}
}

// Register records an init function under name. Registering the same name
// twice replaces the init function only if the model has not been loaded yet.
func (r *ModelRegistry) Register(name string, init ModelInitFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.mu.Lock()
		if !e.loaded {
			e.init = init
		}
		e.mu.Unlock()
		return
	}
	r.entries[name] = &modelEntry{
		init: init,
		sem:  semaphore.NewWeighted(1),
	}
}

// Get returns the model under name, initialising it on first use. A failed
// init is not cached; the next Get retries.
func (r *ModelRegistry) Get(ctx context.Context, name string) (any, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pipeline: model %q not registered", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.value, nil
	}
	v, err := e.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: init model %q: %w", name, err)
	}
	e.value = v
	e.loaded = true
	slog.Info("model initialised", "model", name)
	return v, nil
}

// Acquire blocks until the named model's request slot is free, then returns
// the model and a release function. Callers must call release exactly once.
func (r *ModelRegistry) Acquire(ctx context.Context, name string) (any, func(), error) {
	v, err := r.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	e := r.entries[name]
	r.mu.Unlock()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	return v, func() { e.sem.Release(1) }, nil
}

// Loaded reports whether the named model has been initialised.
func (r *ModelRegistry) Loaded(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Shutdown releases every loaded model. Models implementing io.Closer or a
// Shutdown(context.Context) error method are closed; errors are collected and
// the shutdown continues. After Shutdown the registry is empty.
func (r *ModelRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*modelEntry)
	r.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		e := entries[name]
		e.mu.Lock()
		loaded, v := e.loaded, e.value
		e.loaded, e.value = false, nil
		e.mu.Unlock()
		if !loaded {
			continue
		}
		if err := closeModel(ctx, v); err != nil {
			slog.Warn("model shutdown failed", "model", name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("pipeline: shutdown model %q: %w", name, err)
			}
			continue
		}
		slog.Info("model shut down", "model", name)
	}
	return firstErr
}

func closeModel(ctx context.Context, v any) error {
	switch m := v.(type) {
	case interface{ Shutdown(context.Context) error }:
		return m.Shutdown(ctx)
	case interface{ Close() error }:
		return m.Close()
	default:
		return nil
	}
}
