package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lumenlabs/lumen/pkg/provider/anim"
	"github.com/lumenlabs/lumen/pkg/provider/llm"
	"github.com/lumenlabs/lumen/pkg/provider/tts"
	"github.com/lumenlabs/lumen/pkg/provider/vision"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	llm    map[string]func(ProviderEntry) (llm.Provider, error)
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
	anim   map[string]func(ProviderEntry) (anim.Provider, error)
	vision map[string]func(ProviderEntry) (vision.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:    make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
		anim:   make(map[string]func(ProviderEntry) (anim.Provider, error)),
		vision: make(map[string]func(ProviderEntry) (vision.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterAnim registers an animation provider factory under name.
func (r *Registry) RegisterAnim(name string, factory func(ProviderEntry) (anim.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anim[name] = factory
}

// RegisterVision registers a vision provider factory under name.
func (r *Registry) RegisterVision(name string, factory func(ProviderEntry) (vision.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAnim instantiates an animation provider using the factory registered under entry.Name.
func (r *Registry) CreateAnim(entry ProviderEntry) (anim.Provider, error) {
	r.mu.RLock()
	factory, ok := r.anim[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: anim/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVision instantiates a vision provider using the factory registered under entry.Name.
func (r *Registry) CreateVision(entry ProviderEntry) (vision.Provider, error) {
	r.mu.RLock()
	factory, ok := r.vision[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vision/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
