package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	stt     map[string]func(ProviderEntry) (stt.Provider, error)
	sources map[string]func(VoiceConfig) (audio.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:     make(map[string]func(ProviderEntry) (stt.Provider, error)),
		sources: make(map[string]func(VoiceConfig) (audio.Source, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterSource registers an audio source factory under name.
func (r *Registry) RegisterSource(name string, factory func(VoiceConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSource instantiates the audio source named by cfg.Source.
func (r *Registry) CreateSource(cfg VoiceConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrProviderNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// STTNames returns the registered STT provider names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for n := range r.stt {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
