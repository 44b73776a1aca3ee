package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/interviewcoach/pkg/media"
	"github.com/MrWong99/interviewcoach/pkg/provider/face"
	"github.com/MrWong99/interviewcoach/pkg/provider/llm"
	"github.com/MrWong99/interviewcoach/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	media map[string]func(ProviderEntry) (media.Device, error)
	vad   map[string]func(ProviderEntry) (vad.Engine, error)
	face  map[string]func(ProviderEntry) (face.Detector, error)
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		media: make(map[string]func(ProviderEntry) (media.Device, error)),
		vad:   make(map[string]func(ProviderEntry) (vad.Engine, error)),
		face:  make(map[string]func(ProviderEntry) (face.Detector, error)),
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterMedia registers a media device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterMedia(name string, factory func(ProviderEntry) (media.Device, error)) {
	register(r, r.media, name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	register(r, r.vad, name, factory)
}

// RegisterFace registers a face detector factory under name.
func (r *Registry) RegisterFace(name string, factory func(ProviderEntry) (face.Detector, error)) {
	register(r, r.face, name, factory)
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// CreateMedia instantiates a media device using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateMedia(entry ProviderEntry) (media.Device, error) {
	return create(r, r.media, "media", entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// CreateFace instantiates a face detector using the factory registered under entry.Name.
func (r *Registry) CreateFace(entry ProviderEntry) (face.Detector, error) {
	return create(r, r.face, "face", entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

func register[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), name string, factory func(ProviderEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
