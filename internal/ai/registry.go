package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrUnknownProvider     = errors.New("unknown ai provider")
	ErrCredentialsRequired = errors.New("provider needs caller credentials")
)

// ProviderFactory builds a provider for one research run. apiKey is the
// caller's upstream credential; providers that need none ignore it.
type ProviderFactory func(ctx context.Context, model, apiKey string) (Provider, error)

type entry struct {
	build        ProviderFactory
	requireKey   bool
	defaultModel string
}

// RegisterOption tunes how a provider is resolved.
type RegisterOption func(*entry)

// RequireKey rejects resolution without a non-blank api key.
func RequireKey() RegisterOption { return func(e *entry) { e.requireKey = true } }

// DefaultModel is used when the caller asks for no model.
func DefaultModel(m string) RegisterOption { return func(e *entry) { e.defaultModel = m } }

// Registry resolves a provider name plus per-run model and key into a Provider.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register adds or replaces a provider.
func (r *Registry) Register(name string, f ProviderFactory, opts ...RegisterOption) {
	e := entry{build: f}
	for _, o := range opts {
		o(&e)
	}
	r.mu.Lock()
	r.entries[normalize(name)] = e
	r.mu.Unlock()
}

func (r *Registry) Get(ctx context.Context, name, model, apiKey string) (Provider, error) {
	key := normalize(name)
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if e.requireKey && strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrCredentialsRequired)
	}
	if strings.TrimSpace(model) == "" {
		model = e.defaultModel
	}
	return e.build(ctx, model, apiKey)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
