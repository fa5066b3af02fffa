package engine

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/helix-labs/helix/internal/config"
	"github.com/helix-labs/helix/internal/types"
)

// Registry maps engine ids to adapters plus their catalog descriptors.
type Registry struct {
	mu          sync.RWMutex
	engines     map[string]CompletionEngine
	descriptors map[string]types.EngineDescriptor
	breakers    map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{
		engines:     make(map[string]CompletionEngine),
		descriptors: make(map[string]types.EngineDescriptor),
		breakers:    make(map[string]*CircuitBreaker),
	}
}

// Register adds an engine with its descriptor and the breaker guarding its
// provider account.
func (r *Registry) Register(desc types.EngineDescriptor, eng CompletionEngine, breaker *CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[desc.ID] = desc
	r.engines[desc.ID] = &breakered{inner: eng, breaker: breaker}
	if breaker != nil {
		r.breakers[eng.Provider()] = breaker
	}
}

// Engine returns the adapter and catalog entry for an engine id.
func (r *Registry) Engine(id string) (CompletionEngine, types.EngineDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.engines[id]
	if !ok {
		return nil, types.EngineDescriptor{}, false
	}
	return eng, r.descriptors[id], true
}

// Descriptor returns only the catalog entry, usable for disabled engines too.
func (r *Registry) Descriptor(id string) (types.EngineDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	return d, ok
}

// Replace swaps in another registry's contents, for config hot reload.
func (r *Registry) Replace(src *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = src.engines
	r.descriptors = src.descriptors
	r.breakers = src.breakers
}

// Descriptors lists the catalog sorted by id.
func (r *Registry) Descriptors() []types.EngineDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.EngineDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BuildFromConfig builds the registry from the engines catalog. Engines whose
// provider account is missing are skipped; each provider account shares one
// HTTP client and circuit breaker.
func BuildFromConfig(engCfg *config.EnginesConfig, chatCfg config.ChatConfig) *Registry {
	registry := NewRegistry()
	retry := RetryPolicy{MaxAttempts: chatCfg.MaxRetries, BaseDelay: chatCfg.RetryBaseDelay}

	clients := make(map[string]*http.Client)
	breakers := make(map[string]*CircuitBreaker)
	for name, prov := range engCfg.Providers {
		timeout := prov.Timeout
		if timeout <= 0 {
			timeout = chatCfg.RequestTimeout
		}
		clients[name] = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
		breakers[name] = NewCircuitBreaker(
			chatCfg.CircuitBreaker.FailureThreshold,
			chatCfg.CircuitBreaker.RecoveryProbeInterval,
		)
	}

	for id, entry := range engCfg.Engines {
		prov, ok := engCfg.Providers[entry.Provider]
		if !ok {
			continue
		}
		client := clients[entry.Provider]

		var eng CompletionEngine
		switch prov.Type {
		case "anthropic":
			eng = NewAnthropicEngine(id, entry.Model, prov, client, retry)
		default:
			// OpenAI and anything speaking its chat completions dialect
			eng = NewOpenAIEngine(id, entry.Model, prov, client, retry)
		}

		registry.Register(types.EngineDescriptor{
			ID:          id,
			Provider:    prov.Type,
			DisplayName: entry.DisplayName,
			Enabled:     entry.Enabled,
			InputRate:   entry.InputRate,
			OutputRate:  entry.OutputRate,
		}, eng, breakers[entry.Provider])
	}
	return registry
}

// breakered wraps an engine with its provider's circuit breaker.
type breakered struct {
	inner   CompletionEngine
	breaker *CircuitBreaker
}

func (b *breakered) ID() string       { return b.inner.ID() }
func (b *breakered) Provider() string { return b.inner.Provider() }

func (b *breakered) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	if b.breaker != nil && !b.breaker.Allow() {
		return nil, &EngineError{
			EngineID:  b.inner.ID(),
			Provider:  b.inner.Provider(),
			Retryable: true,
			Err:       fmt.Errorf("provider circuit open"),
		}
	}
	resp, err := b.inner.Complete(ctx, req)
	if b.breaker != nil {
		if err != nil {
			b.breaker.RecordFailure()
		} else {
			b.breaker.RecordSuccess()
		}
	}
	return resp, err
}
