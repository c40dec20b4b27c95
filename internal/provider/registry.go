package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
}

func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns the providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	return providers
}

func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrModelNotFound, providerID, modelID)
}

// AllModels returns all models from all providers.
func (r *Registry) AllModels() []types.Model {
	var models []types.Model
	for _, p := range r.List() {
		models = append(models, p.Models()...)
	}
	return models
}

// DefaultModel resolves the configured "provider/model". Local models are
// preferred when one is registered and nothing is configured.
func (r *Registry) DefaultModel() (Provider, *types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		p, err := r.Get(providerID)
		if err != nil {
			return nil, nil, err
		}
		m, err := r.GetModel(providerID, modelID)
		if err != nil {
			// remote providers serve more models than they list
			m = &types.Model{ID: modelID, Name: modelID, ProviderID: providerID}
		}
		return p, m, nil
	}

	if p, err := r.Get("local"); err == nil && len(p.Models()) > 0 {
		m := p.Models()[0]
		return p, &m, nil
	}

	for _, p := range r.List() {
		if models := p.Models(); len(models) > 0 {
			m := models[0]
			return p, &m, nil
		}
	}
	return nil, nil, ErrNoModel
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// InitializeProviders creates and registers the remote providers with keys in config.
// A provider that fails to initialize is logged and skipped.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	log := logging.Component("provider")

	if cfg, ok := config.Provider["anthropic"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", "anthropic").Msg("provider skipped")
		} else {
			registry.Register(provider)
		}
	}

	if cfg, ok := config.Provider["openai"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", "openai").Msg("provider skipped")
		} else {
			registry.Register(provider)
		}
	}

	if cfg, ok := config.Provider["ark"]; ok && cfg.APIKey != "" && !cfg.Disable {
		provider, err := NewArkProvider(ctx, &ArkConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", "ark").Msg("provider skipped")
		} else {
			registry.Register(provider)
		}
	}

	return registry, nil
}
