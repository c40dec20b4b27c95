package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/storage"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// LocalProviderID identifies the provider serving local model files.
const LocalProviderID = "local"

const (
	stateModel    = "model"
	stateHardware = "hardware"
)

// LocalFactory builds the provider that serves a local model.
type LocalFactory func(ctx context.Context, cfg *OpenAIConfig) (Provider, error)

func defaultLocalFactory(ctx context.Context, cfg *OpenAIConfig) (Provider, error) {
	return NewOpenAIProvider(ctx, cfg)
}

// LoaderConfig wires a Loader.
type LoaderConfig struct {
	Catalog  *Catalog
	Gateway  *Gateway
	Registry *Registry
	// Store persists the active model and hardware config. Optional.
	Store *storage.Store
	// Bus receives model.loaded and hardware.updated events. Optional.
	Bus *event.Bus
	// LocalURL is the OpenAI-compatible endpoint serving local models.
	LocalURL string
	Hardware types.HardwareConfig
	// Factory overrides how the local provider is built.
	Factory LocalFactory
}

// Loader activates local model files and tracks the hardware config they
// are served with.
type Loader struct {
	mu       sync.RWMutex
	cfg      LoaderConfig
	hardware types.HardwareConfig
	loaded   *types.LoadedModel
	log      zerolog.Logger
}

// NewLoader creates a loader. Hardware defaults apply when cfg.Hardware is zero.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Factory == nil {
		cfg.Factory = defaultLocalFactory
	}
	if cfg.Catalog == nil {
		cfg.Catalog = NewCatalog("", "")
	}
	hw := cfg.Hardware
	if hw == (types.HardwareConfig{}) {
		hw = types.DefaultHardware()
	}
	return &Loader{
		cfg:      cfg,
		hardware: hw,
		log:      logging.Component("loader"),
	}
}

// Catalog returns the loader's catalog.
func (l *Loader) Catalog() *Catalog { return l.cfg.Catalog }

// Load activates the model file at path and makes it the gateway's model.
func (l *Loader) Load(ctx context.Context, path string) (*types.LoadedModel, error) {
	resolved, err := l.cfg.Catalog.Resolve(path)
	if err != nil {
		return nil, err
	}
	modelID := ModelID(resolved)

	l.mu.Lock()
	defer l.mu.Unlock()

	hw := l.hardware
	p, err := l.cfg.Factory(ctx, &OpenAIConfig{
		ID:            LocalProviderID,
		BaseURL:       l.cfg.LocalURL,
		Model:         modelID,
		Local:         true,
		ContextLength: hw.ContextSize,
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", modelID, err)
	}

	if l.cfg.Registry != nil {
		l.cfg.Registry.Register(p)
	}
	if l.cfg.Gateway != nil {
		l.cfg.Gateway.Use(p, modelID)
	}

	loaded := &types.LoadedModel{
		ProviderID: p.ID(),
		ModelID:    modelID,
		Path:       resolved,
		Hardware:   hw,
		LoadedAt:   time.Now().UnixMilli(),
	}
	l.loaded = loaded
	l.persist(ctx, stateModel, loaded)

	l.log.Info().Str("model", modelID).Str("path", resolved).
		Int("n_gpu_layers", hw.GPULayers).Int("n_ctx", hw.ContextSize).Msg("model loaded")
	if l.cfg.Bus != nil {
		l.cfg.Bus.Publish(event.Event{Type: event.ModelLoaded, Data: event.ModelLoadedData{Model: *loaded}})
	}

	out := *loaded
	return &out, nil
}

// UpdateHardware merges patch into the hardware config. The new values take
// effect on the next Load.
func (l *Loader) UpdateHardware(ctx context.Context, patch types.HardwarePatch) types.HardwareConfig {
	l.mu.Lock()
	l.hardware = patch.Apply(l.hardware)
	hw := l.hardware
	l.persist(ctx, stateHardware, hw)
	l.mu.Unlock()

	if l.cfg.Bus != nil {
		l.cfg.Bus.Publish(event.Event{Type: event.HardwareUpdated, Data: event.HardwareUpdatedData{Hardware: hw}})
	}
	return hw
}

// Hardware returns the current hardware config.
func (l *Loader) Hardware() types.HardwareConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hardware
}

// Loaded returns the active local model, if any.
func (l *Loader) Loaded() (*types.LoadedModel, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.loaded == nil {
		return nil, false
	}
	out := *l.loaded
	return &out, true
}

// Restore reloads the persisted hardware config and model. A persisted model
// whose file is gone is forgotten.
func (l *Loader) Restore(ctx context.Context) error {
	if l.cfg.Store == nil {
		return nil
	}

	var hw types.HardwareConfig
	switch err := l.cfg.Store.Load(ctx, stateHardware, &hw); {
	case err == nil:
		l.mu.Lock()
		l.hardware = hw
		l.mu.Unlock()
	case !errors.Is(err, storage.ErrNotFound):
		l.log.Warn().Err(err).Msg("ignoring unreadable hardware state")
	}

	var model types.LoadedModel
	if err := l.cfg.Store.Load(ctx, stateModel, &model); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("restore model: %w", err)
	}

	if _, err := l.Load(ctx, model.Path); err != nil {
		if errors.Is(err, ErrModelNotFound) {
			l.log.Warn().Str("path", model.Path).Msg("persisted model is gone")
			return l.cfg.Store.Remove(ctx, stateModel)
		}
		return fmt.Errorf("restore model: %w", err)
	}
	return nil
}

// persist saves state, logging failures. Runtime state is best effort.
func (l *Loader) persist(ctx context.Context, key string, v any) {
	if l.cfg.Store == nil {
		return
	}
	if err := l.cfg.Store.Save(ctx, key, v); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to persist state")
	}
}
