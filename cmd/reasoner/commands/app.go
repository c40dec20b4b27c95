package commands

import (
	"context"
	"path/filepath"

	"github.com/opencode-ai/reasoner/internal/config"
	"github.com/opencode-ai/reasoner/internal/engine"
	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/internal/session"
	"github.com/opencode-ai/reasoner/internal/storage"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// app holds the services shared by the commands that run the engine.
type app struct {
	dir       string
	config    *types.Config
	bus       *event.Bus
	sessions  *session.Store
	processor *session.Processor
	registry  *provider.Registry
	gateway   *provider.Gateway
	loader    *provider.Loader
	engine    *engine.Engine
}

// newApp loads the configuration for dir and wires the engine. The model
// persisted by a previous serve is reloaded; without one the configured
// remote model, if any, is activated.
func newApp(ctx context.Context, dir string) (*app, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	appConfig, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	log := logging.Component("app")

	registry, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		log.Warn().Err(err).Msg("some providers failed to initialize")
	}

	bus := event.NewBus()
	gateway := provider.NewGateway(provider.NewPool(appConfig.Engine.PoolSize))

	modelDir := appConfig.ModelDir
	if modelDir == "" {
		modelDir = dir
	} else if !filepath.IsAbs(modelDir) {
		modelDir = filepath.Join(dir, modelDir)
	}
	loader := provider.NewLoader(provider.LoaderConfig{
		Catalog:  provider.NewCatalog(modelDir, appConfig.ModelPattern),
		Gateway:  gateway,
		Registry: registry,
		Store:    storage.New(paths.StatePath()),
		Bus:      bus,
		LocalURL: appConfig.LocalURL,
		Hardware: *appConfig.Hardware,
	})
	if err := loader.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore the previous model")
	}
	if _, ok := loader.Loaded(); !ok {
		if p, m, err := registry.DefaultModel(); err == nil {
			gateway.Use(p, m.ID)
			log.Info().Str("provider", p.ID()).Str("model", m.ID).Msg("using configured model")
		}
	}

	sessions := session.NewStore(bus)
	eng := engine.New(gateway, sessions,
		engine.WithConfig(engine.ConfigFrom(appConfig.Engine)),
		engine.WithBus(bus),
	)

	return &app{
		dir:       dir,
		config:    appConfig,
		bus:       bus,
		sessions:  sessions,
		processor: session.NewProcessor(),
		registry:  registry,
		gateway:   gateway,
		loader:    loader,
		engine:    eng,
	}, nil
}

func (a *app) Close() error {
	return a.bus.Close()
}
