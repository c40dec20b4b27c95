package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencode-ai/reasoner/internal/config"
	"github.com/opencode-ai/reasoner/internal/engine"
	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/internal/server"
	"github.com/opencode-ai/reasoner/internal/session"
	"github.com/opencode-ai/reasoner/internal/storage"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// ModelFile is the placeholder model file every test server can load.
const ModelFile = "tiny.gguf"

// TestServer wraps a server instance for testing
type TestServer struct {
	Server   *server.Server
	BaseURL  string
	Config   *types.Config
	Bus      *event.Bus
	Sessions *session.Store
	Loader   *provider.Loader
	Gateway  *provider.Gateway
	TempDir  string
	ModelDir string
	port     int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	localURL  string
	engine    *types.EngineConfig
	heartbeat time.Duration
}

// WithLocalURL points the local model provider at an OpenAI-compatible
// endpoint, usually a MockLLMServer.
func WithLocalURL(url string) TestServerOption {
	return func(c *testServerConfig) {
		c.localURL = url
	}
}

// WithEngineConfig overrides the engine defaults.
func WithEngineConfig(cfg *types.EngineConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.engine = cfg
	}
}

// WithHeartbeatInterval shortens the keep-alive interval of /event.
func WithHeartbeatInterval(d time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.heartbeat = d
	}
}

// StartTestServer creates and starts a test server. The model directory
// holds a single placeholder ModelFile; loading it routes inference to the
// local URL.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")
	if cfg.localURL == "" {
		cfg.localURL = os.Getenv("REASONER_LOCAL_URL")
	}
	if cfg.localURL == "" {
		return nil, fmt.Errorf("no local model endpoint: use WithLocalURL or set REASONER_LOCAL_URL")
	}

	tempDir, err := os.MkdirTemp("", "reasoner-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	modelDir := filepath.Join(tempDir, "models")
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create model dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, ModelFile), []byte("GGUF"), 0644); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write model file: %w", err)
	}

	appConfig := buildTestConfig(cfg, modelDir)

	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	ctx := context.Background()

	registry, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	bus := event.NewBus()
	gateway := provider.NewGateway(provider.NewPool(appConfig.Engine.PoolSize))
	loader := provider.NewLoader(provider.LoaderConfig{
		Catalog:  provider.NewCatalog(modelDir, appConfig.ModelPattern),
		Gateway:  gateway,
		Registry: registry,
		Store:    storage.New(filepath.Join(tempDir, "state")),
		Bus:      bus,
		LocalURL: appConfig.LocalURL,
		Hardware: *appConfig.Hardware,
	})
	sessions := session.NewStore(bus)
	eng := engine.New(gateway, sessions,
		engine.WithConfig(engine.ConfigFrom(appConfig.Engine)),
		engine.WithBus(bus),
	)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	serverConfig.Directory = tempDir
	if cfg.heartbeat > 0 {
		serverConfig.HeartbeatInterval = cfg.heartbeat
	}

	srv := server.New(serverConfig, server.Deps{
		Engine:    eng,
		Sessions:  sessions,
		Processor: session.NewProcessor(),
		Loader:    loader,
		Registry:  registry,
		Gateway:   gateway,
		Bus:       bus,
		AppConfig: appConfig,
	})

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(ctx)
		bus.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:   srv,
		BaseURL:  baseURL,
		Config:   appConfig,
		Bus:      bus,
		Sessions: sessions,
		Loader:   loader,
		Gateway:  gateway,
		TempDir:  tempDir,
		ModelDir: modelDir,
		port:     port,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// buildTestConfig creates a configuration serving local models only.
func buildTestConfig(cfg *testServerConfig, modelDir string) *types.Config {
	appConfig := &types.Config{
		ModelDir: modelDir,
		LocalURL: cfg.localURL,
		Engine:   cfg.engine,
	}
	config.ApplyDefaults(appConfig)
	return appConfig
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
