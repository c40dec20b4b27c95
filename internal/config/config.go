package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opencode-ai/reasoner/pkg/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Engine defaults.
const (
	DefaultMaxDepth         = 3
	DefaultContextLimit     = 4000
	DefaultPipelineHistory  = 4
	DefaultDecomposeHistory = 6
	DefaultTemperature      = 0.7
	DefaultPoolSize         = 1
	DefaultModelPattern     = "*.gguf"
	DefaultLocalURL         = "http://127.0.0.1:8080/v1"
)

var configNames = []string{"reasoner.json", "reasoner.jsonc", "reasoner.yaml", "reasoner.yml"}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/reasoner/)
// 2. Project config (reasoner.* and .reasoner/reasoner.*)
// 3. REASONER_CONFIG file
// 4. REASONER_CONFIG_CONTENT inline JSON
// 5. Environment variables, including a project .env file
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		if err := loadConfigFile(path, config, baseDir); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	var dirs []string
	dirs = append(dirs, GetPaths().Config)
	if directory != "" {
		dirs = append(dirs, directory, filepath.Join(directory, ".reasoner"))

		// .env never overrides variables already set in the process
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	for _, dir := range dirs {
		for _, name := range configNames {
			if err := loadOnce(filepath.Join(dir, name), dir); err != nil {
				return nil, err
			}
		}
	}

	if configPath := os.Getenv("REASONER_CONFIG"); configPath != "" {
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("REASONER_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("REASONER_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	applyEnvOverrides(config)
	normalizeProviderConfig(config)
	ApplyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single JSON, JSONC or YAML file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data = interpolate(data, baseDir, false)
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		data = interpolate(jsonc.ToJSON(data), baseDir, true)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders.
// File contents are escaped when the target is a JSON document.
func interpolate(data []byte, baseDir string, escapeJSON bool) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}
		value := strings.TrimRight(string(content), "\r\n")
		if !escapeJSON {
			return value
		}
		encoded, _ := json.Marshal(value)
		return string(encoded[1 : len(encoded)-1])
	})

	return []byte(str)
}

// normalizeProviderConfig merges Options fields into direct fields.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.ModelDir != "" {
		target.ModelDir = source.ModelDir
	}
	if source.ModelPattern != "" {
		target.ModelPattern = source.ModelPattern
	}
	if source.LocalURL != "" {
		target.LocalURL = source.LocalURL
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Hardware != nil {
		h := *source.Hardware
		target.Hardware = &h
	}

	if source.Engine != nil {
		if target.Engine == nil {
			target.Engine = &types.EngineConfig{}
		}
		mergeEngine(target.Engine, source.Engine)
	}

	if source.Log != nil {
		l := *source.Log
		target.Log = &l
	}
}

func mergeEngine(target, source *types.EngineConfig) {
	if source.MaxDepth != 0 {
		target.MaxDepth = source.MaxDepth
	}
	if source.ContextLimit != 0 {
		target.ContextLimit = source.ContextLimit
	}
	if source.PipelineHistory != 0 {
		target.PipelineHistory = source.PipelineHistory
	}
	if source.DecomposeHistory != 0 {
		target.DecomposeHistory = source.DecomposeHistory
	}
	if source.Temperature != nil {
		t := *source.Temperature
		target.Temperature = &t
	}
	if source.PoolSize != 0 {
		target.PoolSize = source.PoolSize
	}
	if source.DefaultMode != "" {
		target.DefaultMode = source.DefaultMode
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("REASONER_MODEL"); model != "" {
		config.Model = model
	}
	if dir := os.Getenv("REASONER_MODEL_DIR"); dir != "" {
		config.ModelDir = dir
	}
	if url := os.Getenv("REASONER_LOCAL_URL"); url != "" {
		config.LocalURL = url
	}
	if level := os.Getenv("REASONER_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = level
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(config *types.Config) {
	if config.ModelPattern == "" {
		config.ModelPattern = DefaultModelPattern
	}
	if config.LocalURL == "" {
		config.LocalURL = DefaultLocalURL
	}
	if config.Hardware == nil {
		h := types.DefaultHardware()
		config.Hardware = &h
	}
	if config.Engine == nil {
		config.Engine = &types.EngineConfig{}
	}
	e := config.Engine
	if e.MaxDepth <= 0 {
		e.MaxDepth = DefaultMaxDepth
	}
	if e.ContextLimit <= 0 {
		e.ContextLimit = DefaultContextLimit
	}
	if e.PipelineHistory <= 0 {
		e.PipelineHistory = DefaultPipelineHistory
	}
	if e.DecomposeHistory <= 0 {
		e.DecomposeHistory = DefaultDecomposeHistory
	}
	if e.Temperature == nil {
		t := DefaultTemperature
		e.Temperature = &t
	}
	if e.PoolSize <= 0 {
		e.PoolSize = DefaultPoolSize
	}
	if e.DefaultMode == "" {
		e.DefaultMode = string(types.ModePipeline)
	}
	if config.Log == nil {
		config.Log = &types.LogConfig{Level: "INFO"}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
