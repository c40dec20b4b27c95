package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config represents the reasoner configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Model selection, "provider/model" (e.g. "openai/gpt-4o-mini").
	// Local gguf models are activated through the model loader instead.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Directory scanned for gguf model files and the glob used to match them.
	ModelDir     string `json:"modelDir,omitempty" yaml:"modelDir,omitempty"`
	ModelPattern string `json:"modelPattern,omitempty" yaml:"modelPattern,omitempty"`

	// LocalURL is the OpenAI-compatible endpoint serving local models
	// (llama.cpp server, ollama).
	LocalURL string `json:"localURL,omitempty" yaml:"localURL,omitempty"`

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty" yaml:"provider,omitempty"`

	Hardware *HardwareConfig `json:"hardware,omitempty" yaml:"hardware,omitempty"`
	Engine   *EngineConfig   `json:"engine,omitempty" yaml:"engine,omitempty"`
	Log      *LogConfig      `json:"log,omitempty" yaml:"log,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`

	// Model/Endpoint ID (required by ARK, optional elsewhere)
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Nested options
	Options *ProviderOptions `json:"options,omitempty" yaml:"options,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// HardwareConfig describes how a local model is offloaded and batched.
type HardwareConfig struct {
	GPULayers   int `json:"n_gpu_layers" yaml:"n_gpu_layers"`
	ContextSize int `json:"n_ctx" yaml:"n_ctx"`
	Threads     int `json:"n_threads" yaml:"n_threads"`
	Batch       int `json:"n_batch" yaml:"n_batch"`
}

// DefaultHardware returns the hardware defaults (-1 offloads every layer).
func DefaultHardware() HardwareConfig {
	return HardwareConfig{
		GPULayers:   -1,
		ContextSize: 8192,
		Threads:     4,
		Batch:       512,
	}
}

// HardwarePatch is a partial hardware update. Nil fields are left unchanged.
type HardwarePatch struct {
	GPULayers   *FlexInt `json:"n_gpu_layers,omitempty"`
	ContextSize *FlexInt `json:"n_ctx,omitempty"`
	Threads     *FlexInt `json:"n_threads,omitempty"`
	Batch       *FlexInt `json:"n_batch,omitempty"`
}

// Apply merges the patch into h.
func (p HardwarePatch) Apply(h HardwareConfig) HardwareConfig {
	if p.GPULayers != nil {
		h.GPULayers = int(*p.GPULayers)
	}
	if p.ContextSize != nil {
		h.ContextSize = int(*p.ContextSize)
	}
	if p.Threads != nil {
		h.Threads = int(*p.Threads)
	}
	if p.Batch != nil {
		h.Batch = int(*p.Batch)
	}
	return h
}

// FlexInt is an integer that also decodes from a numeric JSON string,
// which is how HTML form values arrive.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*i = FlexInt(f)
	return nil
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	MaxDepth         int      `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	ContextLimit     int      `json:"contextLimit,omitempty" yaml:"contextLimit,omitempty"`
	PipelineHistory  int      `json:"pipelineHistory,omitempty" yaml:"pipelineHistory,omitempty"`
	DecomposeHistory int      `json:"decomposeHistory,omitempty" yaml:"decomposeHistory,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	PoolSize         int      `json:"poolSize,omitempty" yaml:"poolSize,omitempty"`
	DefaultMode      string   `json:"defaultMode,omitempty" yaml:"defaultMode,omitempty"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty" yaml:"pretty,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProviderID      string `json:"providerID"`
	ContextLength   int    `json:"contextLength"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
}

// ModelFile is a model file discovered on disk.
type ModelFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// LoadedModel describes the model currently serving inference.
type LoadedModel struct {
	ProviderID string         `json:"providerID"`
	ModelID    string         `json:"modelID"`
	Path       string         `json:"path,omitempty"`
	Hardware   HardwareConfig `json:"hardware"`
	LoadedAt   int64          `json:"loadedAt"`
}
