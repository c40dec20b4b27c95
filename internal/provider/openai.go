package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// localAPIKey is sent to local servers, which ignore it but reject an empty header.
const localAPIKey = "sk-no-key-required"

// OpenAIProvider implements Provider for OpenAI models and for
// OpenAI-compatible servers (llama.cpp server, ollama, vLLM).
type OpenAIProvider struct {
	chatModel model.BaseChatModel
	models    []types.Model
	config    *OpenAIConfig
}

// OpenAIConfig holds configuration for OpenAI provider.
type OpenAIConfig struct {
	// ID is the provider identifier (e.g., "openai", "local").
	// If empty, defaults to "openai"
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Local marks a self-hosted endpoint. No API key is required and the
	// classic max_tokens field is sent instead of max_completion_tokens.
	Local bool
	// ContextLength is reported for the served model when Local is set.
	ContextLength int
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" && !config.Local {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		if !config.Local {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		apiKey = localAPIKey
	}
	if config.Local && config.BaseURL == "" {
		return nil, fmt.Errorf("local provider requires a base URL")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o-mini"
	}

	cfg := &openai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelID,
		BaseURL: config.BaseURL,
	}
	if config.Local {
		cfg.MaxTokens = &maxTokens
	} else {
		cfg.MaxCompletionTokens = &maxTokens
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	models := openAIModels()
	if config.Local {
		models = []types.Model{{
			ID:              modelID,
			Name:            modelID,
			ProviderID:      "local",
			ContextLength:   config.ContextLength,
			MaxOutputTokens: maxTokens,
		}}
	}

	return &OpenAIProvider{
		chatModel: chatModel,
		models:    models,
		config:    config,
	}, nil
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

// Name returns the human-readable provider name.
func (p *OpenAIProvider) Name() string {
	if p.config.Local {
		return "Local"
	}
	return "OpenAI"
}

// Models returns the list of available models.
func (p *OpenAIProvider) Models() []types.Model {
	return p.models
}

// ChatModel returns the Eino ChatModel.
func (p *OpenAIProvider) ChatModel() model.BaseChatModel {
	return p.chatModel
}

// CreateCompletion creates a streaming completion.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	if p.config.Local {
		return streamChat(ctx, p.chatModel, req)
	}
	// hosted reasoning models reject max_tokens
	r := *req
	r.MaxTokens = 0
	return streamChat(ctx, p.chatModel, &r, openai.WithMaxCompletionTokens(req.MaxTokens))
}

func openAIModels() []types.Model {
	return []types.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", ProviderID: "openai", ContextLength: 1047576, MaxOutputTokens: 32768},
	}
}
