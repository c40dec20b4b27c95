// Package provider provides LLM provider abstraction using Eino framework.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// Provider represents an LLM provider with Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.BaseChatModel

	// CreateCompletion creates a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float64           `json:"temperature"`
	StopWords   []string          `json:"stopWords,omitempty"`
}

// options translates the request into Eino call options.
func (r *CompletionRequest) options() []model.Option {
	opts := []model.Option{
		model.WithTemperature(float32(r.Temperature)),
	}
	if r.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(r.MaxTokens))
	}
	if len(r.StopWords) > 0 {
		opts = append(opts, model.WithStop(r.StopWords))
	}
	if r.Model != "" {
		opts = append(opts, model.WithModel(r.Model))
	}
	return opts
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// streamChat opens a stream on chatModel with extra provider-specific options.
func streamChat(ctx context.Context, chatModel model.BaseChatModel, req *CompletionRequest, extra ...model.Option) (*CompletionStream, error) {
	opts := append(req.options(), extra...)
	reader, err := chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return NewCompletionStream(reader), nil
}
