package provider

import (
	"github.com/cloudwego/eino/schema"
)

// Template decides how a raw prompt is framed for the model.
type Template string

const (
	// TemplateChat frames the prompt as a system plus user exchange.
	TemplateChat Template = "chat"
	// TemplateInstruction wraps the prompt in an Instruction/Response frame.
	TemplateInstruction Template = "instruction"
)

const systemPrompt = "System"

// Messages renders prompt into the messages sent to the model.
func (t Template) Messages(prompt string) []*schema.Message {
	switch t {
	case TemplateInstruction:
		return []*schema.Message{schema.UserMessage(t.Render(prompt))}
	default:
		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(prompt),
		}
	}
}

// Render returns the plain-text form of the framed prompt.
func (t Template) Render(prompt string) string {
	switch t {
	case TemplateInstruction:
		return "### Instruction:\n" + prompt + "\n\n### Response:\n"
	default:
		return "<|system|>\n" + systemPrompt + "\n<|user|>\n" + prompt + "\n<|assistant|>\n"
	}
}

// DefaultStop returns the stop sequences used when a request sets none.
func (t Template) DefaultStop() []string {
	switch t {
	case TemplateInstruction:
		return []string{"###", "User:", "\n\n"}
	default:
		return []string{"<|user|>"}
	}
}

// DefaultMaxTokens returns the generation cap used when a request sets none.
func (t Template) DefaultMaxTokens() int {
	switch t {
	case TemplateInstruction:
		return 2048
	default:
		return 4096
	}
}
