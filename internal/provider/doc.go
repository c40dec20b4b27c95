// Package provider is the inference layer of the reasoner.
//
// All model calls go through a Gateway. The gateway holds the active model,
// serialises calls through a Pool (size 1 for a local model) and retries
// completions that fail to open with exponential backoff.
//
// # Providers
//
// A Provider adapts an Eino chat model. Three are built in:
//
//   - OpenAIProvider, for OpenAI and for OpenAI-compatible local servers
//     such as the llama.cpp server (Local mode)
//   - AnthropicProvider, for Claude models
//   - ArkProvider, for Volcengine ARK endpoints
//
// Remote providers are created from config by InitializeProviders and kept
// in a Registry.
//
// # Local models
//
// A Catalog scans a directory for model files (*.gguf by default) and can
// watch it for changes. A Loader activates one of those files: it builds a
// local provider pointing at the configured endpoint, makes it the gateway's
// model and persists the choice together with the hardware config so
// Restore can bring it back after a restart.
//
//	loader := provider.NewLoader(provider.LoaderConfig{
//	    Catalog:  provider.NewCatalog("./models", ""),
//	    Gateway:  gateway,
//	    LocalURL: "http://127.0.0.1:8080/v1",
//	})
//	model, err := loader.Load(ctx, "tinyllama.gguf")
//
// # Calls
//
// A Request carries a raw prompt and a Template. The chat template sends a
// system and a user message and stops at "<|user|>"; the instruction
// template wraps the prompt in "### Instruction:" / "### Response:" and
// stops at "###", "User:" or a blank line.
//
//	text, err := gateway.Complete(ctx, &provider.Request{
//	    Prompt:      "Extract Axioms & Constraints:\n" + task,
//	    Temperature: 0.1,
//	    Template:    provider.TemplateChat,
//	})
//
//	stream, err := gateway.Stream(ctx, req)
//	for chunk := range stream.Chunks() {
//	    emit(chunk)
//	}
//	err = stream.Err()
//
// The pool slot of a stream is held until the stream ends or is closed.
package provider
