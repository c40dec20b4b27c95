// Package config provides configuration loading, merging, and path management for reasoner.
//
// # Configuration Loading
//
// Load merges configuration from several sources in priority order:
//
//  1. Global config (~/.config/reasoner/reasoner.{json,jsonc,yaml})
//  2. Project config (reasoner.{json,jsonc,yaml} and .reasoner/ in the working directory)
//  3. REASONER_CONFIG file
//  4. REASONER_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// A .env file in the working directory is loaded into the process environment
// before overrides are applied. Variables already set are left alone.
//
// # Supported Formats
//
//   - reasoner.json - Standard JSON configuration
//   - reasoner.jsonc - JSON with comments, processed using tidwall/jsonc
//   - reasoner.yaml - YAML, parsed with gopkg.in/yaml.v3
//
// # Variable Interpolation
//
// Files support {env:VAR_NAME} and {file:path} placeholders. Relative file
// paths resolve against the directory of the config file, and ~/ expands to
// the home directory.
//
//	{
//	  "localURL": "{env:LLAMA_SERVER}/v1",
//	  "provider": {
//	    "anthropic": {"options": {"apiKey": "{file:~/.keys/anthropic}"}}
//	  },
//	  "engine": {"maxDepth": 3, "contextLimit": 4000}
//	}
//
// # Environment Variable Overrides
//
//   - REASONER_MODEL - default remote model, "provider/model"
//   - REASONER_MODEL_DIR - directory scanned for gguf files
//   - REASONER_LOCAL_URL - OpenAI-compatible endpoint serving local models
//   - REASONER_LOG_LEVEL - log level
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, ARK_API_KEY - provider keys
//
// ApplyDefaults fills the hardware and engine sections so callers never see
// nil sections after Load.
package config
