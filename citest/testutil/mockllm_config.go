package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MockLLMConfig defines the YAML configuration schema for MockLLM scenarios.
type MockLLMConfig struct {
	Settings  MockSettings   `yaml:"settings"`
	Defaults  MockDefaults   `yaml:"defaults"`
	Responses []ResponseRule `yaml:"responses"`
}

// MockSettings configures MockLLM server behavior.
type MockSettings struct {
	LagMS        int `yaml:"lag_ms"`         // Artificial delay before answering
	ChunkDelayMS int `yaml:"chunk_delay_ms"` // Delay between streaming chunks
}

// MockDefaults defines fallback behavior.
type MockDefaults struct {
	Fallback string `yaml:"fallback"` // Response when no rules match
}

// ResponseRule defines a prompt-to-response mapping.
type ResponseRule struct {
	Name     string      `yaml:"name"`
	Match    MatchConfig `yaml:"match"`
	Response string      `yaml:"response"`
	Priority int         `yaml:"priority"` // Higher priority rules win
}

// MatchConfig defines how to match a prompt. Set fields are combined with
// AND; string comparisons are case-insensitive.
type MatchConfig struct {
	Contains    string   `yaml:"contains,omitempty"`
	ContainsAll []string `yaml:"contains_all,omitempty"`
	ContainsAny []string `yaml:"contains_any,omitempty"`
	Exact       string   `yaml:"exact,omitempty"`
	Regex       string   `yaml:"regex,omitempty"`
}

// DefaultMockLLMConfig answers the decomposition prompts for two tasks:
// "What is 2+2?", which routes as simple, and "Build a todo API", which
// splits once into two sub-tasks. Pipeline stages get one canned answer each.
func DefaultMockLLMConfig() *MockLLMConfig {
	return &MockLLMConfig{
		Settings: MockSettings{ChunkDelayMS: 1},
		Defaults: MockDefaults{Fallback: "I understand your request."},
		Responses: []ResponseRule{
			// decomposition
			{Name: "route-simple", Match: MatchConfig{ContainsAll: []string{"is this a complex task", "2+2"}}, Response: "NO", Priority: 30},
			{Name: "route-complex", Match: MatchConfig{Contains: "is this a complex task"}, Response: "YES", Priority: 20},
			{Name: "goal-todo", Match: MatchConfig{ContainsAll: []string{"identify the specific goal", "Input: Build a todo API"}}, Response: "Ship a todo REST API", Priority: 20},
			{Name: "goal", Match: MatchConfig{Contains: "identify the specific goal"}, Response: "Complete the sub-task", Priority: 10},
			{Name: "steps-todo", Match: MatchConfig{ContainsAll: []string{"list brief steps", "Goal: Ship a todo REST API"}}, Response: "Design the schema then write the handlers", Priority: 20},
			{Name: "steps", Match: MatchConfig{Contains: "list brief steps"}, Response: "Do it directly", Priority: 10},
			{Name: "single-todo", Match: MatchConfig{ContainsAll: []string{"single step task", "Design the schema then"}}, Response: "NO", Priority: 20},
			{Name: "single", Match: MatchConfig{Contains: "single step task"}, Response: "YES", Priority: 10},
			{Name: "split", Match: MatchConfig{Contains: "Return a JSON list of sub-tasks"}, Response: `["Design the schema", "Write the handlers"]`, Priority: 10},
			{Name: "leaf-schema", Match: MatchConfig{ContainsAll: []string{"Write the response now", "Request: Design the schema"}}, Response: "Schema: todos(id, title, done). ", Priority: 20},
			{Name: "leaf-handlers", Match: MatchConfig{ContainsAll: []string{"Write the response now", "Request: Write the handlers"}}, Response: "Handlers: GET and POST /todos.", Priority: 20},
			{Name: "leaf-math", Match: MatchConfig{ContainsAll: []string{"Write the response now", "Request: What is 2+2?"}}, Response: "4", Priority: 20},
			{Name: "leaf-todo", Match: MatchConfig{ContainsAll: []string{"Write the response now", "Request: Build a todo API"}}, Response: "Todo API in one pass.", Priority: 20},

			// pipeline
			{Name: "select", Match: MatchConfig{Contains: "Identify required protocols"}, Response: `{"facts": true, "deep": false, "debate": false}`, Priority: 10},
			{Name: "facts", Match: MatchConfig{Contains: "Extract Axioms"}, Response: "Two plus two is integer addition.", Priority: 10},
			{Name: "blueprint", Match: MatchConfig{Contains: "Execution Blueprint"}, Response: "Add the numbers.", Priority: 10},
			{Name: "recall", Match: MatchConfig{ContainsAll: []string{"History: User: What is 2+2?", "What did I ask"}}, Response: "You asked what 2+2 is.", Priority: 20},
			{Name: "execute", Match: MatchConfig{Regex: `(?s)Plan:.*History:.*Execute\.$`}, Response: "The answer is 4.", Priority: 10},
		},
	}
}

// LoadMockLLMConfig loads configuration from a YAML file.
func LoadMockLLMConfig(path string) (*MockLLMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config MockLLMConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadMockLLMConfigFromDir looks for mockllm.yaml in the given directory.
func LoadMockLLMConfigFromDir(dir string) (*MockLLMConfig, error) {
	path := filepath.Join(dir, "mockllm.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(dir, "mockllm.yml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, err
		}
	}
	return LoadMockLLMConfig(path)
}

// SaveMockLLMConfig saves configuration to a YAML file.
func SaveMockLLMConfig(config *MockLLMConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Matches checks if the prompt matches this rule. An empty config matches
// nothing.
func (m *MatchConfig) Matches(prompt string) bool {
	promptLower := strings.ToLower(prompt)
	matched := false

	if m.Exact != "" {
		if !strings.EqualFold(strings.TrimSpace(prompt), m.Exact) {
			return false
		}
		matched = true
	}
	if m.Contains != "" {
		if !strings.Contains(promptLower, strings.ToLower(m.Contains)) {
			return false
		}
		matched = true
	}
	if len(m.ContainsAll) > 0 {
		for _, s := range m.ContainsAll {
			if !strings.Contains(promptLower, strings.ToLower(s)) {
				return false
			}
		}
		matched = true
	}
	if len(m.ContainsAny) > 0 {
		found := false
		for _, s := range m.ContainsAny {
			if strings.Contains(promptLower, strings.ToLower(s)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
		matched = true
	}
	if m.Regex != "" {
		re, err := regexp.Compile(m.Regex)
		if err != nil || !re.MatchString(prompt) {
			return false
		}
		matched = true
	}
	return matched
}

// FindMatchingResponse returns the response of the highest priority rule
// matching prompt, or the fallback.
func (c *MockLLMConfig) FindMatchingResponse(prompt string) (string, bool) {
	var bestMatch *ResponseRule
	bestPriority := -1

	for i := range c.Responses {
		rule := &c.Responses[i]
		if rule.Priority > bestPriority && rule.Match.Matches(prompt) {
			bestMatch = rule
			bestPriority = rule.Priority
		}
	}

	if bestMatch != nil {
		return bestMatch.Response, true
	}
	return c.Defaults.Fallback, false
}
