package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockLLMServer mimics the chat completions endpoint of an OpenAI-compatible
// local server such as llama.cpp. Replies come from a MockLLMConfig.
type MockLLMServer struct {
	server *httptest.Server
	config *MockLLMConfig

	mu       sync.Mutex
	requests []MockRequest
}

// MockRequest records an incoming completion request.
type MockRequest struct {
	Timestamp   time.Time
	Path        string
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Stop        []string
	Stream      bool
	Rule        string
}

// NewMockLLMServer creates a mock server with the default scenario.
func NewMockLLMServer() *MockLLMServer {
	return NewMockLLMServerWithConfig(DefaultMockLLMConfig())
}

// NewMockLLMServerWithConfig creates a mock server answering from config.
func NewMockLLMServerWithConfig(config *MockLLMConfig) *MockLLMServer {
	m := &MockLLMServer{config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the OpenAI-compatible base URL.
func (m *MockLLMServer) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockLLMServer) Close() {
	m.server.Close()
}

// GetRequests returns all recorded requests.
func (m *MockLLMServer) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// Reset forgets the recorded requests.
func (m *MockLLMServer) Reset() {
	m.mu.Lock()
	m.requests = nil
	m.mu.Unlock()
}

// RequestsMatching returns the recorded requests whose prompt contains s.
func (m *MockLLMServer) RequestsMatching(s string) []MockRequest {
	var out []MockRequest
	for _, r := range m.GetRequests() {
		if strings.Contains(r.Prompt, s) {
			out = append(out, r)
		}
	}
	return out
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop"`
	Stream      bool     `json:"stream"`
}

func (m *MockLLMServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	prompt := lastUserPrompt(req)
	if prompt == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"empty prompt","type":"invalid_request_error"}}`))
		return
	}

	reply, _ := m.config.FindMatchingResponse(prompt)
	rule := ""
	for _, rr := range m.config.Responses {
		if rr.Response == reply && rr.Match.Matches(prompt) {
			rule = rr.Name
			break
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Timestamp:   time.Now(),
		Path:        r.URL.Path,
		Model:       req.Model,
		Prompt:      prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      req.Stream,
		Rule:        rule,
	})
	m.mu.Unlock()

	if lag := m.config.Settings.LagMS; lag > 0 {
		time.Sleep(time.Duration(lag) * time.Millisecond)
	}

	if req.Stream {
		m.writeStreamingResponse(w, reply)
	} else {
		m.writeResponse(w, reply)
	}
}

func lastUserPrompt(req chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// writeResponse writes a non-streaming completion.
func (m *MockLLMServer) writeResponse(w http.ResponseWriter, content string) {
	response := map[string]any{
		"id":      "chatcmpl-mockllm",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeStreamingResponse streams content word by word as SSE chunks.
func (m *MockLLMServer) writeStreamingResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	writeChunk := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":      "chatcmpl-mockllm",
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   "mock",
			"choices": []map[string]any{{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
		data, _ := json.Marshal(chunk)
		w.Write([]byte("data: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	writeChunk(map[string]any{"role": "assistant"}, nil)
	delay := time.Duration(m.config.Settings.ChunkDelayMS) * time.Millisecond
	for _, word := range strings.SplitAfter(content, " ") {
		if word == "" {
			continue
		}
		writeChunk(map[string]any{"content": word}, nil)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	writeChunk(map[string]any{}, "stop")
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}
