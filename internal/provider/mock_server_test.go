package provider

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// mockLLMServer mimics the streaming chat completions endpoint of an
// OpenAI-compatible server such as llama.cpp.
type mockLLMServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []map[string]any
	// failures is the number of requests answered with 503 before succeeding.
	failures int
	// reply picks the completion text from the last user message.
	reply func(prompt string) string
}

func newMockLLMServer(reply func(prompt string) string) *mockLLMServer {
	m := &mockLLMServer{reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/chat/completions", m.handleChatCompletions)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL to configure a client with.
func (m *mockLLMServer) URL() string {
	return m.server.URL + "/v1"
}

func (m *mockLLMServer) Close() {
	m.server.Close()
}

func (m *mockLLMServer) Requests() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.requests...)
}

func (m *mockLLMServer) FailNext(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

func (m *mockLLMServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	m.mu.Unlock()

	if fail {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"loading model","type":"unavailable_error"}}`))
		return
	}

	content := m.reply(lastUserPrompt(req))
	writeStreamingResponse(w, content)
}

func lastUserPrompt(req map[string]any) string {
	messages, _ := req["messages"].([]any)
	for i := len(messages) - 1; i >= 0; i-- {
		msg, _ := messages[i].(map[string]any)
		if role, _ := msg["role"].(string); role == "user" {
			content, _ := msg["content"].(string)
			return content
		}
	}
	return ""
}

// writeStreamingResponse streams content word by word as SSE chunks.
func writeStreamingResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	writeChunk := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":      "chatcmpl-mock",
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
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(map[string]any{"role": "assistant"}, nil)
	words := strings.SplitAfter(content, " ")
	for _, word := range words {
		if word == "" {
			continue
		}
		writeChunk(map[string]any{"content": word}, nil)
	}
	writeChunk(map[string]any{}, "stop")
	w.Write([]byte("data: [DONE]\n\n"))
	if flusher != nil {
		flusher.Flush()
	}
}
