package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Patch performs HTTP PATCH request with JSON body
func (c *TestClient) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *TestClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// StreamingResponse is an NDJSON run stream.
type StreamingResponse struct {
	StatusCode int
	Headers    http.Header
	reader     *bufio.Reader
	body       io.ReadCloser
}

// PostStreaming performs HTTP POST and returns the open stream.
func (c *TestClient) PostStreaming(ctx context.Context, path string, body any) (*StreamingResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	// runs last as long as the model generates
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &StreamingResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		reader:     bufio.NewReader(resp.Body),
		body:       resp.Body,
	}, nil
}

// Next reads the next event. It returns io.EOF at the end of the stream.
func (sr *StreamingResponse) Next() (types.Event, error) {
	for {
		line, err := sr.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var ev types.Event
			if jerr := json.Unmarshal(line, &ev); jerr != nil {
				return types.Event{}, fmt.Errorf("decode %q: %w", line, jerr)
			}
			return ev, nil
		}
		if err != nil {
			return types.Event{}, err
		}
	}
}

// ReadAll reads events until the stream ends.
func (sr *StreamingResponse) ReadAll() ([]types.Event, error) {
	var events []types.Event
	for {
		ev, err := sr.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// Close closes the streaming response
func (sr *StreamingResponse) Close() error {
	if sr.body != nil {
		return sr.body.Close()
	}
	return nil
}

// ---- Session Helpers ----

// CreateSession creates a new session
func (c *TestClient) CreateSession(ctx context.Context, title string) (*types.Session, error) {
	resp, err := c.Post(ctx, "/session", map[string]string{"title": title})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to create session: %d - %s", resp.StatusCode, resp.String())
	}

	var session types.Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by ID
func (c *TestClient) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get session: %d - %s", resp.StatusCode, resp.String())
	}

	var session types.Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session
func (c *TestClient) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.Delete(ctx, "/session/"+sessionID)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to delete session: %d - %s", resp.StatusCode, resp.String())
	}
	return nil
}

// ListSessions lists all sessions
func (c *TestClient) ListSessions(ctx context.Context) ([]types.SessionInfo, error) {
	resp, err := c.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to list sessions: %d - %s", resp.StatusCode, resp.String())
	}

	var sessions []types.SessionInfo
	if err := resp.JSON(&sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// History returns the turns of a session.
func (c *TestClient) History(ctx context.Context, sessionID string) ([]types.Turn, error) {
	resp, err := c.Get(ctx, "/session/"+sessionID+"/history")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to get history: %d - %s", resp.StatusCode, resp.String())
	}

	var body struct {
		History []types.Turn `json:"history"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}
	return body.History, nil
}

// ---- Run Helpers ----

// RunRequest is the body of POST /session/{id}/run.
type RunRequest struct {
	Prompt   string         `json:"prompt"`
	Mode     string         `json:"mode,omitempty"`
	Settings types.Settings `json:"settings"`
}

// Run executes a prompt in a session and collects every event of the run.
func (c *TestClient) Run(ctx context.Context, sessionID string, req RunRequest) ([]types.Event, error) {
	stream, err := c.PostStreaming(ctx, "/session/"+sessionID+"/run", req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if stream.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(stream.body)
		return nil, fmt.Errorf("failed to run: %d - %s", stream.StatusCode, body)
	}
	return stream.ReadAll()
}

// LoadModel activates a model file by name or path.
func (c *TestClient) LoadModel(ctx context.Context, path string) (*types.LoadedModel, error) {
	resp, err := c.Post(ctx, "/model/load", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to load model: %d - %s", resp.StatusCode, resp.String())
	}

	var loaded types.LoadedModel
	if err := resp.JSON(&loaded); err != nil {
		return nil, err
	}
	return &loaded, nil
}

// ---- Event Helpers ----

// Transcript concatenates the token events.
func Transcript(events []types.Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == types.EventToken {
			sb.WriteString(ev.Content)
		}
	}
	return sb.String()
}

// Cards returns the card events keyed by target. A repeated target keeps
// the last card.
func Cards(events []types.Event) map[string]string {
	cards := make(map[string]string)
	for _, ev := range events {
		if ev.Type == types.EventCard {
			cards[ev.TargetString()] = ev.Content
		}
	}
	return cards
}

// Last returns the final event, or a zero event for an empty run.
func Last(events []types.Event) types.Event {
	if len(events) == 0 {
		return types.Event{}
	}
	return events[len(events)-1]
}
