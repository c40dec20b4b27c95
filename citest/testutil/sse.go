package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// HeartbeatEvent is the Type recorded for a keep-alive comment.
const HeartbeatEvent = "heartbeat"

// SSEEvent is one frame of the /event feed. Data holds the whole payload,
// {"type": ..., "data": ...}.
type SSEEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SessionID returns the session the event belongs to, if any.
func (evt *SSEEvent) SessionID() string {
	for _, path := range []string{"data.sessionID", "data.info.id", "data.id"} {
		if v := gjson.GetBytes(evt.Data, path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// Get returns the value at a gjson path of the event payload.
func (evt *SSEEvent) Get(path string) gjson.Result {
	return gjson.GetBytes(evt.Data, path)
}

// SSEClient records every frame of an SSE connection. The bus delivers
// events concurrently, so lookups search the whole record rather than
// consuming frames in arrival order.
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu      sync.Mutex
	events  []SSEEvent
	err     error
	changed chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		changed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Connect opens the stream at path and starts recording.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected content type: %s", ct)
	}

	go c.read(resp.Body)
	return nil
}

func (c *SSEClient) read(body io.ReadCloser) {
	defer close(c.done)
	defer body.Close()

	reader := bufio.NewReader(body)
	var data strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				payload := data.String()
				// every bus event is sent as "message"; the payload names it
				c.record(SSEEvent{Type: gjson.Get(payload, "type").String(), Data: json.RawMessage(payload)})
			}
			data.Reset()
		case strings.HasPrefix(line, ":"):
			c.record(SSEEvent{Type: HeartbeatEvent})
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func (c *SSEClient) record(evt SSEEvent) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// WaitForEvent returns the first recorded event of eventType, waiting up to
// timeout for it to arrive.
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		for i := range c.events {
			if c.events[i].Type == eventType {
				evt := c.events[i]
				c.mu.Unlock()
				return &evt, nil
			}
		}
		err := c.err
		c.mu.Unlock()

		select {
		case <-c.changed:
		case <-c.done:
			if err == nil {
				err = io.EOF
			}
			return nil, fmt.Errorf("connection closed waiting for %s: %w", eventType, err)
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event: %s", eventType)
		}
	}
}

// WaitForHeartbeat waits for a keep-alive comment.
func (c *SSEClient) WaitForHeartbeat(timeout time.Duration) error {
	_, err := c.WaitForEvent(HeartbeatEvent, timeout)
	return err
}

// Count returns how many events of eventType were recorded.
func (c *SSEClient) Count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, evt := range c.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

// Close ends the connection.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
