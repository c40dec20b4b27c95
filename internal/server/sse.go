package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// SSEHeartbeatInterval is the default interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeRaw writes an SSE event whose data is already encoded.
func (s *sseWriter) writeRaw(eventType string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeEvent writes an SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.writeRaw(eventType, jsonData)
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// allEvents handles GET /event. It relays the bus feed, optionally narrowed
// to one session with ?sessionID=.
func (srv *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	if srv.bus == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "event bus is not configured")
		return
	}
	sessionID := r.URL.Query().Get("sessionID")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	feed, err := srv.bus.Feed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", map[string]any{"type": "server.connected", "data": map[string]any{}}); err != nil {
		return
	}

	interval := srv.config.HeartbeatInterval
	if interval <= 0 {
		interval = SSEHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-feed:
			if !ok {
				return
			}
			payload := msg.Payload
			msg.Ack()
			if sessionID != "" && eventSession(payload) != sessionID {
				continue
			}
			if err := sse.writeRaw("message", payload); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventSession returns the session an encoded bus event belongs to, or "".
func eventSession(payload []byte) string {
	res := gjson.GetManyBytes(payload, "data.sessionID", "data.info.id")
	for _, r := range res {
		if r.Exists() {
			return r.String()
		}
	}
	return ""
}
