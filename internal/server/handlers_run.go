package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// RunSessionRequest represents the request body for POST /session/{id}/run.
type RunSessionRequest struct {
	Prompt   string         `json:"prompt"`
	Mode     string         `json:"mode,omitempty"`
	Settings types.Settings `json:"settings"`
}

// runSession handles POST /session/{sessionID}/run
func (s *Server) runSession(w http.ResponseWriter, r *http.Request) {
	var req RunSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	run := &types.RunRequest{
		Prompt:    req.Prompt,
		SessionID: chi.URLParam(r, "sessionID"),
		Settings:  req.Settings,
	}
	if !s.applyMode(w, run, req.Mode) {
		return
	}
	s.streamRun(w, r, run)
}

// applyMode sets the run mode from its name. An empty name keeps the engine
// default; an unknown one is rejected.
func (s *Server) applyMode(w http.ResponseWriter, run *types.RunRequest, name string) bool {
	if name == "" {
		return true
	}
	mode, ok := types.ParseMode(name)
	if !ok {
		writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown mode",
			map[string]any{"mode": name, "allowed": []types.Mode{types.ModePipeline, types.ModeDecompose}})
		return false
	}
	run.Mode = mode
	return true
}

// streamRun executes run and writes its events as NDJSON, one object per
// line, flushing after each. Runs of one session execute one at a time; a
// second request waits for the first to finish. Validation failures are
// reported in-stream as an error event.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, run *types.RunRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()
	sink := event.NDJSONSink(w, func() { _ = rc.Flush() })

	err := s.processor.Process(r.Context(), run.SessionID, func(ctx context.Context, runID string) error {
		run.RunID = runID
		em := event.NewEmitter(sink, event.WithBus(s.bus, run.SessionID, runID))
		return s.engine.Run(ctx, run, em)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug().Err(err).Str("session", run.SessionID).Msg("run ended with error")
	}
}
