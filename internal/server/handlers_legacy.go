package server

import (
	"errors"
	"net/http"

	"github.com/opencode-ai/reasoner/internal/session"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// These handlers serve the flat routes of the bundled web client.
// Sessions are addressed by an "id" body field.

type legacySessionRequest struct {
	ID string `json:"id"`
}

// LegacyStreamRequest is the body of POST /stream.
type LegacyStreamRequest struct {
	Prompt   string         `json:"prompt"`
	ID       string         `json:"id"`
	Mode     string         `json:"mode,omitempty"`
	Settings types.Settings `json:"settings"`
}

// legacyConfigHardware handles POST /config_hardware
func (s *Server) legacyConfigHardware(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.doUpdateHardware(w, r); !ok {
		return
	}
	writeSuccess(w)
}

// legacyLoadModel handles POST /load_model
func (s *Server) legacyLoadModel(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.doLoad(w, r); !ok {
		return
	}
	writeSuccess(w)
}

// legacyListSessions handles GET /list_sessions
func (s *Server) legacyListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	out := make([]map[string]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]string{"id": info.ID, "title": info.Title})
	}
	writeJSON(w, http.StatusOK, out)
}

// legacyCreateSession handles POST /create_session
func (s *Server) legacyCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID})
}

// legacyDeleteSession handles POST /delete_session. Deleting an unknown
// session succeeds.
func (s *Server) legacyDeleteSession(w http.ResponseWriter, r *http.Request) {
	var req legacySessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if s.processor.IsProcessing(req.ID) {
		_ = s.processor.Abort(req.ID)
	}
	if err := s.sessions.Delete(r.Context(), req.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// legacyGetHistory handles POST /get_history. An unknown session has an
// empty history.
func (s *Server) legacyGetHistory(w http.ResponseWriter, r *http.Request) {
	var req legacySessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	history, err := s.sessions.History(r.Context(), req.ID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		history = []types.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.Turn{"history": history})
}

// legacyStream handles POST /stream
func (s *Server) legacyStream(w http.ResponseWriter, r *http.Request) {
	var req LegacyStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	run := &types.RunRequest{Prompt: req.Prompt, SessionID: req.ID, Settings: req.Settings}
	if !s.applyMode(w, run, req.Mode) {
		return
	}
	s.streamRun(w, r, run)
}
