package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// UpdateSessionRequest represents the request body for renaming a session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// SessionStatus reports whether a session has a run in progress.
type SessionStatus struct {
	SessionID string `json:"sessionID"`
	Title     string `json:"title"`
	Status    string `json:"status"` // "idle" | "running"
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"running": len(s.processor.Active()),
	}
	if s.loader != nil {
		_, loaded := s.loader.Loaded()
		status["modelLoaded"] = loaded
	}
	writeJSON(w, http.StatusOK, status)
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, sess)
}

// getSessionStatus handles GET /session/status. Without a sessionID it lists
// every run in progress.
func (s *Server) getSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")
	if sessionID == "" {
		writeJSON(w, http.StatusOK, s.processor.Active())
		return
	}

	sess, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	status := SessionStatus{SessionID: sess.ID, Title: sess.Title, Status: "idle"}
	if s.processor.IsProcessing(sess.ID) {
		status.Status = "running"
	}
	writeJSON(w, http.StatusOK, status)
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// updateSession handles PATCH /session/{sessionID}
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	var req UpdateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	sess, err := s.sessions.Rename(r.Context(), chi.URLParam(r, "sessionID"), req.Title)
	if err != nil {
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /session/{sessionID}. A run in progress is
// aborted first.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if s.processor.IsProcessing(sessionID) {
		_ = s.processor.Abort(sessionID)
	}

	if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w)
}

// getHistory handles GET /session/{sessionID}/history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.sessions.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Turn{"history": history})
}

// abortSession handles POST /session/{sessionID}/abort
func (s *Server) abortSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.Get(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}

	if err := s.processor.Abort(sessionID); err != nil {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeSuccess(w)
}
