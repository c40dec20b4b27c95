package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/internal/session"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "hello", result["message"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid input")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var result ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, ErrCodeInvalidRequest, result.Error.Code)
	assert.Equal(t, "Invalid input", result.Error.Message)
	assert.Nil(t, result.Error.Details)
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown mode", map[string]any{"mode": "sideways"})

	var result ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "sideways", result.Error.Details["mode"])
}

func TestWriteStoreError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: abc", session.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("resolve: %w", provider.ErrModelNotFound), http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeStoreError(w, tt.err)

		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		var result ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		assert.Equal(t, tt.code, result.Error.Code)
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
}
