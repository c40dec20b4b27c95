package event

import "github.com/opencode-ai/reasoner/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info types.SessionInfo `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info types.SessionInfo `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	Info types.SessionInfo `json:"info"`
}

// RunStartedData is the data for run.started events.
type RunStartedData struct {
	SessionID string     `json:"sessionID"`
	RunID     string     `json:"runID"`
	Mode      types.Mode `json:"mode"`
}

// RunFinishedData is the data for run.finished events.
type RunFinishedData struct {
	SessionID string `json:"sessionID"`
	RunID     string `json:"runID"`
	Events    int    `json:"events"`
	Error     string `json:"error,omitempty"`
}

// RunEventData mirrors one stream event of a run.
type RunEventData struct {
	SessionID string      `json:"sessionID"`
	RunID     string      `json:"runID"`
	Event     types.Event `json:"event"`
}

// ModelLoadedData is the data for model.loaded events.
type ModelLoadedData struct {
	Model types.LoadedModel `json:"model"`
}

// HardwareUpdatedData is the data for hardware.updated events.
type HardwareUpdatedData struct {
	Hardware types.HardwareConfig `json:"hardware"`
}
