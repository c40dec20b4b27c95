package types

import (
	"encoding/json"
	"strings"
)

// Mode selects which orchestration strategy runs a request.
type Mode string

const (
	// ModePipeline runs the fixed stage pipeline.
	ModePipeline Mode = "pipeline"
	// ModeDecompose runs the recursive task decomposition.
	ModeDecompose Mode = "decompose"
)

// ParseMode parses a mode name. Unknown names return ok=false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pipeline", "stages", "":
		return ModePipeline, true
	case "decompose", "decomposition", "recursive":
		return ModeDecompose, true
	}
	return "", false
}

// ProtocolFlags gate the optional pipeline stages.
type ProtocolFlags struct {
	Facts      bool `json:"facts"`
	Deep       bool `json:"deep"`
	Topology   bool `json:"topology"`
	Plan       bool `json:"plan"` // informational, the blueprint always runs
	Debate     bool `json:"debate"`
	Simulation bool `json:"simulation"`
	Audit      bool `json:"audit"`
}

// FlagNames lists the stage names in pipeline order.
var FlagNames = []string{"facts", "deep", "topology", "plan", "debate", "simulation", "audit"}

// Set enables or disables a flag by stage name. Unknown names return false.
func (f *ProtocolFlags) Set(name string, on bool) bool {
	switch name {
	case "facts":
		f.Facts = on
	case "deep":
		f.Deep = on
	case "topology":
		f.Topology = on
	case "plan":
		f.Plan = on
	case "debate":
		f.Debate = on
	case "simulation":
		f.Simulation = on
	case "audit":
		f.Audit = on
	default:
		return false
	}
	return true
}

// Get returns the flag for a stage name.
func (f ProtocolFlags) Get(name string) bool {
	switch name {
	case "facts":
		return f.Facts
	case "deep":
		return f.Deep
	case "topology":
		return f.Topology
	case "plan":
		return f.Plan
	case "debate":
		return f.Debate
	case "simulation":
		return f.Simulation
	case "audit":
		return f.Audit
	}
	return false
}

// Enabled returns the enabled stage names in pipeline order.
func (f ProtocolFlags) Enabled() []string {
	var names []string
	for _, n := range FlagNames {
		if f.Get(n) {
			names = append(names, n)
		}
	}
	return names
}

// Settings are the per-request knobs of pipeline mode.
type Settings struct {
	AutoMode    bool          `json:"autoMode"`
	Temperature *float64      `json:"temperature,omitempty"`
	ManualFlags ProtocolFlags `json:"manualFlags"`
}

// UnmarshalJSON accepts both the current field names and the snake_case
// names posted by older clients (auto_mode, temp, manual_protocols).
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw struct {
		AutoMode        *bool          `json:"autoMode"`
		AutoModeLegacy  *bool          `json:"auto_mode"`
		Temperature     *float64       `json:"temperature"`
		TempLegacy      *float64       `json:"temp"`
		ManualFlags     *ProtocolFlags `json:"manualFlags"`
		ManualProtocols *ProtocolFlags `json:"manual_protocols"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Settings{}
	switch {
	case raw.AutoMode != nil:
		s.AutoMode = *raw.AutoMode
	case raw.AutoModeLegacy != nil:
		s.AutoMode = *raw.AutoModeLegacy
	}
	if raw.Temperature != nil {
		s.Temperature = raw.Temperature
	} else {
		s.Temperature = raw.TempLegacy
	}
	switch {
	case raw.ManualFlags != nil:
		s.ManualFlags = *raw.ManualFlags
	case raw.ManualProtocols != nil:
		s.ManualFlags = *raw.ManualProtocols
	}
	return nil
}

// RunRequest is a single orchestration request.
type RunRequest struct {
	Prompt    string   `json:"prompt"`
	SessionID string   `json:"sessionId"`
	Mode      Mode     `json:"mode,omitempty"`
	Settings  Settings `json:"settings"`
	// RunID names the run in logs and bus events. Generated when empty.
	RunID string `json:"-"`
}
