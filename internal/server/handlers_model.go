package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// LoadModelRequest represents the request body for loading a model file.
type LoadModelRequest struct {
	Path string `json:"path"`
}

// ModelStatus reports the model serving inference.
type ModelStatus struct {
	Loaded     *types.LoadedModel   `json:"loaded"`
	ProviderID string               `json:"providerID,omitempty"`
	ModelID    string               `json:"modelID,omitempty"`
	Hardware   types.HardwareConfig `json:"hardware"`
}

// ProviderInfo is the list view of a provider.
type ProviderInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Models []types.Model `json:"models"`
}

// getModel handles GET /model
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	var status ModelStatus
	if s.loader != nil {
		status.Hardware = s.loader.Hardware()
		if loaded, ok := s.loader.Loaded(); ok {
			status.Loaded = loaded
		}
	}
	if s.gateway != nil {
		if p, modelID, ok := s.gateway.Active(); ok {
			status.ProviderID = p.ID()
			status.ModelID = modelID
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// scanModels handles GET /model/scan and GET /scan
func (s *Server) scanModels(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeJSON(w, http.StatusOK, []types.ModelFile{})
		return
	}
	files, err := s.loader.Catalog().Scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// loadModel handles POST /model/load
func (s *Server) loadModel(w http.ResponseWriter, r *http.Request) {
	loaded, ok := s.doLoad(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) doLoad(w http.ResponseWriter, r *http.Request) (*types.LoadedModel, bool) {
	var req LoadModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return nil, false
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return nil, false
	}
	if s.loader == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "model loading is not configured")
		return nil, false
	}

	loaded, err := s.loader.Load(r.Context(), req.Path)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return loaded, true
}

// getConfig handles GET /config. Provider API keys are not returned.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		writeJSON(w, http.StatusOK, types.Config{})
		return
	}

	cfg := *s.appConfig
	if len(cfg.Provider) > 0 {
		cfg.Provider = make(map[string]types.ProviderConfig, len(s.appConfig.Provider))
		for id, pc := range s.appConfig.Provider {
			pc.APIKey = ""
			if pc.Options != nil {
				opts := *pc.Options
				opts.APIKey = ""
				pc.Options = &opts
			}
			cfg.Provider[id] = pc
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

// getHardware handles GET /config/hardware
func (s *Server) getHardware(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeJSON(w, http.StatusOK, types.DefaultHardware())
		return
	}
	writeJSON(w, http.StatusOK, s.loader.Hardware())
}

// updateHardware handles PATCH /config/hardware
func (s *Server) updateHardware(w http.ResponseWriter, r *http.Request) {
	hw, ok := s.doUpdateHardware(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, hw)
}

func (s *Server) doUpdateHardware(w http.ResponseWriter, r *http.Request) (types.HardwareConfig, bool) {
	var patch types.HardwarePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return types.HardwareConfig{}, false
	}
	if s.loader == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "model loading is not configured")
		return types.HardwareConfig{}, false
	}
	return s.loader.UpdateHardware(r.Context(), patch), true
}

// listProviders handles GET /provider
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	infos := []ProviderInfo{}
	if s.registry != nil {
		for _, p := range s.registry.List() {
			models := p.Models()
			if models == nil {
				models = []types.Model{}
			}
			infos = append(infos, ProviderInfo{ID: p.ID(), Name: p.Name(), Models: models})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	writeJSON(w, http.StatusOK, infos)
}
