package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/lorawiz/app/dataset"
	"github.com/umputun/lorawiz/app/preset"
	"github.com/umputun/lorawiz/app/service"
	"github.com/umputun/lorawiz/app/vram"
	"github.com/umputun/lorawiz/app/web/enums"
	"github.com/umputun/lorawiz/app/web/persistence"
)

// APIPresetsResponse is the JSON response for /api/v1/presets
type APIPresetsResponse struct {
	Default string         `json:"default"`
	Presets []preset.Entry `json:"presets"`
}

// APIVramResponse is the JSON response for /api/v1/vram
type APIVramResponse struct {
	BatchSize string `json:"batch_size"`
	Rank      string `json:"rank"`
	Estimate  string `json:"estimate"`
}

// APIRunResponse is the JSON response for a single run
type APIRunResponse struct {
	persistence.RunInfo
	Events []RunEvent `json:"events,omitempty"`
}

// APIRunsResponse is the JSON response for /api/v1/runs
type APIRunsResponse struct {
	Runs      []persistence.RunInfo `json:"runs"`
	Timestamp time.Time             `json:"timestamp"`
}

// handleAPIPresets returns all presets in table order
func (s *Server) handleAPIPresets(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, APIPresetsResponse{Default: s.presets.Default(), Presets: s.presets.List()})
}

// handleAPIPreset returns a single preset, unknown name is 404
func (s *Server) handleAPIPreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, n := range s.presets.Names() {
		if n == name {
			s.writeJSON(w, http.StatusOK, s.presets.Lookup(name))
			return
		}
	}
	s.writeJSONError(w, http.StatusNotFound, "preset not found")
}

// handleAPIVram returns estimate for batch_size and rank query params
func (s *Server) handleAPIVram(w http.ResponseWriter, r *http.Request) {
	batch, rank := r.URL.Query().Get("batch_size"), r.URL.Query().Get("rank")
	s.writeJSON(w, http.StatusOK, APIVramResponse{BatchSize: batch, Rank: rank, Estimate: vram.Estimate(batch, rank)})
}

// handleAPIRuns returns run history, most recent first
func (s *Server) handleAPIRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.store.ListRuns(0)
	if err != nil {
		log.Printf("[ERROR] failed to load runs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load runs")
		return
	}
	s.writeJSON(w, http.StatusOK, APIRunsResponse{Runs: runs, Timestamp: time.Now()})
}

// handleAPIRun returns run with its events if the run is still in memory
func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if run, ok := s.getRun(id); ok {
		info, events := run.snapshot()
		s.writeJSON(w, http.StatusOK, APIRunResponse{RunInfo: info, Events: events})
		return
	}
	info, err := s.store.GetRun(id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "run not found")
			return
		}
		log.Printf("[ERROR] failed to get run %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, APIRunResponse{RunInfo: info})
}

// handleAPIStartRun runs training synchronously and responds with the final state,
// errors are mapped to http status codes
func (s *Server) handleAPIStartRun(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	req, archive, err := s.parseRunForm(w, r, id)
	if err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	defer s.removeUpload(id)

	info := persistence.RunInfo{ID: id, Archive: archive, DestDir: req.DestDir, ModelName: req.ModelName,
		LearningRate: req.LearningRate, BatchSize: req.BatchSize, Rank: req.Rank, DeleteAfter: req.DeleteAfter,
		Status: enums.RunStatusRunning, StartedAt: time.Now()}
	s.record(info)

	var events []RunEvent
	res, err := s.runner.Run(r.Context(), req, func(p service.Progress) {
		events = append(events, RunEvent{Type: enums.EventTypeProgress, Data: p.String()})
	})
	info.FinishedAt = time.Now()
	if err != nil {
		info.Status = enums.RunStatusFailed
		if errors.Is(err, service.ErrCanceled) {
			info.Status = enums.RunStatusCanceled
		}
		info.Error = err.Error()
		s.record(info)
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}

	info.Status = enums.RunStatusSuccess
	info.DatasetPath = res.DatasetPath
	info.Summary = res.Summary
	if res.CleanupErr != nil {
		info.Error = "dataset cleanup failed: " + res.CleanupErr.Error()
	}
	events = append(events, RunEvent{Type: enums.EventTypeDone, Data: res.Summary})
	s.record(info)
	s.writeJSON(w, http.StatusOK, APIRunResponse{RunInfo: info, Events: events})
}

// errorStatus maps run errors to http status codes
func errorStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadForm):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrArchiveFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrConflict), errors.Is(err, service.ErrDuplicateRun):
		return http.StatusConflict
	case errors.Is(err, service.ErrCanceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
