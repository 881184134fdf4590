package api

import (
	"fmt"
	"net/http"

	"github.com/vidrelay/vidrelay/internal/model"
)

// ---------------------------------------------------------------------------
// GET /api/videos
// ---------------------------------------------------------------------------

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	stages := splitComma(r.URL.Query().Get("stage"))
	for _, stage := range stages {
		if !model.IsKnownStage(stage) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", stage))
			return
		}
	}

	videos, err := s.store.ListVideos(r.Context(), stages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	if videos == nil {
		videos = []model.Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

// ---------------------------------------------------------------------------
// GET /api/videos/{id}
// ---------------------------------------------------------------------------

type videoDetail struct {
	model.Video
	Attempts []model.Attempt `json:"attempts"`
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	v, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get video")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}

	attempts, err := s.store.ListVideoAttempts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	writeJSON(w, http.StatusOK, videoDetail{Video: *v, Attempts: attempts})
}

// ---------------------------------------------------------------------------
// GET /api/summary
// ---------------------------------------------------------------------------

type summaryResponse struct {
	Stages map[string]int `json:"stages"`
	Active int            `json:"active"`
	Total  int            `json:"total"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count videos")
		return
	}

	resp := summaryResponse{Stages: counts}
	for stage, n := range counts {
		resp.Total += n
		if !model.IsTerminalStage(stage) {
			resp.Active += n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// GET /api/healthz
// ---------------------------------------------------------------------------

// handleHealthz proves the process is up and the store answers queries.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountByStage(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
