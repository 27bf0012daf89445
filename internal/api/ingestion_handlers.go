package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

type ingestionResponse struct {
	JobID        string     `json:"job_id"`
	Status       string     `json:"status"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	ErrorCount   int        `json:"error_count"`
	RejectedURLs []string   `json:"rejected_urls,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// getIngestion reports job progress. While a job is in flight the ephemeral
// snapshot backs the counters; once terminal, the durable record does.
func (s *Server) getIngestion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}

	resp := ingestionResponse{
		JobID:        job.ID.String(),
		Status:       string(job.Status),
		Total:        job.Total,
		Processed:    job.Processed,
		ErrorCount:   job.ErrorCount,
		RejectedURLs: job.RejectedURLs,
		CreatedAt:    job.CreatedAt,
		FinishedAt:   job.FinishedAt,
	}

	if !job.Status.Terminal() && s.progress != nil {
		snap, ok, err := s.progress.Get(r.Context(), job.Token)
		if err != nil {
			s.logger.Warn("progress snapshot read failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		} else if ok {
			resp.Total = snap.Total
			resp.Processed = snap.Processed
			resp.ErrorCount = snap.ErrorCount
			resp.RejectedURLs = snap.RejectedURLs
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type feedEventResponse struct {
	Kind         string    `json:"kind"`
	ResourceUUID string    `json:"resource_uuid"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// getFeed lists recent events from the in-process buffer, newest first.
func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []feedEventResponse{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	events := s.feed.Recent(limit)
	out := make([]feedEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, feedEventResponse{
			Kind:         string(ev.Kind),
			ResourceUUID: ev.ResourceUUID.String(),
			OccurredAt:   ev.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
