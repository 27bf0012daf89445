package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resourcewatch/resourcewatch/internal/ingest"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	"github.com/resourcewatch/resourcewatch/internal/urlparse"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	enqueueTimeout   = 5 * time.Second
)

type createResourceRequest struct {
	URL string `json:"url"`
}

type queryParamDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type resourceResponse struct {
	UUID             string          `json:"uuid"`
	FullURL          string          `json:"full_url"`
	Protocol         string          `json:"protocol"`
	Domain           string          `json:"domain"`
	DomainZone       string          `json:"domain_zone"`
	Path             string          `json:"path"`
	Query            []queryParamDTO `json:"query"`
	UnavailableCount int             `json:"unavailable_count"`
	HasScreenshot    bool            `json:"has_screenshot"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toResourceResponse(r registry.Resource) resourceResponse {
	query := make([]queryParamDTO, 0, len(r.Query))
	for _, p := range r.Query {
		query = append(query, queryParamDTO{Key: p.Key, Value: p.Value})
	}
	return resourceResponse{
		UUID:             r.UUID.String(),
		FullURL:          r.FullURL,
		Protocol:         r.Protocol,
		Domain:           r.Domain,
		DomainZone:       r.DomainZone,
		Path:             r.Path,
		Query:            query,
		UnavailableCount: r.UnavailableCount,
		HasScreenshot:    len(r.Screenshot) > 0,
		CreatedAt:        r.CreatedAt,
	}
}

// createResource accepts either a JSON body with a single URL or a multipart
// ZIP upload that starts an asynchronous ingestion job.
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		s.startIngestion(w, r)
		return
	}
	s.createSingleResource(w, r)
}

func (s *Server) createSingleResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := registry.NewResource(req.URL)
	if err != nil {
		if errors.Is(err, urlparse.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, "invalid url")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res.CreatedAt = s.clock.Now()

	if err := s.store.Insert(r.Context(), &res); err != nil {
		if errors.Is(err, registry.ErrDuplicateResource) {
			writeError(w, http.StatusConflict, "url already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "store insert failed")
		return
	}

	s.publishEvent(r.Context(), registry.FeedEvent{
		Kind:         registry.EventResourceAdded,
		ResourceID:   res.ID,
		ResourceUUID: res.UUID,
		OccurredAt:   res.CreatedAt,
	})
	writeJSON(w, http.StatusCreated, toResourceResponse(res))
}

func (s *Server) startIngestion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxUploadBytes))
	file, _, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing archive file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read archive failed")
		return
	}

	jobID, err := s.idGen.NewJobID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id failed")
		return
	}
	token, err := s.idGen.NewToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate token failed")
		return
	}

	ref := fmt.Sprintf("%s/%s.zip", s.cfg.Storage.Prefix, jobID)
	if _, err := s.blobs.PutObject(r.Context(), ref, "application/zip", bytes.NewReader(data)); err != nil {
		writeError(w, http.StatusInternalServerError, "stage archive failed")
		return
	}

	job := registry.IngestionJob{
		ID:        jobID,
		Token:     token,
		Status:    registry.JobPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateJob(r.Context(), &job); err != nil {
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, ingest.Task{JobID: jobID, Ref: ref}); err != nil {
		s.logger.Error("enqueue ingestion failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ingestion queue full")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": string(registry.JobPending),
	})
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resources, err := s.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list resources failed")
		return
	}

	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFromPath(w, r)
	if !ok {
		return
	}

	// The deletion event precedes the delete so the cascade cannot race it
	// out of existence on the durable side; the in-process feed keeps it.
	s.publishEvent(r.Context(), registry.FeedEvent{
		Kind:         registry.EventResourceDeleted,
		ResourceID:   res.ID,
		ResourceUUID: res.UUID,
		OccurredAt:   s.clock.Now(),
	})
	if err := s.store.Delete(r.Context(), res.ID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFromPath(w, r)
	if !ok {
		return
	}
	if len(res.Screenshot) == 0 {
		writeError(w, http.StatusNotFound, "no screenshot stored")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(res.Screenshot))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Screenshot); err != nil {
		s.logger.Error("write screenshot failed", zap.Error(err))
	}
}

// putScreenshot stores the request body as the resource's screenshot. With
// an empty body it instead captures the page with the configured capturer.
func (s *Server) putScreenshot(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFromPath(w, r)
	if !ok {
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.cfg.Server.MaxUploadBytes)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read image failed")
		return
	}
	if len(image) == 0 {
		image, err = s.capturer.Capture(r.Context(), res.FullURL)
		if err != nil {
			writeError(w, http.StatusBadGateway, "screenshot capture failed")
			return
		}
		if len(image) == 0 {
			writeError(w, http.StatusBadRequest, "no image supplied and capture disabled")
			return
		}
	}

	if err := s.store.SetScreenshot(r.Context(), res.UUID, image); err != nil {
		writeError(w, http.StatusInternalServerError, "store screenshot failed")
		return
	}
	s.publishEvent(r.Context(), registry.FeedEvent{
		Kind:         registry.EventScreenshotAdded,
		ResourceID:   res.ID,
		ResourceUUID: res.UUID,
		OccurredAt:   s.clock.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":  res.UUID.String(),
		"bytes": len(image),
	})
}

func (s *Server) resourceFromPath(w http.ResponseWriter, r *http.Request) (registry.Resource, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "resource_uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource uuid")
		return registry.Resource{}, false
	}
	res, err := s.store.GetByUUID(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")
			return registry.Resource{}, false
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return registry.Resource{}, false
	}
	return res, true
}

// publishEvent records the event durably and mirrors it to the in-process
// feed. Feed failures are logged, never surfaced to the client.
func (s *Server) publishEvent(ctx context.Context, ev registry.FeedEvent) {
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.logger.Error("append feed event failed", zap.Error(err))
	}
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.Warn("feed publish failed", zap.Error(err))
	}
}

func parseListFilter(r *http.Request) (registry.ListFilter, error) {
	filter := registry.ListFilter{Limit: defaultListLimit}

	q := r.URL.Query()
	filter.DomainZone = q.Get("domain_zone")

	if raw := q.Get("uuid"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return registry.ListFilter{}, fmt.Errorf("invalid uuid filter")
		}
		filter.UUID = &id
	}
	if raw := q.Get("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return registry.ListFilter{}, fmt.Errorf("invalid available filter")
		}
		filter.Available = &v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return registry.ListFilter{}, fmt.Errorf("invalid limit")
		}
		if v > maxListLimit {
			v = maxListLimit
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return registry.ListFilter{}, fmt.Errorf("invalid offset")
		}
		filter.Offset = v
	}
	return filter, nil
}
