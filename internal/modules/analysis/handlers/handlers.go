// Package handlers provides HTTP handlers for conformational analysis
// runs, run history and the analysis queue.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
)

// Handler handles analysis HTTP requests.
type Handler struct {
	service  *analysis.Service
	repo     *analysis.Repository
	cache    *analysis.Cache
	queue    *analysis.QueueRepository
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewHandler creates a new analysis handler. cache and eventBus may be
// nil; repo and queue are required.
func NewHandler(
	service *analysis.Service,
	repo *analysis.Repository,
	cache *analysis.Cache,
	queue *analysis.QueueRepository,
	eventBus *events.Bus,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		repo:     repo,
		cache:    cache,
		queue:    queue,
		eventBus: eventBus,
		log:      log.With().Str("handler", "analysis").Logger(),
	}
}

// HandleAnalyze handles POST /api/analysis. Runs the full pipeline
// synchronously and persists the result.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if h.cache != nil {
		if record := h.cache.Get(req); record != nil {
			h.writeRecord(w, record, true)
			return
		}
	}

	if h.eventBus != nil {
		h.eventBus.Publish(&events.AnalysisStartedData{
			Sequence: req.Sequence,
			Seed:     req.Seed,
		})
	}

	record, err := h.service.Analyze(req)
	if err != nil {
		if h.eventBus != nil {
			h.eventBus.Publish(&events.AnalysisFailedData{
				Sequence: req.Sequence,
				Error:    err.Error(),
			})
		}
		h.writeError(w, err)
		return
	}

	if err := h.repo.Save(record); err != nil {
		h.log.Error().Err(err).Str("run_id", record.RunID).Msg("Failed to persist run")
		http.Error(w, "Failed to persist run", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		if err := h.cache.Put(req, record); err != nil {
			h.log.Warn().Err(err).Msg("Failed to cache run result")
		}
	}

	if h.eventBus != nil {
		h.eventBus.Publish(&events.AnalysisCompletedData{
			RunID:    record.RunID,
			Sequence: record.Sequence,
			FoTValue: record.FoTValue,
			Warnings: len(record.Warnings),
		})
	}

	h.writeRecord(w, record, false)
}

// HandleGetRun handles GET /api/analysis/{id}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	record, err := h.repo.GetByID(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListRuns handles GET /api/analysis. Accepts an optional ?limit=
// query parameter, default 20.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	summaries, err := h.repo.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summaries,
		"metadata": map[string]interface{}{
			"count":     len(summaries),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleEnqueue handles POST /api/queue. Validates the request and adds
// it to the work queue for the background drain job.
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := req.Normalize(); err != nil {
		h.writeError(w, err)
		return
	}

	id, err := h.queue.Enqueue(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue request")
		http.Error(w, "Failed to enqueue request", http.StatusInternalServerError)
		return
	}

	if h.eventBus != nil {
		h.eventBus.Publish(&events.AnalysisQueuedData{
			QueueID:  id,
			Sequence: req.Sequence,
		})
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"queue_id": id,
			"status":   analysis.StatusPending,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleQueueStatus handles GET /api/queue.
func (h *Handler) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.PendingCount()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count pending items")
		http.Error(w, "Failed to read queue status", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"pending": pending,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeRecord writes a completed run record response.
func (h *Handler) writeRecord(w http.ResponseWriter, record *analysis.Record, cached bool) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": record,
		"metadata": map[string]interface{}{
			"cached":    cached,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSequenceSymbol),
		errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDegenerateBasis):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Analysis failed")
	}
	http.Error(w, err.Error(), status)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
