package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/reliability"
)

// BackupHandlers serves backup listing and manual backup triggers.
type BackupHandlers struct {
	backup *reliability.BackupService
	log    zerolog.Logger
}

// NewBackupHandlers creates the backup handlers. backup may be nil when
// object storage is not configured; the endpoints then return 503.
func NewBackupHandlers(backup *reliability.BackupService, log zerolog.Logger) *BackupHandlers {
	return &BackupHandlers{
		backup: backup,
		log:    log.With().Str("handler", "backup").Logger(),
	}
}

// RegisterRoutes registers backup routes.
func (h *BackupHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/backups", h.HandleListBackups)
	r.Post("/backups", h.HandleCreateBackup)
}

// HandleListBackups handles GET /api/backups.
func (h *BackupHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		http.Error(w, "Backups not configured", http.StatusServiceUnavailable)
		return
	}

	backups, err := h.backup.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, "Failed to list backups", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": backups,
		"metadata": map[string]interface{}{
			"count":     len(backups),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleCreateBackup handles POST /api/backups.
func (h *BackupHandlers) HandleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		http.Error(w, "Backups not configured", http.StatusServiceUnavailable)
		return
	}

	h.log.Info().Msg("Manual backup trigger")

	if err := h.backup.CreateAndUploadBackup(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{"status": "success"})
}

// writeJSON writes a JSON response.
func (h *BackupHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
