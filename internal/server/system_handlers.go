package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/conformer/internal/database"
	"github.com/aristath/conformer/internal/modules/analysis"
	"github.com/aristath/conformer/internal/scheduler"
	"github.com/aristath/conformer/internal/version"
)

// SystemHandlers serves system status and manual job triggers.
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	resultsDB *database.DB
	cacheDB   *database.DB
	queue     *analysis.QueueRepository
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	startTime time.Time
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	resultsDB *database.DB,
	cacheDB *database.DB,
	queue *analysis.QueueRepository,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		resultsDB: resultsDB,
		cacheDB:   cacheDB,
		queue:     queue,
		scheduler: sched,
		jobs:      make(map[string]scheduler.Job),
		startTime: time.Now(),
	}
}

// RegisterJob makes a scheduled job triggerable via POST /api/jobs/{name}.
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.jobs[job.Name()] = job
}

// RegisterRoutes registers system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/system/status", h.HandleSystemStatus)
	r.Post("/jobs/{name}", h.HandleTriggerJob)
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.systemStats()

	status := map[string]interface{}{
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
		"data_dir_mb":    h.dirSizeMB(h.dataDir),
	}

	if h.resultsDB != nil {
		status["results_db"] = h.databaseStatus(h.resultsDB)
	}
	if h.cacheDB != nil {
		status["cache_db"] = h.databaseStatus(h.cacheDB)
	}

	if h.queue != nil {
		pending, err := h.queue.PendingCount()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count pending queue items")
		} else {
			status["queue_pending"] = pending
		}
	}

	h.writeJSON(w, map[string]interface{}{
		"data": status,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleTriggerJob handles POST /api/jobs/{name}. Runs a registered
// scheduled job immediately.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.jobs[name]
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Job failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status": "success",
		"job":    name,
	})
}

// databaseStatus reports health and on-disk size for one database.
func (h *SystemHandlers) databaseStatus(db *database.DB) map[string]interface{} {
	status := map[string]interface{}{
		"name":    db.Name(),
		"healthy": db.Conn().Ping() == nil,
	}

	if info, err := os.Stat(db.Path()); err == nil {
		status["size_mb"] = float64(info.Size()) / 1024 / 1024
	}

	return status
}

// systemStats returns CPU and RAM usage percentages. The short CPU
// sampling window keeps the endpoint responsive for pollers.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// dirSizeMB calculates the total size of a directory in MB.
func (h *SystemHandlers) dirSizeMB(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// writeJSON writes a JSON response.
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
