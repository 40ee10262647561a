package reliability

import (
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/database"
)

// MaintenanceJob performs periodic database maintenance: integrity
// checks, WAL checkpoints, VACUUM and a disk space check.
type MaintenanceJob struct {
	databases []*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job.
func NewMaintenanceJob(databases []*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name implements the scheduler Job interface.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run implements the scheduler Job interface.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting database maintenance")
	startTime := time.Now()

	for _, db := range j.databases {
		if err := j.checkIntegrity(db); err != nil {
			return err
		}

		// WAL checkpoint prevents bloat; failure is not critical
		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Str("database", db.Name()).Err(err).Msg("WAL checkpoint failed")
		}

		if err := j.vacuumDatabase(db); err != nil {
			j.log.Warn().Str("database", db.Name()).Err(err).Msg("VACUUM failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Database maintenance completed")

	return nil
}

// checkIntegrity runs a quick integrity check on one database.
func (j *MaintenanceJob) checkIntegrity(db *database.DB) error {
	var result string
	if err := db.Conn().QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed for %s: %w", db.Name(), err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.Name(), result)
	}
	return nil
}

// vacuumDatabase runs VACUUM and logs the space reclaimed.
func (j *MaintenanceJob) vacuumDatabase(db *database.DB) error {
	var pageCount, pageSize int
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return err
	}

	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}

// checkDiskSpace halts maintenance when the data volume is nearly full.
func (j *MaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < 0.5 {
		return fmt.Errorf("only %.2f GB free on data volume", availableGB)
	}
	if availableGB < 5.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}

	return nil
}
