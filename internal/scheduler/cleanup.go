package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/modules/analysis"
)

// CleanupJob prunes old run records and expired cache entries.
type CleanupJob struct {
	repo      *analysis.Repository
	cache     *analysis.Cache
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupJob creates the cleanup job. Records older than the
// retention window are removed.
func NewCleanupJob(repo *analysis.Repository, cache *analysis.Cache, retention time.Duration, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:      repo,
		cache:     cache,
		retention: retention,
		log:       log.With().Str("job", "cleanup").Logger(),
	}
}

// Name implements Job.
func (j *CleanupJob) Name() string {
	return "cleanup"
}

// Run implements Job.
func (j *CleanupJob) Run() error {
	cutoff := time.Now().Add(-j.retention)

	runs, err := j.repo.DeleteOlderThan(cutoff)
	if err != nil {
		return err
	}

	entries, err := j.cache.Purge(cutoff)
	if err != nil {
		return err
	}

	if runs > 0 || entries > 0 {
		j.log.Info().Int64("runs", runs).Int64("cache_entries", entries).Msg("Old records pruned")
	}
	return nil
}
