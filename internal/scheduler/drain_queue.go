package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
)

// DrainQueueJob processes pending queued analyses: claims items one at a
// time, runs the pipeline, persists the record and publishes lifecycle
// events. A failed item is marked failed and does not stop the batch.
type DrainQueueJob struct {
	service  *analysis.Service
	queue    *analysis.QueueRepository
	repo     *analysis.Repository
	cache    *analysis.Cache
	eventBus *events.Bus
	maxBatch int
	log      zerolog.Logger
}

// NewDrainQueueJob creates the queue-draining job. maxBatch caps how
// many items one invocation processes; <= 0 means no cap.
func NewDrainQueueJob(
	service *analysis.Service,
	queue *analysis.QueueRepository,
	repo *analysis.Repository,
	cache *analysis.Cache,
	eventBus *events.Bus,
	maxBatch int,
	log zerolog.Logger,
) *DrainQueueJob {
	return &DrainQueueJob{
		service:  service,
		queue:    queue,
		repo:     repo,
		cache:    cache,
		eventBus: eventBus,
		maxBatch: maxBatch,
		log:      log.With().Str("job", "drain_queue").Logger(),
	}
}

// Name implements Job.
func (j *DrainQueueJob) Name() string {
	return "drain_queue"
}

// Run implements Job.
func (j *DrainQueueJob) Run() error {
	processed := 0
	for j.maxBatch <= 0 || processed < j.maxBatch {
		item, err := j.queue.NextPending()
		if err != nil {
			return fmt.Errorf("failed to claim next queue item: %w", err)
		}
		if item == nil {
			break
		}
		j.process(item)
		processed++
	}

	if processed > 0 {
		j.log.Info().Int("processed", processed).Msg("Queue drained")
	}
	return nil
}

func (j *DrainQueueJob) process(item *analysis.QueueItem) {
	j.eventBus.Publish(&events.AnalysisStartedData{
		Sequence: item.Request.Sequence,
		Seed:     item.Request.Seed,
	})

	record := j.cache.Get(item.Request)
	if record == nil {
		var err error
		record, err = j.service.Analyze(item.Request)
		if err != nil {
			j.fail(item, err)
			return
		}
		// Persist before caching: a cached record must always point at a
		// run that exists in the results database.
		if err := j.repo.Save(record); err != nil {
			j.fail(item, err)
			return
		}
		if err := j.cache.Put(item.Request, record); err != nil {
			j.log.Warn().Err(err).Msg("Failed to cache analysis record")
		}
	}

	if err := j.queue.MarkDone(item.ID, record.RunID); err != nil {
		j.log.Error().Err(err).Int64("queue_id", item.ID).Msg("Failed to mark queue item done")
		return
	}

	j.eventBus.Publish(&events.AnalysisCompletedData{
		RunID:    record.RunID,
		Sequence: record.Sequence,
		FoTValue: record.FoTValue,
		Warnings: len(record.Warnings),
	})
}

func (j *DrainQueueJob) fail(item *analysis.QueueItem, cause error) {
	j.log.Error().Err(cause).Int64("queue_id", item.ID).
		Str("sequence", item.Request.Sequence).Msg("Queued analysis failed")

	if err := j.queue.MarkFailed(item.ID, cause); err != nil {
		j.log.Error().Err(err).Int64("queue_id", item.ID).Msg("Failed to mark queue item failed")
	}

	j.eventBus.Publish(&events.AnalysisFailedData{
		Sequence: item.Request.Sequence,
		Error:    cause.Error(),
	})
}
