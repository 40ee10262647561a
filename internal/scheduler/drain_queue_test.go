package scheduler

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
	"github.com/aristath/conformer/internal/modules/basis"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

func testStores(t *testing.T) (*analysis.Repository, *analysis.Cache, *analysis.QueueRepository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := analysis.NewRepository(db, testLog)
	require.NoError(t, err)
	cache, err := analysis.NewCache(db, testLog)
	require.NoError(t, err)
	queue, err := analysis.NewQueueRepository(db, testLog)
	require.NoError(t, err)
	return repo, cache, queue
}

func TestDrainQueueJob_ProcessesPendingItems(t *testing.T) {
	repo, cache, queue := testStores(t)
	bus := events.NewBus()
	service := analysis.NewService(basis.NewModel(), testLog)

	_, err := queue.Enqueue(analysis.Request{Sequence: "DAEF", Seed: 1})
	require.NoError(t, err)
	_, err = queue.Enqueue(analysis.Request{Sequence: "KLVFF", Seed: 2})
	require.NoError(t, err)

	ch, cancel := bus.Subscribe()
	defer cancel()

	job := NewDrainQueueJob(service, queue, repo, cache, bus, 0, testLog)
	require.NoError(t, job.Run())

	pending, err := queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	// Two started + two completed events.
	completed := 0
	timeout := time.After(time.Second)
	for completed < 2 {
		select {
		case event := <-ch:
			if event.Type == events.AnalysisCompleted {
				completed++
			}
		case <-timeout:
			t.Fatal("expected two completion events")
		}
	}

	summaries, err := repo.Recent(10)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestDrainQueueJob_FailedItemDoesNotStopBatch(t *testing.T) {
	repo, cache, queue := testStores(t)
	bus := events.NewBus()
	service := analysis.NewService(basis.NewModel(), testLog)

	// First item invalid, second valid.
	_, err := queue.Enqueue(analysis.Request{Sequence: "DAXB", Seed: 1})
	require.NoError(t, err)
	_, err = queue.Enqueue(analysis.Request{Sequence: "DAEF", Seed: 2})
	require.NoError(t, err)

	job := NewDrainQueueJob(service, queue, repo, cache, bus, 0, testLog)
	require.NoError(t, job.Run())

	pending, err := queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	summaries, err := repo.Recent(10)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

// A record must never enter the cache unless its run was persisted:
// otherwise a later identical submission would hit the cache and hand
// out a run ID that no results row backs.
func TestDrainQueueJob_SaveFailureLeavesNoCacheEntry(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := analysis.NewRepository(db, testLog)
	require.NoError(t, err)
	cache, err := analysis.NewCache(db, testLog)
	require.NoError(t, err)
	queue, err := analysis.NewQueueRepository(db, testLog)
	require.NoError(t, err)
	service := analysis.NewService(basis.NewModel(), testLog)

	req := analysis.Request{Sequence: "DAEF", Seed: 1}
	_, err = queue.Enqueue(req)
	require.NoError(t, err)

	// Break persistence underneath the job.
	_, err = db.Exec("DROP TABLE analysis_runs")
	require.NoError(t, err)

	job := NewDrainQueueJob(service, queue, repo, cache, events.NewBus(), 0, testLog)
	require.NoError(t, job.Run())

	assert.Nil(t, cache.Get(req))

	pending, err := queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestDrainQueueJob_MaxBatch(t *testing.T) {
	repo, cache, queue := testStores(t)
	service := analysis.NewService(basis.NewModel(), testLog)

	for i := int64(0); i < 3; i++ {
		_, err := queue.Enqueue(analysis.Request{Sequence: "DAEF", Seed: i})
		require.NoError(t, err)
	}

	job := NewDrainQueueJob(service, queue, repo, cache, events.NewBus(), 2, testLog)
	require.NoError(t, job.Run())

	pending, err := queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestDrainQueueJob_Name(t *testing.T) {
	job := NewDrainQueueJob(nil, nil, nil, nil, events.NewBus(), 0, testLog)
	assert.Equal(t, "drain_queue", job.Name())
}

func TestCleanupJob_PrunesOldRecords(t *testing.T) {
	repo, cache, _ := testStores(t)
	service := analysis.NewService(basis.NewModel(), testLog)

	record, err := service.Analyze(analysis.Request{Sequence: "DAEF", Seed: 1})
	require.NoError(t, err)
	require.NoError(t, repo.Save(record))

	// Negative retention pushes the cutoff into the future: everything
	// qualifies for pruning.
	job := NewCleanupJob(repo, cache, -time.Hour, testLog)
	require.NoError(t, job.Run())

	summaries, err := repo.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
