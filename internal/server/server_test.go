package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/conformer/internal/events"
	"github.com/aristath/conformer/internal/modules/analysis"
	analysishandlers "github.com/aristath/conformer/internal/modules/analysis/handlers"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/scheduler"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

func setupServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo, err := analysis.NewRepository(db, testLog)
	require.NoError(t, err)
	queue, err := analysis.NewQueueRepository(db, testLog)
	require.NoError(t, err)

	service := analysis.NewService(basis.NewModel(), testLog)
	eventBus := events.NewBus()

	handler := analysishandlers.NewHandler(service, repo, nil, queue, eventBus, testLog)

	srv := New(Config{
		Log:       testLog,
		Port:      0,
		DevMode:   true,
		DataDir:   t.TempDir(),
		EventBus:  eventBus,
		Queue:     queue,
		Analysis:  handler,
		Scheduler: scheduler.New(testLog),
	})

	return srv, eventBus
}

func TestHandleHealth(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandleSystemStatus(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/system/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	data := response["data"].(map[string]interface{})
	assert.Contains(t, data, "version")
	assert.Contains(t, data, "cpu_percent")
	assert.Contains(t, data, "ram_percent")
	assert.Equal(t, float64(0), data["queue_pending"])
}

func TestAnalysisRoutesMounted(t *testing.T) {
	srv, _ := setupServer(t)

	body := strings.NewReader(`{"sequence":"DAEF","seed":5}`)
	req := httptest.NewRequest("POST", "/api/analysis", body)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "DAEF", data["sequence"])
}

func TestBackupsNotConfigured(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest("GET", "/api/backups", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTriggerJob_Unknown(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api/jobs/nope", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

type recordedJob struct {
	ran bool
}

func (j *recordedJob) Name() string { return "noop" }
func (j *recordedJob) Run() error   { j.ran = true; return nil }

func TestTriggerJob_Registered(t *testing.T) {
	srv, _ := setupServer(t)

	job := &recordedJob{}
	srv.RegisterJob(job)

	req := httptest.NewRequest("POST", "/api/jobs/noop", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, job.ran)
}

func TestEventsStream(t *testing.T) {
	srv, eventBus := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/events/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Router().ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	eventBus.Publish(&events.AnalysisCompletedData{RunID: "r1", Sequence: "DAEF"})

	<-done

	body := w.Body.String()
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, string(events.AnalysisCompleted))
}
