package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Run() error   { j.runs++; return j.err }
func (j *stubJob) Name() string { return j.name }

func TestRunNow_PropagatesJobError(t *testing.T) {
	s := New(testLog)
	cause := errors.New("disk full")
	job := &stubJob{name: "nightly_backup", err: cause}

	err := s.RunNow(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 1, job.runs)
}

func TestRunNow_Succeeds(t *testing.T) {
	s := New(testLog)
	job := &stubJob{name: "cleanup"}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(testLog)

	err := s.AddJob("not a cron expression", &stubJob{name: "drain_queue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain_queue")
}

func TestAddJob_ValidSchedule(t *testing.T) {
	s := New(testLog)

	require.NoError(t, s.AddJob("@every 1h", &stubJob{name: "drain_queue"}))
}
