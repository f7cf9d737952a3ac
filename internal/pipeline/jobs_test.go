package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsSingleFlight(t *testing.T) {
	jobs := NewJobs()

	first, err := jobs.Start()
	require.NoError(t, err)
	assert.Equal(t, JobRunning, first.Status)
	assert.NotEmpty(t, first.ID)

	_, err = jobs.Start()
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	jobs.Finish(first.ID, nil)

	second, err := jobs.Start()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestJobsFinishRecordsOutcome(t *testing.T) {
	jobs := NewJobs()

	ok, err := jobs.Start()
	require.NoError(t, err)
	jobs.StageDone(ok.ID, "schema", 0.125)
	jobs.Finish(ok.ID, nil)

	snap, found := jobs.Get(ok.ID)
	require.True(t, found)
	assert.Equal(t, JobDone, snap.Status)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Equal(t, []string{"schema"}, snap.StagesCompleted)
	assert.Empty(t, snap.Error)

	failed, err := jobs.Start()
	require.NoError(t, err)
	jobs.Finish(failed.ID, errors.New("graph store unreachable"))

	snap, found = jobs.Get(failed.ID)
	require.True(t, found)
	assert.Equal(t, JobFailed, snap.Status)
	assert.Equal(t, "graph store unreachable", snap.Error)
}

func TestJobsGetUnknown(t *testing.T) {
	jobs := NewJobs()
	_, found := jobs.Get("nope")
	assert.False(t, found)
}

func TestJobSnapshotIsolation(t *testing.T) {
	jobs := NewJobs()
	job, err := jobs.Start()
	require.NoError(t, err)
	jobs.StageDone(job.ID, "schema", 0.125)

	snap, _ := jobs.Get(job.ID)
	snap.StagesCompleted[0] = "mutated"

	fresh, _ := jobs.Get(job.ID)
	assert.Equal(t, []string{"schema"}, fresh.StagesCompleted)
}
