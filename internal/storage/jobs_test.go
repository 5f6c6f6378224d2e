package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobs(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	job := model.Job{ID: "j1", Kind: "recompute", Status: model.JobRunning, Progress: 40, StartedAt: started}
	require.NoError(t, store.SaveJob(ctx, job))
	require.NoError(t, store.SaveJob(ctx, model.Job{ID: "j2", Kind: "categorize", Status: model.JobQueued, StartedAt: started.Add(time.Hour)}))

	finished := started.Add(time.Minute)
	job.Status = model.JobFailed
	job.Progress = 60
	job.LastError = "canceled"
	job.FinishedAt = &finished
	require.NoError(t, store.SaveJob(ctx, job))

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, 60, got.Progress)
	assert.Equal(t, "canceled", got.LastError)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))

	jobs, err := store.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j2", jobs[0].ID)

	_, err = store.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveJob_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name string
		job  model.Job
	}{
		{name: "missing id", job: model.Job{Kind: "k", Status: model.JobQueued}},
		{name: "missing kind", job: model.Job{ID: "j", Status: model.JobQueued}},
		{name: "bad progress", job: model.Job{ID: "j", Kind: "k", Status: model.JobQueued, Progress: 101}},
		{name: "bad status", job: model.Job{ID: "j", Kind: "k", Status: "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.SaveJob(ctx, tt.job), ErrInvalidJob)
		})
	}
}

func TestCategorizerStatus(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	empty, err := store.LatestCategorizerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ModeUnknown, empty.Mode)

	success := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveCategorizerStatus(ctx, model.CategorizerStatus{
		Mode:        model.ModePrimary,
		RemoteMode:  "gemini",
		Reachable:   true,
		LastSuccess: &success,
		CheckedAt:   success,
	}))
	failure := success.Add(time.Hour)
	require.NoError(t, store.SaveCategorizerStatus(ctx, model.CategorizerStatus{
		Mode:        model.ModeFailsafe,
		LastSuccess: &success,
		LastFailure: &failure,
		LastError:   "timeout",
		CheckedAt:   failure,
	}))

	latest, err := store.LatestCategorizerStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ModeFailsafe, latest.Mode)
	assert.False(t, latest.Reachable)
	assert.Equal(t, "timeout", latest.LastError)
	require.NotNil(t, latest.LastSuccess)
	assert.True(t, success.Equal(*latest.LastSuccess))
	require.NotNil(t, latest.LastFailure)
	assert.True(t, failure.Equal(*latest.LastFailure))
}
