package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryJobStore struct {
	jobs    map[string]model.Job
	history []model.Job
	mu      sync.Mutex
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]model.Job)}
}

func (s *memoryJobStore) SaveJob(_ context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.history = append(s.history, job)
	return nil
}

func (s *memoryJobStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &job, nil
}

func (s *memoryJobStore) ListJobs(_ context.Context, _ int) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func TestManager_Completed(t *testing.T) {
	store := newMemoryJobStore()
	m := NewManager(store, nil)

	var seen []int
	h := m.Start(context.Background(), "recompute", func(_ context.Context, p *Progress) error {
		p.SetFraction(1, 4)
		p.SetFraction(2, 4)
		p.Set(10) // ignored, progress never decreases
		p.Set(250)
		return nil
	}, WithProgressHook(func(pct int) { seen = append(seen, pct) }))

	job, err := h.Wait()

	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.FinishedAt)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, []int{25, 50, 100}, seen)

	stored, err := store.GetJob(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, stored.Status)

	require.NotEmpty(t, store.history)
	assert.Equal(t, model.JobQueued, store.history[0].Status)
	last := -1
	for _, rec := range store.history {
		assert.GreaterOrEqual(t, rec.Progress, last, "persisted progress decreased")
		last = rec.Progress
	}
}

func TestManager_Failed(t *testing.T) {
	m := NewManager(nil, nil)
	errBoom := errors.New("wallet unavailable")

	h := m.Start(context.Background(), "recompute", func(_ context.Context, p *Progress) error {
		p.Set(30)
		return errBoom
	})

	job, err := h.Wait()

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "wallet unavailable", job.LastError)
	assert.Equal(t, 30, job.Progress)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(newMemoryJobStore(), nil)
	started := make(chan struct{})

	h := m.Start(context.Background(), "recompute", func(ctx context.Context, _ *Progress) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	h.Cancel()

	job, err := h.Wait()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, CanceledMessage, job.LastError)
}

func TestManager_WaitAll(t *testing.T) {
	m := NewManager(nil, nil)
	var mu sync.Mutex
	done := 0

	for i := 0; i < 5; i++ {
		m.Start(context.Background(), "categorize", func(context.Context, *Progress) error {
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
	}
	m.Wait()

	assert.Equal(t, 5, done)
}
