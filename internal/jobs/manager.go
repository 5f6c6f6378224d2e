// Package jobs runs long operations in the background with a persisted
// record of their state and progress.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/service"
	"github.com/google/uuid"
)

// CanceledMessage is recorded on jobs stopped by cancellation.
const CanceledMessage = "canceled"

// Func is the body of a job. It should stop promptly when ctx is done.
type Func func(ctx context.Context, progress *Progress) error

// Option configures a single job.
type Option func(*Progress)

// WithProgressHook registers a callback invoked on every progress change.
func WithProgressHook(hook func(percent int)) Option {
	return func(p *Progress) {
		p.hooks = append(p.hooks, hook)
	}
}

// Manager starts jobs and persists their records.
type Manager struct {
	store  service.JobStore
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewManager creates a manager. A nil store keeps records in memory only.
func NewManager(store service.JobStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Handle controls a running job.
type Handle struct {
	err    error
	cancel context.CancelFunc
	done   chan struct{}
	ID     string
	job    model.Job
}

// Cancel requests the job to stop. The job ends as failed with "canceled".
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job finishes and returns its final record together
// with the error returned by the job body.
func (h *Handle) Wait() (model.Job, error) {
	<-h.done
	return h.job, h.err
}

// Start records a queued job and runs fn in a new goroutine.
func (m *Manager) Start(ctx context.Context, kind string, fn Func, opts ...Option) *Handle {
	jobCtx, cancel := context.WithCancel(ctx)
	persistCtx := context.WithoutCancel(ctx)

	job := model.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    model.JobQueued,
		StartedAt: m.now().UTC(),
	}
	progress := &Progress{manager: m, ctx: persistCtx, job: job}
	for _, opt := range opts {
		opt(progress)
	}
	m.persist(persistCtx, job)

	h := &Handle{ID: job.ID, cancel: cancel, done: make(chan struct{})}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer close(h.done)

		progress.transition(func(j *model.Job) { j.Status = model.JobRunning })
		m.logger.Info("Job started", "job_id", job.ID, "kind", kind)

		err := fn(jobCtx, progress)

		progress.transition(func(j *model.Job) {
			finished := m.now().UTC()
			j.FinishedAt = &finished
			switch {
			case errors.Is(err, context.Canceled) || (err != nil && jobCtx.Err() != nil):
				j.Status = model.JobFailed
				j.LastError = CanceledMessage
			case err != nil:
				j.Status = model.JobFailed
				j.LastError = err.Error()
			default:
				j.Status = model.JobCompleted
				j.Progress = 100
			}
		})

		h.job = progress.Snapshot()
		h.err = err
		m.logger.Info("Job finished",
			"job_id", job.ID,
			"kind", kind,
			"status", h.job.Status,
			"error", h.job.LastError)
	}()

	return h
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) persist(ctx context.Context, job model.Job) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJob(ctx, job); err != nil {
		m.logger.Warn("Failed to persist job", "job_id", job.ID, "error", err)
	}
}

// Progress reports completion for one job. Percentages never decrease and
// are clamped to 0..100.
type Progress struct {
	manager *Manager
	ctx     context.Context
	hooks   []func(int)
	job     model.Job
	mu      sync.Mutex
}

// Set records a new completion percentage.
func (p *Progress) Set(percent int) {
	percent = max(0, min(percent, 100))

	p.mu.Lock()
	if percent <= p.job.Progress || p.job.Status.IsTerminal() {
		p.mu.Unlock()
		return
	}
	p.job.Progress = percent
	snapshot := p.job
	hooks := p.hooks
	p.mu.Unlock()

	p.manager.persist(p.ctx, snapshot)
	for _, hook := range hooks {
		hook(percent)
	}
}

// SetFraction records done out of total as a percentage.
func (p *Progress) SetFraction(done, total int) {
	if total <= 0 {
		return
	}
	p.Set(done * 100 / total)
}

// Value returns the current percentage.
func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job.Progress
}

// Snapshot returns a copy of the job record.
func (p *Progress) Snapshot() model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

func (p *Progress) transition(update func(*model.Job)) {
	p.mu.Lock()
	before := p.job.Progress
	update(&p.job)
	snapshot := p.job
	hooks := p.hooks
	p.mu.Unlock()

	p.manager.persist(p.ctx, snapshot)
	if snapshot.Progress != before {
		for _, hook := range hooks {
			hook(snapshot.Progress)
		}
	}
}
