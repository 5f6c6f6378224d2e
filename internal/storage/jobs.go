package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
)

var jobColumns = []string{"id", "kind", "status", "progress", "last_error", "started_at", "finished_at"}

// SaveJob inserts or updates a job record.
func (s *SQLiteStorage) SaveJob(ctx context.Context, job model.Job) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}

	insert := squirrel.Insert("jobs").
		Columns(jobColumns...).
		Values(job.ID, job.Kind, string(job.Status), job.Progress, job.LastError,
			job.StartedAt.UTC(), nullTimePtr(job.FinishedAt)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			last_error = excluded.last_error,
			finished_at = excluded.finished_at`)
	if _, err := exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job by ID.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	stmt, args, err := squirrel.Select(jobColumns...).From("jobs").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, stmt, args...))
	if isNoRows(err) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recent jobs first.
func (s *SQLiteStorage) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	q := squirrel.Select(jobColumns...).From("jobs").OrderBy("started_at DESC", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := query(ctx, s.db, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.Job, error) {
	var job model.Job
	var status string
	var finished sql.NullTime
	if err := row.Scan(&job.ID, &job.Kind, &status, &job.Progress, &job.LastError, &job.StartedAt, &finished); err != nil {
		if isNoRows(err) {
			return model.Job{}, err
		}
		return model.Job{}, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = model.JobStatus(status)
	job.StartedAt = job.StartedAt.UTC()
	job.FinishedAt = timePtr(finished)
	return job, nil
}
