package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// SaveCategorizerStatus appends a categorizer health snapshot.
func (s *SQLiteStorage) SaveCategorizerStatus(ctx context.Context, status model.CategorizerStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(string(status.Mode), "mode"); err != nil {
		return err
	}

	insert := squirrel.Insert("categorizer_status").
		Columns("mode", "remote_mode", "reachable", "last_success", "last_failure", "last_error", "checked_at").
		Values(string(status.Mode), status.RemoteMode, status.Reachable,
			nullTimePtr(status.LastSuccess), nullTimePtr(status.LastFailure),
			status.LastError, status.CheckedAt.UTC())
	if _, err := exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("failed to save categorizer status: %w", err)
	}
	return nil
}

// LatestCategorizerStatus returns the most recent snapshot, or an unknown
// status when none has been recorded.
func (s *SQLiteStorage) LatestCategorizerStatus(ctx context.Context) (model.CategorizerStatus, error) {
	if err := validateContext(ctx); err != nil {
		return model.CategorizerStatus{}, err
	}

	stmt, args, err := squirrel.Select("mode", "remote_mode", "reachable", "last_success", "last_failure", "last_error", "checked_at").
		From("categorizer_status").
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return model.CategorizerStatus{}, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		status  model.CategorizerStatus
		mode    string
		success sql.NullTime
		failure sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, stmt, args...).Scan(&mode, &status.RemoteMode, &status.Reachable,
		&success, &failure, &status.LastError, &status.CheckedAt)
	if isNoRows(err) {
		return model.CategorizerStatus{Mode: model.ModeUnknown}, nil
	}
	if err != nil {
		return model.CategorizerStatus{}, fmt.Errorf("failed to load categorizer status: %w", err)
	}

	status.Mode = model.CategorizerMode(mode)
	status.LastSuccess = timePtr(success)
	status.LastFailure = timePtr(failure)
	status.CheckedAt = status.CheckedAt.UTC()
	return status, nil
}
