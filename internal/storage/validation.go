// Package storage provides the SQLite persistence layer for wallets,
// transactions, jobs and categorizer health.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidJob         = errors.New("invalid job")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn model.Transaction) error {
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.WalletID == "" {
		return fmt.Errorf("%w: missing wallet ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Estimation.MissedValueCents < 0 {
		return fmt.Errorf("%w: negative missed value", ErrInvalidTransaction)
	}
	return nil
}

// validateJob validates a job record.
func validateJob(job model.Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidJob)
	}
	if job.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidJob)
	}
	if job.Progress < 0 || job.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidJob, job.Progress)
	}
	switch job.Status {
	case model.JobQueued, model.JobRunning, model.JobCompleted, model.JobFailed:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidJob, job.Status)
	}
	return nil
}
