// Package service defines the interfaces shared by the engine, the CLI and
// the storage layer.
package service

import (
	"context"

	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// CategoryUpdate is a category assignment written back onto a transaction.
type CategoryUpdate struct {
	Category   string
	Source     model.CategorySource
	Reason     string
	Confidence float64
}

// Repository is the persistence contract the estimation engine depends on.
type Repository interface {
	// Wallet and instrument operations
	ListWallets(ctx context.Context) ([]string, error)
	ListInstruments(ctx context.Context, walletID string) ([]model.Instrument, error)
	GetInstrumentByAccount(ctx context.Context, accountID string) (*model.Instrument, error)
	SaveInstrument(ctx context.Context, inst model.Instrument) error
	AddRewardRule(ctx context.Context, instrumentID string, rule model.RewardRule) (model.RewardRule, error)

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransactionsByIDs(ctx context.Context, ids []string) ([]model.Transaction, error)
	ListTransactions(ctx context.Context, walletID string, window model.DateRange) ([]model.Transaction, error)
	ListUncategorized(ctx context.Context, walletID string, limit int) ([]model.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, id string, update CategoryUpdate) error
	UpdateTransactionEstimation(ctx context.Context, id string, est model.Estimation) error
}

// JobStore persists background job records.
type JobStore interface {
	SaveJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)
}

// StatusStore persists categorizer health snapshots.
type StatusStore interface {
	SaveCategorizerStatus(ctx context.Context, status model.CategorizerStatus) error
	LatestCategorizerStatus(ctx context.Context) (model.CategorizerStatus, error)
}

// Storage is the full persistence layer.
type Storage interface {
	Repository
	JobStore
	StatusStore

	Migrate(ctx context.Context) error
	Close() error
}
