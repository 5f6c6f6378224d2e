package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/service"
)

var transactionColumns = []string{
	"id", "wallet_id", "date", "merchant_name", "amount_cents", "instrument_used_id",
	"category", "category_source", "category_confidence", "category_reason",
	"earned_points", "earned_value_cents", "best_instrument_id", "missed_value_cents", "estimated_at",
}

// SaveTransactions inserts transactions, skipping duplicates by hash.
// It returns the number of rows actually inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, txn := range transactions {
			insert := squirrel.Insert("transactions").
				Options("OR IGNORE").
				Columns("id", "hash", "wallet_id", "date", "merchant_name", "amount_cents",
					"instrument_used_id", "category", "category_source", "category_confidence", "category_reason").
				Values(txn.ID, txn.GenerateHash(), txn.WalletID, txn.Date.UTC(), txn.MerchantName, txn.AmountCents,
					nullStringPtr(txn.InstrumentUsedID), nullStringPtr(txn.Category),
					string(txn.CategorySource), txn.CategoryConfidence, txn.CategoryReason)

			res, err := exec(ctx, tx, insert)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetTransactionsByIDs returns the transactions with the given IDs.
// Unknown IDs are ignored.
func (s *SQLiteStorage) GetTransactionsByIDs(ctx context.Context, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return s.queryTransactions(ctx, squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("date", "id"))
}

// ListTransactions returns a wallet's transactions inside the window, oldest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, walletID string, window model.DateRange) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(walletID, "walletID"); err != nil {
		return nil, err
	}

	where := squirrel.And{squirrel.Eq{"wallet_id": walletID}}
	if !window.Start.IsZero() {
		where = append(where, squirrel.GtOrEq{"date": window.Start.UTC()})
	}
	if !window.End.IsZero() {
		where = append(where, squirrel.Lt{"date": window.End.UTC()})
	}

	return s.queryTransactions(ctx, squirrel.Select(transactionColumns...).
		From("transactions").
		Where(where).
		OrderBy("date", "id"))
}

// ListUncategorized returns up to limit transactions with no category.
// A non-positive limit returns all of them.
func (s *SQLiteStorage) ListUncategorized(ctx context.Context, walletID string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(walletID, "walletID"); err != nil {
		return nil, err
	}

	q := squirrel.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"wallet_id": walletID, "category": nil}).
		OrderBy("date", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryTransactions(ctx, q)
}

// UpdateTransactionCategory writes a category assignment.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, id string, update service.CategoryUpdate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(update.Category, "category"); err != nil {
		return err
	}

	res, err := exec(ctx, s.db, squirrel.Update("transactions").
		Set("category", update.Category).
		Set("category_source", string(update.Source)).
		Set("category_confidence", update.Confidence).
		Set("category_reason", update.Reason).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to update category for %s: %w", id, err)
	}
	return requireAffected(res, id)
}

// UpdateTransactionEstimation overwrites the estimation fields of a transaction.
// Writing the same estimation twice leaves the row unchanged.
func (s *SQLiteStorage) UpdateTransactionEstimation(ctx context.Context, id string, est model.Estimation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if est.MissedValueCents < 0 {
		return fmt.Errorf("%w: negative missed value for %s", ErrInvalidTransaction, id)
	}

	var estimatedAt sql.NullTime
	if !est.EstimatedAt.IsZero() {
		estimatedAt = sql.NullTime{Time: est.EstimatedAt.UTC(), Valid: true}
	}

	res, err := exec(ctx, s.db, squirrel.Update("transactions").
		Set("earned_points", nullInt64Ptr(est.EarnedPoints)).
		Set("earned_value_cents", nullInt64Ptr(est.EarnedValueCents)).
		Set("best_instrument_id", nullStringPtr(est.BestInstrumentID)).
		Set("missed_value_cents", est.MissedValueCents).
		Set("estimated_at", estimatedAt).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to update estimation for %s: %w", id, err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, b squirrel.SelectBuilder) ([]model.Transaction, error) {
	rows, err := query(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var (
		txn          model.Transaction
		instrument   sql.NullString
		category     sql.NullString
		source       string
		earnedPoints sql.NullInt64
		earnedValue  sql.NullInt64
		best         sql.NullString
		estimatedAt  sql.NullTime
	)

	if err := rows.Scan(
		&txn.ID, &txn.WalletID, &txn.Date, &txn.MerchantName, &txn.AmountCents, &instrument,
		&category, &source, &txn.CategoryConfidence, &txn.CategoryReason,
		&earnedPoints, &earnedValue, &best, &txn.Estimation.MissedValueCents, &estimatedAt,
	); err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Date = txn.Date.UTC()
	txn.InstrumentUsedID = stringPtr(instrument)
	txn.Category = stringPtr(category)
	txn.CategorySource = model.CategorySource(source)
	txn.Estimation.EarnedPoints = int64Ptr(earnedPoints)
	txn.Estimation.EarnedValueCents = int64Ptr(earnedValue)
	txn.Estimation.BestInstrumentID = stringPtr(best)
	if estimatedAt.Valid {
		txn.Estimation.EstimatedAt = estimatedAt.Time.UTC()
	}
	return txn, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
