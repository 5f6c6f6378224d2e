package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchReport summarizes one estimation batch. Batches are never
// all-or-nothing: a report describes whatever was processed.
type BatchReport struct {
	Err         error // set when the wallet could not be processed
	WalletID    string
	Total       int
	Estimated   int // earned value known
	Unestimated int // excluded for incomplete data, fields cleared
	Skipped     int // stored estimation already current
	Failed      int // write failures
	Violations  int // negative deltas clamped to zero
}

// Estimate recomputes the given transactions, loading each wallet once.
func (e *Engine) Estimate(ctx context.Context, transactionIDs []string) ([]BatchReport, error) {
	txns, err := e.repo.GetTransactionsByIDs(ctx, transactionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	byWallet := make(map[string][]model.Transaction)
	for _, txn := range txns {
		byWallet[txn.WalletID] = append(byWallet[txn.WalletID], txn)
	}

	reports := make([]BatchReport, 0, len(byWallet))
	var errs []error
	for _, walletID := range sortedKeys(byWallet) {
		report, err := e.estimateWallet(ctx, walletID, byWallet[walletID], nil)
		reports = append(reports, report)
		if err != nil {
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// RecomputeForWallet rewrites the estimation fields of every transaction in
// a wallet. Running it twice on unchanged data writes the same values.
func (e *Engine) RecomputeForWallet(ctx context.Context, walletID string, progress ProgressFunc) (BatchReport, error) {
	txns, err := e.repo.ListTransactions(ctx, walletID, model.DateRange{})
	if err != nil {
		return BatchReport{WalletID: walletID, Err: err}, fmt.Errorf("failed to load transactions: %w", err)
	}
	return e.estimateWallet(ctx, walletID, txns, progress)
}

// RecomputeWallets recomputes wallets in parallel. An empty list means every
// wallet. A failing wallet is reported and does not stop the others.
func (e *Engine) RecomputeWallets(ctx context.Context, walletIDs []string, progress ProgressFunc) ([]BatchReport, error) {
	if len(walletIDs) == 0 {
		ids, err := e.repo.ListWallets(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list wallets: %w", err)
		}
		walletIDs = ids
	}

	// Load every wallet first so the combined total is fixed before any
	// progress is reported.
	reports := make([]BatchReport, len(walletIDs))
	batches := make([][]model.Transaction, len(walletIDs))
	totals := make([]int, len(walletIDs))
	for i, walletID := range walletIDs {
		txns, err := e.repo.ListTransactions(ctx, walletID, model.DateRange{})
		if err != nil {
			reports[i] = BatchReport{WalletID: walletID, Err: fmt.Errorf("failed to load transactions: %w", err)}
			e.logger.Error("Wallet recompute failed",
				"wallet_id", walletID,
				"error", err)
			continue
		}
		batches[i] = txns
		totals[i] = len(txns)
	}
	tracker := newProgressTracker(progress, totals)
	tracker.emit()

	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for i, walletID := range walletIDs {
		if reports[i].Err != nil {
			continue
		}
		g.Go(func() error {
			report, err := e.estimateWallet(ctx, walletID, batches[i], tracker.forWallet(i))
			if err != nil {
				report.Err = err
				e.logger.Error("Wallet recompute failed",
					"wallet_id", walletID,
					"error", err)
				if ctx.Err() == nil {
					tracker.finish(i)
				}
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return reports, err
	}
	var errs []error
	for _, r := range reports {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return reports, errors.Join(errs...)
}

func (e *Engine) estimateWallet(ctx context.Context, walletID string, txns []model.Transaction, progress ProgressFunc) (BatchReport, error) {
	report := BatchReport{WalletID: walletID, Total: len(txns)}

	wallet, err := e.Wallet(ctx, walletID)
	if err != nil {
		report.Err = err
		return report, err
	}

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			report.Err = err
			return report, err
		}

		result := e.estimator.Estimate(wallet, txn)
		if result.Violation {
			report.Violations++
		}
		if result.Estimated() {
			report.Estimated++
		} else {
			report.Unestimated++
			e.logger.Debug("Transaction not estimated",
				"wallet_id", walletID,
				"transaction_id", txn.ID,
				"error", result.Err)
		}

		if txn.Estimation.Equal(result.Estimation) {
			report.Skipped++
		} else if err := e.repo.UpdateTransactionEstimation(ctx, txn.ID, result.Estimation); err != nil {
			report.Failed++
			e.logger.Error("Failed to write estimation",
				"wallet_id", walletID,
				"transaction_id", txn.ID,
				"error", err)
		}

		if progress != nil {
			progress(i+1, len(txns))
		}
	}

	e.logger.Info("Estimated wallet",
		"wallet_id", walletID,
		"total", report.Total,
		"estimated", report.Estimated,
		"unestimated", report.Unestimated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"violations", report.Violations)
	return report, nil
}

// progressTracker folds per-wallet progress into one running total. Totals
// are fixed when the tracker is built.
type progressTracker struct {
	fn    ProgressFunc
	done  []int
	total []int
	mu    sync.Mutex
}

func newProgressTracker(fn ProgressFunc, totals []int) *progressTracker {
	return &progressTracker{
		fn:    fn,
		done:  make([]int, len(totals)),
		total: totals,
	}
}

func (p *progressTracker) forWallet(i int) ProgressFunc {
	if p.fn == nil {
		return nil
	}
	return func(done, _ int) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if done > p.done[i] {
			p.done[i] = min(done, p.total[i])
		}
		p.emitLocked()
	}
}

// finish counts the rest of a failed wallet as done.
func (p *progressTracker) finish(i int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[i] = p.total[i]
	p.emitLocked()
}

func (p *progressTracker) emit() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked()
}

func (p *progressTracker) emitLocked() {
	var sumDone, sumTotal int
	for i := range p.total {
		sumDone += p.done[i]
		sumTotal += p.total[i]
	}
	p.fn(sumDone, sumTotal)
}
