package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-points-must-flow/internal/categorize"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/service"
)

// CategorizeReport summarizes a categorization run.
type CategorizeReport struct {
	BySource    map[model.CategorySource]int
	WalletID    string
	Mode        model.CategorizerMode // mode after the last batch
	Total       int
	Categorized int
	Failed      int
}

// InsightsReport is the combined result of CategorizeAndEstimate.
type InsightsReport struct {
	Categorized CategorizeReport
	Estimated   BatchReport
}

// CategorizeUncategorized assigns a category to every uncategorized
// transaction of a wallet, one batch at a time. Categorizer outages degrade
// to the local matcher, so only storage errors stop the run.
func (e *Engine) CategorizeUncategorized(ctx context.Context, walletID string) (CategorizeReport, error) {
	report := CategorizeReport{
		WalletID: walletID,
		BySource: make(map[model.CategorySource]int),
		Mode:     e.categorizer.Status().Mode,
	}
	failed := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		txns, err := e.repo.ListUncategorized(ctx, walletID, e.config.BatchSize+len(failed))
		if err != nil {
			return report, fmt.Errorf("failed to load uncategorized transactions: %w", err)
		}

		batch := make([]model.Transaction, 0, len(txns))
		for _, txn := range txns {
			if _, skip := failed[txn.ID]; !skip {
				batch = append(batch, txn)
			}
			if len(batch) == e.config.BatchSize {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		results := e.categorizer.CategorizeBatch(ctx, toRequests(batch))
		report.Mode = e.categorizer.Status().Mode
		report.Total += len(batch)

		for i, txn := range batch {
			res := results[i]
			update := service.CategoryUpdate{
				Category:   res.Category,
				Source:     res.Source,
				Reason:     res.Reason,
				Confidence: res.Confidence,
			}
			if err := e.repo.UpdateTransactionCategory(ctx, txn.ID, update); err != nil {
				report.Failed++
				failed[txn.ID] = struct{}{}
				e.logger.Error("Failed to save category",
					"wallet_id", walletID,
					"transaction_id", txn.ID,
					"error", err)
				continue
			}
			report.Categorized++
			report.BySource[res.Source]++
		}

		e.logger.Info("Categorized batch",
			"wallet_id", walletID,
			"size", len(batch),
			"mode", report.Mode)
	}

	return report, nil
}

// CategorizeAndEstimate categorizes a wallet and then recomputes its
// estimations against the fresh categories.
func (e *Engine) CategorizeAndEstimate(ctx context.Context, walletID string, progress ProgressFunc) (InsightsReport, error) {
	var out InsightsReport

	categorized, err := e.CategorizeUncategorized(ctx, walletID)
	out.Categorized = categorized
	if err != nil {
		return out, err
	}

	estimated, err := e.RecomputeForWallet(ctx, walletID, progress)
	out.Estimated = estimated
	return out, err
}

func toRequests(txns []model.Transaction) []categorize.Request {
	reqs := make([]categorize.Request, len(txns))
	for i, txn := range txns {
		reqs[i] = categorize.Request{
			ID:          txn.ID,
			Date:        txn.Date,
			Merchant:    txn.MerchantName,
			Description: txn.MerchantName,
			AmountCents: txn.AmountCents,
		}
	}
	return reqs
}
