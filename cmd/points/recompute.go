package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/engine"
	"github.com/Veraticus/the-points-must-flow/internal/jobs"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// JobKindRecompute identifies recompute jobs in the job table.
const JobKindRecompute = "recompute"

func recomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute reward estimations",
		Long: `Rewrite the earned, best and missed values of every transaction from the
current wallet snapshot. Running it again on unchanged data changes nothing.

Without --wallet every wallet is recomputed in parallel.`,
		RunE: runRecompute,
	}

	cmd.Flags().StringSlice("wallet", nil, "wallet IDs (default: all)")
	cmd.Flags().Bool("categorize", false, "categorize uncategorized transactions first")
	cmd.Flags().Bool("no-progress", false, "hide the progress bar")
	return cmd
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	walletIDs, _ := cmd.Flags().GetStringSlice("wallet")
	categorizeFirst, _ := cmd.Flags().GetBool("categorize")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := cli.NewInterruptHandler(cmd.ErrOrStderr()).
		HandleInterrupts(cmd.Context(), "Recompute", "points recompute")
	defer cancel()

	var bar *progressbar.ProgressBar
	if !noProgress {
		bar = newProgressBar(cmd.ErrOrStderr(), "Estimating transactions...")
	}

	var reports []engine.BatchReport
	handle := a.jobs.Start(ctx, JobKindRecompute, func(ctx context.Context, progress *jobs.Progress) error {
		onProgress := func(done, total int) {
			progress.SetFraction(done, total)
			if bar != nil {
				bar.ChangeMax(total)
				if err := bar.Set(done); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
		}

		if categorizeFirst {
			if err := categorizeWallets(ctx, a, walletIDs); err != nil {
				return err
			}
		}

		var err error
		reports, err = a.engine.RecomputeWallets(ctx, walletIDs, onProgress)
		return err
	})

	job, err := handle.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	printReports(cmd.OutOrStdout(), reports)
	if err != nil {
		return fmt.Errorf("recompute job %s %s: %w", job.ID, job.Status, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Recompute job "+job.ID+" completed"))
	return nil
}

func categorizeWallets(ctx context.Context, a *app, walletIDs []string) error {
	if len(walletIDs) == 0 {
		ids, err := a.store.ListWallets(ctx)
		if err != nil {
			return err
		}
		walletIDs = ids
	}
	for _, id := range walletIDs {
		report, err := a.engine.CategorizeUncategorized(ctx, id)
		if err != nil {
			return err
		}
		slog.Info("Categorized wallet",
			"wallet_id", id,
			"categorized", report.Categorized,
			"mode", report.Mode)
	}
	return nil
}

func printReports(w io.Writer, reports []engine.BatchReport) {
	if len(reports) == 0 {
		return
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		status := cli.SuccessIcon
		if r.Err != nil {
			status = cli.ErrorIcon + " " + r.Err.Error()
		}
		rows = append(rows, []string{
			r.WalletID,
			fmt.Sprintf("%d", r.Total),
			fmt.Sprintf("%d", r.Estimated),
			fmt.Sprintf("%d", r.Unestimated),
			fmt.Sprintf("%d", r.Skipped),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("%d", r.Violations),
			status,
		})
	}
	fmt.Fprintln(w, cli.RenderTable(
		[]string{"Wallet", "Total", "Estimated", "Unestimated", "Unchanged", "Failed", "Clamped", "Status"}, rows))
}

func newProgressBar(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
