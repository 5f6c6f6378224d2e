package main

import (
	"fmt"
	"sort"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize uncategorized transactions",
		Long: `Send uncategorized transactions to the categorizer in batches.
When the categorizer is unreachable the local keyword matcher answers
instead, so every transaction ends up with a category.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			walletID, _ := cmd.Flags().GetString("wallet")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := cli.NewInterruptHandler(cmd.ErrOrStderr()).
				HandleInterrupts(cmd.Context(), "Categorization", "points categorize --wallet "+walletID)
			defer cancel()

			report, err := a.engine.CategorizeUncategorized(ctx, walletID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Categorized %d of %d transactions", report.Categorized, report.Total)))
			fmt.Fprintln(out, cli.FormatInfo("Categorizer mode: "+string(report.Mode)))

			sources := sortedKeys(report.BySource)
			rows := make([][]string, 0, len(sources))
			for _, source := range sources {
				count := report.BySource[model.CategorySource(source)]
				rows = append(rows, []string{source, fmt.Sprintf("%d", count), sourceShare(count, report.Categorized)})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, cli.RenderTable([]string{"Source", "Count", "Share"}, rows))
			}
			if report.Failed > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d transactions could not be saved", report.Failed)))
			}
			return nil
		},
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func sourceShare(count, total int) string {
	if total == 0 {
		return cli.FormatPercent(0)
	}
	return cli.FormatPercent(float64(count) / float64(total))
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
