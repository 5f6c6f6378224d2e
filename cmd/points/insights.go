package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/engine"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/opportunity"
	"github.com/Veraticus/the-points-must-flow/internal/recommend"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func opportunitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "Rank the rewards you missed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			walletID, _ := flags.GetString("wallet")
			groupByStr, _ := flags.GetString("group-by")
			top, _ := flags.GetInt("top")
			days, _ := flags.GetInt("days")

			groupBy, err := opportunity.ParseGroupBy(groupByStr)
			if err != nil {
				return common.NewUserError(err.Error(), err)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			query := engine.OpportunityQuery{GroupBy: groupBy, TopK: top}
			if flags.Changed("days") {
				window := model.LastDays(time.Now(), days)
				query.Window = &window
			}

			summary, err := a.engine.GetTopOpportunities(cmd.Context(), walletID, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summary.Opportunities) == 0 {
				fmt.Fprintln(out, cli.FormatSuccess("Nothing missed: every transaction used the best card"))
				return nil
			}

			rows := make([][]string, 0, len(summary.Opportunities))
			for _, o := range summary.Opportunities {
				rows = append(rows, []string{
					o.Key,
					o.Category,
					cli.FormatCents(o.TotalMissedCents),
					fmt.Sprintf("%d", o.TransactionCount),
					o.RecommendedInstrumentID,
					strings.Join(o.SampleMerchants, ", "),
				})
			}
			fmt.Fprintln(out, cli.FormatTitle("Missed opportunities"))
			fmt.Fprintln(out, cli.RenderTable(
				[]string{cases.Title(language.English).String(string(groupBy)), "Category", "Missed", "Txns", "Use instead", "Merchants"}, rows))
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Total missed: %s over %d transactions",
				cli.FormatCents(summary.TotalMissedCents), summary.Considered)))

			if len(summary.Trend) > 1 {
				trend := make([][]string, 0, len(summary.Trend))
				for _, m := range summary.Trend {
					trend = append(trend, []string{m.Month, cli.FormatCents(m.MissedCents), fmt.Sprintf("%d", m.Count)})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"Month", "Missed", "Txns"}, trend))
			}
			return nil
		},
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	cmd.Flags().String("group-by", string(opportunity.GroupByCategory), "category, merchant or month")
	cmd.Flags().Int("top", 0, "number of groups to show (default from config)")
	cmd.Flags().Int("days", 0, "look back this many days, 0 for all history (default from config)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Detect subscriptions and other recurring charges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			walletID, _ := cmd.Flags().GetString("wallet")
			months, _ := cmd.Flags().GetInt("months")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			subs, err := a.engine.GetRecurring(cmd.Context(), walletID, months)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No recurring charges found"))
				return nil
			}

			rows := make([][]string, 0, len(subs))
			for _, s := range subs {
				rows = append(rows, []string{
					s.Merchant,
					string(s.Frequency),
					cli.FormatCents(s.AverageAmountCents),
					s.LastPaid.Format("2006-01-02"),
					s.NextDue.Format("2006-01-02"),
					s.Category,
					fmt.Sprintf("%d", s.Count),
				})
			}
			fmt.Fprintln(out, cli.FormatTitle("Recurring charges"))
			fmt.Fprintln(out, cli.RenderTable(
				[]string{"Merchant", "Frequency", "Average", "Last paid", "Next due", "Category", "Charges"}, rows))
			return nil
		},
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	cmd.Flags().Int("months", 0, "look back this many months (default from config)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func bestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "best CATEGORY",
		Short: "Pick the best card for a purchase category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			walletID, _ := cmd.Flags().GetString("wallet")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec := a.engine.RecommendBest(cmd.Context(), walletID, args[0])
			out := cmd.OutOrStdout()

			if rec.Status == recommend.StatusUnavailable {
				fmt.Fprintln(out, cli.FormatWarning("Recommendation unavailable: "+rec.Reason))
				return nil
			}
			if rec.Owned != nil {
				rate := rec.Owned.ValueRate.Shift(2).StringFixed(1)
				fmt.Fprintln(out, cli.RenderBox("Use "+rec.Owned.Name,
					fmt.Sprintf("%s\n%sx points, about %s%% back", rec.Owned.Reason, rec.Owned.Multiplier, rate)))
			}
			if rec.Suggested != nil {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Consider %s: %s (%s)",
					rec.Suggested.Card, rec.Suggested.Reward, rec.Suggested.Reason)))
			}
			return nil
		},
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}
