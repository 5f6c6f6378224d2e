package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage wallets, instruments and reward rules",
	}

	cmd.AddCommand(walletListCmd())
	cmd.AddCommand(walletShowCmd())
	cmd.AddCommand(walletAddInstrumentCmd())
	cmd.AddCommand(walletAddRuleCmd())
	return cmd
}

func walletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known wallets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.store.ListWallets(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No wallets yet. Add one with: points wallet add-instrument"))
				return nil
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				instruments, err := a.store.ListInstruments(cmd.Context(), id)
				if err != nil {
					return err
				}
				rows = append(rows, []string{id, fmt.Sprintf("%d", len(instruments))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"Wallet", "Instruments"}, rows))
			return nil
		},
	}
}

func walletShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show WALLET",
		Short: "Show the instruments and rules of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			wallet, err := a.engine.Wallet(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(wallet.Instruments))
			for _, inst := range wallet.Instruments {
				rows = append(rows, []string{
					inst.ID,
					inst.DisplayName(),
					inst.AccountID,
					inst.BaseMultiplier.String() + "x",
					inst.PointValue.String(),
					formatRules(inst.Rules),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Wallet "+wallet.ID))
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
				[]string{"ID", "Name", "Account", "Base", "Point value", "Rules"}, rows))
			return nil
		},
	}
}

func formatRules(rules []model.RewardRule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, fmt.Sprintf("%s %sx", r.Category, r.Multiplier.String()))
	}
	return strings.Join(parts, ", ")
}

func walletAddInstrumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-instrument",
		Short: "Add or replace an instrument",
		Long: `Add a reward-earning card to a wallet. Saving an existing instrument ID
replaces it, including its rules.

Example:
  points wallet add-instrument --wallet me --id gold --name "Amex Gold" \
    --base 1 --point-value 0.02 --account 4111111111111111 --rule Dining=4 --rule Groceries=4`,
		RunE: runAddInstrument,
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	cmd.Flags().String("id", "", "instrument ID (required)")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("account", "", "statement account number used to link imports")
	cmd.Flags().String("base", "1", "base multiplier")
	cmd.Flags().String("point-value", "0.01", "currency value of one point")
	cmd.Flags().StringSlice("rule", nil, "category rule as CATEGORY=MULTIPLIER (repeatable)")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runAddInstrument(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	walletID, _ := flags.GetString("wallet")
	id, _ := flags.GetString("id")
	name, _ := flags.GetString("name")
	account, _ := flags.GetString("account")
	baseStr, _ := flags.GetString("base")
	pointValueStr, _ := flags.GetString("point-value")
	ruleSpecs, _ := flags.GetStringSlice("rule")

	base, err := parseDecimal("base", baseStr)
	if err != nil {
		return err
	}
	pointValue, err := parseDecimal("point-value", pointValueStr)
	if err != nil {
		return err
	}

	rules := make([]model.RewardRule, 0, len(ruleSpecs))
	for _, spec := range ruleSpecs {
		rule, err := parseRule(spec)
		if err != nil {
			return err
		}
		rules = append(rules, rule)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	inst := model.Instrument{
		ID:             id,
		WalletID:       walletID,
		Name:           name,
		AccountID:      account,
		BaseMultiplier: base,
		PointValue:     pointValue,
		Rules:          rules,
	}
	if err := a.engine.SaveInstrument(cmd.Context(), inst); err != nil {
		if common.IsValidation(err) {
			return common.NewUserError("Instrument rejected: "+err.Error(), err)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved %s with %d rules", inst.DisplayName(), len(rules))))
	return nil
}

func walletAddRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-rule CATEGORY=MULTIPLIER",
		Short: "Append a category rule to an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			walletID, _ := cmd.Flags().GetString("wallet")
			instrumentID, _ := cmd.Flags().GetString("instrument")

			rule, err := parseRule(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.engine.AddRewardRule(cmd.Context(), walletID, instrumentID, rule)
			if err != nil {
				if common.IsValidation(err) {
					return common.NewUserError("Rule rejected: "+err.Error(), err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Added %s %sx to %s (rule %s)", saved.Category, saved.Multiplier, instrumentID, saved.ID)))
			return nil
		},
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	cmd.Flags().String("instrument", "", "instrument ID (required)")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("instrument")
	return cmd
}

func parseRule(spec string) (model.RewardRule, error) {
	category, multiplier, ok := strings.Cut(spec, "=")
	if !ok || strings.TrimSpace(category) == "" {
		return model.RewardRule{}, common.NewUserError(
			fmt.Sprintf("Rules look like CATEGORY=MULTIPLIER, got %q", spec), nil)
	}
	m, err := parseDecimal("multiplier", multiplier)
	if err != nil {
		return model.RewardRule{}, err
	}
	return model.RewardRule{Category: strings.TrimSpace(category), Multiplier: m}, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, common.NewUserError(fmt.Sprintf("Invalid %s %q", field, s), err)
	}
	return d, nil
}
