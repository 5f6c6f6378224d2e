package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/ofx"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import card transactions from OFX or QFX (Quicken) statement files.

Statement accounts are linked to instruments by their account number
(see wallet add-instrument --account). Transactions from unknown
accounts are kept but stay unestimated until linked.

Examples:
  points import --wallet me ~/Downloads/amex_jan_2024.qfx
  points import --wallet me ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("wallet", "", "wallet ID (required)")
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	walletID, _ := cmd.Flags().GetString("wallet")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	parser := ofx.NewParser()
	instruments := make(map[string]*string) // account id -> instrument id
	var txns []model.Transaction
	unlinked := 0

	for _, path := range files {
		entries, err := parseOFXFile(cmd, parser, path)
		if err != nil {
			slog.Error("Failed to parse OFX file", "file", path, "error", err)
			continue
		}

		for _, entry := range entries {
			instrumentID, seen := instruments[entry.AccountID]
			if !seen {
				inst, err := a.store.GetInstrumentByAccount(ctx, entry.AccountID)
				switch {
				case errors.Is(err, common.ErrNotFound):
					slog.Warn("No instrument linked to account", "account", entry.AccountID)
				case err != nil:
					return err
				case inst.WalletID != walletID:
					slog.Warn("Account belongs to another wallet",
						"account", entry.AccountID,
						"wallet_id", inst.WalletID)
				default:
					instrumentID = &inst.ID
				}
				instruments[entry.AccountID] = instrumentID
			}
			if instrumentID == nil {
				unlinked++
			}
			txns = append(txns, entry.Transaction(walletID, instrumentID))
		}
	}

	out := cmd.OutOrStdout()
	if len(txns) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No transactions found"))
		return nil
	}
	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions parsed, %d unlinked", len(txns), unlinked)))
		return nil
	}

	inserted, err := a.store.SaveTransactions(ctx, txns)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions (%d duplicates skipped)", inserted, len(txns)-inserted)))
	if unlinked > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d transactions have no linked instrument and will not be estimated", unlinked)))
	}
	return nil
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]ofx.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := parser.ParseFile(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	slog.Info("Processed file", "file", filepath.Base(path), "entries", len(entries))
	return entries, nil
}

// expandFiles resolves glob patterns, keeping literal paths that exist.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}
	if len(files) == 0 {
		return nil, common.NewUserError("No files found to import", nil)
	}
	return files, nil
}
