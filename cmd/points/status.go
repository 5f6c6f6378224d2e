package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/storage"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database and categorizer health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}

			status, err := a.store.LatestCategorizerStatus(cmd.Context())
			if err != nil {
				return err
			}

			endpoint := a.cfg.Categorizer.Endpoint
			if endpoint == "" {
				endpoint = "(none, local matcher only)"
			}

			lines := []string{
				fmt.Sprintf("Database:        %s", a.store.Path()),
				fmt.Sprintf("Schema version:  %d/%d", version, storage.ExpectedSchemaVersion),
				fmt.Sprintf("Categorizer:     %s", endpoint),
				fmt.Sprintf("Last mode:       %s", status.Mode),
				fmt.Sprintf("Last success:    %s", formatTimePtr(status.LastSuccess)),
				fmt.Sprintf("Last failure:    %s", formatTimePtr(status.LastFailure)),
			}
			if status.LastError != "" {
				lines = append(lines, fmt.Sprintf("Last error:      %s", status.LastError))
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Status", strings.Join(lines, "\n")))
			return nil
		},
	}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
