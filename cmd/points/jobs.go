package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/spf13/cobra"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs [JOB_ID]",
		Short: "Show background job records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var list []model.Job
			if len(args) == 1 {
				job, err := a.store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				list = []model.Job{*job}
			} else {
				list, err = a.store.ListJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No jobs recorded"))
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, job := range list {
				finished := "-"
				if job.FinishedAt != nil {
					finished = job.FinishedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					job.ID,
					job.Kind,
					string(job.Status),
					fmt.Sprintf("%d%%", job.Progress),
					job.StartedAt.Local().Format(time.DateTime),
					finished,
					job.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
				[]string{"ID", "Kind", "Status", "Progress", "Started", "Finished", "Error"}, rows))
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "number of jobs to show")
	return cmd
}
