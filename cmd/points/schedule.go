package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-points-must-flow/internal/cli"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/jobs"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// JobKindScheduled identifies recomputes started by the scheduler.
const JobKindScheduled = "scheduled-recompute"

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Categorize and recompute every wallet on a cron schedule",
		Long: `Run in the foreground and periodically categorize new transactions and
recompute every wallet. The schedule is a standard five-field cron
expression (schedule.cron in the config, POINTS_SCHEDULE_CRON in the
environment, or --cron).`,
		RunE: runSchedule,
	}

	cmd.Flags().String("cron", "", "cron expression (default from config)")
	cmd.Flags().Bool("now", false, "also run once immediately")
	return cmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	spec, _ := cmd.Flags().GetString("cron")
	runNow, _ := cmd.Flags().GetBool("now")
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if spec == "" {
		spec = a.cfg.Schedule.Cron
	}
	if spec == "" {
		return common.NewUserError("No schedule configured: set schedule.cron or pass --cron", nil)
	}

	run := func() {
		handle := a.jobs.Start(ctx, JobKindScheduled, func(ctx context.Context, progress *jobs.Progress) error {
			if err := categorizeWallets(ctx, a, nil); err != nil {
				return err
			}
			_, err := a.engine.RecomputeWallets(ctx, nil, progress.SetFraction)
			return err
		})
		job, err := handle.Wait()
		if err != nil {
			slog.Error("Scheduled recompute failed", "job_id", job.ID, "error", err)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, run); err != nil {
		return common.NewUserError(fmt.Sprintf("Invalid cron expression %q", spec), err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(cli.ClockIcon+" Scheduled recompute: "+spec))
	if runNow {
		run()
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()

	slog.Info("Scheduler stopped")
	return nil
}
