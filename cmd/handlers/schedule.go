package handlers

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"flaneur/internal/scheduler"

	"github.com/spf13/cobra"
)

// NewScheduleCmd creates the schedule command for running jobs on cron
func NewScheduleCmd() *cobra.Command {
	var timezone string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run every pipeline on its configured cron schedule",
		Long: `Run the pipelines in-process on the cron expressions under
pipeline.schedules. Jobs without a schedule are not run. A tick that
arrives while the same job is still running is skipped.

Example:
  flaneur schedule --timezone America/New_York`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(a.runner, loc)
			jobs := make([]string, 0, len(a.cfg.Pipeline.Schedules))
			for job := range a.cfg.Pipeline.Schedules {
				jobs = append(jobs, job)
			}
			sort.Strings(jobs)
			for _, job := range jobs {
				if _, ok := a.runner.Registry().Get(job); !ok {
					return fmt.Errorf("schedule names unknown job %q", job)
				}
				if err := sched.Add(job, a.cfg.Pipeline.Schedules[job]); err != nil {
					return err
				}
			}
			if err := sched.Start(); err != nil {
				return err
			}
			for _, e := range sched.Entries() {
				a.log.Info("Scheduled job", "job", e.Job, "next", e.Next)
			}

			<-ctx.Done()
			a.log.Info("Stopping scheduler")
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "time zone the cron expressions are evaluated in")

	return cmd
}
