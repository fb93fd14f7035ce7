package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flaneur/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command for executing one pipeline by hand
func NewRunCmd() *cobra.Command {
	var (
		testID string
		batch  int
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "run [job]",
		Short: "Run one pipeline job and print its summary",
		Long: `Run one pipeline job in the foreground and print the JSON summary.

Use --test-id to process exactly one brief, article or candidate; such runs
are not written to the execution log.

Examples:
  # List jobs
  flaneur run --list

  # Enrich briefs and articles
  flaneur run enrich-briefs

  # Enrich a single brief
  flaneur run enrich-briefs --test-id 2b1f...

  # Auction calendar with a smaller batch
  flaneur run auction-calendar --batch 3`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if list {
				for _, name := range a.runner.Registry().Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			sum, err := a.runner.Run(ctx, args[0], pipeline.RunOptions{TestID: testID, Batch: batch})
			if sum != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(sum); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				return err
			}
			if !sum.Success() {
				return fmt.Errorf("job %s finished with failures", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&testID, "test-id", "", "process exactly this item")
	cmd.Flags().IntVar(&batch, "batch", 0, "override the job's batch size")
	cmd.Flags().BoolVar(&list, "list", false, "list registered jobs")

	return cmd
}
