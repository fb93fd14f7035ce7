package handlers

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"flaneur/internal/persistence"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
		Long: `Apply or inspect the embedded Postgres schema migrations.

Applied versions are recorded in schema_migrations; pending files run in
version order, each in its own transaction.

Examples:
  # Apply all pending migrations
  flaneur migrate up

  # Check migration status
  flaneur migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending database migrations.

Each migration runs in its own transaction and is recorded in
schema_migrations.

Example:
  flaneur migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show which migrations have been applied and which are pending.

Example:
  flaneur migrate status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func migrator(ctx context.Context) (*persistence.MigrationManager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return persistence.NewMigrationManager(db), func() { _ = db.Close() }, nil
}

func runMigrateUp(ctx context.Context) error {
	m, closeDB, err := migrator(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	applied, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if applied == 0 {
		fmt.Println("Database schema is up to date")
		return nil
	}
	fmt.Printf("Applied %d migration(s)\n", applied)
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	m, closeDB, err := migrator(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := m.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(status) == 0 {
		fmt.Println("No embedded migrations")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tDESCRIPTION")
	pending := 0
	for _, mig := range status {
		state := "applied"
		if !mig.Applied {
			state = "pending"
			pending++
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, state, mig.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if pending > 0 {
		fmt.Printf("\n%d pending; run 'flaneur migrate up'\n", pending)
	}
	return nil
}
