package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"flaneur/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// MigrationManager applies embedded schema migrations
type MigrationManager struct {
	db  *PostgresDB
	fs  fs.FS
	log *slog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *PostgresDB) *MigrationManager {
	return &MigrationManager{db: db, fs: migrationFiles, log: logger.Get()}
}

// Migrate runs all pending migrations, each in its own transaction
func (m *MigrationManager) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	available, err := LoadMigrations(m.fs)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	pending := PendingMigrations(available, applied)
	if len(pending) == 0 {
		m.log.Info("Schema is up to date")
		return 0, nil
	}

	for _, migration := range pending {
		if err := m.apply(ctx, migration); err != nil {
			return 0, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	m.log.Info("Migration completed", "applied", len(pending))
	return len(pending), nil
}

// Status lists every embedded migration and whether it has run
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	available, err := LoadMigrations(m.fs)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(available))
	for _, mig := range available {
		status = append(status, MigrationStatus{
			Version:     mig.Version,
			Description: mig.Description,
			Applied:     applied[mig.Version],
		})
	}
	return status, nil
}

func (m *MigrationManager) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(ctx context.Context, migration Migration) error {
	m.log.Info("Applying migration", "version", migration.Version, "description", migration.Description)

	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	q, args, err := psql.Insert("schema_migrations").
		Columns("version", "description").
		Values(migration.Version, migration.Description).
		Suffix("ON CONFLICT (version) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads NNN_description.sql files from the migrations
// directory of fsys, sorted by version. Misnamed files are skipped.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, ok := parseMigrationName(entry.Name())
		if !ok {
			logger.Warn("Skipping migration file with invalid name", "file", entry.Name())
			continue
		}
		content, err := fs.ReadFile(fsys, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Version: version, Description: description, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// PendingMigrations returns the migrations whose version is not applied.
func PendingMigrations(available []Migration, applied map[int]bool) []Migration {
	var pending []Migration
	for _, mig := range available {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending
}

// parseMigrationName splits "001_initial_schema.sql" into (1, "initial schema").
func parseMigrationName(name string) (int, string, bool) {
	parts := strings.SplitN(strings.TrimSuffix(name, ".sql"), "_", 2)
	if len(parts) < 2 {
		return 0, "", false
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	return version, strings.ReplaceAll(parts[1], "_", " "), true
}
