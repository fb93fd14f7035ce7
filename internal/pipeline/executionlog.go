package pipeline

import (
	"context"
	"log/slog"

	"flaneur/internal/core"
	"flaneur/internal/logger"
	"flaneur/internal/persistence"

	"github.com/google/uuid"
)

// ExecutionLogger appends one audit row per run.
type ExecutionLogger struct {
	repo persistence.CronExecutionRepository
	log  *slog.Logger
}

// NewExecutionLogger creates an ExecutionLogger.
func NewExecutionLogger(repo persistence.CronExecutionRepository) *ExecutionLogger {
	return &ExecutionLogger{repo: repo, log: logger.Get()}
}

// Record writes the row. A failed write is logged and never fails the run.
func (l *ExecutionLogger) Record(ctx context.Context, s *Summary) {
	exec := Execution(s)
	if err := l.repo.Create(ctx, &exec); err != nil {
		l.log.Error("Failed to record cron execution", "job", s.Job, "error", err)
	}
}

// Execution converts a finished summary into its audit row, keeping the
// full error list.
func Execution(s *Summary) core.CronExecution {
	processed, _, failed := s.Totals()
	return core.CronExecution{
		ID:             uuid.NewString(),
		JobName:        s.Job,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		Success:        s.Success(),
		ItemsProcessed: processed,
		ItemsCreated:   s.Created(),
		ItemsFailed:    failed,
		Errors:         s.Errors(),
		ResponseData:   s.Response(),
	}
}
