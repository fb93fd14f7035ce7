package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"flaneur/internal/persistence/memstore"
)

type stubJob struct {
	name      string
	preflight error
	run       func(ctx context.Context, opts RunOptions) (*Summary, error)
	runs      int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Preflight() error { return j.preflight }

func (j *stubJob) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	j.runs++
	return j.run(ctx, opts)
}

type recordingNotifier struct{ alerts []*Summary }

func (n *recordingNotifier) NotifyRunFailure(_ context.Context, s *Summary) error {
	n.alerts = append(n.alerts, s)
	return nil
}

type recordingRecorder struct{ runs int }

func (r *recordingRecorder) ObserveRun(*Summary) { r.runs++ }

var runnerStart = time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)

func summaryWith(job string, succeeded, failed int) *Summary {
	s := NewSummary(job, runnerStart, CounterArticlesCreated)
	s.AddPhase(PhaseResult{Name: "items", Attempted: succeeded + failed, Succeeded: succeeded, Failed: failed, Stop: StopCompleted})
	s.Finish(runnerStart.Add(time.Second))
	return s
}

func TestRunnerRecordsExecution(t *testing.T) {
	store := memstore.New()
	rec := &recordingRecorder{}
	job := &stubJob{name: "enrich-briefs", run: func(context.Context, RunOptions) (*Summary, error) {
		return summaryWith("enrich-briefs", 3, 0), nil
	}}
	runner := NewRunner(NewRegistry(job), NewExecutionLogger(store.CronExecutions()), WithRecorder(rec))

	sum, err := runner.Run(context.Background(), "enrich-briefs", RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sum.Success() {
		t.Error("expected success")
	}
	execs := store.AllExecutions()
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution row, got %d", len(execs))
	}
	if execs[0].JobName != "enrich-briefs" || execs[0].ItemsProcessed != 3 || !execs[0].Success {
		t.Errorf("unexpected row %+v", execs[0])
	}
	if rec.runs != 1 {
		t.Errorf("recorder saw %d runs", rec.runs)
	}
}

func TestRunnerSkipsExecutionLogForTestRuns(t *testing.T) {
	store := memstore.New()
	job := &stubJob{name: "enrich-briefs", run: func(context.Context, RunOptions) (*Summary, error) {
		return summaryWith("enrich-briefs", 1, 0), nil
	}}
	runner := NewRunner(NewRegistry(job), NewExecutionLogger(store.CronExecutions()))

	if _, err := runner.Run(context.Background(), "enrich-briefs", RunOptions{TestID: "brief-1"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := len(store.AllExecutions()); n != 0 {
		t.Errorf("expected no execution rows, got %d", n)
	}
}

func TestRunnerUnknownJob(t *testing.T) {
	runner := NewRunner(NewRegistry(), nil)
	_, err := runner.Run(context.Background(), "nope", RunOptions{})
	if !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestRunnerPreflightFailureStopsBeforeWork(t *testing.T) {
	store := memstore.New()
	job := &stubJob{name: "auction-calendar", preflight: errors.New("GEMINI_API_KEY is not set")}
	runner := NewRunner(NewRegistry(job), NewExecutionLogger(store.CronExecutions()))

	_, err := runner.Run(context.Background(), "auction-calendar", RunOptions{})
	if err == nil {
		t.Fatal("expected preflight error")
	}
	if job.runs != 0 {
		t.Error("job ran despite failed preflight")
	}
	if n := len(store.AllExecutions()); n != 0 {
		t.Errorf("expected no execution rows, got %d", n)
	}
}

func TestRunnerAbortedRunIsRecordedAndAlerted(t *testing.T) {
	store := memstore.New()
	notifier := &recordingNotifier{}
	job := &stubJob{name: "enrich-briefs", run: func(context.Context, RunOptions) (*Summary, error) {
		return NewSummary("enrich-briefs", runnerStart, ""), errors.New("failed to select briefs: connection refused")
	}}
	runner := NewRunner(NewRegistry(job), NewExecutionLogger(store.CronExecutions()), WithNotifier(notifier))

	sum, err := runner.Run(context.Background(), "enrich-briefs", RunOptions{})
	if err == nil {
		t.Fatal("expected run error")
	}
	if sum == nil || sum.Success() {
		t.Fatal("expected a failed summary")
	}
	if sum.CompletedAt.IsZero() {
		t.Error("summary not finished")
	}
	execs := store.AllExecutions()
	if len(execs) != 1 || execs[0].Success || len(execs[0].Errors) != 1 {
		t.Errorf("unexpected rows %+v", execs)
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(notifier.alerts))
	}
}

func TestRunnerDoesNotAlertPartialSuccess(t *testing.T) {
	notifier := &recordingNotifier{}
	job := &stubJob{name: "enrich-briefs", run: func(context.Context, RunOptions) (*Summary, error) {
		return summaryWith("enrich-briefs", 2, 3), nil
	}}
	runner := NewRunner(NewRegistry(job), nil, WithNotifier(notifier))

	sum, _ := runner.Run(context.Background(), "enrich-briefs", RunOptions{})
	if !sum.Success() || len(notifier.alerts) != 0 {
		t.Errorf("success=%v alerts=%d", sum.Success(), len(notifier.alerts))
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry(&stubJob{name: "b"}, &stubJob{name: "a"})
	r.Register(&stubJob{name: "c"})
	got := r.Names()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Names() = %v", got)
	}
}
