package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flaneur/internal/pipeline"
)

type blockingRunner struct {
	mu      sync.Mutex
	calls   []string
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, name string, _ pipeline.RunOptions) (*pipeline.Summary, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
		<-r.release
	}
	if name == "broken" {
		return nil, errors.New("preflight failed")
	}
	sum := pipeline.NewSummary(name, time.Now(), "")
	sum.Finish(time.Now())
	return sum, nil
}

func TestAddValidatesSpec(t *testing.T) {
	s := New(&blockingRunner{}, nil)
	if err := s.Add("enrich-briefs", "*/15 * * * *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("enrich-briefs", "0 * * * *"); err == nil {
		t.Error("duplicate job accepted")
	}
	if err := s.Add("auction-calendar", "every tuesday"); err == nil {
		t.Error("invalid schedule accepted")
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Job != "enrich-briefs" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s := New(r, time.UTC)

	done := make(chan bool)
	go func() { done <- s.Trigger("enrich-briefs") }()
	<-r.started

	if s.Trigger("enrich-briefs") {
		t.Error("overlapping run was not skipped")
	}
	close(r.release)
	if !<-done {
		t.Error("first run reported as skipped")
	}

	r.started = nil
	if !s.Trigger("enrich-briefs") {
		t.Error("run after completion was skipped")
	}
	if !s.Trigger("broken") {
		t.Error("failed run reported as skipped")
	}
	if len(r.calls) != 3 {
		t.Errorf("calls = %v, want 3", r.calls)
	}
}

func TestStartStop(t *testing.T) {
	s := New(&blockingRunner{}, time.UTC)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}
	s.Stop()
	s.Stop()
}
