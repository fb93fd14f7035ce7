package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSummarySuccessRule(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		fatal     error
		want      bool
	}{
		{"nothing to do", 0, 0, nil, true},
		{"all succeeded", 3, 0, nil, true},
		{"partial", 1, 4, nil, true},
		{"all failed", 0, 2, nil, false},
		{"aborted", 2, 0, errors.New("db down"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := summaryWith("job", tt.succeeded, tt.failed)
			if tt.fatal != nil {
				s.Fail(tt.fatal)
			}
			if got := s.Success(); got != tt.want {
				t.Errorf("Success() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummaryResponseBoundsErrors(t *testing.T) {
	s := NewSummary("enrich-briefs", runnerStart, CounterArticlesCreated)
	items := make([]ItemError, 25)
	for i := range items {
		items[i] = ItemError{ID: fmt.Sprintf("b%d", i), Err: errors.New("boom")}
	}
	s.AddPhase(PhaseResult{Name: PhaseBriefs, Attempted: 25, Failed: 25, Errors: items})
	s.Finish(runnerStart.Add(1500 * time.Millisecond))

	resp := s.Response()
	if got := len(resp["errors"].([]string)); got != MaxReportedErrors {
		t.Errorf("reported %d errors, want %d", got, MaxReportedErrors)
	}
	if resp["error_count"] != 25 {
		t.Errorf("error_count = %v", resp["error_count"])
	}
	if resp["elapsed_ms"] != int64(1500) {
		t.Errorf("elapsed_ms = %v", resp["elapsed_ms"])
	}
	if len(Execution(s).Errors) != 25 {
		t.Error("execution row should keep every error")
	}
	if s.Errors()[0] != "briefs b0: boom" {
		t.Errorf("first error = %q", s.Errors()[0])
	}
}

func TestSummaryJSONFlattensCounters(t *testing.T) {
	s := NewSummary("enrich-briefs", runnerStart, CounterArticlesCreated)
	s.TestID = "brief-1"
	s.Add(CounterBriefsEnriched, 2)
	s.Add(CounterArticlesCreated, 1)
	s.AddPhase(PhaseResult{Name: PhaseBriefs, Attempted: 4, Succeeded: 2, Remaining: 3, Stop: StopPhaseBudget})
	s.Finish(runnerStart.Add(time.Second))

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for key, want := range map[string]any{
		"job":                 "enrich-briefs",
		"test_id":             "brief-1",
		"briefs_enriched":     float64(2),
		"articles_created":    float64(1),
		"processed":           float64(4),
		"skipped_time_budget": true,
		"quota_exhausted":     false,
	} {
		if got[key] != want {
			t.Errorf("%s = %v, want %v", key, got[key], want)
		}
	}
	phase := got["phases"].(map[string]any)[PhaseBriefs].(map[string]any)
	if phase["stopped"] != "phase_budget" || phase["remaining"] != float64(3) {
		t.Errorf("phase = %v", phase)
	}
	if s.Created() != 1 {
		t.Errorf("Created() = %d", s.Created())
	}
}
