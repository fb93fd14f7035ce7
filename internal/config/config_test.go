package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flaneur.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: production\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	e := cfg.Pipeline.Enrich
	if e.GlobalBudget != 280*time.Second {
		t.Errorf("GlobalBudget = %s, want 280s", e.GlobalBudget)
	}
	if e.BriefWindow != 10*24*time.Hour || e.ArticleWindow != 4*24*time.Hour {
		t.Errorf("unexpected windows: briefs=%s articles=%s", e.BriefWindow, e.ArticleWindow)
	}
	if e.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", e.Concurrency)
	}
	if cfg.Sources.SightingConfidenceThreshold != 0.6 {
		t.Errorf("SightingConfidenceThreshold = %v, want 0.6", cfg.Sources.SightingConfidenceThreshold)
	}
	if !cfg.Server.TrustCronHeader {
		t.Error("TrustCronHeader should default to true")
	}
	if cfg.App.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.App.ConfigFile, path)
	}
}

func TestLoadFileOverridesAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  enrich:
    brief_batch: 5
    concurrency: 2
sources:
  sighting_confidence_threshold: 0.75
`)
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TRUST_CRON_HEADER", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.Enrich.BriefBatch != 5 || cfg.Pipeline.Enrich.Concurrency != 2 {
		t.Errorf("file overrides not applied: %+v", cfg.Pipeline.Enrich)
	}
	if cfg.Sources.SightingConfidenceThreshold != 0.75 {
		t.Errorf("threshold = %v, want 0.75", cfg.Sources.SightingConfidenceThreshold)
	}
	if cfg.Server.CronSecret != "s3cret" {
		t.Errorf("CronSecret = %q", cfg.Server.CronSecret)
	}
	if cfg.Server.TrustCronHeader {
		t.Error("TRUST_CRON_HEADER=false not applied")
	}
	if err := cfg.RequireGeneration(); err != nil {
		t.Errorf("RequireGeneration with key set: %v", err)
	}
}

func TestValidateRejectsPhaseBudgetAboveGlobal(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Enrich.BriefPhaseBudget = 400 * time.Second

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "brief_phase_budget") {
		t.Fatalf("expected phase budget error, got %v", err)
	}
}

func TestValidateRejectsBadConcurrency(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Enrich.Concurrency = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for zero concurrency")
	}
}

func TestRequireGenerationMissingKey(t *testing.T) {
	cfg := Default()
	cfg.AI.Gemini.APIKey = ""

	if err := cfg.RequireGeneration(); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	cfg.AI.Claude.APIKey = ""
	if err := cfg.RequireStoryGeneration(); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for story model, got %v", err)
	}

	cfg.AI.Claude.APIKey = "anthropic"
	if err := cfg.RequireStoryGeneration(); err != nil {
		t.Fatalf("claude story model with key should pass, got %v", err)
	}
}
