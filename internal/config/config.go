package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential is returned when a required external-service
// credential is absent. It is fatal for a whole pipeline run.
var ErrMissingCredential = errors.New("missing required credential")

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	AI        AI        `mapstructure:"ai"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Sources   Sources   `mapstructure:"sources"`
	Server    Server    `mapstructure:"server"`
	Messaging Messaging `mapstructure:"messaging"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Env        string `mapstructure:"env"`
	DevMode    bool   `mapstructure:"dev_mode"`
	ConfigFile string `mapstructure:"config_file"`
}

// Database holds the content store connection settings
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AI holds generation service configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	Claude ClaudeConfig `mapstructure:"claude"`
	// QualityModel enriches briefs, FastModel enriches secondary content.
	QualityModel string      `mapstructure:"quality_model" validate:"required"`
	FastModel    string      `mapstructure:"fast_model" validate:"required"`
	StoryModel   string      `mapstructure:"story_model" validate:"required"`
	Retry        RetryConfig `mapstructure:"retry"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

// ClaudeConfig holds Anthropic configuration
type ClaudeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

// RetryConfig is the backoff policy applied to transient generation errors.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier" validate:"gte=1"`
}

// Pipeline holds the enrichment job knobs and local schedules
type Pipeline struct {
	Enrich    EnrichJob         `mapstructure:"enrich"`
	Schedules map[string]string `mapstructure:"schedules"`
}

// EnrichJob parameterises the brief/article enrichment engine.
type EnrichJob struct {
	BriefWindow      time.Duration `mapstructure:"brief_window" validate:"gt=0"`
	ArticleWindow    time.Duration `mapstructure:"article_window" validate:"gt=0"`
	BriefBatch       int           `mapstructure:"brief_batch" validate:"gte=1"`
	ArticleBatch     int           `mapstructure:"article_batch" validate:"gte=0"`
	Concurrency      int           `mapstructure:"concurrency" validate:"gte=1,lte=16"`
	GlobalBudget     time.Duration `mapstructure:"global_budget" validate:"gt=0"`
	BriefPhaseBudget time.Duration `mapstructure:"brief_phase_budget" validate:"gt=0"`
	Pacing           time.Duration `mapstructure:"pacing" validate:"gte=0"`
	ContinuityLimit  int           `mapstructure:"continuity_limit" validate:"gte=0"`
}

// Sources holds the domain event pipelines' endpoints and thresholds
type Sources struct {
	AuctionURL                  string        `mapstructure:"auction_url"`
	DiningURL                   string        `mapstructure:"dining_url"`
	ResidencyFeedURL            string        `mapstructure:"residency_feed_url"`
	HubsFile                    string        `mapstructure:"hubs_file"`
	UserAgent                   string        `mapstructure:"user_agent"`
	Timeout                     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	GenerationDelay             time.Duration `mapstructure:"generation_delay" validate:"gte=0"`
	Budget                      time.Duration `mapstructure:"budget" validate:"gt=0"`
	SightingConfidenceThreshold float64       `mapstructure:"sighting_confidence_threshold" validate:"gte=0,lte=1"`
	MegaEstimateThreshold       float64       `mapstructure:"mega_estimate_threshold" validate:"gte=0"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CronSecret   string        `mapstructure:"cron_secret"`
	// TrustCronHeader admits calls carrying the hosting scheduler's
	// identity header. Turn it off for bearer-only deployments.
	TrustCronHeader bool `mapstructure:"trust_cron_header"`
	CORS            CORS `mapstructure:"cors"`
}

// CORS holds cross-origin settings
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Messaging holds operator alert configuration
type Messaging struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Discord DiscordConfig `mapstructure:"discord"`
}

// SlackConfig holds Slack configuration
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
	IconEmoji  string `mapstructure:"icon_emoji"`
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(configFile string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".flaneur")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.SetEnvPrefix("FLANEUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.App.ConfigFile = v.ConfigFileUsed()

	postProcessConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration built only from defaults. Used by tests
// and dry runs.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	postProcessConfig(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.dev_mode", false)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("ai.quality_model", "gemini-2.5-pro")
	v.SetDefault("ai.fast_model", "gemini-2.5-flash")
	v.SetDefault("ai.story_model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.gemini.timeout", "90s")
	v.SetDefault("ai.gemini.max_tokens", 8192)
	v.SetDefault("ai.gemini.temperature", 0.4)
	v.SetDefault("ai.claude.timeout", "90s")
	v.SetDefault("ai.claude.max_tokens", 4096)
	v.SetDefault("ai.retry.max_attempts", 2)
	v.SetDefault("ai.retry.initial_backoff", "2s")
	v.SetDefault("ai.retry.max_backoff", "8s")
	v.SetDefault("ai.retry.multiplier", 2.0)

	v.SetDefault("pipeline.enrich.brief_window", "240h")
	v.SetDefault("pipeline.enrich.article_window", "96h")
	v.SetDefault("pipeline.enrich.brief_batch", 50)
	v.SetDefault("pipeline.enrich.article_batch", 50)
	v.SetDefault("pipeline.enrich.concurrency", 4)
	v.SetDefault("pipeline.enrich.global_budget", "280s")
	v.SetDefault("pipeline.enrich.brief_phase_budget", "200s")
	v.SetDefault("pipeline.enrich.pacing", "1500ms")
	v.SetDefault("pipeline.enrich.continuity_limit", 30)
	v.SetDefault("pipeline.schedules", map[string]string{
		"enrich-briefs":      "*/15 * * * *",
		"auction-calendar":   "0 7 * * 1",
		"alfresco-alerts":    "0 9 * * *",
		"brand-residency":    "0 8 * * *",
		"property-sightings": "*/30 * * * *",
	})

	v.SetDefault("sources.user_agent", "Flaneur/1.0 (+https://readflaneur.com)")
	v.SetDefault("sources.timeout", "20s")
	v.SetDefault("sources.generation_delay", "2s")
	v.SetDefault("sources.budget", "280s")
	v.SetDefault("sources.sighting_confidence_threshold", 0.6)
	v.SetDefault("sources.mega_estimate_threshold", 10_000_000)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.trust_cron_header", true)
	v.SetDefault("server.cors.enabled", false)

	v.SetDefault("messaging.timeout", "10s")
	v.SetDefault("messaging.slack.username", "Flâneur Pipelines")
	v.SetDefault("messaging.slack.icon_emoji", ":newspaper:")
	v.SetDefault("messaging.discord.username", "Flâneur Pipelines")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables maps the conventional variable names used by the
// hosting platform onto config keys.
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "database.url", []string{"DATABASE_URL", "SUPABASE_DB_URL", "POSTGRES_URL"})
	bindEnvKeys(v, "ai.gemini.api_key", []string{"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"})
	bindEnvKeys(v, "ai.claude.api_key", []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"})
	bindEnvKeys(v, "server.cron_secret", []string{"CRON_SECRET"})
	bindEnvKeys(v, "server.trust_cron_header", []string{"TRUST_CRON_HEADER"})
	bindEnvKeys(v, "messaging.slack.webhook_url", []string{"SLACK_WEBHOOK_URL", "SLACK_WEBHOOK"})
	bindEnvKeys(v, "messaging.discord.webhook_url", []string{"DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK"})
	bindEnvKeys(v, "app.dev_mode", []string{"FLANEUR_DEV_MODE"})
	bindEnvKeys(v, "server.port", []string{"PORT"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, key string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(key, value)
			return
		}
	}
}

func postProcessConfig(cfg *Config) {
	if cfg.Sources.HubsFile != "" {
		cfg.Sources.HubsFile = expandPath(cfg.Sources.HubsFile)
	}
	if cfg.App.Env == "development" {
		cfg.App.DevMode = true
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Validate checks struct tags and the cross-field budget rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e := cfg.Pipeline.Enrich
	if e.BriefPhaseBudget > e.GlobalBudget {
		return fmt.Errorf("invalid configuration: pipeline.enrich.brief_phase_budget (%s) exceeds global_budget (%s)",
			e.BriefPhaseBudget, e.GlobalBudget)
	}
	return nil
}

// RequireGeneration reports a configuration error when no generation
// credential is available.
func (c *Config) RequireGeneration() error {
	if c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("%w: Gemini API key (set GEMINI_API_KEY or ai.gemini.api_key)", ErrMissingCredential)
	}
	return nil
}

// RequireStoryGeneration reports a configuration error when the story model
// cannot be reached.
func (c *Config) RequireStoryGeneration() error {
	if !strings.HasPrefix(c.AI.StoryModel, "claude") {
		return c.RequireGeneration()
	}
	if c.AI.Claude.APIKey == "" {
		return fmt.Errorf("%w: Anthropic API key (set ANTHROPIC_API_KEY or ai.claude.api_key)", ErrMissingCredential)
	}
	return nil
}
