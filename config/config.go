package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

// Config struct to hold the configuration settings
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	NATS          NATSConfig          `yaml:"nats"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration. An empty URL disables event publishing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// RankingConfig holds the weekly evaluation settings.
type RankingConfig struct {
	Timezone             string         `yaml:"timezone"`
	WeekLength           time.Duration  `yaml:"week_length"`
	Retention            time.Duration  `yaml:"retention"`
	MaxParallelTiers     int            `yaml:"max_parallel_tiers"`
	EvaluationSchedule   ScheduleConfig `yaml:"evaluation_schedule"`
	ArchiveInterval      time.Duration  `yaml:"archive_interval"`
	JobTimeout           time.Duration  `yaml:"job_timeout"`
	JobMaxAttempts       int            `yaml:"job_max_attempts"`
	Retry                RetryConfig    `yaml:"retry"`
	PublishRatePerSecond float64        `yaml:"publish_rate_per_second"`
	Queue                QueueConfig    `yaml:"queue"`
}

// ScheduleConfig is the weekly wall-clock time evaluation runs at.
type ScheduleConfig struct {
	Weekday string `yaml:"weekday"`
	Hour    int    `yaml:"hour"`
	Minute  int    `yaml:"minute"`
}

// RetryConfig bounds the transient-error retry of a tier transaction.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxTries        uint          `yaml:"max_tries"`
}

// QueueConfig holds River settings.
type QueueConfig struct {
	Name       string `yaml:"name"`
	MaxWorkers int    `yaml:"max_workers"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	ServiceName     string  `yaml:"service_name"`
	Environment     string  `yaml:"environment"`
	MetricsAddress  string  `yaml:"metrics_address"`
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	OTLPInsecure    bool    `yaml:"otlp_insecure"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// LoadConfig loads the configuration from a YAML file. A .env file in the
// working directory is loaded first when present. Environment variables
// override the file, and a missing file means environment only.
func LoadConfig(filename string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env only
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	r := &c.Ranking
	if r.Timezone == "" {
		r.Timezone = "Asia/Seoul"
	}
	if r.WeekLength == 0 {
		r.WeekLength = 7 * 24 * time.Hour
	}
	if r.Retention == 0 {
		r.Retention = 28 * 24 * time.Hour
	}
	if r.MaxParallelTiers == 0 {
		r.MaxParallelTiers = 3
	}
	if r.EvaluationSchedule.Weekday == "" {
		r.EvaluationSchedule.Weekday = "monday"
	}
	if r.ArchiveInterval == 0 {
		r.ArchiveInterval = 6 * time.Hour
	}
	if r.JobTimeout == 0 {
		r.JobTimeout = 30 * time.Minute
	}
	if r.JobMaxAttempts == 0 {
		r.JobMaxAttempts = 10
	}
	if r.Retry.InitialInterval == 0 {
		r.Retry.InitialInterval = 200 * time.Millisecond
	}
	if r.Retry.MaxInterval == 0 {
		r.Retry.MaxInterval = 5 * time.Second
	}
	if r.Retry.MaxTries == 0 {
		r.Retry.MaxTries = 5
	}
	if r.PublishRatePerSecond == 0 {
		r.PublishRatePerSecond = 200
	}
	if r.Queue.Name == "" {
		r.Queue.Name = "ranking"
	}
	if r.Queue.MaxWorkers == 0 {
		r.Queue.MaxWorkers = 2
	}

	o := &c.Observability
	if o.ServiceName == "" {
		o.ServiceName = "ranking-engine"
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "json"
	}
	if o.TraceSampleRate == 0 {
		o.TraceSampleRate = 0.1
	}
}

// --- OVERRIDE WITH ENV VARS IF PRESENT ---
func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("RANKING_TIMEZONE"); v != "" {
		c.Ranking.Timezone = v
	}
	if err := envDuration("RANKING_WEEK_LENGTH", &c.Ranking.WeekLength); err != nil {
		return err
	}
	if err := envDuration("RANKING_RETENTION", &c.Ranking.Retention); err != nil {
		return err
	}
	if err := envDuration("RANKING_JOB_TIMEOUT", &c.Ranking.JobTimeout); err != nil {
		return err
	}
	if v := os.Getenv("RANKING_MAX_PARALLEL_TIERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RANKING_MAX_PARALLEL_TIERS value: %v", err)
		}
		c.Ranking.MaxParallelTiers = n
	}
	if v := os.Getenv("RANKING_EVALUATION_WEEKDAY"); v != "" {
		c.Ranking.EvaluationSchedule.Weekday = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		c.Observability.MetricsAddress = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Observability.LogFormat = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		c.Observability.OTLPEndpoint = v
	}
	if v := os.Getenv("OTLP_INSECURE"); v != "" {
		c.Observability.OTLPInsecure = v == "true"
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Observability.Environment = v
	}
	if v := os.Getenv("TRACE_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TRACE_SAMPLE_RATE value: %v", err)
		}
		c.Observability.TraceSampleRate = f
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value: %v", key, err)
	}
	*dst = d
	return nil
}

// Validate checks ranges that would make the scheduler misbehave.
func (c *Config) Validate() error {
	r := c.Ranking
	if r.MaxParallelTiers < 1 {
		return fmt.Errorf("ranking.max_parallel_tiers must be at least 1, got %d", r.MaxParallelTiers)
	}
	if r.WeekLength <= 0 {
		return fmt.Errorf("ranking.week_length must be positive")
	}
	if r.Retention < 0 {
		return fmt.Errorf("ranking.retention must not be negative")
	}
	if _, err := ParseWeekday(r.EvaluationSchedule.Weekday); err != nil {
		return err
	}
	if r.EvaluationSchedule.Hour < 0 || r.EvaluationSchedule.Hour > 23 {
		return fmt.Errorf("ranking.evaluation_schedule.hour out of range: %d", r.EvaluationSchedule.Hour)
	}
	if r.EvaluationSchedule.Minute < 0 || r.EvaluationSchedule.Minute > 59 {
		return fmt.Errorf("ranking.evaluation_schedule.minute out of range: %d", r.EvaluationSchedule.Minute)
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("ranking.timezone: %w", err)
	}
	return nil
}

// Location resolves the ranking timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ranking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ToLogConfig maps the observability section onto the logger settings.
func ToLogConfig(appCfg *Config) observability.LogConfig {
	return observability.LogConfig{
		Level:  appCfg.Observability.LogLevel,
		Format: appCfg.Observability.LogFormat,
	}
}

// ToTracingConfig maps the observability section onto the tracer settings.
func ToTracingConfig(appCfg *Config) observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName: appCfg.Observability.ServiceName,
		Endpoint:    appCfg.Observability.OTLPEndpoint,
		SampleRate:  appCfg.Observability.TraceSampleRate,
		Insecure:    appCfg.Observability.OTLPInsecure,
	}
}
