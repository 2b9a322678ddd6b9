package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SupportedVersion is the config file format this build understands.
const SupportedVersion = "1"

// Default values applied when fields are absent from the config file.
const (
	DefaultAgentID         = "driftguard-agent"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultStorageBackend  = "sqlite"
	DefaultStoragePath     = "./driftguard.db"
	DefaultSourceType      = "sql"
	DefaultDialect         = "postgres"
	DefaultSchedule        = "*/15 * * * *"
	DefaultFreshnessFactor = 2.0
	DefaultDeviationFactor = 3.0
	DefaultCooldownMinutes = 60
	DefaultWebhookTimeout  = 10
	DefaultRetentionDays   = 30
	DefaultMinSnapshots    = 10
	DefaultBaselineWindow  = 20
	DefaultBaselineMaxAge  = 30
)

// Config is the top-level configuration tree.
// Fields map 1:1 to driftguard.yaml.
type Config struct {
	// Version is the config format version; must be "1".
	Version string `yaml:"version"`

	Agent     AgentConfig     `yaml:"agent"`
	Storage   StorageConfig   `yaml:"storage"`
	Sources   []Source        `yaml:"sources"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Retention RetentionConfig `yaml:"retention"`
	Baseline  BaselineConfig  `yaml:"baseline"`
}

// AgentConfig holds identity and process-level settings.
type AgentConfig struct {
	// ID identifies this agent in webhook payloads.
	ID string `yaml:"id"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is one of: text | json.
	LogFormat string `yaml:"log_format"`

	// HealthPort serves /healthz and /metrics in daemon mode. 0 disables it.
	HealthPort int `yaml:"health_port"`
}

// StorageConfig configures the local state store.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite.
	Backend string `yaml:"backend"`

	// Path is the filesystem path of the SQLite database file.
	Path string `yaml:"path"`
}

// Source describes one monitored data source.
type Source struct {
	// Name is a unique, human-readable identifier; it keys all stored history.
	Name string `yaml:"name"`

	// Type is the connector kind: sql | http.
	Type string `yaml:"type"`

	// Dialect selects the SQL driver: postgres | postgresql | mysql |
	// sqlite | clickhouse. Ignored for http sources.
	Dialect string `yaml:"dialect"`

	// Connection is the DSN or URL. Use ${VAR} references for credentials;
	// literal user:password values are rejected at load time.
	Connection string `yaml:"connection"`

	// Query must return one row whose columns include a row count
	// (row_count, count, or *count*) and optionally a latest timestamp.
	// Required for sql sources.
	Query string `yaml:"query"`

	// Schedule is a standard 5-field cron expression.
	Schedule string `yaml:"schedule"`

	Freshness FreshnessConfig `yaml:"freshness"`
	Volume    VolumeConfig    `yaml:"volume"`

	// SchemaDrift toggles result-schema comparison. Unset means enabled.
	SchemaDrift *bool `yaml:"schema_drift"`

	// Enabled removes the source from checks when false. Unset means enabled.
	Enabled *bool `yaml:"enabled"`
}

// SchemaDriftEnabled reports whether schema comparison runs for this source.
func (s Source) SchemaDriftEnabled() bool { return s.SchemaDrift == nil || *s.SchemaDrift }

// IsEnabled reports whether the source participates in checks.
func (s Source) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// FreshnessConfig holds staleness thresholds for one source.
type FreshnessConfig struct {
	// MaxAgeHours is the hard limit on the age of latest_timestamp.
	// Unset disables the check.
	MaxAgeHours *float64 `yaml:"max_age_hours"`

	// Factor multiplies the learned collection interval to form the
	// collection-gap threshold.
	Factor float64 `yaml:"factor"`
}

// VolumeConfig holds row-count thresholds for one source.
type VolumeConfig struct {
	// MinRowCount is an absolute floor on row_count. Unset disables the check.
	MinRowCount *int64 `yaml:"min_row_count"`

	// DeviationFactor is the z-score threshold for volume anomalies.
	DeviationFactor float64 `yaml:"deviation_factor"`
}

// AlertingConfig holds alert suppression settings and delivery targets.
type AlertingConfig struct {
	// CooldownMinutes suppresses repeat dispatches per (source, webhook)
	// pair after a successful delivery. 0 disables the cooldown.
	CooldownMinutes int `yaml:"cooldown_minutes"`

	Webhooks []Webhook `yaml:"webhooks"`
}

// Cooldown returns the configured cooldown as a duration.
func (a AlertingConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// Webhook defines one delivery target.
type Webhook struct {
	// Name identifies the target in logs and alert state.
	Name string `yaml:"name"`

	// URL is the endpoint POSTed to. ${VAR} references are resolved at
	// dispatch time.
	URL string `yaml:"url"`

	// Secret signs payload bodies with HMAC-SHA256 when set. ${VAR}
	// references are resolved at dispatch time.
	Secret string `yaml:"secret"`

	// Events filters which event types this target receives:
	// anomaly | warning | recovery | info. Unset means [anomaly, recovery].
	Events []string `yaml:"events"`

	// TimeoutSeconds bounds each delivery attempt.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Accepts reports whether the target subscribes to the given event type.
func (w Webhook) Accepts(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Timeout returns the per-attempt delivery timeout as a duration.
func (w Webhook) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// RetentionConfig controls the purge operation.
type RetentionConfig struct {
	// Days is the age cutoff for snapshots and delivery log entries.
	Days int `yaml:"days"`

	// MinSnapshots per source are always kept regardless of age.
	MinSnapshots int `yaml:"min_snapshots"`
}

// BaselineConfig bounds the history window used to compute baselines.
type BaselineConfig struct {
	// WindowSize caps how many successful snapshots feed the baseline.
	WindowSize int `yaml:"window_size"`

	// MaxAgeDays caps how old those snapshots may be.
	MaxAgeDays int `yaml:"max_age_days"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("config: %s is empty", path)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	fillDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with top-level default values.
func defaults() *Config {
	return &Config{
		Version: SupportedVersion,
		Agent: AgentConfig{
			ID:        DefaultAgentID,
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Path:    DefaultStoragePath,
		},
		Alerting: AlertingConfig{
			CooldownMinutes: DefaultCooldownMinutes,
		},
		Retention: RetentionConfig{
			Days:         DefaultRetentionDays,
			MinSnapshots: DefaultMinSnapshots,
		},
		Baseline: BaselineConfig{
			WindowSize: DefaultBaselineWindow,
			MaxAgeDays: DefaultBaselineMaxAge,
		},
	}
}

// fillDefaults applies per-element defaults that cannot be pre-populated
// before unmarshalling, because sources and webhooks arrive as YAML lists.
func fillDefaults(cfg *Config) {
	for i := range cfg.Sources {
		src := &cfg.Sources[i]
		if src.Type == "" {
			src.Type = DefaultSourceType
		}
		if src.Dialect == "" {
			src.Dialect = DefaultDialect
		}
		if src.Schedule == "" {
			src.Schedule = DefaultSchedule
		}
		if src.Freshness.Factor == 0 {
			src.Freshness.Factor = DefaultFreshnessFactor
		}
		if src.Volume.DeviationFactor == 0 {
			src.Volume.DeviationFactor = DefaultDeviationFactor
		}
	}
	for i := range cfg.Alerting.Webhooks {
		wh := &cfg.Alerting.Webhooks[i]
		if wh.Events == nil {
			wh.Events = []string{"anomaly", "recovery"}
		}
		if wh.TimeoutSeconds == 0 {
			wh.TimeoutSeconds = DefaultWebhookTimeout
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Version != SupportedVersion {
		return fmt.Errorf("unsupported config version %q (this build understands %q)", cfg.Version, SupportedVersion)
	}
	switch cfg.Agent.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level: unknown level %q", cfg.Agent.LogLevel)
	}
	switch cfg.Agent.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("agent.log_format: unknown format %q", cfg.Agent.LogFormat)
	}
	if cfg.Agent.HealthPort < 0 || cfg.Agent.HealthPort > 65535 {
		return fmt.Errorf("agent.health_port must be a valid port")
	}
	if cfg.Storage.Backend != "sqlite" {
		return fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		switch src.Type {
		case "sql", "http":
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.Name, src.Type)
		}
		if src.Connection == "" {
			return fmt.Errorf("sources[%d] %q: connection is required", i, src.Name)
		}
		if err := checkCredentials(src.Connection); err != nil {
			return fmt.Errorf("sources[%d] %q: %w", i, src.Name, err)
		}
		if src.Type == "sql" {
			if src.Query == "" {
				return fmt.Errorf("sources[%d] %q: query is required for sql sources", i, src.Name)
			}
			switch src.Dialect {
			case "postgres", "postgresql", "mysql", "sqlite", "clickhouse":
			default:
				return fmt.Errorf("sources[%d] %q: unknown dialect %q", i, src.Name, src.Dialect)
			}
		}
		if src.Freshness.Factor <= 0 {
			return fmt.Errorf("sources[%d] %q: freshness.factor must be positive", i, src.Name)
		}
		if src.Freshness.MaxAgeHours != nil && *src.Freshness.MaxAgeHours <= 0 {
			return fmt.Errorf("sources[%d] %q: freshness.max_age_hours must be positive", i, src.Name)
		}
		if src.Volume.DeviationFactor <= 0 {
			return fmt.Errorf("sources[%d] %q: volume.deviation_factor must be positive", i, src.Name)
		}
		if src.Volume.MinRowCount != nil && *src.Volume.MinRowCount < 0 {
			return fmt.Errorf("sources[%d] %q: volume.min_row_count must not be negative", i, src.Name)
		}
	}
	if cfg.Alerting.CooldownMinutes < 0 {
		return fmt.Errorf("alerting.cooldown_minutes must not be negative")
	}
	for i, wh := range cfg.Alerting.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("alerting.webhooks[%d]: name is required", i)
		}
		if wh.URL == "" {
			return fmt.Errorf("alerting.webhooks[%d] %q: url is required", i, wh.Name)
		}
		for _, e := range wh.Events {
			switch e {
			case "anomaly", "warning", "recovery", "info":
			default:
				return fmt.Errorf("alerting.webhooks[%d] %q: unknown event type %q", i, wh.Name, e)
			}
		}
		if wh.TimeoutSeconds <= 0 {
			return fmt.Errorf("alerting.webhooks[%d] %q: timeout_seconds must be positive", i, wh.Name)
		}
	}
	if cfg.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive")
	}
	if cfg.Retention.MinSnapshots < 0 {
		return fmt.Errorf("retention.min_snapshots must not be negative")
	}
	if cfg.Baseline.WindowSize <= 0 {
		return fmt.Errorf("baseline.window_size must be positive")
	}
	if cfg.Baseline.MaxAgeDays <= 0 {
		return fmt.Errorf("baseline.max_age_days must be positive")
	}
	return nil
}
