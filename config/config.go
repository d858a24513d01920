// Package config loads the inboxmesh YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/inboxmesh/dispatcher"
	"github.com/hupe1980/inboxmesh/google"
	"github.com/hupe1980/inboxmesh/instrumentation"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/watcher"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root of the configuration file.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Graph      GraphConfig      `yaml:"graph"`
	Google     GoogleConfig     `yaml:"google"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ModelConfig selects the inference provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	// RateLimit is the allowed model calls per second; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	// APIKey is normally taken from OPENAI_API_KEY or ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`
}

// EmbeddingConfig controls the semantic e-mail index.
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model,omitempty"`
	// SyncQuery selects the messages indexed at startup.
	SyncQuery string `yaml:"sync_query"`
	SyncLimit int64  `yaml:"sync_limit"`
	ChunkSize int    `yaml:"chunk_size"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// GraphConfig bounds graph execution.
type GraphConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// GoogleConfig points at the OAuth client and the user's data.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	CalendarID      string `yaml:"calendar_id"`
	TaskListID      string `yaml:"task_list_id"`
	UserID          string `yaml:"user_id"`
	// TimeZone is an IANA zone name; empty uses the local zone.
	TimeZone string `yaml:"time_zone,omitempty"`
}

// WatcherConfig controls the new e-mail watcher.
type WatcherConfig struct {
	Schedule string `yaml:"schedule"`
	// Labels filters which e-mails open a session.
	Labels []string `yaml:"labels"`
	// Classify labels each new e-mail with one of LabelDescriptors before
	// the filter runs.
	Classify         bool                      `yaml:"classify"`
	LabelDescriptors []watcher.LabelDescriptor `yaml:"label_descriptors"`
	// BacklogLimit caps the e-mails queued by `watch --since`.
	BacklogLimit int `yaml:"backlog_limit"`
}

// DispatcherConfig sets the delegation policies.
type DispatcherConfig struct {
	// ChatPolicy applies to interactive sessions, WatchPolicy to sessions
	// opened for new e-mails.
	ChatPolicy  string `yaml:"chat_policy"`
	WatchPolicy string `yaml:"watch_policy"`
	// Policies overrides the policy per agent name.
	Policies        map[string]string `yaml:"policies,omitempty"`
	MaxAnswerRounds int               `yaml:"max_answer_rounds"`
}

// LoggingConfig configures the slog backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MetricsExporter string  `yaml:"metrics_exporter"`
	TracingExporter string  `yaml:"tracing_exporter"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint,omitempty"`
	OTLPInsecure    bool    `yaml:"otlp_insecure,omitempty"`
	SamplingRate    float64 `yaml:"sampling_rate"`
	// MetricsAddr is where the watch command serves Prometheus metrics.
	MetricsAddr string `yaml:"metrics_addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			MaxTokens: 4096,
		},
		Embedding: EmbeddingConfig{
			SyncQuery: "newer_than:30d",
			SyncLimit: 200,
			ChunkSize: 1500,
		},
		Graph: GraphConfig{MaxIterations: 10},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       google.DefaultTokenFile(),
			CalendarID:      "primary",
			TaskListID:      "@default",
			UserID:          "me",
		},
		Watcher: WatcherConfig{
			Schedule: watcher.DefaultSchedule,
			Labels:   []string{"needs_action", "to_schedule"},
			Classify: true,
			LabelDescriptors: []watcher.LabelDescriptor{
				{Name: "needs_action", Description: "The sender expects me to do something, such as reply, review or decide."},
				{Name: "to_schedule", Description: "The email proposes, moves or cancels a meeting, event or deadline that belongs on my calendar."},
				{Name: "informational", Description: "Useful to know but needs no action, such as receipts, notices and updates."},
				{Name: "promotional", Description: "Newsletters, marketing and other bulk mail."},
			},
			BacklogLimit: 25,
		},
		Dispatcher: DispatcherConfig{
			ChatPolicy:      string(dispatcher.Relay),
			WatchPolicy:     string(dispatcher.Synthesize),
			MaxAnswerRounds: dispatcher.DefaultMaxAnswerRounds,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			MetricsExporter: instrumentation.ExporterPrometheus,
			TracingExporter: instrumentation.ExporterNone,
			SamplingRate:    1,
			MetricsAddr:     ":9464",
			MetricsPath:     "/metrics",
		},
	}
}

// Path returns the default configuration file path.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "inboxmesh.yaml"
	}
	return filepath.Join(dir, "inboxmesh", "config.yaml")
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file yields the defaults. An empty path uses Path().
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML. API keys are never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	out := *cfg
	out.Model.APIKey = ""
	out.Embedding.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv fills API keys from the environment when the file sets none.
func (c *Config) ApplyEnv() {
	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderOpenAI:
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Model.Provider))
	}
	if c.Model.RateLimit < 0 {
		errs = append(errs, errors.New("model.rate_limit must not be negative"))
	}
	if c.Graph.MaxIterations < 0 {
		errs = append(errs, errors.New("graph.max_iterations must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	for name, p := range map[string]string{"chat_policy": c.Dispatcher.ChatPolicy, "watch_policy": c.Dispatcher.WatchPolicy} {
		if _, err := dispatcher.ParsePolicy(p); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher.%s: %w", name, err))
		}
	}
	for agentName, p := range c.Dispatcher.Policies {
		if _, err := dispatcher.ParsePolicy(p); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher.policies.%s: %w", agentName, err))
		}
	}

	if c.Watcher.Classify && len(c.Watcher.LabelDescriptors) == 0 {
		errs = append(errs, errors.New("watcher.label_descriptors must not be empty when watcher.classify is set"))
	}
	for i, d := range c.Watcher.LabelDescriptors {
		if strings.TrimSpace(d.Name) == "" {
			errs = append(errs, fmt.Errorf("watcher.label_descriptors[%d]: name is required", i))
		}
	}
	if c.Watcher.BacklogLimit < 0 {
		errs = append(errs, errors.New("watcher.backlog_limit must not be negative"))
	}

	tc := c.InstrumentationConfig("")
	if err := tc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// Location resolves google.time_zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Google.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Google.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("google.time_zone: %w", err)
	}
	return loc, nil
}

// Policies parses the per-agent policy overrides.
func (c *Config) Policies() map[string]dispatcher.Policy {
	out := make(map[string]dispatcher.Policy, len(c.Dispatcher.Policies))
	for name, p := range c.Dispatcher.Policies {
		if policy, err := dispatcher.ParsePolicy(p); err == nil {
			out[name] = policy
		}
	}
	return out
}

// LoggingConfig maps the logging section.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{Level: level, Format: c.Logging.Format}
}

// InstrumentationConfig maps the telemetry section.
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceName:        "inboxmesh",
		ServiceVersion:     version,
		Enabled:            c.Telemetry.Enabled,
		MetricsExporter:    c.Telemetry.MetricsExporter,
		TracingExporter:    c.Telemetry.TracingExporter,
		OTLPEndpoint:       c.Telemetry.OTLPEndpoint,
		OTLPInsecure:       c.Telemetry.OTLPInsecure,
		TraceSamplingRate:  c.Telemetry.SamplingRate,
		PrometheusEndpoint: c.Telemetry.MetricsPath,
	}
}
