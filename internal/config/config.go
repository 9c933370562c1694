// Package config loads and validates spider configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every recognized configuration option from spec.md §6,
// plus the ambient sections (bus/scheduler backend selection, storage,
// logging) needed to wire a concrete runtime.
type Config struct {
	Spider     SpiderConfig     `mapstructure:"spider"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Bus        BusConfig        `mapstructure:"bus"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
}

// ProxyConfig lists the fixed proxy endpoints available to the in-process
// ProxyPool when dispatch.use_proxy is set.
type ProxyConfig struct {
	Endpoints []ProxyEndpointConfig `mapstructure:"endpoints"`
}

// ProxyEndpointConfig describes one registered proxy endpoint.
type ProxyEndpointConfig struct {
	URI             string  `mapstructure:"uri"`
	InitialScore    int     `mapstructure:"initial_score"`
	LeasesPerSecond float64 `mapstructure:"leases_per_second"`
}

// SeedConfig lists the initial URLs a RequestSupplier turns into seed
// requests at startup.
type SeedConfig struct {
	URLs           []string `mapstructure:"urls"`
	DownloaderType string   `mapstructure:"downloader_type"`
}

// AdminConfig controls the operator-facing HTTP surface.
type AdminConfig struct {
	Addr        string `mapstructure:"addr"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	APIKey      string `mapstructure:"api_key"`
}

// SpiderConfig carries the spider's identity (spec.md §6 identity
// constraints: Id non-blank, ≤ 36 characters).
type SpiderConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// AdmissionConfig governs RequestAdmission thresholds (spec.md §4.2/§6).
type AdmissionConfig struct {
	RetriedTimes int `mapstructure:"retried_times"`
	Depth        int `mapstructure:"depth"`
}

// DispatchConfig governs the dispatcher loop's pacing, back-pressure and
// termination thresholds (spec.md §4.3/§6).
type DispatchConfig struct {
	Speed               float64 `mapstructure:"speed"`
	RequestedQueueCount int     `mapstructure:"requested_queue_count"`
	EmptySleepTime       int     `mapstructure:"empty_sleep_time"`
	RequestTimeoutMs     int64   `mapstructure:"request_timeout_ms"`
	UseProxy             bool    `mapstructure:"use_proxy"`
}

// RequestTimeout converts RequestTimeoutMs to a time.Duration.
func (d DispatchConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutMs) * time.Millisecond
}

// StorageConfig names the default data-flow sink's type identifier,
// resolved at startup by internal/dataflow/factory's fixed switch over the
// known sink types (StorageMisconfigured if the type is unknown or its
// options are incomplete).
type StorageConfig struct {
	Type    string            `mapstructure:"type"`
	Options map[string]string `mapstructure:"options"`
}

// BusConfig selects and configures a MessageQueue backend.
type BusConfig struct {
	// Backend is one of "memory", "pubsub", "sqs".
	Backend string       `mapstructure:"backend"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	SQS     SQSConfig    `mapstructure:"sqs"`
}

// PubSubConfig configures the Google Cloud Pub/Sub bus backend.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// SQSConfig configures the AWS SQS bus backend.
type SQSConfig struct {
	Region            string            `mapstructure:"region"`
	QueueURLsByTopic  map[string]string `mapstructure:"queue_urls_by_topic"`
	WaitTimeSeconds   int32             `mapstructure:"wait_time_seconds"`
}

// SchedulerConfig selects and configures a Scheduler store backend.
type SchedulerConfig struct {
	// Backend is one of "memory", "postgres", "sqlite".
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StatisticsConfig selects and configures a StatisticsClient backend.
type StatisticsConfig struct {
	// Backend is one of "prom" (default, zero extra infra) or
	// "postgres" (durable counters, batched snapshot writes).
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// Load builds a Config from disk/environment and validates it.
func Load(path string) (Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadRaw builds a Config from disk/environment without validating it,
// for callers that still need to fill in a value (e.g. a generated
// spider.id) before Validate can pass.
func LoadRaw(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDERCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("admission.retried_times", 3)
	v.SetDefault("admission.depth", 0)
	v.SetDefault("dispatch.speed", 1.0)
	v.SetDefault("dispatch.requested_queue_count", 100)
	v.SetDefault("dispatch.empty_sleep_time", 60)
	v.SetDefault("dispatch.request_timeout_ms", 30000)
	v.SetDefault("dispatch.use_proxy", false)
	v.SetDefault("bus.backend", "memory")
	v.SetDefault("bus.sqs.wait_time_seconds", 20)
	v.SetDefault("scheduler.backend", "memory")
	v.SetDefault("scheduler.table", "scheduler_requests")
	v.SetDefault("logging.development", true)
	v.SetDefault("admin.addr", ":8081")
	v.SetDefault("statistics.backend", "prom")
}

// Validate enforces the exhaustive recognized option set's constraints
// from spec.md §6.
func (c Config) Validate() error {
	if c.Spider.ID == "" || len(c.Spider.ID) > 36 {
		return fmt.Errorf("spider.id must be non-blank and at most 36 characters")
	}
	if c.Admission.RetriedTimes < 1 {
		return fmt.Errorf("admission.retried_times must be >= 1")
	}
	if c.Admission.Depth < 0 {
		return fmt.Errorf("admission.depth must be >= 0")
	}
	if c.Dispatch.Speed <= 0 {
		return fmt.Errorf("dispatch.speed must be > 0")
	}
	if c.Dispatch.RequestedQueueCount <= 0 {
		return fmt.Errorf("dispatch.requested_queue_count must be > 0")
	}
	if c.Dispatch.EmptySleepTime < 0 {
		return fmt.Errorf("dispatch.empty_sleep_time must be >= 0")
	}
	switch c.Bus.Backend {
	case "memory", "pubsub", "sqs":
	default:
		return fmt.Errorf("bus.backend %q is not recognized", c.Bus.Backend)
	}
	switch c.Scheduler.Backend {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("scheduler.backend %q is not recognized", c.Scheduler.Backend)
	}
	if (c.Scheduler.Backend == "postgres" || c.Scheduler.Backend == "sqlite") && c.Scheduler.DSN == "" {
		return fmt.Errorf("scheduler.dsn is required for backend %q", c.Scheduler.Backend)
	}
	if c.Bus.Backend == "pubsub" && c.Bus.PubSub.ProjectID == "" {
		return fmt.Errorf("bus.pubsub.project_id is required for backend \"pubsub\"")
	}
	switch c.Statistics.Backend {
	case "prom", "postgres":
	default:
		return fmt.Errorf("statistics.backend %q is not recognized", c.Statistics.Backend)
	}
	if c.Statistics.Backend == "postgres" && c.Statistics.DSN == "" {
		return fmt.Errorf("statistics.dsn is required for backend \"postgres\"")
	}
	if c.Dispatch.UseProxy && len(c.Proxy.Endpoints) == 0 {
		return fmt.Errorf("proxy.endpoints must list at least one endpoint when dispatch.use_proxy is set")
	}
	return nil
}
