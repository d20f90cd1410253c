package iln

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
)

// Config holds all configuration for a Nexus.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Functional options, including WithConfigFile (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithAPIKey(os.Getenv("ILN_API_KEY")),
//	    WithLogFormat("json"),
//	)
type Config struct {
	Name string `json:"name" yaml:"name"`

	Pro        ProConfig        `json:"pro" yaml:"pro"`
	Memory     MemoryConfig     `json:"memory" yaml:"memory"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Heuristics HeuristicsConfig `json:"heuristics" yaml:"heuristics"`

	// Logger, when set, is used instead of one built from Logging.
	Logger logger.Logger `json:"-" yaml:"-"`
}

// Entitlement modes
const (
	EntitlementStatic = "static"
	EntitlementRemote = "remote"
)

// ProConfig configures gated levels and the remote Pro service.
// Without an API key no gated level is available.
type ProConfig struct {
	APIKey              string        `json:"api_key" yaml:"api_key" env:"ILN_API_KEY"`
	Endpoint            string        `json:"endpoint" yaml:"endpoint" env:"ILN_PRO_ENDPOINT"`
	Timeout             time.Duration `json:"timeout" yaml:"timeout" env:"ILN_PRO_TIMEOUT" default:"30s"`
	RemoteExecution     bool          `json:"remote_execution" yaml:"remote_execution" env:"ILN_PRO_REMOTE" default:"false"`
	EntitlementMode     string        `json:"entitlement_mode" yaml:"entitlement_mode" env:"ILN_ENTITLEMENT_MODE" default:"static"`
	EntitlementTimeout  time.Duration `json:"entitlement_timeout" yaml:"entitlement_timeout" env:"ILN_ENTITLEMENT_TIMEOUT" default:"2s"`
	EntitlementCacheTTL time.Duration `json:"entitlement_cache_ttl" yaml:"entitlement_cache_ttl" env:"ILN_ENTITLEMENT_CACHE_TTL" default:"5m"`
	GatedLevels         []int         `json:"gated_levels" yaml:"gated_levels" env:"ILN_GATED_LEVELS" default:"4"`
}

// MemoryConfig selects the store used for cached entitlement answers
type MemoryConfig struct {
	Provider  string `json:"provider" yaml:"provider" env:"ILN_MEMORY_PROVIDER" default:"inmemory"`
	RedisURL  string `json:"redis_url" yaml:"redis_url" env:"ILN_REDIS_URL,REDIS_URL"`
	Namespace string `json:"namespace" yaml:"namespace" env:"ILN_MEMORY_NAMESPACE" default:"iln"`
}

// TelemetryConfig contains tracing and metrics configuration.
// Telemetry is only initialized when Enabled=true.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" env:"ILN_TELEMETRY_ENABLED" default:"false"`
	Exporter    string  `json:"exporter" yaml:"exporter" env:"ILN_TELEMETRY_EXPORTER" default:"stdout"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string  `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME" default:"iln"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" default:"1.0"`
	Insecure    bool    `json:"insecure" yaml:"insecure" default:"true"`
}

// LoggingConfig contains logging configuration.
// "json" selects the zap production encoder, "text" the simple line logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"ILN_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"ILN_LOG_FORMAT" default:"text"`
}

// HeuristicsConfig points at files replacing the built-in tables
type HeuristicsConfig struct {
	// File holds optional `scoring:` and `routing:` sections
	File string `json:"file" yaml:"file" env:"ILN_HEURISTICS_FILE"`

	// ProfilesDir holds profiles.yaml with extra or adjusted backend profiles
	ProfilesDir string `json:"profiles_dir" yaml:"profiles_dir" env:"ILN_PROFILES_DIR"`

	// StrategiesDir holds one strategy per YAML file
	StrategiesDir string `json:"strategies_dir" yaml:"strategies_dir" env:"ILN_STRATEGIES_DIR"`
}

// DefaultProEndpoint is the public Pro API
const DefaultProEndpoint = "https://api.iln-nexus.com/v1"

// Option configures a Config
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Name: "iln",
		Pro: ProConfig{
			Endpoint:            DefaultProEndpoint,
			Timeout:             30 * time.Second,
			EntitlementMode:     EntitlementStatic,
			EntitlementTimeout:  2 * time.Second,
			EntitlementCacheTTL: 5 * time.Minute,
			GatedLevels:         []int{4},
		},
		Memory: MemoryConfig{
			Provider:  "inmemory",
			Namespace: "iln",
		},
		Telemetry: TelemetryConfig{
			Exporter:    "stdout",
			ServiceName: "iln",
			SampleRatio: 1.0,
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromEnv overlays ILN_* variables and the standard REDIS_URL and
// OTEL_* variables. Malformed durations, numbers and level lists are errors.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ILN_NAME"); v != "" {
		c.Name = v
	}

	// Pro settings
	if v := os.Getenv("ILN_API_KEY"); v != "" {
		c.Pro.APIKey = v
	}
	if v := os.Getenv("ILN_PRO_ENDPOINT"); v != "" {
		c.Pro.Endpoint = v
	}
	if v := os.Getenv("ILN_PRO_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("ILN_PRO_TIMEOUT", v, err)
		}
		c.Pro.Timeout = d
	}
	if v := os.Getenv("ILN_PRO_REMOTE"); v != "" {
		c.Pro.RemoteExecution = parseBool(v)
	}
	if v := os.Getenv("ILN_ENTITLEMENT_MODE"); v != "" {
		c.Pro.EntitlementMode = strings.ToLower(v)
	}
	if v := os.Getenv("ILN_ENTITLEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("ILN_ENTITLEMENT_TIMEOUT", v, err)
		}
		c.Pro.EntitlementTimeout = d
	}
	if v := os.Getenv("ILN_ENTITLEMENT_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("ILN_ENTITLEMENT_CACHE_TTL", v, err)
		}
		c.Pro.EntitlementCacheTTL = d
	}
	if v := os.Getenv("ILN_GATED_LEVELS"); v != "" {
		levels, err := parseIntList(v)
		if err != nil {
			return envError("ILN_GATED_LEVELS", v, err)
		}
		c.Pro.GatedLevels = levels
	}

	// Memory settings
	if v := os.Getenv("ILN_MEMORY_PROVIDER"); v != "" {
		c.Memory.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("ILN_REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	}
	if v := os.Getenv("ILN_MEMORY_NAMESPACE"); v != "" {
		c.Memory.Namespace = v
	}

	// Telemetry settings
	if v := os.Getenv("ILN_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("ILN_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}

	// Logging settings
	if v := os.Getenv("ILN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ILN_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	// Heuristics
	if v := os.Getenv("ILN_HEURISTICS_FILE"); v != "" {
		c.Heuristics.File = v
	}
	if v := os.Getenv("ILN_PROFILES_DIR"); v != "" {
		c.Heuristics.ProfilesDir = v
	}
	if v := os.Getenv("ILN_STRATEGIES_DIR"); v != "" {
		c.Heuristics.StrategiesDir = v
	}

	return nil
}

// LoadFromFile reads a JSON or YAML configuration file over c
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, core.ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, core.ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, core.ErrInvalidConfiguration)
		}
	}
	return nil
}

// Validate checks the configuration. It is called by NewConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return configError("name is required", core.ErrMissingConfiguration)
	}

	for _, l := range c.Pro.GatedLevels {
		if !core.Level(l).Valid() {
			return configError(fmt.Sprintf("invalid gated level %d: must be between 1 and 4", l), core.ErrInvalidConfiguration)
		}
	}
	if c.Pro.Timeout <= 0 {
		return configError("pro timeout must be positive", core.ErrInvalidConfiguration)
	}
	if c.Pro.EntitlementTimeout <= 0 {
		return configError("entitlement timeout must be positive", core.ErrInvalidConfiguration)
	}
	switch c.Pro.EntitlementMode {
	case EntitlementStatic:
	case EntitlementRemote:
		if c.Pro.Endpoint == "" {
			return configError("pro endpoint is required for remote entitlement", core.ErrMissingConfiguration)
		}
	default:
		return configError(fmt.Sprintf("unknown entitlement mode %q", c.Pro.EntitlementMode), core.ErrInvalidConfiguration)
	}
	if c.Pro.RemoteExecution && c.Pro.Endpoint == "" {
		return configError("pro endpoint is required for remote execution", core.ErrMissingConfiguration)
	}

	switch c.Memory.Provider {
	case "inmemory":
	case "redis":
		if c.Memory.RedisURL == "" {
			return configError("redis URL is required for the redis memory provider", core.ErrMissingConfiguration)
		}
	default:
		return configError(fmt.Sprintf("unknown memory provider %q", c.Memory.Provider), core.ErrInvalidConfiguration)
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "none", "stdout":
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				return configError("telemetry endpoint is required for the otlp exporter", core.ErrMissingConfiguration)
			}
		default:
			return configError(fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter), core.ErrInvalidConfiguration)
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return configError(fmt.Sprintf("unknown log format %q", c.Logging.Format), core.ErrInvalidConfiguration)
	}
	return nil
}

// HasPro reports whether an API key is configured
func (c *Config) HasPro() bool {
	return strings.TrimSpace(c.Pro.APIKey) != ""
}

func configError(msg string, sentinel error) error {
	return &core.Error{Op: "Config.Validate", Kind: core.KindConfig, Message: msg, Err: sentinel}
}

func envError(name, value string, err error) error {
	return &core.Error{
		Op:      "Config.LoadFromEnv",
		Kind:    core.KindConfig,
		Message: fmt.Sprintf("invalid %s=%q: %v", name, value, err),
		Err:     core.ErrInvalidConfiguration,
	}
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive) as true
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseIntList parses "3, 4" into []int{3, 4}
func parseIntList(s string) ([]int, error) {
	out := []int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Functional Options

// WithName sets the instance name used in logs and telemetry
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithAPIKey sets the Pro API key
func WithAPIKey(key string) Option {
	return func(c *Config) error {
		c.Pro.APIKey = key
		return nil
	}
}

// WithProEndpoint sets the Pro service base URL
func WithProEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Pro.Endpoint = strings.TrimRight(endpoint, "/")
		return nil
	}
}

// WithProTimeout bounds each remote execution
func WithProTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("pro timeout must be positive: %w", core.ErrInvalidConfiguration)
		}
		c.Pro.Timeout = d
		return nil
	}
}

// WithRemoteExecution runs entitled gated levels on the Pro service
func WithRemoteExecution(enabled bool) Option {
	return func(c *Config) error {
		c.Pro.RemoteExecution = enabled
		return nil
	}
}

// WithEntitlementMode selects "static" or "remote" entitlement checks
func WithEntitlementMode(mode string) Option {
	return func(c *Config) error {
		c.Pro.EntitlementMode = strings.ToLower(mode)
		return nil
	}
}

// WithEntitlementTimeout bounds the entitlement check
func WithEntitlementTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Pro.EntitlementTimeout = d
		return nil
	}
}

// WithGatedLevels replaces the levels that require entitlement
func WithGatedLevels(levels ...int) Option {
	return func(c *Config) error {
		c.Pro.GatedLevels = append([]int{}, levels...)
		return nil
	}
}

// WithRedisURL selects the Redis memory provider at url
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Memory.Provider = "redis"
		c.Memory.RedisURL = url
		return nil
	}
}

// WithMemoryProvider selects "inmemory" or "redis"
func WithMemoryProvider(provider string) Option {
	return func(c *Config) error {
		c.Memory.Provider = strings.ToLower(provider)
		return nil
	}
}

// WithTelemetry enables tracing and metrics through exporter
func WithTelemetry(enabled bool, exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		if exporter != "" {
			c.Telemetry.Exporter = strings.ToLower(exporter)
		}
		if endpoint != "" {
			c.Telemetry.Endpoint = endpoint
		}
		return nil
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format ("text" or "json")
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = strings.ToLower(format)
		return nil
	}
}

// WithLogger routes nexus logs through l, e.g. logger.WrapZap of an
// application's zap logger. Logging.Level and Logging.Format are ignored.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithHeuristicsFile replaces the built-in scoring and routing tables
func WithHeuristicsFile(path string) Option {
	return func(c *Config) error {
		c.Heuristics.File = path
		return nil
	}
}

// WithProfilesDir loads extra backend profiles from dir
func WithProfilesDir(dir string) Option {
	return func(c *Config) error {
		c.Heuristics.ProfilesDir = dir
		return nil
	}
}

// WithStrategiesDir loads extra strategies from dir
func WithStrategiesDir(dir string) Option {
	return func(c *Config) error {
		c.Heuristics.StrategiesDir = dir
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file. Options
// listed after it override the file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a configuration. Configuration is applied in order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options
//  4. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
