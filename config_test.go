package iln

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iln-nexus/iln/pkg/core"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "iln", cfg.Name)
	assert.Equal(t, DefaultProEndpoint, cfg.Pro.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Pro.Timeout)
	assert.Equal(t, EntitlementStatic, cfg.Pro.EntitlementMode)
	assert.Equal(t, 2*time.Second, cfg.Pro.EntitlementTimeout)
	assert.Equal(t, []int{4}, cfg.Pro.GatedLevels)
	assert.False(t, cfg.Pro.RemoteExecution)
	assert.Equal(t, "inmemory", cfg.Memory.Provider)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.HasPro())
	require.NoError(t, cfg.Validate())
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("ILN_NAME", "edge")
	t.Setenv("ILN_API_KEY", "pro-key")
	t.Setenv("ILN_PRO_TIMEOUT", "5s")
	t.Setenv("ILN_GATED_LEVELS", "3, 4")
	t.Setenv("ILN_ENTITLEMENT_MODE", "REMOTE")
	t.Setenv("ILN_REDIS_URL", "")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("ILN_MEMORY_PROVIDER", "redis")
	t.Setenv("ILN_LOG_FORMAT", "JSON")
	t.Setenv("ILN_TELEMETRY_ENABLED", "yes")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "edge", cfg.Name)
	assert.True(t, cfg.HasPro())
	assert.Equal(t, 5*time.Second, cfg.Pro.Timeout)
	assert.Equal(t, []int{3, 4}, cfg.Pro.GatedLevels)
	assert.Equal(t, EntitlementRemote, cfg.Pro.EntitlementMode)
	assert.Equal(t, "redis://cache:6379", cfg.Memory.RedisURL)
	assert.Equal(t, "redis", cfg.Memory.Provider)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestConfigLoadFromEnvErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad pro timeout", "ILN_PRO_TIMEOUT", "soon"},
		{"bad entitlement timeout", "ILN_ENTITLEMENT_TIMEOUT", "2 seconds"},
		{"bad cache ttl", "ILN_ENTITLEMENT_CACHE_TTL", "forever"},
		{"bad gated levels", "ILN_GATED_LEVELS", "3,four"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			err := DefaultConfig().LoadFromEnv()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
			assert.Equal(t, core.KindConfig, core.KindOf(err))
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		sentinel error
	}{
		{"empty name", func(c *Config) { c.Name = " " }, core.ErrMissingConfiguration},
		{"gated level out of range", func(c *Config) { c.Pro.GatedLevels = []int{5} }, core.ErrInvalidConfiguration},
		{"zero pro timeout", func(c *Config) { c.Pro.Timeout = 0 }, core.ErrInvalidConfiguration},
		{"zero entitlement timeout", func(c *Config) { c.Pro.EntitlementTimeout = 0 }, core.ErrInvalidConfiguration},
		{"unknown entitlement mode", func(c *Config) { c.Pro.EntitlementMode = "ldap" }, core.ErrInvalidConfiguration},
		{"remote entitlement without endpoint", func(c *Config) {
			c.Pro.EntitlementMode = EntitlementRemote
			c.Pro.Endpoint = ""
		}, core.ErrMissingConfiguration},
		{"remote execution without endpoint", func(c *Config) {
			c.Pro.RemoteExecution = true
			c.Pro.Endpoint = ""
		}, core.ErrMissingConfiguration},
		{"redis without url", func(c *Config) { c.Memory.Provider = "redis" }, core.ErrMissingConfiguration},
		{"unknown memory provider", func(c *Config) { c.Memory.Provider = "etcd" }, core.ErrInvalidConfiguration},
		{"otlp without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "otlp"
		}, core.ErrMissingConfiguration},
		{"unknown exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, core.ErrInvalidConfiguration},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, core.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.True(t, core.IsConfigurationError(err))
		})
	}
}

func TestNewConfigOptionsOverrideEnv(t *testing.T) {
	t.Setenv("ILN_API_KEY", "from-env")
	t.Setenv("ILN_LOG_LEVEL", "debug")

	cfg, err := NewConfig(
		WithAPIKey("from-option"),
		WithProEndpoint("https://pro.example.test/v2/"),
		WithGatedLevels(3, 4),
	)
	require.NoError(t, err)

	assert.Equal(t, "from-option", cfg.Pro.APIKey)
	assert.Equal(t, "https://pro.example.test/v2", cfg.Pro.Endpoint)
	assert.Equal(t, []int{3, 4}, cfg.Pro.GatedLevels)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestNewConfigErrors(t *testing.T) {
	_, err := NewConfig(WithProTimeout(-time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	_, err = NewConfig(WithGatedLevels(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = NewConfig(WithMemoryProvider("redis"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingConfiguration))
}

func TestConfigLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "iln.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
name: staging
pro:
  api_key: yaml-key
  timeout: 10s
  gated_levels: [3, 4]
logging:
  format: json
`), 0o600))

	cfg, err := NewConfig(WithConfigFile(yamlPath), WithLogLevel("warn"))
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Name)
	assert.Equal(t, "yaml-key", cfg.Pro.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Pro.Timeout)
	assert.Equal(t, []int{3, 4}, cfg.Pro.GatedLevels)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, DefaultProEndpoint, cfg.Pro.Endpoint)

	jsonPath := filepath.Join(dir, "iln.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"json-node","memory":{"namespace":"tenant-a"}}`), 0o600))
	cfg = DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(jsonPath))
	assert.Equal(t, "json-node", cfg.Name)
	assert.Equal(t, "tenant-a", cfg.Memory.Namespace)
	assert.Equal(t, "inmemory", cfg.Memory.Provider)

	err = cfg.LoadFromFile(filepath.Join(dir, "iln.toml"))
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	brokenPath := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(brokenPath, []byte("pro: [unterminated"), 0o600))
	err = cfg.LoadFromFile(brokenPath)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))

	err = cfg.LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "ILN-Client/"+Version, UserAgent())
}
