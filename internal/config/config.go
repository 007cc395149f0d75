package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Redis   RedisConfig   `yaml:"redis" envconfig:"REDIS"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Usage   UsageConfig   `yaml:"usage" envconfig:"USAGE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// RedisConfig contains the primary cache tier connection settings
type RedisConfig struct {
	Addr         string        `yaml:"addr" envconfig:"ADDR" default:"localhost:6379"`
	Password     string        `yaml:"password" envconfig:"PASSWORD"`
	DB           int           `yaml:"db" envconfig:"DB" default:"0"`
	DialTimeout  time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"2s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"2s"`
}

// CacheConfig controls verdict caching and the in-process fallback tier
type CacheConfig struct {
	ValidTTL        time.Duration `yaml:"valid_ttl" envconfig:"VALID_TTL" default:"10m"`
	DeniedTTL       time.Duration `yaml:"denied_ttl" envconfig:"DENIED_TTL" default:"1m"`
	FallbackMaxSize int           `yaml:"fallback_max_size" envconfig:"FALLBACK_MAX_SIZE" default:"10000"`
}

// License source-of-truth modes.
const (
	LicenseModeDatabase = "database"
	LicenseModeFile     = "file"
)

// LicenseConfig selects and parameterizes the source of truth
type LicenseConfig struct {
	// Mode is "database" for multi-tenant deployments or "file" for
	// single-tenant deployments backed by a signed license file.
	Mode        string        `yaml:"mode" envconfig:"MODE" default:"database"`
	FilePath    string        `yaml:"file_path" envconfig:"FILE_PATH" default:"license.dat"`
	FileTenant  string        `yaml:"file_tenant" envconfig:"FILE_TENANT" default:"default"`
	GracePeriod time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD" default:"48h"`
	// PublicKey is the hex-encoded ed25519 key used to verify license files.
	PublicKey    string `yaml:"public_key" envconfig:"PUBLIC_KEY"`
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" default:"data/licenses.db"`
}

// UsageConfig controls usage tracking thresholds
type UsageConfig struct {
	WarningThreshold  int           `yaml:"warning_threshold" envconfig:"WARNING_THRESHOLD" default:"80"`
	WarningDedupRange time.Duration `yaml:"warning_dedup_range" envconfig:"WARNING_DEDUP_RANGE" default:"24h"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// Load loads configuration from environment variables and an optional
// YAML file. Environment variables win over file values.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom loads configuration using the given YAML file path.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables override file values and fill defaults.
	if err := envconfig.Process("HRSM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.License.Mode {
	case LicenseModeDatabase, LicenseModeFile:
	default:
		return fmt.Errorf("invalid license mode %q (want \"database\" or \"file\")", c.License.Mode)
	}
	if c.Cache.ValidTTL <= 0 || c.Cache.DeniedTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.DeniedTTL > c.Cache.ValidTTL {
		return fmt.Errorf("denied TTL (%s) must not exceed valid TTL (%s)", c.Cache.DeniedTTL, c.Cache.ValidTTL)
	}
	if c.Usage.WarningThreshold < 1 || c.Usage.WarningThreshold > 100 {
		return fmt.Errorf("usage warning threshold must be 1-100, got %d", c.Usage.WarningThreshold)
	}
	return nil
}

func configFilePath() string {
	if p := os.Getenv("HRSM_CONFIG_FILE"); p != "" {
		return p
	}
	return "config.yaml"
}
