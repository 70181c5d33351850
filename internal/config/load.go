package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	ConfigPathEnvVar = "GUARDIAN_CONFIG"
	envPrefix        = "GUARDIAN_"
)

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/guardian/config.yaml",
}

type Config struct {
	Bot       BotConfig       `koanf:"bot"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Detection DetectionConfig `koanf:"detection"`
	Storage   StorageConfig   `koanf:"storage"`
	Cache     CacheConfig     `koanf:"cache"`
	Network   NetworkConfig   `koanf:"network"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type BotConfig struct {
	Token    string `koanf:"token"`
	ClientID string `koanf:"client_id"`
}

type GatewayConfig struct {
	// URL is discovered through the REST API when empty.
	URL              string        `koanf:"url"`
	Intents          int           `koanf:"intents"`
	Resume           bool          `koanf:"resume"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	Backoff          BackoffConfig `koanf:"backoff"`
}

type BackoffConfig struct {
	Initial    time.Duration `koanf:"initial"`
	Max        time.Duration `koanf:"max"`
	Multiplier float64       `koanf:"multiplier"`
	Jitter     float64       `koanf:"jitter"`
}

type DetectionConfig struct {
	Window    time.Duration `koanf:"window"`
	Threshold int           `koanf:"threshold"`
	// Thresholds overrides Threshold per action kind, e.g. "ban": 5.
	Thresholds  map[string]int `koanf:"thresholds"`
	SettleDelay time.Duration  `koanf:"settle_delay"`
	MaxAuditAge time.Duration  `koanf:"max_audit_age"`
	ThreadLimit int            `koanf:"thread_limit"`
	// BanCooldown suppresses repeat bans of one executor in one guild.
	BanCooldown time.Duration `koanf:"ban_cooldown"`
}

type StorageConfig struct {
	Driver        string `koanf:"driver"` // sqlite or redis
	Path          string `koanf:"path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

type CacheConfig struct {
	SettingsSize int           `koanf:"settings_size"`
	AuditSize    int           `koanf:"audit_size"`
	AuditTTL     time.Duration `koanf:"audit_ttl"`
}

type NetworkConfig struct {
	APIBaseURL     string        `koanf:"api_base_url"`
	HTTPPoolSize   int           `koanf:"http_pool_size"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type RuntimeConfig struct {
	// IngestCPU pins the gateway reader thread when >= 0.
	IngestCPU  int  `koanf:"ingest_cpu"`
	MemoryLock bool `koanf:"memory_lock"`
	// GCPercent is passed to debug.SetGCPercent when non-zero.
	GCPercent int `koanf:"gc_percent"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File switches output from stderr to a rotating file.
	File      string `koanf:"file"`
	MaxSizeMB int    `koanf:"max_size_mb"`
	Async     bool   `koanf:"async"`
}

func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Intents:          DefaultIntents,
			Resume:           true,
			HandshakeTimeout: 10 * time.Second,
			Backoff: BackoffConfig{
				Initial:    5 * time.Second,
				Max:        2 * time.Minute,
				Multiplier: 2,
				Jitter:     0.5,
			},
		},
		Detection: DetectionConfig{
			Window:      10 * time.Second,
			Threshold:   3,
			Thresholds:  map[string]int{},
			SettleDelay: 500 * time.Millisecond,
			MaxAuditAge: 30 * time.Second,
			ThreadLimit: 49,
			BanCooldown: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:    "sqlite",
			Path:      "guardian.db",
			RedisAddr: "localhost:6379",
		},
		Cache: CacheConfig{
			SettingsSize: 4096,
			AuditSize:    1024,
			AuditTTL:     5 * time.Second,
		},
		Network: NetworkConfig{
			APIBaseURL:     "https://discord.com/api/v10",
			HTTPPoolSize:   4,
			RequestTimeout: 2 * time.Second,
		},
		Runtime: RuntimeConfig{
			IngestCPU: -1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9108",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			MaxSizeMB: 100,
		},
	}
}

// Load layers defaults, an optional YAML file and GUARDIAN_* environment
// variables, in that order. An empty path searches DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Bot.Token = token
	}
	if clientID := os.Getenv("CLIENT_ID"); clientID != "" {
		cfg.Bot.ClientID = clientID
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransformFunc maps GUARDIAN_DETECTION__SETTLE_DELAY to detection.settle_delay.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) Validate() error {
	var errs []error

	if c.Detection.Window <= 0 {
		errs = append(errs, errors.New("detection.window must be positive"))
	}
	if c.Detection.Threshold < 1 {
		errs = append(errs, errors.New("detection.threshold must be at least 1"))
	}
	for kind, n := range c.Detection.Thresholds {
		if n < 1 {
			errs = append(errs, fmt.Errorf("detection.thresholds.%s must be at least 1", kind))
		}
	}
	if c.Detection.SettleDelay < 0 {
		errs = append(errs, errors.New("detection.settle_delay must not be negative"))
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("storage.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Gateway.Backoff.Initial <= 0 {
		errs = append(errs, errors.New("gateway.backoff.initial must be positive"))
	}
	if c.Gateway.Backoff.Multiplier < 1 {
		errs = append(errs, errors.New("gateway.backoff.multiplier must be at least 1"))
	}
	if c.Gateway.Backoff.Jitter < 0 || c.Gateway.Backoff.Jitter > 1 {
		errs = append(errs, errors.New("gateway.backoff.jitter must be within [0,1]"))
	}
	if c.Cache.SettingsSize < 1 {
		errs = append(errs, errors.New("cache.settings_size must be at least 1"))
	}

	return errors.Join(errs...)
}

// ThresholdFor returns the window threshold for an action kind.
func (d DetectionConfig) ThresholdFor(kind string) int {
	if n, ok := d.Thresholds[kind]; ok && n > 0 {
		return n
	}
	return d.Threshold
}
