package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

// EnvPrefix prefixes every environment override, e.g. HOOKRELAY_SERVER_PORT.
const EnvPrefix = "HOOKRELAY"

// Config represents the server configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Authority AuthorityConfig `mapstructure:"authority"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retention RetentionConfig `mapstructure:"retention"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	GRPCPort       int      `mapstructure:"grpc_port"` // 0 disables the gRPC health endpoint
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"` // CIDRs whose forwarding headers are believed
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DataDir  string `mapstructure:"data_dir"`
	Database string `mapstructure:"database"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	LogLevel string `mapstructure:"log_level"`
}

// AuthorityConfig holds the external credential service settings
type AuthorityConfig struct {
	URL           string        `mapstructure:"url"`
	ServiceSecret string        `mapstructure:"service_secret"`
	ServiceName   string        `mapstructure:"service_name"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds credential cache settings
type CacheConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

// IngestConfig holds ingestion limits
type IngestConfig struct {
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
	PreviewBytes int `mapstructure:"preview_bytes"`
}

// RetentionConfig holds reaper settings
type RetentionConfig struct {
	Window   time.Duration `mapstructure:"window"`
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig holds control-plane rate limit settings
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DeliveryConfig holds push channel settings
type DeliveryConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	MailFrom   string `mapstructure:"mail_from"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	File      string `mapstructure:"file"`
	HTTPLevel string `mapstructure:"http_level"`
}

// Load loads configuration from an optional YAML file plus HOOKRELAY_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.PublicURL = strings.TrimRight(cfg.Server.PublicURL, "/")
	cfg.Authority.URL = strings.TrimRight(cfg.Authority.URL, "/")
	if cfg.Delivery.SigningKey == "" {
		cfg.Delivery.SigningKey = cfg.Authority.ServiceSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if _, err := utils.ParseCIDRs(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}
	if c.Authority.URL == "" {
		return errors.New("authority.url is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache.ttl: %s", c.Cache.TTL)
	}
	if c.Ingest.MaxBodyBytes <= 0 || c.Ingest.PreviewBytes <= 0 {
		return errors.New("ingest.max_body_bytes and ingest.preview_bytes must be positive")
	}
	if c.Retention.Window <= 0 || c.Retention.Interval <= 0 {
		return errors.New("retention.window and retention.interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})

	// Database defaults (SQLite file inside the data dir)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.data_dir", "./data")
	v.SetDefault("database.database", "hookrelay.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "hookrelay")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.log_level", "warn")

	// Credential authority defaults
	v.SetDefault("authority.url", "http://localhost:3100")
	v.SetDefault("authority.service_secret", "")
	v.SetDefault("authority.service_name", "hookrelay")
	v.SetDefault("authority.timeout", "5s")

	// Credential cache defaults
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.size", 10000)

	// Ingestion defaults
	v.SetDefault("ingest.max_body_bytes", 1<<20) // 1 MiB
	v.SetDefault("ingest.preview_bytes", 1000)

	// Retention defaults
	v.SetDefault("retention.window", "168h") // 7 days
	v.SetDefault("retention.interval", "1h")

	// Rate limit defaults (control plane only)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 10)
	v.SetDefault("ratelimit.burst", 20)

	// Delivery defaults
	v.SetDefault("delivery.signing_key", "")
	v.SetDefault("delivery.issuer", "hookrelay")
	v.SetDefault("delivery.mail_from", "hookrelay@localhost")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.http_level", "info")
}
