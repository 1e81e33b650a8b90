package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".hookrelay"

// Config represents the client configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// ServerConfig holds server connection settings.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig holds settings for `events watch`.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Limit    int           `mapstructure:"limit"`
}

// Load loads configuration from file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("HOOKRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.URL = strings.TrimRight(cfg.Server.URL, "/")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.url", "http://localhost:3000")
	v.SetDefault("server.timeout", "15s")

	v.SetDefault("auth.token", "")

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	// Watch defaults
	v.SetDefault("watch.interval", "3s")
	v.SetDefault("watch.limit", 50)
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home dir: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// SaveToken saves auth token to config file.
func SaveToken(token string) error {
	return save("auth.token", token)
}

// SaveServer saves the server base URL to config file.
func SaveServer(url string) error {
	return save("server.url", strings.TrimRight(url, "/"))
}

// save writes one key into $HOME/.hookrelay/config.yaml, keeping other keys.
func save(key string, value interface{}) error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	// Create config directory if not exists
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))

	// Try to read existing config
	_ = v.ReadInConfig()

	v.Set(key, value)

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if err := v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}
