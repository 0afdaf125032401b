package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "WIREBOARD"
	envConfigDefaultPath = "WIREBOARD_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("history_limit", cfg.HistoryLimit)
	v.SetDefault("send_timeout", cfg.SendTimeout)
	v.SetDefault("broadcast_concurrency", cfg.BroadcastConcurrency)
	v.SetDefault("messages_per_minute", cfg.MessagesPerMinute)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("cors_allow_origins", cfg.CORSAllowOrigins)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)
	v.SetDefault("store.postgres_url", cfg.Store.PostgresURL)
	v.SetDefault("store.postgres_max_conns", cfg.Store.PostgresMaxConns)
	v.SetDefault("store.redis_addr", cfg.Store.RedisAddr)
	v.SetDefault("store.redis_password", cfg.Store.RedisPassword)
	v.SetDefault("store.redis_db", cfg.Store.RedisDB)
	v.SetDefault("store.redis_prefix", cfg.Store.RedisPrefix)
	v.SetDefault("store.redis_max_messages", cfg.Store.RedisMaxMessages)

	v.SetDefault("upload.enabled", cfg.Upload.Enabled)
	v.SetDefault("upload.endpoint", cfg.Upload.Endpoint)
	v.SetDefault("upload.access_key", cfg.Upload.AccessKey)
	v.SetDefault("upload.secret_key", cfg.Upload.SecretKey)
	v.SetDefault("upload.bucket", cfg.Upload.Bucket)
	v.SetDefault("upload.region", cfg.Upload.Region)
	v.SetDefault("upload.use_ssl", cfg.Upload.UseSSL)
	v.SetDefault("upload.max_bytes", cfg.Upload.MaxBytes)
	v.SetDefault("upload.url_expiry", cfg.Upload.URLExpiry)
	v.SetDefault("upload.allowed_exts", cfg.Upload.AllowedExts)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory", "redis":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return errors.New("config: store.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: history_limit must be positive, got %d", c.HistoryLimit)
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		return errors.New("config: upload.bucket is required when uploads are enabled")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
