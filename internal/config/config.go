package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// MaxMessageBytes caps a single inbound WebSocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// HistoryLimit is the number of recent messages in a join snapshot.
	HistoryLimit         int           `mapstructure:"history_limit" yaml:"history_limit"`
	SendTimeout          time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	BroadcastConcurrency int           `mapstructure:"broadcast_concurrency" yaml:"broadcast_concurrency"`
	// MessagesPerMinute limits inbound frames per connection; 0 disables the limit.
	MessagesPerMinute int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	PingInterval      time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins" yaml:"cors_allow_origins"`

	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// StoreConfig selects and configures the persistence gateway.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, redis, memory

	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	PostgresURL      string `mapstructure:"postgres_url" yaml:"postgres_url"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns" yaml:"postgres_max_conns"`

	RedisAddr        string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisPrefix      string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	RedisMaxMessages int64  `mapstructure:"redis_max_messages" yaml:"redis_max_messages"`
}

// UploadConfig configures the file upload side channel.
type UploadConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey   string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey   string        `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket      string        `mapstructure:"bucket" yaml:"bucket"`
	Region      string        `mapstructure:"region" yaml:"region"`
	UseSSL      bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	MaxBytes    int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
	URLExpiry   time.Duration `mapstructure:"url_expiry" yaml:"url_expiry"`
	AllowedExts []string      `mapstructure:"allowed_exts" yaml:"allowed_exts"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		MaxMessageBytes:      1 << 20,
		HistoryLimit:         20,
		SendTimeout:          5 * time.Second,
		BroadcastConcurrency: 16,
		MessagesPerMinute:    600,
		PingInterval:         20 * time.Second,
		CORSAllowOrigins:     []string{"*"},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Driver:           "sqlite",
			SQLitePath:       "wireboard.db",
			PostgresMaxConns: 10,
			RedisAddr:        "localhost:6379",
			RedisPrefix:      "wireboard",
			RedisMaxMessages: 1000,
		},
		Upload: UploadConfig{
			Enabled:   false,
			Endpoint:  "localhost:9000",
			Bucket:    "wireboard-uploads",
			Region:    "us-east-1",
			MaxBytes:  10 << 20,
			URLExpiry: time.Hour,
			AllowedExts: []string{
				".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp",
				".pdf", ".txt", ".md",
				".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
			},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command-line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
}
