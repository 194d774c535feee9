package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server           ServerConfig           `mapstructure:"server"`
	Database         DatabasesConfig        `mapstructure:"database"`
	Logging          LoggingConfig          `mapstructure:"logging"`
	Idempotency      IdempotencyConfig      `mapstructure:"idempotency"`
	AmendmentHistory AmendmentHistoryConfig `mapstructure:"amendment_history"`
	ConsentExpiry    ConsentExpiryConfig    `mapstructure:"consent_expiry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabasesConfig holds all database configurations
type DatabasesConfig struct {
	Consent DatabaseConfig `mapstructure:"consent"`
}

// DatabaseConfig holds individual database configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// IdempotencyConfig holds the duplicate-request detection settings
type IdempotencyConfig struct {
	Enabled              bool     `mapstructure:"enabled"`
	AllowedWindowSeconds int64    `mapstructure:"allowed_window_seconds"`
	HeaderName           string   `mapstructure:"header_name"`
	AllowedConsentTypes  []string `mapstructure:"allowed_consent_types"`
}

// AllowedWindow returns the dedup window as a duration
func (i *IdempotencyConfig) AllowedWindow() time.Duration {
	return time.Duration(i.AllowedWindowSeconds) * time.Second
}

// AmendmentHistoryConfig holds the amendment-history settings. FailOnError
// governs whether a failed history write aborts the surrounding status-change
// transaction; by default history is best-effort auditing and failures are
// logged only.
type AmendmentHistoryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	FailOnError bool `mapstructure:"fail_on_error"`
}

// ConsentExpiryConfig drives the background sweep that moves overdue consents
// into expired.
type ConsentExpiryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
	}

	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("CONSENT_MGT")

	v.SetDefault("idempotency.header_name", "x-idempotency-key")
	v.SetDefault("idempotency.allowed_window_seconds", 1440)
	v.SetDefault("logging.level", "info")
	v.SetDefault("consent_expiry.interval", "5m")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Consent.Hostname == "" {
		return fmt.Errorf("database hostname is required")
	}

	if config.Database.Consent.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Idempotency.Enabled {
		if config.Idempotency.HeaderName == "" {
			return fmt.Errorf("idempotency header name is required when idempotency is enabled")
		}
		if config.Idempotency.AllowedWindowSeconds <= 0 {
			return fmt.Errorf("idempotency allowed window must be positive")
		}
		if len(config.Idempotency.AllowedConsentTypes) == 0 {
			return fmt.Errorf("at least one consent type must be eligible when idempotency is enabled")
		}
	}

	if config.ConsentExpiry.Enabled && config.ConsentExpiry.Interval <= 0 {
		return fmt.Errorf("consent expiry interval must be positive")
	}

	return nil
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}
