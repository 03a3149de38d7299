// Package config defines the top-level configuration for the prediction
// market resolver and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDICT_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Market   MarketConfig   `toml:"market"`
	Breaker  BreakerConfig  `toml:"breaker"`
	Admin    AdminConfig    `toml:"admin"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the market
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds price-feed provider parameters.
type OracleConfig struct {
	RPCURL       string `toml:"rpc_url"`
	MaxStaleSecs int64  `toml:"max_stale_secs"`
}

// MarketConfig holds market policy parameters.
type MarketConfig struct {
	MinVoteStake          int64 `toml:"min_vote_stake"`
	MinDisputeStake       int64 `toml:"min_dispute_stake"`
	DisputeExtensionHours int64 `toml:"dispute_extension_hours"`
	FeePercent            int64 `toml:"fee_percent"`
	MaxDurationDays       int64 `toml:"max_duration_days"`
}

// BreakerConfig holds the initial circuit-breaker thresholds installed on
// first boot. Subsequent changes go through the admin API.
type BreakerConfig struct {
	MaxErrorRate        int64 `toml:"max_error_rate"`
	MaxLatencyMS        int64 `toml:"max_latency_ms"`
	MinLiquidity        int64 `toml:"min_liquidity"`
	FailureThreshold    int64 `toml:"failure_threshold"`
	RecoveryTimeoutSecs int64 `toml:"recovery_timeout_secs"`
	HalfOpenMaxRequests int64 `toml:"half_open_max_requests"`
	AutoRecoveryEnabled bool  `toml:"auto_recovery_enabled"`
}

// AdminConfig holds the admin identity list and the encrypted API key
// material.
type AdminConfig struct {
	Identities       []string `toml:"identities"`
	APIKey           string   `toml:"api_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictmarket-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			RPCURL:       "https://eth.llamarpc.com",
			MaxStaleSecs: 3600,
		},
		Market: MarketConfig{
			MinVoteStake:          100,
			MinDisputeStake:       1000,
			DisputeExtensionHours: 24,
			FeePercent:            2,
			MaxDurationDays:       365,
		},
		Breaker: BreakerConfig{
			MaxErrorRate:        50,
			MaxLatencyMS:        5000,
			MinLiquidity:        1000,
			FailureThreshold:    5,
			RecoveryTimeoutSecs: 300,
			HalfOpenMaxRequests: 3,
			AutoRecoveryEnabled: true,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Oracle
	if c.Oracle.RPCURL == "" {
		errs = append(errs, "oracle: rpc_url must not be empty")
	}
	if c.Oracle.MaxStaleSecs < 0 {
		errs = append(errs, "oracle: max_stale_secs must be >= 0")
	}

	// Market policy
	if c.Market.MinVoteStake <= 0 {
		errs = append(errs, "market: min_vote_stake must be > 0")
	}
	if c.Market.MinDisputeStake <= 0 {
		errs = append(errs, "market: min_dispute_stake must be > 0")
	}
	if c.Market.DisputeExtensionHours <= 0 {
		errs = append(errs, "market: dispute_extension_hours must be > 0")
	}
	if c.Market.FeePercent < 0 || c.Market.FeePercent > 100 {
		errs = append(errs, fmt.Sprintf("market: fee_percent must be 0-100, got %d", c.Market.FeePercent))
	}
	if c.Market.MaxDurationDays <= 0 {
		errs = append(errs, "market: max_duration_days must be > 0")
	}

	// Breaker
	if c.Breaker.MaxErrorRate < 0 || c.Breaker.MaxErrorRate > 100 {
		errs = append(errs, fmt.Sprintf("breaker: max_error_rate must be 0-100, got %d", c.Breaker.MaxErrorRate))
	}
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker: failure_threshold must be >= 1")
	}
	if c.Breaker.RecoveryTimeoutSecs < 1 {
		errs = append(errs, "breaker: recovery_timeout_secs must be >= 1")
	}
	if c.Breaker.HalfOpenMaxRequests < 1 {
		errs = append(errs, "breaker: half_open_max_requests must be >= 1")
	}

	// Admin
	if len(c.Admin.Identities) == 0 {
		errs = append(errs, "admin: at least one identity must be configured")
	}
	if c.Admin.EncryptedKeyPath != "" && c.Admin.KeyPassword == "" {
		errs = append(errs, "admin: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
