package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICT_SERVER_CORS_ORIGINS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "PREDICT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PREDICT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PREDICT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PREDICT_DATABASE_NAME")
	setStr(&cfg.Database.User, "PREDICT_DATABASE_USER")
	setStr(&cfg.Database.Password, "PREDICT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PREDICT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PREDICT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PREDICT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PREDICT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICT_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.RPCURL, "PREDICT_ORACLE_RPC_URL")
	setInt64(&cfg.Oracle.MaxStaleSecs, "PREDICT_ORACLE_MAX_STALE_SECS")

	// ── Market policy ──
	setInt64(&cfg.Market.MinVoteStake, "PREDICT_MARKET_MIN_VOTE_STAKE")
	setInt64(&cfg.Market.MinDisputeStake, "PREDICT_MARKET_MIN_DISPUTE_STAKE")
	setInt64(&cfg.Market.DisputeExtensionHours, "PREDICT_MARKET_DISPUTE_EXTENSION_HOURS")
	setInt64(&cfg.Market.FeePercent, "PREDICT_MARKET_FEE_PERCENT")
	setInt64(&cfg.Market.MaxDurationDays, "PREDICT_MARKET_MAX_DURATION_DAYS")

	// ── Breaker ──
	setInt64(&cfg.Breaker.MaxErrorRate, "PREDICT_BREAKER_MAX_ERROR_RATE")
	setInt64(&cfg.Breaker.MaxLatencyMS, "PREDICT_BREAKER_MAX_LATENCY_MS")
	setInt64(&cfg.Breaker.MinLiquidity, "PREDICT_BREAKER_MIN_LIQUIDITY")
	setInt64(&cfg.Breaker.FailureThreshold, "PREDICT_BREAKER_FAILURE_THRESHOLD")
	setInt64(&cfg.Breaker.RecoveryTimeoutSecs, "PREDICT_BREAKER_RECOVERY_TIMEOUT_SECS")
	setInt64(&cfg.Breaker.HalfOpenMaxRequests, "PREDICT_BREAKER_HALF_OPEN_MAX_REQUESTS")
	setBool(&cfg.Breaker.AutoRecoveryEnabled, "PREDICT_BREAKER_AUTO_RECOVERY_ENABLED")

	// ── Admin ──
	setStringSlice(&cfg.Admin.Identities, "PREDICT_ADMIN_IDENTITIES")
	setStr(&cfg.Admin.APIKey, "PREDICT_ADMIN_API_KEY")
	setStr(&cfg.Admin.EncryptedKeyPath, "PREDICT_ADMIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Admin.KeyPassword, "PREDICT_ADMIN_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICT_MODE")
	setStr(&cfg.LogLevel, "PREDICT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
