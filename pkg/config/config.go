package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Credits   CreditsConfig
	Locks     LockConfig
	Import    ImportConfig
	Recovery  RecoveryConfig
	Analytics AnalyticsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify actor tokens issued elsewhere.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CreditsConfig drives hour to credit conversion and fallback thresholds.
type CreditsConfig struct {
	TheoryRate    decimal.Decimal
	PracticalRate decimal.Decimal
	Precision     int32
	// Requirements maps "umbrella:qualification" to required credits.
	Requirements map[string]decimal.Decimal
}

// LockConfig bounds how long a caller waits for a course, claim or student lock.
type LockConfig struct {
	WaitTimeout time.Duration
}

// ImportConfig sizes the course ingestion worker pool.
type ImportConfig struct {
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

// RecoveryConfig schedules the orphaned reservation sweep.
type RecoveryConfig struct {
	Enabled   bool
	Interval  time.Duration
	OrphanAge time.Duration
}

// AnalyticsConfig governs caching of claim analytics.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	requirements, err := ParseRequirements(v.GetString("QUALIFICATION_REQUIREMENTS"))
	if err != nil {
		return nil, err
	}
	cfg.Credits = CreditsConfig{
		TheoryRate:    parseDecimal(v.GetString("CREDIT_THEORY_RATE"), decimal.RequireFromString("0.0667")),
		PracticalRate: parseDecimal(v.GetString("CREDIT_PRACTICAL_RATE"), decimal.RequireFromString("0.0333")),
		Precision:     clampPrecision(v.GetInt("CREDIT_PRECISION")),
		Requirements:  requirements,
	}

	cfg.Locks = LockConfig{
		WaitTimeout: parseDuration(v.GetString("LOCK_WAIT_TIMEOUT"), 2*time.Second),
	}

	cfg.Import = ImportConfig{
		Workers:    v.GetInt("IMPORT_WORKERS"),
		BufferSize: v.GetInt("IMPORT_BUFFER"),
		Retries:    v.GetInt("IMPORT_RETRIES"),
		RetryDelay: parseDuration(v.GetString("IMPORT_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Recovery = RecoveryConfig{
		Enabled:   v.GetBool("ENABLE_RECOVERY"),
		Interval:  parseDuration(v.GetString("RECOVERY_INTERVAL"), 5*time.Minute),
		OrphanAge: parseDuration(v.GetString("RECOVERY_ORPHAN_AGE"), 15*time.Minute),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bprnd_credits")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CREDIT_THEORY_RATE", "0.0667")
	v.SetDefault("CREDIT_PRACTICAL_RATE", "0.0333")
	v.SetDefault("CREDIT_PRECISION", 2)
	v.SetDefault("QUALIFICATION_REQUIREMENTS", "")

	v.SetDefault("LOCK_WAIT_TIMEOUT", "2s")

	v.SetDefault("IMPORT_WORKERS", 2)
	v.SetDefault("IMPORT_BUFFER", 16)
	v.SetDefault("IMPORT_RETRIES", 3)
	v.SetDefault("IMPORT_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_RECOVERY", true)
	v.SetDefault("RECOVERY_INTERVAL", "5m")
	v.SetDefault("RECOVERY_ORPHAN_AGE", "15m")

	v.SetDefault("ENABLE_ANALYTICS", false)
	v.SetDefault("ANALYTICS_CACHE_TTL", "1m")
}

// RequirementKey builds the lookup key used by CreditsConfig.Requirements.
func RequirementKey(umbrella, qualification string) string {
	return strings.ToLower(strings.TrimSpace(umbrella)) + ":" + strings.ToLower(strings.TrimSpace(qualification))
}

// ParseRequirements reads "umbrella:qualification=credits" pairs separated by commas.
func ParseRequirements(raw string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal)
	for _, part := range splitAndTrim(raw) {
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			return nil, fmt.Errorf("invalid requirement %q: expected umbrella:qualification=credits", part)
		}
		scope := strings.SplitN(pair[0], ":", 2)
		if len(scope) != 2 || strings.TrimSpace(scope[0]) == "" || strings.TrimSpace(scope[1]) == "" {
			return nil, fmt.Errorf("invalid requirement scope %q", pair[0])
		}
		credits, err := decimal.NewFromString(strings.TrimSpace(pair[1]))
		if err != nil || !credits.IsPositive() {
			return nil, fmt.Errorf("invalid requirement credits %q", pair[1])
		}
		result[RequirementKey(scope[0], scope[1])] = credits
	}
	return result, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseDecimal(raw string, fallback decimal.Decimal) decimal.Decimal {
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// MaxCreditPrecision matches the NUMERIC(10, 4) credit columns.
const MaxCreditPrecision = 4

func clampPrecision(places int) int32 {
	if places < 0 {
		return 0
	}
	if places > MaxCreditPrecision {
		return MaxCreditPrecision
	}
	return int32(places)
}
