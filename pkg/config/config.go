package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Lock          LockConfig
	Ledger        LedgerConfig
	Projection    ProjectionConfig
	Notifications NotificationConfig
	Documents     DocumentsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	RunMigrations bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates tokens issued by the identity provider.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LockConfig selects the mutual-exclusion backend for projection rows.
type LockConfig struct {
	Backend string
	TTL     time.Duration
}

// LedgerConfig tunes hour approval retries and modality tolerance.
type LedgerConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	HoursTolerance float64
}

// ProjectionConfig controls projection caching and drift repair.
type ProjectionConfig struct {
	CacheTTL          time.Duration
	ReconcileInterval time.Duration
}

// NotificationConfig governs post-commit event dispatch.
type NotificationConfig struct {
	Enabled bool
	Channel string
	Workers int
	Buffer  int
}

// DocumentsConfig verifies document references handed over by file storage.
type DocumentsConfig struct {
	SigningSecret string
	TokenTTL      time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		RunMigrations: v.GetBool("RUN_MIGRATIONS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("LOCK_BACKEND")))
	if backend != LockBackendRedis {
		backend = LockBackendMemory
	}
	cfg.Lock = LockConfig{
		Backend: backend,
		TTL:     parseDuration(v.GetString("LOCK_TTL"), 10*time.Second),
	}

	cfg.Ledger = LedgerConfig{
		MaxRetries:     v.GetInt("LEDGER_MAX_RETRIES"),
		RetryBaseDelay: parseDuration(v.GetString("LEDGER_RETRY_BASE_DELAY"), 20*time.Millisecond),
		HoursTolerance: v.GetFloat64("LEDGER_HOURS_TOLERANCE"),
	}

	cfg.Projection = ProjectionConfig{
		CacheTTL:          parseDuration(v.GetString("PROJECTION_CACHE_TTL"), 5*time.Minute),
		ReconcileInterval: parseDuration(v.GetString("PROJECTION_RECONCILE_INTERVAL"), 0),
	}

	cfg.Notifications = NotificationConfig{
		Enabled: v.GetBool("NOTIFY_ENABLED"),
		Channel: v.GetString("NOTIFY_CHANNEL"),
		Workers: v.GetInt("NOTIFY_WORKERS"),
		Buffer:  v.GetInt("NOTIFY_BUFFER"),
	}

	cfg.Documents = DocumentsConfig{
		SigningSecret: v.GetString("DOCUMENTS_SIGNING_SECRET"),
		TokenTTL:      parseDuration(v.GetString("DOCUMENTS_TOKEN_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "America/Bogota")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "etapa_productiva")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("RUN_MIGRATIONS", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOCK_BACKEND", LockBackendMemory)
	v.SetDefault("LOCK_TTL", "10s")

	v.SetDefault("LEDGER_MAX_RETRIES", 5)
	v.SetDefault("LEDGER_RETRY_BASE_DELAY", "20ms")
	v.SetDefault("LEDGER_HOURS_TOLERANCE", 0.5)

	v.SetDefault("PROJECTION_CACHE_TTL", "5m")
	v.SetDefault("PROJECTION_RECONCILE_INTERVAL", "1h")

	v.SetDefault("NOTIFY_ENABLED", true)
	v.SetDefault("NOTIFY_CHANNEL", "etapa-productiva.events")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER", 256)

	v.SetDefault("DOCUMENTS_SIGNING_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_TOKEN_TTL", "24h")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
