package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Moderation    ModerationConfig
	Coverage      CoverageConfig
	Geocoder      GeocoderConfig
	Research      ResearchConfig
	Cache         CacheConfig
	Notifications NotificationConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ModerationConfig tunes the review workflow.
type ModerationConfig struct {
	// SystemUserID owns NEW_ENTITY approvals whose payload names no owner.
	SystemUserID string
	// StrictUpdates rejects UPDATE_ENTITY/UPDATE_IMAGE applies whose oldValue no longer matches.
	StrictUpdates      bool
	DuplicateThreshold float64
}

// CoverageConfig describes the service area as a bounding box.
type CoverageConfig struct {
	Enabled bool
	MinLat  float64
	MaxLat  float64
	MinLon  float64
	MaxLon  float64
	Message string
}

type GeocoderConfig struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

type ResearchConfig struct {
	URL     string
	Timeout time.Duration
}

// CacheConfig governs the entity read cache.
type CacheConfig struct {
	Enabled   bool
	EntityTTL time.Duration
}

// NotificationConfig sizes the notification worker queue.
type NotificationConfig struct {
	Enabled bool
	Workers int
	Retries int
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

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Moderation = ModerationConfig{
		SystemUserID:       strings.TrimSpace(v.GetString("MODERATION_SYSTEM_USER_ID")),
		StrictUpdates:      v.GetBool("MODERATION_STRICT_UPDATES"),
		DuplicateThreshold: parseFloat(v.GetString("MODERATION_DUPLICATE_THRESHOLD"), 0.85),
	}

	cfg.Coverage = CoverageConfig{
		Enabled: v.GetBool("COVERAGE_ENABLED"),
		MinLat:  parseFloat(v.GetString("COVERAGE_MIN_LAT"), -90),
		MaxLat:  parseFloat(v.GetString("COVERAGE_MAX_LAT"), 90),
		MinLon:  parseFloat(v.GetString("COVERAGE_MIN_LON"), -180),
		MaxLon:  parseFloat(v.GetString("COVERAGE_MAX_LON"), 180),
		Message: v.GetString("COVERAGE_MESSAGE"),
	}

	cfg.Geocoder = GeocoderConfig{
		URL:       v.GetString("GEOCODER_URL"),
		Timeout:   parseDuration(v.GetString("GEOCODER_TIMEOUT"), 5*time.Second),
		UserAgent: v.GetString("GEOCODER_USER_AGENT"),
	}

	cfg.Research = ResearchConfig{
		URL:     v.GetString("RESEARCH_URL"),
		Timeout: parseDuration(v.GetString("RESEARCH_TIMEOUT"), 60*time.Second),
	}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_ENTITY_CACHE"),
		EntityTTL: parseDuration(v.GetString("ENTITY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers: v.GetInt("NOTIFY_WORKERS"),
		Retries: v.GetInt("NOTIFY_RETRIES"),
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
	v.SetDefault("DB_NAME", "directory")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "directory-moderation-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MODERATION_SYSTEM_USER_ID", "")
	v.SetDefault("MODERATION_STRICT_UPDATES", false)
	v.SetDefault("MODERATION_DUPLICATE_THRESHOLD", "0.85")

	v.SetDefault("COVERAGE_ENABLED", false)
	v.SetDefault("COVERAGE_MIN_LAT", "-90")
	v.SetDefault("COVERAGE_MAX_LAT", "90")
	v.SetDefault("COVERAGE_MIN_LON", "-180")
	v.SetDefault("COVERAGE_MAX_LON", "180")
	v.SetDefault("COVERAGE_MESSAGE", "This location is outside our coverage area")

	v.SetDefault("GEOCODER_URL", "")
	v.SetDefault("GEOCODER_TIMEOUT", "5s")
	v.SetDefault("GEOCODER_USER_AGENT", "directory-moderation-api")

	v.SetDefault("RESEARCH_URL", "")
	v.SetDefault("RESEARCH_TIMEOUT", "60s")

	v.SetDefault("ENABLE_ENTITY_CACHE", false)
	v.SetDefault("ENTITY_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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

func parseFloat(raw string, fallback float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
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
