package config

import (
	"errors"
	"io/fs"
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
	// SourceHTTP reads journal data through the REST backend.
	SourceHTTP = "http"
	// SourcePostgres reads journal data straight from the backend database.
	SourcePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Backend     BackendConfig
	Journal     JournalConfig
	Reference   ReferenceConfig
	Recognition RecognitionConfig
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

// JWTConfig holds the shared secret used to verify bearer tokens. Verification is skipped when empty.
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

// BackendConfig points at the REST backend owning journal persistence.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// JournalConfig tunes matrix assembly.
type JournalConfig struct {
	Source           string
	FetchConcurrency int
	StrictRecords    bool
}

// ReferenceConfig controls caching of group and discipline listings.
type ReferenceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RecognitionConfig bounds photo uploads for bulk recognition.
type RecognitionConfig struct {
	MaxUploadBytes int64
	MaxDimension   int
	JPEGQuality    int
	Timeout        time.Duration
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

	cfg.Backend = BackendConfig{
		BaseURL: strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("BACKEND_TIMEOUT"), 10*time.Second),
	}

	source := strings.ToLower(strings.TrimSpace(v.GetString("JOURNAL_SOURCE")))
	if source != SourcePostgres {
		source = SourceHTTP
	}
	if source == SourcePostgres && cfg.JWT.Secret == "" {
		return nil, errors.New("JOURNAL_SOURCE=postgres requires JWT_SECRET, edit rights are derived from the verified token subject")
	}
	concurrency := v.GetInt("JOURNAL_FETCH_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 8
	}
	cfg.Journal = JournalConfig{
		Source:           source,
		FetchConcurrency: concurrency,
		StrictRecords:    v.GetBool("JOURNAL_STRICT_RECORDS"),
	}

	cfg.Reference = ReferenceConfig{
		CacheEnabled: v.GetBool("ENABLE_REFERENCE_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REFERENCE_CACHE_TTL"), 10*time.Minute),
	}

	maxUpload := v.GetInt64("RECOGNITION_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 15 * 1024 * 1024
	}
	cfg.Recognition = RecognitionConfig{
		MaxUploadBytes: maxUpload,
		MaxDimension:   v.GetInt("RECOGNITION_MAX_DIMENSION"),
		JPEGQuality:    v.GetInt("RECOGNITION_JPEG_QUALITY"),
		Timeout:        parseDuration(v.GetString("RECOGNITION_TIMEOUT"), 2*time.Minute),
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
	v.SetDefault("DB_NAME", "university_journal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8888")
	v.SetDefault("BACKEND_TIMEOUT", "10s")

	v.SetDefault("JOURNAL_SOURCE", SourceHTTP)
	v.SetDefault("JOURNAL_FETCH_CONCURRENCY", 8)
	v.SetDefault("JOURNAL_STRICT_RECORDS", false)

	v.SetDefault("ENABLE_REFERENCE_CACHE", false)
	v.SetDefault("REFERENCE_CACHE_TTL", "10m")

	v.SetDefault("RECOGNITION_MAX_UPLOAD_BYTES", 15*1024*1024)
	v.SetDefault("RECOGNITION_MAX_DIMENSION", 1920)
	v.SetDefault("RECOGNITION_JPEG_QUALITY", 90)
	v.SetDefault("RECOGNITION_TIMEOUT", "2m")
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
