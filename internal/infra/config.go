package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	StorageDriver      string
	StoragePath        string
	StorageBaseURL     string
	StorageSigningKey  string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioUseSSL        bool
	ArtifactBucket     string
	MetadataBucket     string
	SignedURLTTL       time.Duration
	GeminiAPIKey       string
	GeminiBaseURL      string
	DefaultImageModel  string
	DefaultVideoModel  string
	GeoIPDBPath        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	ResumeStaleAfter   time.Duration
	ResumeScanInterval time.Duration
}

const (
	StorageDriverFS    = "fs"
	StorageDriverMinio = "minio"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/v1/files", port)),
		StorageSigningKey:  os.Getenv("STORAGE_SIGNING_KEY"),
		MinioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		ArtifactBucket:     getEnv("ARTIFACT_BUCKET", "generations"),
		MetadataBucket:     getEnv("METADATA_BUCKET", "generation-metadata"),
		SignedURLTTL:       time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 3600)),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DefaultImageModel:  getEnv("DEFAULT_IMAGE_MODEL", "imagen-4.0-generate-001"),
		DefaultVideoModel:  getEnv("DEFAULT_VIDEO_MODEL", "veo-3.0-generate-001"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ResumeStaleAfter:   time.Second * time.Duration(getEnvInt("RESUME_STALE_AFTER_SECONDS", 120)),
		ResumeScanInterval: time.Second * time.Duration(getEnvInt("RESUME_SCAN_INTERVAL_SECONDS", 15)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
		if cfg.StorageSigningKey == "" {
			return nil, fmt.Errorf("STORAGE_SIGNING_KEY is required for the fs storage driver")
		}
	case StorageDriverMinio:
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required for the minio storage driver")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
