// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージドライバ
const (
	StorageDriverLocal = "local"
	StorageDriverMinIO = "minio"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth
	TokenTTL time.Duration

	// Storage
	StorageDriver  string
	FolderPath     string
	MaxUploadBytes int64
	MinIO          MinIOConfig

	// Worker
	WorkerConcurrency int
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffMax     time.Duration
	MetricsPort       string // ワーカーが /metrics を公開するポート

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitConnect int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// MinIOConfig はMinIO（S3互換）ストレージの接続設定。
// STORAGE_DRIVER=minio の場合のみ使用する。
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", StorageDriverLocal))
	if cfg.StorageDriver == StorageDriverMinIO {
		cfg.MinIO = MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnvString("MINIO_BUCKET", "files-manager"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		}
		if cfg.MinIO.Endpoint == "" {
			missing = append(missing, "MINIO_ENDPOINT")
		}
		if cfg.MinIO.AccessKey == "" {
			missing = append(missing, "MINIO_ACCESS_KEY")
		}
		if cfg.MinIO.SecretKey == "" {
			missing = append(missing, "MINIO_SECRET_KEY")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.StorageDriver != StorageDriverLocal && cfg.StorageDriver != StorageDriverMinIO {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q", cfg.StorageDriver)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.FolderPath = getEnvString("FOLDER_PATH", "/tmp/files_manager")
	cfg.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", 32<<20)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.JobMaxAttempts = getEnvInt("JOB_MAX_ATTEMPTS", 3)
	cfg.JobBackoffBase = getEnvDuration("JOB_BACKOFF_BASE", time.Second)
	cfg.JobBackoffMax = getEnvDuration("JOB_BACKOFF_MAX", time.Minute)
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitConnect = getEnvInt("RATE_LIMIT_CONNECT", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
