// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストレージドライバー
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// EnvProduction は本番環境を表すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	AppEnv      string
	LogLevel    string
	ServerPort  string
	MetricsPort string
	FrontendURL string

	// Storage
	StorageDriver string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	// Auth
	JWTSecret     string
	TokenTTL      time.Duration
	HandoffTTL    time.Duration
	OAuthStateTTL time.Duration
	BcryptCost    int

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit
	RateLimitAuth       int
	RateLimitAuthWindow time.Duration
	RateLimitGeneral    int
	RateLimitListing    int
	RateLimitSubmission int

	// Payments
	StripeSecretKey string
	StripeAPIURL    string

	// Image storage
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Worker
	ExpiryInterval time.Duration
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// PaymentsEnabled は決済事業者のキーが設定されているかどうかを返す。
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

// ImageUploadEnabled は画像ストレージが設定されているかどうかを返す。
func (c *Config) ImageUploadEnabled() bool {
	return c.MinioEndpoint != ""
}

// LoadDotEnv は指定された.envファイルを読み込む。既に設定済みの環境変数は上書きしない。
// 存在しないファイルは無視する。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(".envファイルの読み込みに失敗しました (%s): %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	var missing []string

	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", DriverPostgres))
	switch cfg.StorageDriver {
	case DriverPostgres:
		cfg.DatabaseURL = require("DATABASE_URL")
	case DriverMongo:
		cfg.MongoURI = require("MONGO_URI")
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q (want %q or %q)", cfg.StorageDriver, DriverPostgres, DriverMongo)
	}

	cfg.JWTSecret = require("JWT_SECRET")
	cfg.GoogleClientID = require("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = require("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = require("GOOGLE_REDIRECT_URL")
	cfg.FrontendURL = strings.TrimRight(require("FRONTEND_URL"), "/")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3002")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "roomie")
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.HandoffTTL = getEnvDuration("HANDOFF_TTL", 5*time.Minute)
	cfg.OAuthStateTTL = getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.CookieSecure = cfg.AppEnv == EnvProduction
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 100)
	cfg.RateLimitAuthWindow = getEnvDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitListing = getEnvInt("RATE_LIMIT_LISTING", 10)
	cfg.RateLimitSubmission = getEnvInt("RATE_LIMIT_SUBMISSION", 30)
	cfg.StripeSecretKey = getEnvString("STRIPE_SECRET_KEY", "")
	cfg.StripeAPIURL = getEnvString("STRIPE_API_URL", "")
	cfg.MinioEndpoint = getEnvString("MINIO_ENDPOINT", "")
	cfg.MinioAccessKey = getEnvString("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = getEnvString("MINIO_SECRET_KEY", "")
	cfg.MinioBucket = getEnvString("MINIO_BUCKET", "")
	cfg.MinioUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinioPublicURL = getEnvString("MINIO_PUBLIC_URL", "")
	cfg.ExpiryInterval = getEnvDuration("EXPIRY_INTERVAL", time.Hour)

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
