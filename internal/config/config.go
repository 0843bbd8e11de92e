// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvProduction はAPP_ENVの本番環境を表す値。
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// App
	AppEnv   string
	LogLevel string

	// Database
	DatabaseURL string
	RedisURL    string // 空の場合はセッションをPostgreSQLに保存する

	// GitHub OAuth（3項目すべて設定された場合のみ有効）
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	OAuthEnabled       bool

	// Session
	SessionSecret          string
	SessionMaxAge          int // 秒
	SessionCleanupInterval time.Duration

	// Rate Limit（1分あたりの回数）
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string
	ClientURL  string // OAuth完了後のリダイレクト先
	StaticDir  string // SPAの配信ディレクトリ。空の場合は配信しない

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 本番環境以外では、カレントディレクトリの.envを先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != EnvProduction {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.AppEnv = getEnvString("APP_ENV", EnvDevelopment)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubCallbackURL = os.Getenv("GITHUB_CALLBACK_URL")
	cfg.OAuthEnabled = cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" && cfg.GitHubCallbackURL != ""

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 7*24*60*60)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ClientURL = getEnvString("CLIENT_URL", "/")
	cfg.StaticDir = os.Getenv("STATIC_DIR")
	cfg.CookieSecure = cfg.AppEnv != EnvDevelopment
	cfg.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	cfg.CORSAllowedOrigin = os.Getenv("CORS_ALLOWED_ORIGIN")

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}

	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
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
