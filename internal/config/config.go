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

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（いずれも1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitLogin   int

	// Viewer
	ViewerIdleTimeout time.Duration

	// Change feed
	NotifyChannel        string
	ListenerMinReconnect time.Duration
	ListenerMaxReconnect time.Duration

	// Link check
	LinkCheckInterval      time.Duration
	LinkCheckTimeout       time.Duration
	LinkCheckMaxConcurrent int
	LinkCheckMaxSize       int64

	// Cleanup
	SessionCleanupInterval time.Duration

	// Logging
	LogLevel string

	// RSS
	FeedTitle string
}

// AdminCredentials は create-admin コマンドで作成する管理者の認証情報。
type AdminCredentials struct {
	Email    string
	Password string
}

// LoadEnvFile は ENV_FILE（デフォルト .env）を読み込み、未設定の環境変数のみを補う。
// ファイルが存在しない場合はエラーにしない。
func LoadEnvFile() error {
	path := getEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ViewerIdleTimeout = getEnvDuration("VIEWER_IDLE_TIMEOUT", 30*time.Minute)
	cfg.NotifyChannel = getEnvString("NOTIFY_CHANNEL", "catalog_changes")
	cfg.ListenerMinReconnect = getEnvDuration("LISTENER_MIN_RECONNECT", 10*time.Second)
	cfg.ListenerMaxReconnect = getEnvDuration("LISTENER_MAX_RECONNECT", time.Minute)
	cfg.LinkCheckInterval = getEnvDuration("LINKCHECK_INTERVAL", time.Hour)
	cfg.LinkCheckTimeout = getEnvDuration("LINKCHECK_TIMEOUT", 10*time.Second)
	cfg.LinkCheckMaxConcurrent = getEnvInt("LINKCHECK_MAX_CONCURRENT", 5)
	cfg.LinkCheckMaxSize = getEnvInt64("LINKCHECK_MAX_SIZE", 5242880)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.FeedTitle = getEnvString("FEED_TITLE", "Tipflix Latest Releases")

	return cfg, nil
}

// LoadAdminCredentials は ADMIN_EMAIL と ADMIN_PASSWORD を読み込む。
func LoadAdminCredentials() (*AdminCredentials, error) {
	creds := &AdminCredentials{
		Email:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}

	var missing []string
	if creds.Email == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}
	if creds.Password == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return creds, nil
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
