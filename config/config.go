package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/joho/godotenv"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough credentials are present to talk to R2.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string
	R2             R2Config

	// Winner selection batches
	ChunkSize       int
	Workers         int
	QueueSize       int
	ChunkMaxRetries int
	RetryBaseDelay  time.Duration
	SelectionAt     string // "HH:MM" in Timezone, daily
	NotifyAt        string
	Timezone        string

	// Account mirror
	AccountSyncURL      string
	AccountSyncPath     string
	AccountSyncToken    string
	AccountSyncInterval time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Info("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

func Parse() Config {
	return Config{
		Port:           getString("PORT", "5200"),
		DatabaseURL:    getString("DATABASE_URL", ""),
		ServiceToken:   getString("RAILDROPS_SERVICE_TOKEN", ""),
		AllowedOrigins: parseList(getString("ALLOWED_ORIGINS", "http://localhost:3000")),
		R2: R2Config{
			AccountID:       getString("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     getString("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: getString("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          getString("R2_BUCKET_NAME", ""),
			CDNBaseURL:      getString("CDN_BASE_URL", ""),
		},
		ChunkSize:           getInt("WINNER_CHUNK_SIZE", 100),
		Workers:             getInt("WINNER_WORKERS", 4),
		QueueSize:           getInt("WINNER_QUEUE_SIZE", 256),
		ChunkMaxRetries:     getInt("WINNER_CHUNK_MAX_RETRIES", 3),
		RetryBaseDelay:      time.Duration(getInt("WINNER_RETRY_BASE_MS", 1000)) * time.Millisecond,
		SelectionAt:         getString("WINNER_SELECTION_AT", "03:00"),
		NotifyAt:            getString("WINNER_NOTIFY_AT", "09:00"),
		Timezone:            getString("TZ_NAME", "Europe/Oslo"),
		AccountSyncURL:      getString("ACCOUNT_SYNC_URL", ""),
		AccountSyncPath:     getString("ACCOUNT_SYNC_PATH", "/api/v1/public/accounts"),
		AccountSyncToken:    getString("ACCOUNT_SYNC_TOKEN", ""),
		AccountSyncInterval: time.Duration(getInt("ACCOUNT_SYNC_INTERVAL_SECONDS", 60)) * time.Second,
	}
}

// ParseClock splits "HH:MM" into hour and minute, falling back to def on bad input.
func ParseClock(s string, defHour, defMinute uint) (uint, uint) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return defHour, defMinute
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return defHour, defMinute
	}
	return uint(h), uint(m)
}

func parseList(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
