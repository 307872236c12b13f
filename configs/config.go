package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Database struct {
	Driver      string `validate:"oneof=postgres sqlite"`
	PostgresURI string `validate:"required_if=Driver postgres"`
	SQLitePath  string `validate:"required_if=Driver sqlite"`
}

// Source is the connection source of the selected driver.
func (d Database) Source() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	return d.PostgresURI
}

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string `validate:"omitempty,url"`
}

func (r R2) Enabled() bool {
	return r.AccountID != "" && r.BucketName != "" && r.PublicURL != ""
}

type Instagram struct {
	GraphURL          string `validate:"required,url"`
	APIVersion        string `validate:"required"`
	RequestsPerMinute int    `validate:"gt=0"`
	ContainerTimeout  time.Duration
}

type Telegram struct {
	Token       string
	ChatID      int64
	PollTimeout time.Duration
}

func (t Telegram) Enabled() bool {
	return t.Token != ""
}

type Pipeline struct {
	MaxRetries       int           `validate:"gte=0,lte=20"`
	RepostTTL        time.Duration `validate:"gt=0"`
	BackoffBase      time.Duration `validate:"gt=0"`
	BackoffMax       time.Duration `validate:"gtefield=BackoffBase"`
	PostsPerDay      int           `validate:"gte=1,lte=48"`
	WindowStartHour  int           `validate:"gte=0,lte=23"`
	WindowEndHour    int           `validate:"gtfield=WindowStartHour,lte=24"`
	MaxJitter        time.Duration `validate:"gte=0"`
	Timezone         string        `validate:"required"`
	DefaultCategory  string
	AutoPostEnabled  bool
	DryRun           bool
	DrainBatch       int           `validate:"gt=0"`
	DrainConcurrency int           `validate:"gt=0"`
	StaleClaimAfter  time.Duration `validate:"gt=0"`
	LockGracePeriod  time.Duration `validate:"gte=0"`
	TickSpec         string        `validate:"required"`
	CleanupSpec      string        `validate:"required"`
	TokenRefreshSpec string        `validate:"required"`
}

type Config struct {
	Database   Database
	RedisURI   string
	Instagram  Instagram
	R2         R2
	Telegram   Telegram
	Pipeline   Pipeline
	Port       int    `validate:"gt=0,lte=65535"`
	SecretKey  string `validate:"required,len=32"`
	CookieName string `validate:"required"`
	LogLevel   string `validate:"oneof=trace debug info warn error"`
	LogConsole bool
}

func LoadConfig() *Config {
	return &Config{
		Database: Database{
			Driver:      getEnv("DB_DRIVER", "postgres"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			SQLitePath:  getEnv("SQLITE_PATH", "data/postqueue.db"),
		},
		RedisURI: getEnv("REDIS_URI", ""),
		Instagram: Instagram{
			GraphURL:          getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com"),
			APIVersion:        getEnv("INSTAGRAM_API_VERSION", "v21.0"),
			RequestsPerMinute: getEnvInt("INSTAGRAM_REQUESTS_PER_MINUTE", 30),
			ContainerTimeout:  getEnvDuration("INSTAGRAM_CONTAINER_TIMEOUT", 2*time.Minute),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Telegram: Telegram{
			Token:       getEnv("TELEGRAM_TOKEN", ""),
			ChatID:      getEnvInt64("TELEGRAM_CHAT_ID", 0),
			PollTimeout: getEnvDuration("TELEGRAM_POLL_TIMEOUT", 10*time.Second),
		},
		Pipeline: Pipeline{
			MaxRetries:       getEnvInt("MAX_RETRIES", 3),
			RepostTTL:        getEnvDuration("REPOST_TTL", 30*24*time.Hour),
			BackoffBase:      getEnvDuration("BACKOFF_BASE", 5*time.Minute),
			BackoffMax:       getEnvDuration("BACKOFF_MAX", 6*time.Hour),
			PostsPerDay:      getEnvInt("POSTS_PER_DAY", 3),
			WindowStartHour:  getEnvInt("WINDOW_START_HOUR", 9),
			WindowEndHour:    getEnvInt("WINDOW_END_HOUR", 21),
			MaxJitter:        getEnvDuration("MAX_JITTER", 30*time.Minute),
			Timezone:         getEnv("TIMEZONE", "UTC"),
			DefaultCategory:  getEnv("DEFAULT_CATEGORY", ""),
			AutoPostEnabled:  getEnvBool("AUTO_POST_ENABLED", false),
			DryRun:           getEnvBool("DRY_RUN", false),
			DrainBatch:       getEnvInt("DRAIN_BATCH", 20),
			DrainConcurrency: getEnvInt("DRAIN_CONCURRENCY", 4),
			StaleClaimAfter:  getEnvDuration("STALE_CLAIM_AFTER", 30*time.Minute),
			LockGracePeriod:  getEnvDuration("LOCK_GRACE_PERIOD", 7*24*time.Hour),
			TickSpec:         getEnv("TICK_SPEC", "@every 00h01m00s"),
			CleanupSpec:      getEnv("CLEANUP_SPEC", "@every 00h10m00s"),
			TokenRefreshSpec: getEnv("TOKEN_REFRESH_SPEC", "@every 06h00m00s"),
		},
		Port:       getEnvInt("PORT", 3000),
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postqueue_token"),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogConsole: getEnvBool("LOG_CONSOLE", true),
	}
}

// Validate checks field constraints and that the timezone can be loaded.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Pipeline.Timezone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
