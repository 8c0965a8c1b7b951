package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Store     StoreConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	AI        AIConfig
	Refresh   RefreshConfig
	NATS      NATSConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string // base of webhook callback addresses handed to the AI services
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN string
}

type StoreConfig struct {
	Driver     string // redis, postgres or memory
	MaxRetries int
}

type JWTConfig struct {
	Mode       string // jwt, or gateway when a reverse proxy forwards X-User-* headers
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	ClipsPerHour   int
	StreamsPerHour int
}

type AIConfig struct {
	ClipURL     string
	StreamURL   string
	Timeout     int // seconds, submit calls
	PollTimeout int // seconds, progress calls
}

// SubmitTimeout returns the bounded timeout for submit calls.
func (c AIConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ProgressTimeout returns the bounded timeout for progress calls.
func (c AIConfig) ProgressTimeout() time.Duration {
	return time.Duration(c.PollTimeout) * time.Second
}

type RefreshConfig struct {
	Enabled     bool
	Interval    int // seconds between background polls
	MaxAttempts int
}

type NATSConfig struct {
	URL     string
	Subject string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("POSTGRES_DSN")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.public_base_url", "WEBHOOK_BASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("postgres.dsn", "POSTGRES_DSN")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.max_retries", "STORE_MAX_RETRIES")
	_ = v.BindEnv("jwt.mode", "AUTH_MODE")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.clips_per_hour", "RATELIMIT_CLIPS_PER_HOUR")
	_ = v.BindEnv("ratelimit.streams_per_hour", "RATELIMIT_STREAMS_PER_HOUR")
	_ = v.BindEnv("ai.clip_url", "AI_CLIP_URL")
	_ = v.BindEnv("ai.stream_url", "AI_STREAM_URL")
	_ = v.BindEnv("ai.timeout", "AI_TIMEOUT")
	_ = v.BindEnv("ai.poll_timeout", "AI_POLL_TIMEOUT")
	_ = v.BindEnv("refresh.enabled", "REFRESH_ENABLED")
	_ = v.BindEnv("refresh.interval", "REFRESH_INTERVAL")
	_ = v.BindEnv("refresh.max_attempts", "REFRESH_MAX_ATTEMPTS")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("nats.subject", "NATS_SUBJECT")

	// Defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_base_url", "http://localhost:3000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.max_retries", 10)
	v.SetDefault("jwt.mode", "jwt")
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.clips_per_hour", 60)
	v.SetDefault("ratelimit.streams_per_hour", 20)

	// AI service defaults
	v.SetDefault("ai.clip_url", "http://localhost:5003")
	v.SetDefault("ai.stream_url", "http://localhost:5002")
	v.SetDefault("ai.timeout", 30)
	v.SetDefault("ai.poll_timeout", 10)

	// Background refresh defaults
	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.interval", 15)
	v.SetDefault("refresh.max_attempts", 240)

	v.SetDefault("nats.subject", "jobs.lifecycle")

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:          v.GetString("server.port"),
			Env:           v.GetString("server.env"),
			LogLevel:      v.GetString("server.log_level"),
			PublicBaseURL: strings.TrimRight(v.GetString("server.public_base_url"), "/"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("store.driver")),
			MaxRetries: v.GetInt("store.max_retries"),
		},
		JWT: JWTConfig{
			Mode:       strings.ToLower(v.GetString("jwt.mode")),
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			ClipsPerHour:   v.GetInt("ratelimit.clips_per_hour"),
			StreamsPerHour: v.GetInt("ratelimit.streams_per_hour"),
		},
		AI: AIConfig{
			ClipURL:     strings.TrimRight(v.GetString("ai.clip_url"), "/"),
			StreamURL:   strings.TrimRight(v.GetString("ai.stream_url"), "/"),
			Timeout:     v.GetInt("ai.timeout"),
			PollTimeout: v.GetInt("ai.poll_timeout"),
		},
		Refresh: RefreshConfig{
			Enabled:     v.GetBool("refresh.enabled"),
			Interval:    v.GetInt("refresh.interval"),
			MaxAttempts: v.GetInt("refresh.max_attempts"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Subject: v.GetString("nats.subject"),
		},
	}

	return cfg, nil
}
