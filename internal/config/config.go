package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for interview-engine
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Interview InterviewConfig
	Gemini    GeminiConfig
	Cleanup   CleanupConfig
	Auth      AuthConfig
	LogLevel  string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN selects the
// in-memory repository.
type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
}

// RedisConfig holds Redis configuration. An empty address disables the
// cross-instance broadcast relay.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// InterviewConfig holds session orchestration settings
type InterviewConfig struct {
	MaxTurnsPerStage  int
	ReplyTimeout      time.Duration
	FeedbackTimeout   time.Duration
	DefaultDifficulty string
	PolicyDir         string
	SubscriberBuffer  int
}

// GeminiConfig holds the response generator settings. An empty API key
// selects the scripted offline generator.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// CleanupConfig holds idle session sweeper configuration
type CleanupConfig struct {
	Schedule    string
	IdleTimeout time.Duration
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	BootstrapAPIKey string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MaxOpenConns:  getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 2),
			MaxLifetime:   getEnvAsDuration("DATABASE_MAX_LIFETIME", 30*time.Minute),
			MigrationsDir: getEnv("MIGRATIONS_DIR", ""),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Interview: InterviewConfig{
			MaxTurnsPerStage:  getEnvAsInt("MAX_TURNS_PER_STAGE", 3),
			ReplyTimeout:      getEnvAsDuration("REPLY_TIMEOUT", 20*time.Second),
			FeedbackTimeout:   getEnvAsDuration("FEEDBACK_TIMEOUT", 30*time.Second),
			DefaultDifficulty: getEnv("DEFAULT_DIFFICULTY", "medium"),
			PolicyDir:         getEnv("POLICY_DIR", ""),
			SubscriberBuffer:  getEnvAsInt("SUBSCRIBER_BUFFER", 64),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Cleanup: CleanupConfig{
			Schedule:    getEnv("CLEANUP_SCHEDULE", "@every 5m"),
			IdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		},
		Auth: AuthConfig{
			BootstrapAPIKey: getEnv("API_KEY", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Interview.MaxTurnsPerStage < 1 {
		return fmt.Errorf("max turns per stage must be positive: %d", c.Interview.MaxTurnsPerStage)
	}

	if c.Interview.ReplyTimeout <= 0 || c.Interview.FeedbackTimeout <= 0 {
		return fmt.Errorf("generation timeouts must be positive")
	}

	if c.Interview.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber buffer must be positive: %d", c.Interview.SubscriberBuffer)
	}

	if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.Cleanup.Schedule, err)
	}

	if c.Cleanup.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive")
	}

	return nil
}

// UsesPostgres reports whether a database DSN is configured
func (c *Config) UsesPostgres() bool {
	return c.Database.DSN != ""
}

// UsesRedis reports whether the Redis relay is configured
func (c *Config) UsesRedis() bool {
	return c.Redis.Address != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
