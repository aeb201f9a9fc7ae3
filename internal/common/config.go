package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Download DownloadConfig
	LLM      LLMConfig
	Tasks    TaskConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// DatabaseConfig holds storage configuration. Driver selects the adapter:
// "sqlite" (default, local file) or "postgres".
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DownloadConfig holds document acquisition configuration
type DownloadConfig struct {
	Timeout   time.Duration
	MaxSizeMB int
	TmpDir    string
}

// LLMConfig holds extraction service configuration
type LLMConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	UploadTimeout   time.Duration
	GenerateTimeout time.Duration
	RequestsPerSec  float64
}

// TaskConfig holds task tracker configuration
type TaskConfig struct {
	Retention     time.Duration
	EvictInterval time.Duration
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_URL", "./casetrace.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Download: DownloadConfig{
			Timeout:   getEnvAsDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxSizeMB: getEnvAsInt("MAX_FILE_SIZE_MB", 14),
			TmpDir:    getEnv("TMP_DIR", os.TempDir()),
		},
		LLM: LLMConfig{
			BaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			APIKey:          getEnv("GEMINI_API_KEY", ""),
			Model:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			MaxRetries:      getEnvAsInt("LLM_MAX_RETRIES", 3),
			BackoffBase:     getEnvAsDuration("LLM_BACKOFF_BASE", 1*time.Second),
			BackoffMax:      getEnvAsDuration("LLM_BACKOFF_MAX", 60*time.Second),
			UploadTimeout:   getEnvAsDuration("LLM_UPLOAD_TIMEOUT", 300*time.Second),
			GenerateTimeout: getEnvAsDuration("LLM_GENERATE_TIMEOUT", 600*time.Second),
			RequestsPerSec:  getEnvAsFloat64("LLM_REQUESTS_PER_SEC", 2),
		},
		Tasks: TaskConfig{
			Retention:     getEnvAsDuration("TASK_RETENTION", 1*time.Hour),
			EvictInterval: getEnvAsDuration("TASK_EVICT_INTERVAL", 5*time.Minute),
			Workers:       getEnvAsInt("TASK_WORKERS", 4),
			QueueSize:     getEnvAsInt("TASK_QUEUE_SIZE", 256),
			JobTimeout:    getEnvAsDuration("TASK_JOB_TIMEOUT", 20*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewValidationError("HTTP_ADDR is required", nil)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return NewValidationError("DB_DRIVER must be sqlite or postgres", nil)
	}
	if c.Database.DSN == "" {
		return NewValidationError("DB_URL is required", nil)
	}
	if c.LLM.APIKey == "" {
		return NewValidationError("GEMINI_API_KEY is required", nil)
	}
	if c.LLM.MaxRetries < 1 {
		return NewValidationError("LLM_MAX_RETRIES must be at least 1", nil)
	}
	return nil
}
