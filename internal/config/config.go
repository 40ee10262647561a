// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// Pipeline defaults applied to requests that omit them.
	Temperature float64 // Kelvin
	Cycles      int
	TimeStep    float64
	Threshold   float64

	// Schedules, in robfig/cron syntax (with seconds field).
	QueueDrainSchedule  string
	CleanupSchedule     string
	BackupSchedule      string
	MaintenanceSchedule string

	QueueBatchSize      int
	RetentionDays       int
	BackupRetentionDays int

	Backup BackupConfig
}

// BackupConfig holds object storage settings for backups. Backups are
// disabled when Bucket is empty.
type BackupConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Enabled reports whether backup uploads are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables. A .env file in
// the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("CONFORMER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("CONFORMER_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Temperature: getEnvAsFloat("CONFORMER_TEMPERATURE", 298.15),
		Cycles:      getEnvAsInt("CONFORMER_CYCLES", 1),
		TimeStep:    getEnvAsFloat("CONFORMER_TIME_STEP", 0.1),
		Threshold:   getEnvAsFloat("CONFORMER_THRESHOLD", 0.7),

		QueueDrainSchedule:  getEnv("QUEUE_DRAIN_SCHEDULE", "@every 10s"),
		CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "0 0 3 * * *"),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 0 4 * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 3 * * 0"),
		QueueBatchSize:      getEnvAsInt("QUEUE_BATCH_SIZE", 8),
		RetentionDays:       getEnvAsInt("RETENTION_DAYS", 90),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		Backup: BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Temperature <= 0 || math.IsNaN(c.Temperature) {
		return fmt.Errorf("invalid temperature %v", c.Temperature)
	}
	if c.Cycles < 0 {
		return fmt.Errorf("invalid cycles %d", c.Cycles)
	}
	if c.QueueBatchSize < 1 {
		return fmt.Errorf("invalid queue batch size %d", c.QueueBatchSize)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("invalid retention days %d", c.RetentionDays)
	}
	return nil
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
