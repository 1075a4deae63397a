package config

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DevMode bool

	RedisEndpoint    string
	DynamoDBEndpoint string
	ArchiveTable     string
	SQSEndpoint      string
	NotifyQueue      string
	CodeExpiryQueue  string
	CodeTTL          time.Duration

	DevicePath string
	WidgetDir  string

	FlushDelay         time.Duration
	NudgeInterval      time.Duration
	EnforceDailyDoodle bool
	ArchiveFlushMillis int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	return &Config{
		DevMode: getBool("DEV_MODE", false),

		RedisEndpoint:    getEnv("REDIS_ENDPOINT", "localhost:6379"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		ArchiveTable:     getEnv("ARCHIVE_TABLE", ""),
		SQSEndpoint:      getEnv("SQS_ENDPOINT", ""),
		NotifyQueue:      getEnv("NOTIFY_QUEUE", ""),
		CodeExpiryQueue:  getEnv("CODE_EXPIRY_QUEUE", ""),
		CodeTTL:          getDuration("CODE_TTL", 15*time.Minute),

		DevicePath: getEnv("DEVICE_PATH", defaultDevicePath()),
		WidgetDir:  getEnv("WIDGET_DIR", ""),

		FlushDelay:         getDuration("FLUSH_DELAY", 120*time.Millisecond),
		NudgeInterval:      getDuration("NUDGE_INTERVAL", 10*time.Second),
		EnforceDailyDoodle: getBool("ENFORCE_DAILY_DOODLE", false),
		ArchiveFlushMillis: getInt("ARCHIVE_FLUSH_MILLIS", 5000),
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.RedisEndpoint == "" {
		errs = append(errs, errors.New("REDIS_ENDPOINT is required"))
	}
	if c.DevicePath == "" {
		errs = append(errs, errors.New("DEVICE_PATH is required"))
	}
	if c.FlushDelay <= 0 {
		errs = append(errs, errors.New("FLUSH_DELAY must be positive"))
	}
	if c.ArchiveTable != "" && c.ArchiveFlushMillis <= 0 {
		errs = append(errs, errors.New("ARCHIVE_FLUSH_MILLIS must be positive"))
	}
	if c.CodeExpiryQueue != "" && c.CodeTTL <= 0 {
		errs = append(errs, errors.New("CODE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func defaultDevicePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "duo.db"
	}
	return filepath.Join(dir, "duo", "device.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration accepts Go durations and bare numbers of milliseconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if !strings.ContainsAny(value, "nuµmsh") {
			if ms, err := strconv.Atoi(value); err == nil {
				return time.Duration(ms) * time.Millisecond
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}
