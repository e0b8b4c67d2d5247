// Package config loads the process configuration from environment
// variables, once at startup, treated as immutable afterwards. Secrets
// (client credentials, the session signing key) are not configuration:
// they come from the secret resolver.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// DevMode swaps the AWS-backed store, encryptor and secret resolver
	// for in-process equivalents.
	DevMode bool

	// Store
	TableName string
	AWSRegion string

	// Secrets
	ParamPrefix string

	// Server
	ServerPort   string
	BaseURL      string
	StaticURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Rate limit, requests per second per client with burst headroom.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Logging
	LogLevel string
}

// Load reads the Config from the environment. Outside dev mode the
// DynamoDB table name is required.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DevMode = getEnvBool("DEV_MODE", false)
	cfg.TableName = os.Getenv("DYNAMO_TABLE")
	if cfg.TableName == "" && !cfg.DevMode {
		return nil, fmt.Errorf("required environment variable DYNAMO_TABLE is not set")
	}

	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")
	cfg.ParamPrefix = getEnvString("SSM_PARAM_PREFIX", "/kin/")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.StaticURL = getEnvString("STATIC_URL", "https://calendar.kin.today")
	cfg.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	cfg.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	cfg.RateLimitPerSecond = getEnvFloat("RATE_LIMIT_PER_SECOND", 5)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
