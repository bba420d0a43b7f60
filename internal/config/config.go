// Package config provides configuration for the relay server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Auth: bearer token -> owner id
	AuthTokens map[string]string

	// Provider calls
	ProviderTimeout time.Duration
	PersistRetries  int
	ProvidersFile   string
	Mode            string

	// Admission policy
	PolicyFile         string
	MaxHistoryMessages int

	// Rate limiting (requests per second per caller, 0 disables)
	RateLimitRPS int

	// Streaming presentation
	StreamChunkSize int
	StreamInterval  time.Duration

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:        getEnv("DATABASE_URL", "file:dualchat.db?cache=shared&mode=rwc&_txlock=immediate&_busy_timeout=5000"),
		AuthTokens:         parseTokens(getEnv("AUTH_TOKENS", "")),
		ProviderTimeout:    time.Duration(getEnvInt("PROVIDER_TIMEOUT_MS", 60000)) * time.Millisecond,
		PersistRetries:     getEnvInt("PERSIST_RETRIES", 3),
		ProvidersFile:      getEnv("PROVIDERS_FILE", ""),
		Mode:               getEnv("GOGO_MODE", ""),
		PolicyFile:         getEnv("POLICY_FILE", ""),
		MaxHistoryMessages: getEnvInt("MAX_HISTORY_MESSAGES", 200),
		RateLimitRPS:       getEnvInt("RATE_LIMIT_RPS", 10),
		StreamChunkSize:    getEnvInt("STREAM_CHUNK_SIZE", 10),
		StreamInterval:     time.Duration(getEnvInt("STREAM_INTERVAL_MS", 30)) * time.Millisecond,
		PingInterval:       time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:       time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:        time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:     int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 1<<20)),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		LogFile:            getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// parseTokens reads "token:owner,token2:owner2".
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, ":")
		if !ok || token == "" || owner == "" {
			continue
		}
		tokens[strings.TrimSpace(token)] = strings.TrimSpace(owner)
	}
	return tokens
}
