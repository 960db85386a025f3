package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Event log (flat file, one line per record)
	EventLogPath string

	// WhatsApp device store
	SessionStoreDialect string
	SessionStoreDSN     string

	// Session reconnect policy
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// Media sends
	MediaFetchTimeout      time.Duration
	MediaMaxBytes          int64
	MediaRequireRegistered bool

	QRTerminal bool

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
	CORSAllowedMethods []string
	RateLimitRPS       float64
	RateLimitBurst     int

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		EventLogPath: getEnv("EVENT_LOG_PATH", "data/app.log"),

		SessionStoreDialect: strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE_DIALECT", "sqlite3"))),
		SessionStoreDSN:     getEnv("SESSION_STORE_DSN", "file:data/session.db?_foreign_keys=on"),

		ReconnectMaxAttempts: getEnvAsInt("RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:   getEnvAsDuration("RECONNECT_BASE_DELAY", 2*time.Second),
		ReconnectMaxDelay:    getEnvAsDuration("RECONNECT_MAX_DELAY", time.Minute),

		MediaFetchTimeout:      getEnvAsDuration("MEDIA_FETCH_TIMEOUT", 60*time.Second),
		MediaMaxBytes:          int64(getEnvAsInt("MEDIA_MAX_BYTES", 16<<20)),
		MediaRequireRegistered: getEnvAsBool("MEDIA_REQUIRE_REGISTERED", false),

		QRTerminal: getEnvAsBool("QR_TERMINAL", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		CORSAllowedHeaders: getEnvAsList("CORS_ALLOWED_HEADERS"),
		CORSAllowedMethods: getEnvAsList("CORS_ALLOWED_METHODS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
