package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "EVENT_LOG_PATH", "SESSION_STORE_DIALECT",
		"RECONNECT_MAX_ATTEMPTS", "MEDIA_REQUIRE_REGISTERED", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.EventLogPath != "data/app.log" {
		t.Fatalf("expected default event log path, got %s", cfg.EventLogPath)
	}
	if cfg.SessionStoreDialect != "sqlite3" {
		t.Fatalf("expected sqlite3 store, got %s", cfg.SessionStoreDialect)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Fatalf("expected 5 reconnect attempts, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBaseDelay != 2*time.Second {
		t.Fatalf("expected 2s base delay, got %s", cfg.ReconnectBaseDelay)
	}
	if cfg.MediaRequireRegistered {
		t.Fatalf("expected media registration check disabled by default")
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 0 {
		t.Fatalf("expected rate limit disabled, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_STORE_DIALECT", " Postgres ")
	t.Setenv("SESSION_STORE_DSN", "postgres://user@host/wa")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "2")
	t.Setenv("RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("MEDIA_FETCH_TIMEOUT", "5s")
	t.Setenv("MEDIA_REQUIRE_REGISTERED", "true")
	t.Setenv("QR_TERMINAL", "1")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CORS_ALLOWED_HEADERS", "Content-Type,X-Api-Key")
	t.Setenv("CORS_ALLOWED_METHODS", "POST")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.SessionStoreDialect != "postgres" {
		t.Fatalf("expected normalized dialect, got %q", cfg.SessionStoreDialect)
	}
	if cfg.SessionStoreDSN != "postgres://user@host/wa" {
		t.Fatalf("expected dsn override, got %s", cfg.SessionStoreDSN)
	}
	if cfg.ReconnectMaxAttempts != 2 {
		t.Fatalf("expected reconnect override, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBaseDelay != 500*time.Millisecond {
		t.Fatalf("expected base delay override, got %s", cfg.ReconnectBaseDelay)
	}
	if cfg.MediaFetchTimeout != 5*time.Second {
		t.Fatalf("expected fetch timeout override, got %s", cfg.MediaFetchTimeout)
	}
	if !cfg.MediaRequireRegistered || !cfg.QRTerminal {
		t.Fatalf("expected bool overrides to apply")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.CORSAllowedHeaders) != 2 || cfg.CORSAllowedHeaders[1] != "X-Api-Key" {
		t.Fatalf("unexpected cors headers %v", cfg.CORSAllowedHeaders)
	}
	if len(cfg.CORSAllowedMethods) != 1 || cfg.CORSAllowedMethods[0] != "POST" {
		t.Fatalf("unexpected cors methods %v", cfg.CORSAllowedMethods)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate override, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "lots")
	t.Setenv("RECONNECT_MAX_DELAY", "soon")
	cfg := Load()
	if cfg.ReconnectMaxAttempts != 5 {
		t.Fatalf("expected default attempts, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectMaxDelay != time.Minute {
		t.Fatalf("expected default max delay, got %s", cfg.ReconnectMaxDelay)
	}
}
