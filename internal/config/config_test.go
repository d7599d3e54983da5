package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "crm"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	c.Auth.JWTIssuer = "crm"
	c.Auth.JWTAudience = "crm-api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Voice.CredentialTTL != 24*time.Hour {
		t.Fatalf("expected 24h credential ttl, got %s", c.Voice.CredentialTTL)
	}
	if c.Voice.DefaultLanguage != "en-US" {
		t.Fatalf("expected en-US default language, got %q", c.Voice.DefaultLanguage)
	}
	if c.Webhook.DedupeTTL != 10*time.Minute || c.Webhook.PendingTTL != time.Hour {
		t.Fatalf("unexpected webhook ttls: %+v", c.Webhook)
	}
	if c.Webhook.CredentialsRatePerSec != 1 || c.Webhook.CredentialsBurst != 5 {
		t.Fatalf("unexpected credential rate defaults: %+v", c.Webhook)
	}
}

func TestValidate_VoiceCredentialsAreNotRequiredAtStartup(t *testing.T) {
	c := validConfig("dev")
	if err := c.Validate(); err != nil {
		t.Fatalf("missing voice credentials must not fail startup: %v", err)
	}
}

func TestValidate_PublicBaseURLMustBeAbsolute(t *testing.T) {
	c := validConfig("dev")
	c.Voice.PublicBaseURL = "crm.example.com"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func setBaseEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":    "local",
		"APP_PORT":   "8080",
		"DB_HOST":    "localhost",
		"DB_PORT":    "5432",
		"DB_USER":    "postgres",
		"DB_NAME":    "crm",
		"REDIS_HOST": "localhost",
		"REDIS_PORT": "6379",
		"JWT_SECRET": "secret",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("VOICE_APPLICATION_ID", "app-1")
	t.Setenv("VOICE_CREDENTIAL_TTL", "2h")
	t.Setenv("CREDENTIALS_RATE_PER_SEC", "0.5")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Voice.ApplicationID != "app-1" || c.Voice.CredentialTTL != 2*time.Hour {
		t.Fatalf("unexpected voice config: %+v", c.Voice)
	}
	if c.Webhook.CredentialsRatePerSec != 0.5 {
		t.Fatalf("unexpected rate: %v", c.Webhook.CredentialsRatePerSec)
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
	if !c.DB.ApplySchema || c.DB.ConnectAttempts != 5 {
		t.Fatalf("unexpected db defaults: apply=%v attempts=%d", c.DB.ApplySchema, c.DB.ConnectAttempts)
	}
}

func TestLoad_ApplySchemaOverride(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_APPLY_SCHEMA", "false")
	t.Setenv("DB_CONNECT_ATTEMPTS", "2")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DB.ApplySchema || c.DB.ConnectAttempts != 2 {
		t.Fatalf("unexpected db config: %+v", c.DB)
	}
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_PORT", "eighty")
	t.Setenv("WEBHOOK_DEDUPE_TTL", "ten minutes")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "APP_PORT") || !strings.Contains(err.Error(), "WEBHOOK_DEDUPE_TTL") {
		t.Fatalf("expected both errors, got %q", err.Error())
	}
}

func TestVoicePrivateKey(t *testing.T) {
	v := VoiceConfig{PrivateKeyPEM: `-----BEGIN KEY-----\nabc\n-----END KEY-----`}
	b, err := v.PrivateKey()
	if err != nil || !strings.Contains(string(b), "\nabc\n") {
		t.Fatalf("inline key not unescaped: %q %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "private.key")
	if err := os.WriteFile(path, []byte("pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err = VoiceConfig{PrivateKeyPath: path}.PrivateKey()
	if err != nil || string(b) != "pem" {
		t.Fatalf("key file not read: %q %v", b, err)
	}

	if _, err := (VoiceConfig{PrivateKeyPath: filepath.Join(t.TempDir(), "missing")}).PrivateKey(); err == nil {
		t.Fatalf("expected error for missing key file")
	}
	if b, err := (VoiceConfig{}).PrivateKey(); err != nil || b != nil {
		t.Fatalf("expected not configured, got %q %v", b, err)
	}
}

func TestValidate_RedisDBRange(t *testing.T) {
	c := validConfig("dev")
	c.Redis.DB = 16
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "REDIS_DB") {
		t.Fatalf("expected REDIS_DB error, got %v", err)
	}
}
