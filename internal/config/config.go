package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env; nothing else reads raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Voice   VoiceConfig
	Webhook WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	ConnectAttempts int
	// ApplySchema creates missing tables at startup. Defaults on outside production.
	ApplySchema bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// VoiceConfig is the realtime voice provider setup. ApplicationID and the
// private key are checked when a credential is issued, not at startup: webhooks
// keep working while an operator fixes them.
type VoiceConfig struct {
	ApplicationID  string
	PrivateKeyPEM  string
	PrivateKeyPath string
	CredentialTTL  time.Duration

	DefaultFrom     string
	DefaultLanguage string
	PublicBaseURL   string
}

type WebhookConfig struct {
	DedupeTTL  time.Duration
	PendingTTL time.Duration

	CredentialsRatePerSec float64
	CredentialsBurst      int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = mustInt("APP_PORT", &parseErrs)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = mustInt("DB_PORT", &parseErrs)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.ConnectAttempts = optionalInt("DB_CONNECT_ATTEMPTS", &parseErrs)
	c.DB.ApplySchema = optionalBool("DB_APPLY_SCHEMA", &parseErrs)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = mustInt("REDIS_PORT", &parseErrs)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = optionalInt("REDIS_DB", &parseErrs)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Durations are optional; Validate applies defaults.
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL", &parseErrs)
	c.Auth.RefreshTokenTTL = optionalDuration("JWT_REFRESH_TTL", &parseErrs)

	c.Voice.ApplicationID = strings.TrimSpace(os.Getenv("VOICE_APPLICATION_ID"))
	c.Voice.PrivateKeyPEM = os.Getenv("VOICE_PRIVATE_KEY")
	c.Voice.PrivateKeyPath = strings.TrimSpace(os.Getenv("VOICE_PRIVATE_KEY_PATH"))
	c.Voice.CredentialTTL = optionalDuration("VOICE_CREDENTIAL_TTL", &parseErrs)
	c.Voice.DefaultFrom = strings.TrimSpace(os.Getenv("VOICE_DEFAULT_FROM"))
	c.Voice.DefaultLanguage = strings.TrimSpace(os.Getenv("VOICE_DEFAULT_LANGUAGE"))
	c.Voice.PublicBaseURL = strings.TrimSpace(os.Getenv("VOICE_PUBLIC_BASE_URL"))

	c.Webhook.DedupeTTL = optionalDuration("WEBHOOK_DEDUPE_TTL", &parseErrs)
	c.Webhook.PendingTTL = optionalDuration("WEBHOOK_PENDING_TTL", &parseErrs)
	c.Webhook.CredentialsRatePerSec = optionalFloat("CREDENTIALS_RATE_PER_SEC", &parseErrs)
	c.Webhook.CredentialsBurst = optionalInt("CREDENTIALS_BURST", &parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.DB.ConnectAttempts <= 0 {
		c.DB.ConnectAttempts = 5
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Voice.CredentialTTL <= 0 {
		c.Voice.CredentialTTL = 24 * time.Hour
	}
	if c.Voice.DefaultLanguage == "" {
		c.Voice.DefaultLanguage = "en-US"
	}
	if u := c.Voice.PublicBaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("VOICE_PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", u))
	}

	if c.Webhook.DedupeTTL <= 0 {
		c.Webhook.DedupeTTL = 10 * time.Minute
	}
	if c.Webhook.PendingTTL <= 0 {
		c.Webhook.PendingTTL = time.Hour
	}
	if c.Webhook.CredentialsRatePerSec <= 0 {
		c.Webhook.CredentialsRatePerSec = 1
	}
	if c.Webhook.CredentialsBurst <= 0 {
		c.Webhook.CredentialsBurst = 5
	}

	return joinErrors(errs)
}

// PrivateKey returns the PEM-encoded signing key, reading the key file when no
// inline key is set. An empty result with nil error means "not configured".
func (v VoiceConfig) PrivateKey() ([]byte, error) {
	if strings.TrimSpace(v.PrivateKeyPEM) != "" {
		// Inline keys in env files often carry literal \n.
		return []byte(strings.ReplaceAll(v.PrivateKeyPEM, `\n`, "\n")), nil
	}
	if v.PrivateKeyPath == "" {
		return nil, nil
	}
	b, err := os.ReadFile(v.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("VOICE_PRIVATE_KEY_PATH: %w", err)
	}
	return b, nil
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains the password; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		*errs = append(*errs, fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func optionalInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

// optionalBool leaves an unset value to the environment default.
func optionalBool(key string, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return os.Getenv("APP_ENV") != "production"
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return false
	}
	return b
}

func optionalFloat(key string, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a number, got %q", key, v))
		return 0
	}
	return f
}

func optionalDuration(key string, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration like 15m, got %q", key, v))
		return 0
	}
	return d
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
