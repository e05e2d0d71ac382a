package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int
	LogLevel   string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
	CookieSecure   bool

	// Links in emails point here
	AppBaseURL string

	// Single-use tokens
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration

	// Email. Without SMTP_HOST emails are logged instead of sent.
	SMTP          SMTPConfig
	NotifyTimeout time.Duration

	// Shared rate limit state. Empty keeps counters in process memory.
	RedisURL string

	PasswordPolicy     PasswordPolicyConfig
	RateLimit          RateLimitConfig
	SecurityHeaders    SecurityHeadersConfig
	MaxRequestBodySize int64
}

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

// PasswordPolicyConfig holds password complexity requirements.
type PasswordPolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
}

// RateLimitConfig holds rate limiting configuration.
//
// The IP limits are enforced per client address by middleware. The
// per-identifier limits are enforced by the services and keyed by email.
type RateLimitConfig struct {
	Enabled bool

	AuthRequests     int
	AuthWindow       time.Duration
	RecoveryRequests int
	RecoveryWindow   time.Duration
	VerifyRequests   int
	VerifyWindow     time.Duration

	PasswordResetRequests     int
	PasswordResetWindow       time.Duration
	VerificationEmailRequests int
	VerificationEmailWindow   time.Duration
	EmailRequests             int
	EmailWindow               time.Duration
}

// SecurityHeadersConfig holds HTTP security header values.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		// Database defaults (matches podman setup: make postgres-start)
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 25432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "simple_idm"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT defaults
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "simple-idm"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		SessionTTL:     getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		CookieSecure:   getEnvBool("COOKIE_SECURE", false),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),

		PasswordResetTTL:     getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
		EmailVerificationTTL: getEnvDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),

		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvInt("SMTP_PORT", 587),
			User:       getEnv("SMTP_USER", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", "noreply@example.com"),
			FromName:   getEnv("SMTP_FROM_NAME", "Simple IDM"),
			Timeout:    getEnvDuration("SMTP_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvInt("SMTP_MAX_RETRIES", 2),
		},
		NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 15*time.Second),

		RedisURL: getEnv("REDIS_URL", ""),

		PasswordPolicy: PasswordPolicyConfig{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", true),
		},

		RateLimit: RateLimitConfig{
			Enabled:          getEnvBool("RATE_LIMIT_ENABLED", true),
			AuthRequests:     getEnvInt("RATE_LIMIT_AUTH_REQUESTS", 10),
			AuthWindow:       getEnvDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
			RecoveryRequests: getEnvInt("RATE_LIMIT_RECOVERY_REQUESTS", 10),
			RecoveryWindow:   getEnvDuration("RATE_LIMIT_RECOVERY_WINDOW", 15*time.Minute),
			VerifyRequests:   getEnvInt("RATE_LIMIT_VERIFY_REQUESTS", 10),
			VerifyWindow:     getEnvDuration("RATE_LIMIT_VERIFY_WINDOW", 15*time.Minute),

			PasswordResetRequests:     getEnvInt("RATE_LIMIT_PASSWORD_RESET_REQUESTS", 3),
			PasswordResetWindow:       getEnvDuration("RATE_LIMIT_PASSWORD_RESET_WINDOW", time.Hour),
			VerificationEmailRequests: getEnvInt("RATE_LIMIT_VERIFICATION_EMAIL_REQUESTS", 2),
			VerificationEmailWindow:   getEnvDuration("RATE_LIMIT_VERIFICATION_EMAIL_WINDOW", 5*time.Minute),
			EmailRequests:             getEnvInt("RATE_LIMIT_EMAIL_REQUESTS", 5),
			EmailWindow:               getEnvDuration("RATE_LIMIT_EMAIL_WINDOW", time.Hour),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_PERMISSIONS_POLICY", ""),
		},

		MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PasswordResetTTL <= 0 || cfg.EmailVerificationTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}

	return cfg, nil
}

// HasSMTP returns true if outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTP.Host != ""
}

// HasRedis returns true if rate limit state should be shared through Redis.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
