// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/sweep.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Storage. A postgres:// URL selects the pgx-backed store; anything
	// else is treated as a SQLite file path.
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Static stop dataset (GTFS stops.txt)
	StopsFile string

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CTA prediction APIs
	CTABusAPIKey       string
	CTATrainAPIKey     string
	GatewayRPM         int // upstream requests per minute
	HTTPTimeout        time.Duration
	PredictionCacheTTL time.Duration

	// Notification sweep
	SweepInterval     time.Duration
	SweepWorkers      int
	SuppressionWindow time.Duration // 0 disables repeat suppression

	// Verification codes and sessions
	OTPTTL     time.Duration
	SessionTTL time.Duration

	// SMS delivery: "smtp" (email-to-SMS gateway), "twilio", or "log"
	SMSBackend   string
	MailServer   string
	MailPort     int
	MailUsername string
	MailPassword string
	MailSender   string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Event bus (optional, disabled when empty)
	NATSURL string
}

// Load reads configuration from environment variables with sensible defaults.
// Missing CTA API keys are not an error here; the prediction gateway reports
// them per request.
func Load() (*Config, error) {
	return &Config{
		DatabaseURL:    envOr("DATABASE_URL", "app.db"),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		StopsFile: envOr("STOPS_FILE", "data/stops.txt"),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CTABusAPIKey:       envOr("CTA_BUS_API_KEY", ""),
		CTATrainAPIKey:     envOr("CTA_TRAIN_API_KEY", ""),
		GatewayRPM:         envInt("CTA_REQUESTS_PER_MINUTE", 300),
		HTTPTimeout:        time.Duration(envInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,
		PredictionCacheTTL: time.Duration(envInt("PREDICTION_CACHE_SECONDS", 30)) * time.Second,

		SweepInterval:     time.Duration(envInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		SweepWorkers:      envInt("SWEEP_WORKERS", 4),
		SuppressionWindow: time.Duration(envInt("SUPPRESSION_WINDOW_MINUTES", 15)) * time.Minute,

		OTPTTL:     time.Duration(envInt("OTP_TTL_MINUTES", 5)) * time.Minute,
		SessionTTL: time.Duration(envInt("SESSION_TTL_HOURS", 24)) * time.Hour,

		SMSBackend:   envOr("SMS_BACKEND", "log"),
		MailServer:   envOr("MAIL_SERVER", "smtp.gmail.com"),
		MailPort:     envInt("MAIL_PORT", 587),
		MailUsername: envOr("MAIL_USERNAME", ""),
		MailPassword: envOr("MAIL_PASSWORD", ""),
		MailSender:   envOr("MAIL_DEFAULT_SENDER", ""),

		TwilioAccountSID: envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  envOr("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: envOr("TWILIO_PHONE_NUMBER", ""),

		NATSURL: envOr("NATS_URL", ""),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
