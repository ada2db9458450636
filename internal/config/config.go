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

	// Backend endpoint roots. Each client receives its own base URL.
	ServicesBaseURL     string
	AppointmentsBaseURL string
	PurchaseBaseURL     string
	HTTPTimeout         time.Duration

	// Saga retry policy for transport failures.
	BookingMaxRetries int
	BookingBackoff    time.Duration
	DefaultCurrency   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SubmitLockTTL time.Duration

	CORSAllowedOrigins    []string
	BookingRateLimitRPS   float64
	BookingRateLimitBurst int
	AdminJWTSecret        string
	AdminJWTAudience      string
	SupportEmail          string
	EmailProvider         string
	SendGridAPIKey        string
	EmailFromAddress      string
	EmailFromName         string
	SESConfigurationSet   string
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ServicesBaseURL:     getEnv("SERVICES_BASE_URL", ""),
		AppointmentsBaseURL: getEnv("APPOINTMENTS_BASE_URL", ""),
		PurchaseBaseURL:     getEnv("PURCHASE_BASE_URL", ""),
		HTTPTimeout:         getEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),

		BookingMaxRetries: getEnvAsInt("BOOKING_MAX_RETRIES", 2),
		BookingBackoff:    getEnvAsDuration("BOOKING_BACKOFF", 250*time.Millisecond),
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", "IDR")),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SubmitLockTTL: getEnvAsDuration("SUBMIT_LOCK_TTL", 2*time.Minute),

		CORSAllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		BookingRateLimitRPS:   getEnvAsFloat("BOOKING_RATE_LIMIT_RPS", 1),
		BookingRateLimitBurst: getEnvAsInt("BOOKING_RATE_LIMIT_BURST", 5),
		AdminJWTSecret:        getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTAudience:      getEnv("ADMIN_JWT_AUDIENCE", ""),
		SupportEmail:          getEnv("SUPPORT_EMAIL", ""),
		EmailProvider:         strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:        getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", getEnv("SENDGRID_FROM_EMAIL", "")),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", getEnv("SENDGRID_FROM_NAME", "Carebook Support")),
		SESConfigurationSet:   getEnv("SES_CONFIGURATION_SET", ""),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
