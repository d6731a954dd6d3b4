package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WAHA (WhatsApp HTTP API) configuration
	WahaBaseURL        string
	WahaAPIKey         string
	WahaWebhookHMACKey string

	// Twilio WhatsApp configuration
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioBaseURL           string
	TwilioValidateSignature bool

	ProviderTimeout time.Duration

	// Outbound gate shared by every tenant
	OutboundRateLimit  int
	OutboundRateWindow time.Duration

	APIJWTSecret string

	// WebhookRateLimit caps webhook requests per client IP per minute; 0 disables it.
	WebhookRateLimit int

	// AI responder
	AIProvider       string
	AISystemPrompt   string
	AIHistoryLimit   int
	AIMaxTokens      int
	BedrockModelID   string
	GeminiAPIKey     string
	GeminiModelID    string
	AWSRegion        string
	AWSAccessKeyID   string
	AWSSecretKey     string
	AWSEndpointURL   string
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WahaBaseURL:        strings.TrimRight(getEnv("WAHA_BASE_URL", "http://waha:3000"), "/"),
		WahaAPIKey:         getEnv("WAHA_API_KEY", ""),
		WahaWebhookHMACKey: getEnv("WAHA_WEBHOOK_HMAC_KEY", ""),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioBaseURL:           strings.TrimRight(getEnv("TWILIO_BASE_URL", "https://api.twilio.com"), "/"),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", true),

		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),

		OutboundRateLimit:  getEnvAsInt("OUTBOUND_RATE_LIMIT", 60),
		OutboundRateWindow: getEnvAsDuration("OUTBOUND_RATE_WINDOW", time.Minute),

		APIJWTSecret: getEnv("API_JWT_SECRET", ""),

		WebhookRateLimit: getEnvAsInt("WEBHOOK_RATE_LIMIT", 600),

		AIProvider:     strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "bedrock"))),
		AISystemPrompt: getEnv("AI_SYSTEM_PROMPT", ""),
		AIHistoryLimit: getEnvAsInt("AI_HISTORY_LIMIT", 12),
		AIMaxTokens:    getEnvAsInt("AI_MAX_TOKENS", 400),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Messaging Gateway"),
	}
}

// UsesPostgres reports whether durable storage is configured.
func (c *Config) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// UsesRedis reports whether tenant config and rate limiting run against Redis.
func (c *Config) UsesRedis() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
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
