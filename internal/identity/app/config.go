package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/campushq/identity/pkg/jwtx"
)

// TokenKindConfig is the per-kind signing material. Each credential kind
// has its own secret, issuer, audience and lifetime.
type TokenKindConfig struct {
	Secret   string
	Issuer   string
	Audience []string
	TTL      time.Duration
	Leeway   time.Duration
}

type Config struct {
	Access   TokenKindConfig // Access token signing config
	Refresh  TokenKindConfig // Refresh token signing config
	Exchange TokenKindConfig // Exchange token signing config

	CookieName     string        // Fingerprint cookie name (default: __session_fp)
	CookieDomain   string        // Optional: fingerprint cookie domain
	CookieSameSite string        // Fingerprint cookie SameSite (lax, strict, none) (default: strict)
	CookieSecure   bool          // Fingerprint cookie Secure flag (default: true)
	CookieTTL      time.Duration // Fingerprint cookie TTL, independent of token TTLs

	SSOStateTTL     time.Duration // SSO state key lifetime (default: 5m)
	SSOCompleteURL  string        // Front-end page that finishes a federated login
	FederationCache time.Duration // Read cache window for federation rows (default: 30s)

	IdPTimeout time.Duration // Connect+response timeout for provider calls (default: 3s)
	IdPRetries int           // Extra attempts after a transient provider failure (default: 1)

	AttemptRecordingBlocks bool // Whether a failed audit write fails the login (default: false)

	DatabaseFile        string        // Path to SQLite database file (default: ./identity.db)
	PepperFile          string        // Path to password-hashing pepper file (default: ./pepper)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	issuer := getEnvOrDefault("IDENTITY_ISSUER", "campus-identity")

	return Config{
		Access: TokenKindConfig{
			Secret:   os.Getenv("IDENTITY_ACCESS_SECRET"),
			Issuer:   getEnvOrDefault("IDENTITY_ACCESS_ISSUER", issuer),
			Audience: splitList(getEnvOrDefault("IDENTITY_ACCESS_AUDIENCE", "campus-api")),
			TTL:      getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
			Leeway:   getEnvDurationOrDefault("IDENTITY_ACCESS_LEEWAY", 0),
		},
		Refresh: TokenKindConfig{
			Secret:   os.Getenv("IDENTITY_REFRESH_SECRET"),
			Issuer:   getEnvOrDefault("IDENTITY_REFRESH_ISSUER", issuer),
			Audience: splitList(getEnvOrDefault("IDENTITY_REFRESH_AUDIENCE", issuer)),
			TTL:      getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
			Leeway:   getEnvDurationOrDefault("IDENTITY_REFRESH_LEEWAY", 0),
		},
		Exchange: TokenKindConfig{
			Secret:   os.Getenv("IDENTITY_EXCHANGE_SECRET"),
			Issuer:   getEnvOrDefault("IDENTITY_EXCHANGE_ISSUER", issuer),
			Audience: splitList(getEnvOrDefault("IDENTITY_EXCHANGE_AUDIENCE", issuer)),
			TTL:      getEnvDurationOrDefault("IDENTITY_EXCHANGE_TTL", jwtx.DefaultExchangeTokenTTL),
			Leeway:   getEnvDurationOrDefault("IDENTITY_EXCHANGE_LEEWAY", 0),
		},

		CookieName:     getEnvOrDefault("IDENTITY_COOKIE_NAME", "__session_fp"),
		CookieDomain:   os.Getenv("IDENTITY_COOKIE_DOMAIN"),
		CookieSameSite: getEnvOrDefault("IDENTITY_COOKIE_SAMESITE", "strict"),
		CookieSecure:   getEnvBoolOrDefault("IDENTITY_COOKIE_SECURE", true),
		CookieTTL:      getEnvDurationOrDefault("IDENTITY_COOKIE_TTL", jwtx.DefaultRefreshTokenTTL),

		SSOStateTTL:     getEnvDurationOrDefault("IDENTITY_SSO_STATE_TTL", 5*time.Minute),
		SSOCompleteURL:  os.Getenv("IDENTITY_SSO_COMPLETE_URL"),
		FederationCache: getEnvDurationOrDefault("IDENTITY_FEDERATION_CACHE_TTL", 30*time.Second),

		IdPTimeout: getEnvDurationOrDefault("IDENTITY_IDP_TIMEOUT", 3*time.Second),
		IdPRetries: getEnvIntOrDefault("IDENTITY_IDP_RETRIES", 1),

		AttemptRecordingBlocks: getEnvBoolOrDefault("IDENTITY_ATTEMPT_RECORDING_BLOCKS", false),

		DatabaseFile:        getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:          getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
