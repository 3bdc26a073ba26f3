package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every configuration section the service needs.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	WebAuthn WebAuthnConfig
}

// ServerConfig configures the HTTP edge.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the projection cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// ProjectionTTL is the backstop expiry for cached session projections.
	// Handlers that mutate a profile invalidate the entry synchronously;
	// the TTL only covers writers that bypass this service.
	ProjectionTTL time.Duration
}

// Address returns host:port for the redis client.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig configures token issuance and the request authorizer.
type AuthConfig struct {
	// Strategy selects how inbound requests authenticate:
	// "bearer", "session_cookie" or "signed_jwt".
	Strategy string

	// JWTSecret signs issued access tokens.
	JWTSecret string

	// Issuer is the iss claim on issued tokens.
	Issuer string

	// Audience is the default aud claim when the client does not override it.
	Audience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration

	// CookieName and CookieKey drive the encrypted session cookie strategy.
	// CookieKey must be 16, 24 or 32 bytes (AES-128/192/256).
	CookieName string
	CookieKey  string

	// SecretPepper keys the HMAC used to hash client secrets.
	SecretPepper string
}

// WebAuthnConfig configures relying-party metadata for ceremonies.
type WebAuthnConfig struct {
	RPID          string
	RPName        string
	Origin        string
	ChallengeTTL  time.Duration
	SweepInterval time.Duration
}

// Load builds the full configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "custodia"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "custodia"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			ProjectionTTL: getEnvDuration("REDIS_PROJECTION_TTL", 2*time.Minute),
		},
		Auth: AuthConfig{
			Strategy:        getEnv("AUTH_STRATEGY", "bearer"),
			JWTSecret:       getEnv("AUTH_JWT_SECRET", ""),
			Issuer:          getEnv("AUTH_ISSUER", "custodia"),
			Audience:        getEnv("AUTH_AUDIENCE", "custodia-api"),
			AccessTokenTTL:  getEnvDuration("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			AuthCodeTTL:     getEnvDuration("AUTH_CODE_TTL", 5*time.Minute),
			CookieName:      getEnv("AUTH_COOKIE_NAME", "custodia_session"),
			CookieKey:       getEnv("AUTH_COOKIE_KEY", ""),
			SecretPepper:    getEnv("AUTH_SECRET_PEPPER", ""),
		},
		WebAuthn: WebAuthnConfig{
			RPID:          getEnv("WEBAUTHN_RP_ID", "localhost"),
			RPName:        getEnv("WEBAUTHN_RP_NAME", "Custodia"),
			Origin:        getEnv("WEBAUTHN_ORIGIN", "http://localhost:8080"),
			ChallengeTTL:  getEnvDuration("WEBAUTHN_CHALLENGE_TTL", 5*time.Minute),
			SweepInterval: getEnvDuration("WEBAUTHN_SWEEP_INTERVAL", time.Minute),
		},
	}
}

// ============================================================================
// Env helpers
// ============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
