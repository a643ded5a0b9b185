package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/real-rm/privchat/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Database DatabaseConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           int
	PathPrefix     string        // HTTP path prefix for all routes (default: "/privchat")
	RateLimit      int           // API endpoint rate limit (requests per minute)
	AuthRateLimit  int           // Auth endpoint rate limit (requests per minute)
	WSRateLimit    int           // WebSocket frame rate limit (frames per minute)
	RateWindow     time.Duration // Rate limit window
	MaxFrameSize   int64         // Maximum inbound WebSocket frame size in bytes
	TrustedProxies []string      // CIDR ranges allowed to set client IP headers
	AllowedOrigins []string      // CORS and WebSocket origin allowlist
}

// AuthConfig holds token and credential configuration
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// DatabaseConfig holds MongoDB configuration
type DatabaseConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration // Bound on startup operations such as index creation
	RetryAttempts  int           // Maximum number of retry attempts for transient errors
	RetryDelay     time.Duration // Initial delay between retry attempts
	RetryMaxDelay  time.Duration // Maximum delay between retry attempts
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", constants.DefaultPort),
			PathPrefix:     getEnv("PRIVCHAT_PATH_PREFIX", constants.DefaultPathPrefix),
			RateLimit:      getEnvAsInt("RATE_LIMIT", constants.DefaultRateLimit),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT", constants.DefaultAuthRateLimit),
			WSRateLimit:    getEnvAsInt("WS_RATE_LIMIT", constants.DefaultWSRateLimit),
			RateWindow:     getEnvAsDuration("RATE_WINDOW", constants.DefaultRateWindow),
			MaxFrameSize:   int64(getEnvAsInt("MAX_FRAME_SIZE", constants.DefaultMaxFrameSize)),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", splitByComma(constants.DefaultTrustedProxies)),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{}),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", constants.DefaultAccessTokenTTL),
			RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", constants.DefaultRefreshTokenTTL),
		},
		Database: DatabaseConfig{
			URI:            getEnv("MONGO_URI", constants.DefaultMongoURI),
			Database:       getEnv("MONGO_DATABASE", constants.DefaultDatabase),
			ConnectTimeout: getEnvAsDuration("MONGO_CONNECT_TIMEOUT", constants.MongoIndexTimeout),
			RetryAttempts:  getEnvAsInt("MONGO_RETRY_ATTEMPTS", constants.MaxRetryAttempts),
			RetryDelay:     getEnvAsDuration("MONGO_RETRY_DELAY", constants.InitialRetryDelay),
			RetryMaxDelay:  getEnvAsDuration("MONGO_RETRY_MAX_DELAY", constants.MaxRetryDelay),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	if c.Server.AuthRateLimit <= 0 {
		errs = append(errs, errors.New("auth rate limit must be positive"))
	}
	if c.Server.WSRateLimit <= 0 {
		errs = append(errs, errors.New("websocket rate limit must be positive"))
	}
	if c.Server.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("max frame size must be positive"))
	}
	if c.Server.PathPrefix == "" {
		errs = append(errs, errors.New("path prefix cannot be empty"))
	} else if !strings.HasPrefix(c.Server.PathPrefix, "/") {
		errs = append(errs, errors.New("path prefix must start with '/'"))
	}

	// Validate auth config
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT secret is required"))
	} else {
		// Check minimum length (32 characters for strong security)
		if len(c.Auth.JWTSecret) < constants.MinJWTSecretLength {
			errs = append(errs, fmt.Errorf(
				"JWT secret must be at least %d characters (got %d). "+
					"Generate a strong secret with: openssl rand -base64 32",
				constants.MinJWTSecretLength, len(c.Auth.JWTSecret)))
		}

		// Check for common weak secrets
		lowerSecret := strings.ToLower(c.Auth.JWTSecret)
		for _, weak := range constants.WeakSecrets {
			if strings.Contains(lowerSecret, weak) {
				errs = append(errs, fmt.Errorf(
					"JWT secret appears to be weak (contains '%s'). "+
						"Use a cryptographically random secret generated with: openssl rand -base64 32",
					weak))
				break
			}
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access token TTL must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("refresh token TTL must exceed access token TTL"))
	}

	// Validate database config
	if c.Database.URI == "" {
		errs = append(errs, errors.New("database URI is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	result := []string{}
	for _, v := range splitByComma(valueStr) {
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

func splitByComma(s string) []string {
	result := []string{}
	current := ""
	for _, c := range s {
		if c == ',' {
			result = append(result, current)
			current = ""
		} else {
			current += string(c)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}
