package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		// However, mostly we want to rely on environment variables being set.
		// If we are in local dev, this helps.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// GetAllowedOrigins returns a slice of allowed origins from the environment variable.
// It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// GetAllowedFetchHosts returns the set of object-store hosts the Object Store
// Facade is permitted to dereference via Fetch. Defaults to the configured
// public upload host only.
func GetAllowedFetchHosts() []string {
	hostsStr := os.Getenv("ALLOWED_FETCH_HOSTS")
	if hostsStr == "" {
		if u, err := url.Parse(os.Getenv("R2_PUBLIC_URL")); err == nil && u.Hostname() != "" {
			return []string{u.Hostname()}
		}
		return nil
	}
	parts := strings.Split(hostsStr, ",")
	var hosts []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	return hosts
}

// GetString returns an environment variable or a default value.
func GetString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetInt returns an environment variable parsed as int, or a default value.
func GetInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// GetDuration returns an environment variable parsed as a Go duration
// (e.g. "30s"), or a default value.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ProviderConfig configures the Generative Provider Adapter.
type ProviderConfig struct {
	APIKey              string
	BaseURL             string
	DefaultModel        string
	RateLimitPerMinute  int
	RequestTimeout      time.Duration
}

// LoadProviderConfig reads the provider configuration from the environment.
func LoadProviderConfig() ProviderConfig {
	return ProviderConfig{
		APIKey:             GetString("IMAGE_PROVIDER_API_KEY", ""),
		BaseURL:            GetString("IMAGE_PROVIDER_BASE_URL", ""),
		DefaultModel:       GetString("IMAGE_PROVIDER_MODEL", "gemini-2.5-flash-image"),
		RateLimitPerMinute: GetInt("PROVIDER_RATE_LIMIT_PER_MINUTE", 15),
		RequestTimeout:     GetDuration("PROVIDER_REQUEST_TIMEOUT", 45*time.Second),
	}
}

// QueueConfig configures the Redis-backed Job Queue.
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	QueueName     string
	WorkerCount   int
}

// LoadQueueConfig reads the queue configuration from the environment.
func LoadQueueConfig() QueueConfig {
	return QueueConfig{
		RedisAddr:     GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		KeyPrefix:     GetString("REDIS_QUEUE_PREFIX", "imagestudio"),
		QueueName:     GetString("WORKER_QUEUE_NAME", "image-generation"),
		WorkerCount:   GetInt("WORKER_POOL_SIZE", 5),
	}
}

// SignupBonusTokens returns the number of tokens granted on first sign-in.
func SignupBonusTokens() int {
	return GetInt("SIGNUP_BONUS_TOKENS", 1000)
}
