package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort   string
	Env          string
	StoreBackend string
	DataDir      string
	SQLitePath   string
	RedisAddr    string
	JWTSecret    string
	TokenTTL     time.Duration
	BcryptCost   int

	AdminUsername string
	AdminPassword string

	GuestRateLimit int
	UserRateLimit  int
	ProRateLimit   int

	InferenceURL      string
	InferenceTimeout  time.Duration
	// InferenceCacheTTL of zero disables the classification cache.
	InferenceCacheTTL time.Duration

	BreakerEnabled   bool
	ReplayProtection bool
	RateLimitFailure string

	LogLevel string
	LogFile  string

	EnableUserSignup bool
	EnableAPIAccess  bool
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

const defaultJWTSecret = "secret-key"

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		Env:          getEnv("APP_ENV", "development"),
		StoreBackend: getEnv("STORE_BACKEND", BackendFile),
		DataDir:      getEnv("DATA_DIR", "data"),
		SQLitePath:   getEnv("SQLITE_PATH", "data/textgate.db"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:    getEnv("JWT_SECRET", defaultJWTSecret),
		TokenTTL:     getEnvDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:   getEnvInt("BCRYPT_COST", 0),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		GuestRateLimit: getEnvInt("GUEST_RATE_LIMIT", 10),
		UserRateLimit:  getEnvInt("USER_RATE_LIMIT", 100),
		ProRateLimit:   getEnvInt("PRO_RATE_LIMIT", 1000),

		InferenceURL:      getEnv("INFERENCE_URL", "http://localhost:9000"),
		InferenceTimeout:  getEnvDuration("INFERENCE_TIMEOUT", 30*time.Second),
		InferenceCacheTTL: getEnvDuration("INFERENCE_CACHE_TTL", 10*time.Minute),

		BreakerEnabled:   getEnvBool("BREAKER_ENABLED", false),
		ReplayProtection: getEnvBool("REPLAY_PROTECTION", false),
		RateLimitFailure: getEnv("RATE_LIMIT_FAILURE", "fail_closed"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		EnableUserSignup: getEnvBool("ENABLE_USER_SIGNUP", true),
		EnableAPIAccess:  getEnvBool("ENABLE_API_ACCESS", true),
	}
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	default:
		return errors.New("STORE_BACKEND must be one of file, sqlite, redis, memory")
	}
	if c.Env == "production" && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.GuestRateLimit < 1 || c.UserRateLimit < 1 || c.ProRateLimit < 1 {
		return errors.New("rate limits must be positive")
	}
	if c.RateLimitFailure != "fail_open" && c.RateLimitFailure != "fail_closed" {
		return errors.New("RATE_LIMIT_FAILURE must be fail_open or fail_closed")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
