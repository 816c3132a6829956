package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sharexp/utils"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port    string
	GinMode string

	StorageBackend string
	DBHost         string
	DBPort         string
	DBUsername     string
	DBPassword     string
	DBName         string
	DBMaxConns     int

	RedisHost     string
	RedisPort     string
	RedisPassword string

	UsersCacheExpiration time.Duration
	PostsCacheExpiration time.Duration

	JWTSecret string

	LivePublishTimeout time.Duration
	SessionBufferSize  int

	StorageMaxRetries int
	StorageRetryDelay time.Duration

	ReconcileInterval time.Duration
}

// LoadEnv loads .env files from the working directory when present. Later
// files override earlier ones.
func LoadEnv() {
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			log.Warnf("Failed to load %s: %v", file, err)
			continue
		}
		log.Debugf("Loaded env file %s", file)
	}
}

func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func FromEnv() Config {
	return Config{
		Port:    GetEnv("PORT", "3000"),
		GinMode: GetEnv("GIN_MODE", "release"),

		StorageBackend: GetEnv("STORAGE_BACKEND", BackendPostgres),
		DBHost:         GetEnv("DB_HOST", "localhost"),
		DBPort:         GetEnv("DB_PORT", "5432"),
		DBUsername:     os.Getenv("DB_USERNAME"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         GetEnv("DB_NAME", "sharexp"),
		DBMaxConns:     utils.IntFromString(os.Getenv("DB_MAX_CONNS"), 10),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     GetEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		UsersCacheExpiration: time.Duration(
			utils.IntFromString(os.Getenv("USERS_CACHE_EXPIRATION_MINUTES"), 720),
		) * time.Minute,
		PostsCacheExpiration: time.Duration(
			utils.IntFromString(os.Getenv("POSTS_CACHE_EXPIRATION_MINUTES"), 1080),
		) * time.Minute,

		JWTSecret: os.Getenv("JWT_SECRET"),

		LivePublishTimeout: utils.MillisFromString(os.Getenv("LIVE_PUBLISH_TIMEOUT_MS"), 100),
		SessionBufferSize:  utils.IntFromString(os.Getenv("SESSION_BUFFER_SIZE"), 64),

		StorageMaxRetries: utils.IntFromString(os.Getenv("STORAGE_MAX_RETRIES"), 3),
		StorageRetryDelay: utils.MillisFromString(os.Getenv("STORAGE_RETRY_DELAY_MS"), 20),

		ReconcileInterval: time.Duration(
			utils.IntFromString(os.Getenv("RECONCILE_INTERVAL_MINUTES"), 60),
		) * time.Minute,
	}
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.SessionBufferSize <= 0 {
		return fmt.Errorf("SESSION_BUFFER_SIZE must be positive, got %d", c.SessionBufferSize)
	}
	if c.LivePublishTimeout <= 0 {
		return fmt.Errorf("LIVE_PUBLISH_TIMEOUT_MS must be positive")
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s sslmode=disable host=%s port=%s pool_max_conns=%d",
		c.DBUsername,
		c.DBPassword,
		c.DBName,
		c.DBHost,
		c.DBPort,
		c.DBMaxConns,
	)
}

func (c Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func ConfigureLogging() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
