package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	Environment             string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	StoreID                 string
	ReorderReportTTLSeconds int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	LockTimeoutMillis       int
}

// Load reads configuration from the environment, overlaying a .env file if
// one is present in the working directory.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reorderTTL, err := strconv.Atoi(getEnv("REORDER_REPORT_TTL_SECONDS", "60"))
	if err != nil || reorderTTL < 1 {
		reorderTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	lockTimeout, err := strconv.Atoi(getEnv("LOCK_TIMEOUT_MILLIS", "5000"))
	if err != nil || lockTimeout < 1 {
		lockTimeout = 5000
	}

	return Config{
		Port:                    getEnv("PORT", "8080"),
		Environment:             getEnv("APP_ENV", "development"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		StoreID:                 getEnv("DEFAULT_STORE_ID", "main-store"),
		ReorderReportTTLSeconds: reorderTTL,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
		LockTimeoutMillis:       lockTimeout,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
