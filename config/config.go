package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort        string
	AppMode        string
	DBHost         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBPort         string
	DBTimeoutSec   int
	JWTSecret      string
	JWTExpiryMin   int
	SessionTTLDays int
	IdleTimeoutMin int
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	HistoryPage    int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:        getEnv("APP_PORT", "8080"),
		AppMode:        getEnv("APP_MODE", "debug"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "veilchat"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBTimeoutSec:   getEnvAsInt("DB_TIMEOUT_SEC", 5),
		JWTSecret:      getEnv("JWT_SECRET", "change-me"),
		JWTExpiryMin:   getEnvAsInt("JWT_EXPIRY_MIN", 15),
		SessionTTLDays: getEnvAsInt("SESSION_TTL_DAYS", 7),
		IdleTimeoutMin: getEnvAsInt("SESSION_IDLE_TIMEOUT_MIN", 30),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		HistoryPage:    getEnvAsInt("HISTORY_PAGE_SIZE", 20),
	}
}

// IdleTimeout is the sliding-expiration window for sessions.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMin) * time.Minute
}

// DBTimeout bounds individual storage calls.
func (c *Config) DBTimeout() time.Duration {
	return time.Duration(c.DBTimeoutSec) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
