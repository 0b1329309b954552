package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress string

	// Upstream services
	AuthServiceURL  string
	UsersServiceURL string

	// Seconds an auth verdict stays cached in Redis
	AuthCacheTTL int

	// File storage
	UploadDir string

	FrontendAddress string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	return Config{
		ServerPort:      getEnv("PORT", "3004"),
		Environment:     getEnv("ENV", "development"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "diagnostics"),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		AuthServiceURL:  getEnv("AUTH_SERVICE_URL", "http://localhost:3001"),
		UsersServiceURL: getEnv("USERS_SERVICE_URL", "http://localhost:3002"),
		AuthCacheTTL:    getEnvInt("AUTH_CACHE_TTL_SECONDS", 30),
		UploadDir:       getEnv("UPLOAD_DIR", filepath.Join("uploads", "patient", "diagnostics")),
		FrontendAddress: getEnv("FRONTEND_ADDRESS", "https://production-frontend.com"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return n
}
