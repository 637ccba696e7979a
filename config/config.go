package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string
	Port               string
	GoEnv              string
	Auth0Domain        string
	Auth0Audience      string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	LogLevel           string

	// SlotHoldMinutes bounds how long a booked seat may sit in
	// pending_confirmation before the expiry sweep releases it.
	SlotHoldMinutes int
	// PartHoldHours bounds how long part reservations may sit pending
	// staff reception review.
	PartHoldHours int
	// PaymentHoldMinutes bounds how long a payment intent stays payable.
	PaymentHoldMinutes int
	// StaleWriteRetries is how many times an optimistic-lock failure is
	// retried with fresh state before surfacing.
	StaleWriteRetries int
}

var configInstance *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production the environment variables are set directly,
			// so it's okay if .env files don't exist
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Port:               getEnv("PORT", "8080"),
		GoEnv:              getEnv("GO_ENV", "development"),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SlotHoldMinutes:    getEnvInt("SLOT_HOLD_MINUTES", 30),
		PartHoldHours:      getEnvInt("PART_HOLD_HOURS", 24),
		PaymentHoldMinutes: getEnvInt("PAYMENT_HOLD_MINUTES", 30),
		StaleWriteRetries:  getEnvInt("STALE_WRITE_RETRIES", 3),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	configInstance = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SlotHoldMinutes <= 0 {
		return fmt.Errorf("SLOT_HOLD_MINUTES must be positive")
	}
	if c.PartHoldHours <= 0 {
		return fmt.Errorf("PART_HOLD_HOURS must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// GetConfig returns the loaded configuration instance
// If Load was never called it returns a config with the default bounds,
// which is what the service tests rely on.
func GetConfig() *Config {
	if configInstance == nil {
		return &Config{
			SlotHoldMinutes:    30,
			PartHoldHours:      24,
			PaymentHoldMinutes: 30,
			StaleWriteRetries:  3,
		}
	}
	return configInstance
}

// SetConfig sets the configuration instance (primarily for testing)
func SetConfig(c *Config) {
	configInstance = c
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
