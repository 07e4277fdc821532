package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	DatabaseURL     string
	JWTSecret       string
	HTTPPort        string
	TokenExpiration time.Duration
	EncryptionKey   []byte // Raw key bytes (32 for AES-256)

	AgentBaseURL string

	// Poll loop bounds for background agent jobs.
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollDeadline    time.Duration

	// Debounce window for persisting the active chat session.
	SessionSaveDebounce time.Duration
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.", err)
		// Don't fail if .env is not present, might be in production
	}

	port := getEnv("HTTP_PORT", "8080")
	jwtSecret := getEnv("JWT_SECRET", "default-super-secret-key") // CHANGE THIS IN PRODUCTION!
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	agentBaseURL := getEnv("AGENT_BASE_URL", "")
	if agentBaseURL == "" {
		return nil, fmt.Errorf("AGENT_BASE_URL environment variable is not set")
	}

	tokenExpHours := getEnvInt("JWT_EXPIRATION_HOURS", 24)

	// Load and decode the Encryption Key (MUST be 64 hex characters for 32 bytes)
	encryptionKeyHex := getEnv("ENCRYPTION_KEY", "")
	if encryptionKeyHex == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY environment variable is not set")
	}
	encryptionKeyBytes, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ENCRYPTION_KEY from hex: %w", err)
	}
	if len(encryptionKeyBytes) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", len(encryptionKeyBytes))
	}

	cfg := &Config{
		HTTPPort:            port,
		JWTSecret:           jwtSecret,
		DatabaseURL:         dbURL,
		TokenExpiration:     time.Hour * time.Duration(tokenExpHours),
		EncryptionKey:       encryptionKeyBytes,
		AgentBaseURL:        agentBaseURL,
		PollInterval:        time.Duration(getEnvInt("AGENT_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		PollMaxInterval:     time.Duration(getEnvInt("AGENT_POLL_MAX_INTERVAL_MS", 15000)) * time.Millisecond,
		PollDeadline:        time.Duration(getEnvInt("AGENT_POLL_DEADLINE_SECONDS", 600)) * time.Second,
		SessionSaveDebounce: time.Duration(getEnvInt("SESSION_SAVE_DEBOUNCE_MS", 2000)) * time.Millisecond,
	}

	log.Printf("Loaded config: Port=%s, DB_URL=***, TokenExp=%s, AgentBaseURL=%s, PollInterval=%s",
		cfg.HTTPPort, cfg.TokenExpiration, cfg.AgentBaseURL, cfg.PollInterval)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Env variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s', using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return v
}
