package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Load reads a .env file into the process environment when one exists.
// Variables already set in the environment win.
func Load(logger *zap.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
		return
	}
	logger.Info("Loaded environment from .env")
}

// Gateway holds configuration for the gateway server.
// Required fields:
// - JWTSecret: signing key for client tokens
// - AccessKey: shared key clients exchange for a token
// Optional fields with defaults:
// - Port: HTTP listen port (default: "8080")
// - TokenTTL: client token lifetime (default: 24h)
type Gateway struct {
	Port      string
	JWTSecret string
	AccessKey string
	TokenTTL  time.Duration
}

// NewGatewayFromEnv creates a Gateway config from environment variables.
func NewGatewayFromEnv(logger *zap.Logger) Gateway {
	config := Gateway{
		Port:      os.Getenv("PORT"),
		JWTSecret: os.Getenv("GATEWAY_JWT_SECRET"),
		AccessKey: os.Getenv("GATEWAY_ACCESS_KEY"),
	}
	if config.Port == "" {
		config.Port = "8080"
		logger.Info("Using default port", zap.String("port", config.Port))
	}
	if ttl := os.Getenv("GATEWAY_TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			config.TokenTTL = d
		} else {
			logger.Warn("Ignoring invalid GATEWAY_TOKEN_TTL", zap.String("value", ttl))
		}
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = 24 * time.Hour
	}
	return config
}

// Validate validates the Gateway config.
func (g Gateway) Validate() error {
	if g.JWTSecret == "" {
		return fmt.Errorf("GATEWAY_JWT_SECRET is required")
	}
	if g.AccessKey == "" {
		return fmt.Errorf("GATEWAY_ACCESS_KEY is required")
	}
	return nil
}
