package config

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestNewGatewayFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GATEWAY_JWT_SECRET", "secret")
	t.Setenv("GATEWAY_ACCESS_KEY", "key")
	t.Setenv("GATEWAY_TOKEN_TTL", "")

	config := NewGatewayFromEnv(zaptest.NewLogger(t))
	if config.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", config.Port)
	}
	if config.TokenTTL != 24*time.Hour {
		t.Errorf("expected default ttl 24h, got %s", config.TokenTTL)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestNewGatewayFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GATEWAY_JWT_SECRET", "secret")
	t.Setenv("GATEWAY_ACCESS_KEY", "key")
	t.Setenv("GATEWAY_TOKEN_TTL", "2h")

	config := NewGatewayFromEnv(zaptest.NewLogger(t))
	if config.Port != "9090" {
		t.Errorf("expected port 9090, got %q", config.Port)
	}
	if config.TokenTTL != 2*time.Hour {
		t.Errorf("expected ttl 2h, got %s", config.TokenTTL)
	}
}

func TestNewGatewayFromEnvInvalidTTLFallsBack(t *testing.T) {
	t.Setenv("GATEWAY_TOKEN_TTL", "soon")

	config := NewGatewayFromEnv(zaptest.NewLogger(t))
	if config.TokenTTL != 24*time.Hour {
		t.Errorf("expected fallback ttl 24h, got %s", config.TokenTTL)
	}
}

func TestGatewayValidate(t *testing.T) {
	if err := (Gateway{AccessKey: "key"}).Validate(); err == nil {
		t.Error("expected error for missing jwt secret")
	}
	if err := (Gateway{JWTSecret: "secret"}).Validate(); err == nil {
		t.Error("expected error for missing access key")
	}
}
