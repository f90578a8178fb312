package coze

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.coze.cn"
	defaultUserID     = "anamnesa"
	defaultDrainGrace = 1200 * time.Millisecond
)

// TokenSource yields the bearer token for platform requests. Implementations
// may return a static personal access token or mint short-lived service
// tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource wrapping a fixed personal access token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("empty access token")
	}
	return string(t), nil
}

// ClientConfig holds configuration for the platform client.
// Required fields:
// - BotID: id of the hosted agent to converse with
// - Auth: token source for the Authorization header
// Optional fields with defaults:
// - BaseURL: platform REST endpoint (default: "https://api.coze.cn")
// - UserID: stable end-user identifier sent with every turn
// - VoiceID: synthesized voice for audio deltas (empty disables audio)
// - DrainGrace: how long trailing audio may keep arriving after the
//   text-completion marker (default: 1200ms)
type ClientConfig struct {
	BaseURL    string
	BotID      string
	UserID     string
	VoiceID    string
	Auth       TokenSource
	DrainGrace time.Duration
	HTTPClient *http.Client
}

// ValidateClientConfig validates the ClientConfig.
func ValidateClientConfig(config ClientConfig) error {
	if config.BotID == "" {
		return fmt.Errorf("bot id is required")
	}
	if config.Auth == nil {
		return fmt.Errorf("token source is required")
	}
	if config.DrainGrace < 0 {
		return fmt.Errorf("drain grace must not be negative, got %s", config.DrainGrace)
	}
	return nil
}

// Client talks to the hosted agent platform: the streaming chat endpoint,
// file uploads, speech synthesis, and the voice catalog.
type Client struct {
	baseURL    string
	botID      string
	userID     string
	voiceID    string
	auth       TokenSource
	drainGrace time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new platform client.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if err := ValidateClientConfig(config); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default base URL", zap.String("baseURL", baseURL))
	}

	userID := config.UserID
	if userID == "" {
		userID = defaultUserID
		logger.Info("Using default user ID", zap.String("userID", userID))
	}

	drainGrace := config.DrainGrace
	if drainGrace == 0 {
		drainGrace = defaultDrainGrace
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No overall timeout: the streaming chat response stays open for as
		// long as the agent keeps talking. Cancellation is the caller's ctx.
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    baseURL,
		botID:      config.BotID,
		userID:     userID,
		voiceID:    config.VoiceID,
		auth:       config.Auth,
		drainGrace: drainGrace,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// NewClientConfigFromEnv creates a ClientConfig from environment variables.
// COZE_ACCESS_TOKEN and COZE_BOT_ID are required; the rest fall back to
// defaults.
func NewClientConfigFromEnv() ClientConfig {
	config := ClientConfig{
		BaseURL: os.Getenv("COZE_BASE_URL"),
		BotID:   os.Getenv("COZE_BOT_ID"),
		UserID:  os.Getenv("COZE_USER_ID"),
		VoiceID: os.Getenv("COZE_VOICE_ID"),
	}
	if token := os.Getenv("COZE_ACCESS_TOKEN"); token != "" {
		config.Auth = StaticToken(token)
	}
	if grace := os.Getenv("COZE_DRAIN_GRACE"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil && d > 0 {
			config.DrainGrace = d
		}
	}
	return config
}

// VoiceID returns the configured output voice, empty when audio is disabled.
func (c *Client) VoiceID() string {
	return c.voiceID
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolving access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
