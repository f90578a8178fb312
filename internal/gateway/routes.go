package gateway

import (
	"crypto/subtle"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/anamnesa/domain/entities"
	"github.com/satriahrh/anamnesa/domain/repositories"
	"github.com/satriahrh/anamnesa/internal/auth"
)

const maxUploadBytes = 20 << 20 // agent side rejects larger files anyway

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *Hub,
	authSvc *auth.Service,
	uploader repositories.FileUploader,
	voices repositories.VoiceCatalog,
	accessKey string,
	tokenTTL time.Duration,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "anamnesa-gateway",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, authSvc, accessKey, tokenTTL, logger)
	})

	v1.POST("/files", requireToken(authSvc, logger, func(c echo.Context, _ *auth.ClientClaims) error {
		return uploadFile(c, uploader, logger)
	}))

	v1.GET("/voices", requireToken(authSvc, logger, func(c echo.Context, _ *auth.ClientClaims) error {
		return listVoices(c, voices, logger)
	}))

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, authSvc, logger)
	})
}

// issueToken exchanges the shared gateway access key for a client JWT.
func issueToken(c echo.Context, authSvc *auth.Service, accessKey string, ttl time.Duration, logger *zap.Logger) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client id and access key are required",
		})
	}

	if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(accessKey)) != 1 {
		logger.Warn("Client authentication failed", zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid access key",
		})
	}

	token, err := authSvc.IssueClientToken(req.ClientID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client authenticated", zap.String("client_id", req.ClientID))
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
		ClientID:  req.ClientID,
	})
}

// uploadFile relays a multipart upload to the agent platform and returns the
// file id for use in a later chat turn.
func uploadFile(c echo.Context, uploader repositories.FileUploader, logger *zap.Logger) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_file",
			Message: "Multipart field \"file\" is required",
		})
	}
	if fileHeader.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "file_too_large",
			Message: "File exceeds the upload limit",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_file",
			Message: "Could not read uploaded file",
		})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_file",
			Message: "Could not read uploaded file",
		})
	}

	attachment, err := uploader.Upload(c.Request().Context(), fileHeader.Filename, kindForFilename(fileHeader.Filename), content)
	if err != nil {
		logger.Error("Upload to agent platform failed",
			zap.String("name", fileHeader.Filename),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upload_failed",
			Message: "Upstream upload failed",
		})
	}

	return c.JSON(http.StatusOK, UploadResponse{
		FileID: attachment.ID,
		Name:   attachment.Name,
	})
}

// kindForFilename guesses the attachment kind from the file extension.
func kindForFilename(name string) entities.AttachmentKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return entities.AttachmentImage
	case ".wav", ".mp3", ".ogg", ".m4a", ".flac":
		return entities.AttachmentAudio
	default:
		return entities.AttachmentDocument
	}
}

func listVoices(c echo.Context, voices repositories.VoiceCatalog, logger *zap.Logger) error {
	list, err := voices.ListVoices(c.Request().Context())
	if err != nil {
		logger.Error("Failed to list voices", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "voices_unavailable",
			Message: "Could not fetch voice catalog",
		})
	}
	return c.JSON(http.StatusOK, list)
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

// requireToken wraps a handler with JWT validation.
func requireToken(authSvc *auth.Service, logger *zap.Logger, next func(echo.Context, *auth.ClientClaims) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := authSvc.Validate(token)
		if err != nil {
			logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		return next(c, claims)
	}
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *Hub, c echo.Context, authSvc *auth.Service, logger *zap.Logger) error {
	token := bearerToken(c)
	if token == "" {
		// Browsers cannot set headers on websocket dials, so the token may
		// ride in the query string instead.
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := authSvc.Validate(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.ClientID == "" {
		logger.Error("WebSocket connection rejected: missing client ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("client_id", claims.ClientID))
	return HandleWebSocket(hub, c, claims.ClientID, logger)
}
