package gateway

import "time"

// TokenRequest represents the request payload for client authentication
type TokenRequest struct {
	ClientID  string `json:"client_id"`
	AccessKey string `json:"access_key"`
}

// TokenResponse represents the response payload for client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// UploadResponse carries the id of an uploaded attachment.
type UploadResponse struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
