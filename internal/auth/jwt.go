package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientClaims are the claims carried by gateway client tokens.
type ClientClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"` // "client" or "admin"
	jwt.RegisteredClaims
}

// Service issues and validates the HS256 tokens that gateway clients use on
// the websocket and REST endpoints.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. ttl defaults to 24h when zero.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl}, nil
}

// IssueClientToken generates a token for a gateway client.
func (s *Service) IssueClientToken(clientID string) (string, error) {
	claims := &ClientClaims{
		ClientID: clientID,
		Role:     "client",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token, returning its claims.
func (s *Service) Validate(tokenString string) (*ClientClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClientClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ClientClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
