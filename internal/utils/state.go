package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StateClaims identifies the user and integration an OAuth authorization
// round-trip belongs to.
type StateClaims struct {
	UserID        string
	IntegrationID string
}

// StateTokenManager issues and verifies the signed state parameter used
// for OAuth CSRF protection. The token is self-contained, so callback
// verification needs no shared process memory.
type StateTokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewStateTokenManager creates a new state token manager
func NewStateTokenManager(secret string, expiry time.Duration) *StateTokenManager {
	return &StateTokenManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate signs a short-lived state token carrying the user identity,
// the integration id and a random nonce.
func (m *StateTokenManager) Generate(userID, integrationID string) (string, error) {
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            userID,
		"integration_id": integrationID,
		"iat":            now.Unix(),
		"exp":            now.Add(m.expiry).Unix(),
		"nonce":          base64.RawURLEncoding.EncodeToString(nonce),
	})

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}

	return tokenString, nil
}

// Validate verifies a state token and returns its claims
func (m *StateTokenManager) Validate(tokenString string) (*StateClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse state token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid state token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid state token claims")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("invalid subject in state token")
	}

	integrationID, ok := claims["integration_id"].(string)
	if !ok || integrationID == "" {
		return nil, fmt.Errorf("invalid integration_id in state token")
	}

	return &StateClaims{UserID: userID, IntegrationID: integrationID}, nil
}
