package middleware

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWKSVerifier validates Bearer JWTs issued by an external identity provider
// against its published JWKS. Used for clients that authenticate through a
// hosted auth service instead of the first-party login flow.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	logger *zap.Logger
}

func NewJWKSVerifier(jwksURL string, logger *zap.Logger) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:  time.Hour,
		RefreshRateLimit: time.Minute * 5,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks refresh failed", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}

	return &JWKSVerifier{
		jwks:   jwks,
		logger: logger,
	}, nil
}

// Validate parses and verifies a JWT and maps its claims onto SessionData.
func (v *JWKSVerifier) Validate(tokenString string) (*SessionData, error) {
	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if role == "" {
		role = "patient"
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &SessionData{
		UserID:    sub,
		Email:     email,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// Shutdown stops the background JWKS refresh.
func (v *JWKSVerifier) Shutdown() {
	v.jwks.EndBackground()
}
