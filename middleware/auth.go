package middleware

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type AuthMiddleware struct {
	logger     *zap.Logger
	redis      *redis.Client
	issuer     *utils.TokenIssuer
	jwks       *JWKSVerifier // optional: externally issued tokens
	cookieName string
}

type SessionData struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAuthMiddleware(logger *zap.Logger, redis *redis.Client, issuer *utils.TokenIssuer, jwks *JWKSVerifier, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		logger:     logger,
		redis:      redis,
		issuer:     issuer,
		jwks:       jwks,
		cookieName: cookieName,
	}
}

func (m *AuthMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sessionID string

		// Try Authorization header first
		auth := c.Get("Authorization")
		if auth != "" && strings.HasPrefix(auth, "Bearer ") {
			sessionID = strings.TrimPrefix(auth, "Bearer ")
		}

		// Fall back to cookie
		if sessionID == "" {
			sessionID = c.Cookies(m.cookieName)
		}

		if sessionID == "" {
			m.logger.Debug("no authentication found",
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
				"code":  "NO_SESSION",
			})
		}

		sessionData, err := m.validateSession(c, sessionID)
		if err != nil && m.issuer != nil {
			// Mobile clients carry a first-party JWT instead of a session ID.
			if claims, jwtErr := m.issuer.Verify(c.Context(), sessionID); jwtErr == nil {
				sub, _ := claims["sub"].(string)
				role, _ := claims["role"].(string)
				sessionData = &SessionData{UserID: sub, Role: role}
				err = nil
			}
		}
		if err != nil && m.jwks != nil {
			// The token may be an externally issued JWT rather than one of
			// our session IDs.
			sessionData, err = m.jwks.Validate(sessionID)
		}
		if err != nil {
			m.logger.Debug("invalid session",
				zap.String("path", c.Path()),
				zap.Error(err))

			// Clear invalid cookie
			c.Cookie(&fiber.Cookie{
				Name:     m.cookieName,
				Value:    "",
				Expires:  time.Now().Add(-1 * time.Hour),
				HTTPOnly: true,
				Secure:   true,
				SameSite: "Lax",
				Path:     "/",
			})

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired session",
				"code":  "SESSION_INVALID",
			})
		}

		// Store session data in context
		c.Locals("userID", sessionData.UserID)
		c.Locals("email", sessionData.Email)
		c.Locals("role", sessionData.Role)
		c.Locals("sessionID", sessionID)

		return c.Next()
	}
}

// RequireRole gates a route group to the given roles. Must run after
// Handler().
func RequireRole(logger *zap.Logger, roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if !allowed[role] {
			logger.Warn("role check failed",
				zap.String("path", c.Path()),
				zap.String("role", role))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
				"code":  "FORBIDDEN",
			})
		}
		return c.Next()
	}
}

func (m *AuthMiddleware) validateSession(c *fiber.Ctx, sessionID string) (*SessionData, error) {
	sessionKey := fmt.Sprintf("session:%s", sessionID)
	sessionBytes, err := m.redis.Get(c.Context(), sessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sessionData SessionData
	if err := json.Unmarshal(sessionBytes, &sessionData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if time.Now().After(sessionData.ExpiresAt) {
		m.redis.Del(c.Context(), sessionKey)
		return nil, fmt.Errorf("session expired")
	}

	return &sessionData, nil
}
