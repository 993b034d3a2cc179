package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/middleware"
	"github.com/hanfang-health/backend/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookieName = "hanfang_session"

// AuthHandler implements first-party registration and login with
// Redis-backed sessions.
type AuthHandler struct {
	config    *config.Config
	redis     *redis.Client
	logger    *zap.Logger
	pgPool    *pgxpool.Pool
	issuer    *utils.TokenIssuer
	validator *validator.Validate
	sessionD  time.Duration
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=patient doctor"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func NewAuthHandler(cfg *config.Config, rds *redis.Client, logger *zap.Logger, pgPool *pgxpool.Pool, issuer *utils.TokenIssuer) (*AuthHandler, error) {
	hours, err := strconv.Atoi(cfg.SessionDuration)
	if err != nil || hours < 1 {
		return nil, fmt.Errorf("invalid SESSION_DURATION: %q", cfg.SessionDuration)
	}

	return &AuthHandler{
		config:    cfg,
		redis:     rds,
		logger:    logger,
		pgPool:    pgPool,
		issuer:    issuer,
		validator: validator.New(),
		sessionD:  time.Duration(hours) * time.Hour,
	}, nil
}

// Register creates a profile row with a bcrypt password hash. Admin accounts
// cannot be self-registered.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse register request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.Error("validation failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": formatValidationErrors(err),
		})
	}

	role := req.Role
	if role == "" {
		role = "patient"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	userID := uuid.New().String()
	_, err = h.pgPool.Exec(c.Context(), `
		INSERT INTO profiles (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, req.Email, string(hash), req.Name, role)
	if err != nil {
		h.logger.Error("failed to create profile", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An account with this email already exists",
		})
	}

	h.logger.Info("profile registered",
		zap.String("user_id", userID),
		zap.String("role", role))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created successfully",
		"user_id": userID,
	})
}

// Login verifies credentials and creates a Redis session plus a JWT for
// mobile clients.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse login request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": formatValidationErrors(err),
		})
	}

	var userID, passwordHash, name, role string
	err := h.pgPool.QueryRow(c.Context(), `
		SELECT id, password_hash, name, role FROM profiles WHERE email = $1
	`, req.Email).Scan(&userID, &passwordHash, &name, &role)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
		}
		h.logger.Error("failed to look up profile", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		h.logger.Warn("login failed", zap.String("email", req.Email))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}

	sessionID := uuid.New().String()
	now := time.Now()
	session := middleware.SessionData{
		UserID:    userID,
		Email:     req.Email,
		Role:      role,
		ExpiresAt: now.Add(h.sessionD),
		CreatedAt: now,
	}
	sessionBytes, err := json.Marshal(session)
	if err != nil {
		h.logger.Error("failed to marshal session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	sessionKey := fmt.Sprintf("session:%s", sessionID)
	if err := h.redis.Set(c.Context(), sessionKey, sessionBytes, h.sessionD).Err(); err != nil {
		h.logger.Error("failed to store session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	apiToken, err := h.issuer.Issue(c.Context(), userID, role)
	if err != nil {
		h.logger.Error("failed to issue api token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   !h.config.IsDevelopment(),
		SameSite: "Lax",
		Domain:   h.config.CookieDomain,
		Path:     "/",
	})

	h.logger.Info("login successful",
		zap.String("user_id", userID),
		zap.String("role", role))

	return c.JSON(fiber.Map{
		"message":    "Login successful",
		"session_id": sessionID,
		"api_token":  apiToken,
		"user": fiber.Map{
			"id":    userID,
			"email": req.Email,
			"name":  name,
			"role":  role,
		},
	})
}

// Logout deletes the Redis session and clears the cookie. Idempotent.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sessionID, _ := c.Locals("sessionID").(string)
	if sessionID != "" {
		if err := h.redis.Del(c.Context(), fmt.Sprintf("session:%s", sessionID)).Err(); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Expires:  time.Now().Add(-1 * time.Hour),
		HTTPOnly: true,
		Secure:   !h.config.IsDevelopment(),
		SameSite: "Lax",
		Path:     "/",
	})

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me returns the authenticated user's identity from the session.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	email, _ := c.Locals("email").(string)
	role, _ := c.Locals("role").(string)

	return c.JSON(fiber.Map{
		"id":    userID,
		"email": email,
		"role":  role,
	})
}
