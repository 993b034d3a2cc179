package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/models"
	"github.com/hanfang-health/backend/notify"
	"github.com/hanfang-health/backend/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// AdminHandler serves the admin dashboard: dependency health, recorded
// errors, AI system prompts and runtime settings.
type AdminHandler struct {
	config       *config.Config
	logger       *zap.Logger
	pgPool       *pgxpool.Pool
	redis        *redis.Client
	mongoClient  *mongo.Client
	minioClient  *minio.Client
	errors       *storage.ErrorRecorder
	orchestrator *notify.Orchestrator
	validator    *validator.Validate
	startedAt    time.Time
}

func NewAdminHandler(cfg *config.Config, logger *zap.Logger, pgPool *pgxpool.Pool, rds *redis.Client,
	mongoClient *mongo.Client, minioClient *minio.Client, errors *storage.ErrorRecorder,
	orchestrator *notify.Orchestrator) *AdminHandler {
	return &AdminHandler{
		config:       cfg,
		logger:       logger,
		pgPool:       pgPool,
		redis:        rds,
		mongoClient:  mongoClient,
		minioClient:  minioClient,
		errors:       errors,
		orchestrator: orchestrator,
		validator:    validator.New(),
		startedAt:    time.Now(),
	}
}

type componentHealth struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func checkComponent(ctx context.Context, ping func(context.Context) error) componentHealth {
	start := time.Now()
	err := ping(ctx)
	health := componentHealth{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		health.Status = "down"
		health.Error = err.Error()
	}
	return health
}

// Health pings every backing service and reports per-component status.
func (h *AdminHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	components := fiber.Map{
		"postgres": checkComponent(ctx, h.pgPool.Ping),
		"redis": checkComponent(ctx, func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		}),
		"mongodb": checkComponent(ctx, func(ctx context.Context) error {
			return h.mongoClient.Ping(ctx, readpref.Primary())
		}),
		"minio": checkComponent(ctx, func(ctx context.Context) error {
			_, err := h.minioClient.ListBuckets(ctx)
			return err
		}),
	}

	status := fiber.StatusOK
	overall := "ok"
	for _, v := range components {
		if health, ok := v.(componentHealth); ok && health.Status != "ok" {
			overall = "degraded"
			status = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":              overall,
		"components":          components,
		"notifications_ready": h.orchestrator.Ready(),
		"uptime_seconds":      int64(time.Since(h.startedAt).Seconds()),
		"environment":         h.config.Environment,
	})
}

// ListErrors returns recent recorded backend failures.
func (h *AdminHandler) ListErrors(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))

	entries, err := h.errors.Recent(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list system errors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	if entries == nil {
		entries = []models.SystemError{}
	}
	return c.JSON(fiber.Map{"errors": entries})
}

// PruneErrors deletes recorded failures older than the retention window.
func (h *AdminHandler) PruneErrors(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("retention_days", "30"))
	if err != nil || days < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "retention_days must be a positive integer",
		})
	}

	deleted, err := h.errors.Prune(c.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.logger.Error("failed to prune system errors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to prune errors"})
	}

	h.logger.Info("system errors pruned",
		zap.Int64("deleted", deleted),
		zap.Int("retention_days", days))
	return c.JSON(fiber.Map{"deleted": deleted})
}

type SystemPromptRequest struct {
	Role    string `json:"role" validate:"required,oneof=patient doctor admin"`
	Name    string `json:"name" validate:"required,min=1,max=100"`
	Content string `json:"content" validate:"required,min=1,max=20000"`
}

// ListSystemPrompts returns all configured AI system prompts.
func (h *AdminHandler) ListSystemPrompts(c *fiber.Ctx) error {
	rows, err := h.pgPool.Query(c.Context(), `
		SELECT id, role, name, content, active, created_at, updated_at
		FROM system_prompts
		ORDER BY role, created_at DESC
	`)
	if err != nil {
		h.logger.Error("failed to list system prompts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer rows.Close()

	prompts := []models.SystemPrompt{}
	for rows.Next() {
		var p models.SystemPrompt
		if err := rows.Scan(&p.ID, &p.Role, &p.Name, &p.Content, &p.Active,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			h.logger.Error("failed to scan system prompt row", zap.Error(err))
			continue
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("error during row iteration", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"prompts": prompts})
}

// CreateSystemPrompt adds a new (inactive) prompt for a role.
func (h *AdminHandler) CreateSystemPrompt(c *fiber.Ctx) error {
	var req SystemPromptRequest
	if err := c.BodyParser(&req); err != nil {
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

	promptID := uuid.New().String()
	_, err := h.pgPool.Exec(c.Context(), `
		INSERT INTO system_prompts (id, role, name, content, active)
		VALUES ($1, $2, $3, $4, false)
	`, promptID, req.Role, req.Name, req.Content)
	if err != nil {
		h.logger.Error("failed to create system prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create prompt"})
	}

	h.logger.Info("system prompt created",
		zap.String("prompt_id", promptID),
		zap.String("role", req.Role))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "System prompt created successfully",
		"prompt_id": promptID,
	})
}

// UpdateSystemPrompt edits an existing prompt's name and content.
func (h *AdminHandler) UpdateSystemPrompt(c *fiber.Ctx) error {
	promptID := c.Params("id")
	if !validateUUID(promptID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Prompt ID must be in UUID format"})
	}

	var req SystemPromptRequest
	if err := c.BodyParser(&req); err != nil {
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

	tag, err := h.pgPool.Exec(c.Context(), `
		UPDATE system_prompts SET
			role = $1, name = $2, content = $3, updated_at = now()
		WHERE id = $4
	`, req.Role, req.Name, req.Content, promptID)
	if err != nil {
		h.logger.Error("failed to update system prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update prompt"})
	}
	if tag.RowsAffected() == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Prompt not found"})
	}

	return c.JSON(fiber.Map{"message": "System prompt updated successfully"})
}

// ActivateSystemPrompt makes a prompt the active one for its role, in a single
// transaction so a role never has two active prompts.
func (h *AdminHandler) ActivateSystemPrompt(c *fiber.Ctx) error {
	promptID := c.Params("id")
	if !validateUUID(promptID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Prompt ID must be in UUID format"})
	}

	tx, err := h.pgPool.Begin(c.Context())
	if err != nil {
		h.logger.Error("failed to begin transaction", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer tx.Rollback(c.Context())

	var role string
	if err := tx.QueryRow(c.Context(),
		"SELECT role FROM system_prompts WHERE id = $1", promptID).Scan(&role); err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Prompt not found"})
		}
		h.logger.Error("failed to look up prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	if _, err := tx.Exec(c.Context(),
		"UPDATE system_prompts SET active = false, updated_at = now() WHERE role = $1 AND active = true", role); err != nil {
		h.logger.Error("failed to deactivate prompts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to activate prompt"})
	}
	if _, err := tx.Exec(c.Context(),
		"UPDATE system_prompts SET active = true, updated_at = now() WHERE id = $1", promptID); err != nil {
		h.logger.Error("failed to activate prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to activate prompt"})
	}

	if err := tx.Commit(c.Context()); err != nil {
		h.logger.Error("failed to commit activation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to activate prompt"})
	}

	h.logger.Info("system prompt activated",
		zap.String("prompt_id", promptID),
		zap.String("role", role))
	return c.JSON(fiber.Map{"message": "System prompt activated"})
}

// DeleteSystemPrompt removes a prompt. Idempotent.
func (h *AdminHandler) DeleteSystemPrompt(c *fiber.Ctx) error {
	promptID := c.Params("id")
	if !validateUUID(promptID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Prompt ID must be in UUID format"})
	}

	if _, err := h.pgPool.Exec(c.Context(),
		"DELETE FROM system_prompts WHERE id = $1", promptID); err != nil {
		h.logger.Error("failed to delete system prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete prompt"})
	}
	return c.JSON(fiber.Map{"message": "System prompt deleted"})
}

// ListSettings returns all admin settings.
func (h *AdminHandler) ListSettings(c *fiber.Ctx) error {
	rows, err := h.pgPool.Query(c.Context(), `
		SELECT key, value, updated_at FROM admin_settings ORDER BY key
	`)
	if err != nil {
		h.logger.Error("failed to list settings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer rows.Close()

	settings := []models.AdminSetting{}
	for rows.Next() {
		var s models.AdminSetting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			h.logger.Error("failed to scan setting row", zap.Error(err))
			continue
		}
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("error during row iteration", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"settings": settings})
}

type AdminSettingRequest struct {
	Value string `json:"value" validate:"required,max=10000"`
}

// UpsertSetting writes a key/value setting.
func (h *AdminHandler) UpsertSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" || len(key) > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid setting key"})
	}

	var req AdminSettingRequest
	if err := c.BodyParser(&req); err != nil {
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

	_, err := h.pgPool.Exec(c.Context(), `
		INSERT INTO admin_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, req.Value)
	if err != nil {
		h.logger.Error("failed to upsert setting", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save setting"})
	}

	h.logger.Info("admin setting updated", zap.String("key", key))
	return c.JSON(fiber.Map{"message": "Setting saved"})
}
