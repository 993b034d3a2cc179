package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/ai"
	"github.com/hanfang-health/backend/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ConsultHandler assembles the consultation prompt from the collected
// observations and relays the model's answer, streamed by default.
type ConsultHandler struct {
	config    *config.Config
	logger    *zap.Logger
	pgPool    *pgxpool.Pool
	aiClient  *ai.Client
	validator *validator.Validate
}

type ConsultRequest struct {
	Input  ai.ConsultationInput `json:"input"`
	Stream *bool                `json:"stream,omitempty"`
}

func NewConsultHandler(cfg *config.Config, logger *zap.Logger, pgPool *pgxpool.Pool, aiClient *ai.Client) *ConsultHandler {
	return &ConsultHandler{
		config:    cfg,
		logger:    logger,
		pgPool:    pgPool,
		aiClient:  aiClient,
		validator: validator.New(),
	}
}

// activeSystemPrompt returns the admin-configured system prompt for the role,
// or the built-in default when none is active.
func (h *ConsultHandler) activeSystemPrompt(ctx context.Context, role string) string {
	var content string
	err := h.pgPool.QueryRow(ctx, `
		SELECT content FROM system_prompts
		WHERE role = $1 AND active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`, role).Scan(&content)
	if err != nil {
		if err != pgx.ErrNoRows {
			h.logger.Warn("failed to load active system prompt", zap.Error(err))
		}
		return ai.DefaultSystemInstruction
	}
	return content
}

// Consult runs a consultation against the AI provider. With stream=true (the
// default) chunks are relayed as newline-delimited JSON as they arrive.
func (h *ConsultHandler) Consult(c *fiber.Ctx) error {
	role, _ := c.Locals("role").(string)

	var req ConsultRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}

	for i, turn := range req.Input.Inquiry {
		if err := h.validator.Struct(&turn); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Validation failed",
				"details": formatValidationErrors(err),
				"turn":    i,
			})
		}
	}

	systemPrompt := h.activeSystemPrompt(c.Context(), role)
	prompt := ai.BuildConsultationPrompt(req.Input)

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	if !stream {
		answer, err := h.aiClient.GenerateDiagnosis(c.Context(), systemPrompt, prompt)
		if err != nil {
			h.logger.Error("consultation failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "AI provider unavailable"})
		}
		return c.JSON(fiber.Map{"report": answer})
	}

	// The request context dies with this handler, so the stream writer gets
	// its own deadline-bound context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	logger := h.logger

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Cache-Control", "no-cache")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeEvent := func(event map[string]any) error {
			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := w.Write(append(payload, '\n')); err != nil {
				return err
			}
			return w.Flush()
		}

		err := h.aiClient.StreamDiagnosis(ctx, systemPrompt, prompt, func(text string) error {
			return writeEvent(map[string]any{"type": "chunk", "text": text})
		})
		if err != nil {
			logger.Error("consultation stream failed", zap.Error(err))
			_ = writeEvent(map[string]any{"type": "error", "error": "AI provider unavailable"})
			return
		}
		_ = writeEvent(map[string]any{"type": "done"})
	}))

	return nil
}
