package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/models"
	"github.com/hanfang-health/backend/notify"
	"go.uber.org/zap"
)

// NotificationHandler is the HTTP surface over the notification orchestrator.
type NotificationHandler struct {
	logger       *zap.Logger
	orchestrator *notify.Orchestrator
	validator    *validator.Validate
}

func NewNotificationHandler(logger *zap.Logger, orchestrator *notify.Orchestrator) *NotificationHandler {
	return &NotificationHandler{
		logger:       logger,
		orchestrator: orchestrator,
		validator:    validator.New(),
	}
}

func (h *NotificationHandler) requireReady(c *fiber.Ctx) error {
	if !h.orchestrator.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Notification service unavailable",
		})
	}
	return nil
}

// GetPreferences returns the user's notification preferences.
func (h *NotificationHandler) GetPreferences(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)
	return c.JSON(fiber.Map{
		"preferences": h.orchestrator.Preferences(c.Context(), userID),
	})
}

// UpdatePreferences applies a partial patch to the user's preferences.
func (h *NotificationHandler) UpdatePreferences(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	var patch models.PreferencesPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}

	if patch.QuietStart != nil && (*patch.QuietStart < 0 || *patch.QuietStart > 1439) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "quiet_start must be a minute of day between 0 and 1439",
		})
	}
	if patch.QuietEnd != nil && (*patch.QuietEnd < 0 || *patch.QuietEnd > 1439) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "quiet_end must be a minute of day between 0 and 1439",
		})
	}
	for category := range patch.Categories {
		if !models.ValidCategory(category) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown notification category: " + category,
			})
		}
	}

	prefs := h.orchestrator.UpdatePreferences(c.Context(), userID, patch)
	return c.JSON(fiber.Map{
		"message":     "Preferences updated successfully",
		"preferences": prefs,
	})
}

type ShowNotificationRequest struct {
	Title    string            `json:"title" validate:"required,max=200"`
	Body     string            `json:"body" validate:"max=1000"`
	Category string            `json:"category" validate:"required"`
	Data     map[string]string `json:"data,omitempty"`
}

// Show delivers a notification immediately (unless suppressed by preferences).
func (h *NotificationHandler) Show(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	var req ShowNotificationRequest
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
	if !models.ValidCategory(req.Category) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown notification category: " + req.Category,
		})
	}

	displayed := h.orchestrator.Show(c.Context(), userID, notify.Options{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		Data:     req.Data,
	})
	return c.JSON(fiber.Map{"displayed": displayed})
}

type ScheduleNotificationRequest struct {
	Title    string            `json:"title" validate:"required,max=200"`
	Body     string            `json:"body" validate:"max=1000"`
	Category string            `json:"category" validate:"required"`
	FireAt   time.Time         `json:"fire_at" validate:"required"`
	Data     map[string]string `json:"data,omitempty"`
}

// Schedule registers a future notification and returns its identifier.
func (h *NotificationHandler) Schedule(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	var req ScheduleNotificationRequest
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
	if !models.ValidCategory(req.Category) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown notification category: " + req.Category,
		})
	}

	id := h.orchestrator.Schedule(c.Context(), userID, notify.Options{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		FireAt:   req.FireAt,
		Data:     req.Data,
	})
	if id == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Notification scheduling is disabled by your preferences",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         "Notification scheduled",
		"notification_id": id,
	})
}

// Cancel removes a scheduled notification. Idempotent.
func (h *NotificationHandler) Cancel(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Notification ID is required"})
	}

	h.orchestrator.Cancel(c.Context(), userID, id)
	return c.JSON(fiber.Map{"message": "Notification cancelled"})
}

// ListScheduled returns the user's pending notifications.
func (h *NotificationHandler) ListScheduled(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	pending := h.orchestrator.Scheduled(userID)
	if pending == nil {
		pending = []models.ScheduledNotification{}
	}
	return c.JSON(fiber.Map{"scheduled": pending})
}

// HandleClick records the click and returns the navigation target for the
// notification's category.
func (h *NotificationHandler) HandleClick(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	var data notify.ClickData
	if err := c.BodyParser(&data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}
	if err := h.validator.Struct(&data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": formatValidationErrors(err),
		})
	}

	target := h.orchestrator.HandleClick(userID, data)
	return c.JSON(fiber.Map{"navigate_to": target})
}

// History returns the 100 most recent displayed notifications, newest first.
func (h *NotificationHandler) History(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)

	entries := h.orchestrator.History(userID)
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return c.JSON(fiber.Map{"history": entries})
}

// Sync pulls the server state and applies it locally.
func (h *NotificationHandler) Sync(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)
	return c.JSON(h.orchestrator.SyncWithServer(c.Context(), userID))
}

// FullSync uploads local state first, then pulls the server copy.
func (h *NotificationHandler) FullSync(c *fiber.Ctx) error {
	if err := h.requireReady(c); err != nil {
		return err
	}
	userID, _ := c.Locals("userID").(string)
	return c.JSON(h.orchestrator.PerformFullSync(c.Context(), userID))
}
