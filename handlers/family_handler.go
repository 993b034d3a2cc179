package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// FamilyHandler manages a user's family-member profiles.
type FamilyHandler struct {
	logger    *zap.Logger
	pgPool    *pgxpool.Pool
	validator *validator.Validate
}

type FamilyMemberRequest struct {
	Name         string   `json:"name" validate:"required,min=1,max=100"`
	Relationship string   `json:"relationship" validate:"required,oneof=spouse child parent grandparent sibling other"`
	Gender       string   `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate    string   `json:"birth_date,omitempty"`
	HeightCm     *float64 `json:"height_cm,omitempty" validate:"omitempty,gt=0,lt=300"`
	WeightKg     *float64 `json:"weight_kg,omitempty" validate:"omitempty,gt=0,lt=500"`
	Allergies    string   `json:"allergies,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

func NewFamilyHandler(logger *zap.Logger, pgPool *pgxpool.Pool) *FamilyHandler {
	return &FamilyHandler{
		logger:    logger,
		pgPool:    pgPool,
		validator: validator.New(),
	}
}

func parseBirthDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// CreateFamilyMember adds a dependent profile under the authenticated user.
func (h *FamilyHandler) CreateFamilyMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var req FamilyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse family member data", zap.Error(err))
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

	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "birth_date must be in YYYY-MM-DD format",
		})
	}

	memberID := uuid.New().String()
	_, err = h.pgPool.Exec(c.Context(), `
		INSERT INTO family_members
			(id, owner_id, name, relationship, gender, birth_date, height_cm, weight_kg, allergies, notes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
	`, memberID, userID, req.Name, req.Relationship, req.Gender, birthDate,
		req.HeightCm, req.WeightKg, req.Allergies, req.Notes)
	if err != nil {
		h.logger.Error("failed to create family member", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create family member"})
	}

	h.logger.Info("family member created",
		zap.String("owner_id", userID),
		zap.String("member_id", memberID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Family member created successfully",
		"member_id": memberID,
	})
}

// ListFamilyMembers returns all dependents of the authenticated user.
func (h *FamilyHandler) ListFamilyMembers(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	rows, err := h.pgPool.Query(c.Context(), `
		SELECT id, owner_id, name, relationship,
		       COALESCE(gender, ''), birth_date, height_cm, weight_kg,
		       COALESCE(allergies, ''), COALESCE(notes, ''),
		       created_at, updated_at
		FROM family_members
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		h.logger.Error("failed to list family members", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer rows.Close()

	members := []models.FamilyMember{}
	for rows.Next() {
		var m models.FamilyMember
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Relationship, &m.Gender,
			&m.BirthDate, &m.HeightCm, &m.WeightKg, &m.Allergies, &m.Notes,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			h.logger.Error("failed to scan family member row", zap.Error(err))
			continue
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("error during row iteration", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"family_members": members})
}

// GetFamilyMember returns one dependent, owner-scoped.
func (h *FamilyHandler) GetFamilyMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	memberID := c.Params("id")
	if !validateUUID(memberID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Member ID must be in UUID format"})
	}

	var m models.FamilyMember
	err := h.pgPool.QueryRow(c.Context(), `
		SELECT id, owner_id, name, relationship,
		       COALESCE(gender, ''), birth_date, height_cm, weight_kg,
		       COALESCE(allergies, ''), COALESCE(notes, ''),
		       created_at, updated_at
		FROM family_members
		WHERE id = $1 AND owner_id = $2
	`, memberID, userID).Scan(&m.ID, &m.OwnerID, &m.Name, &m.Relationship, &m.Gender,
		&m.BirthDate, &m.HeightCm, &m.WeightKg, &m.Allergies, &m.Notes,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Family member not found"})
		}
		h.logger.Error("failed to load family member", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	response := fiber.Map{"family_member": m}
	if m.HeightCm != nil && m.WeightKg != nil {
		bmi := models.ComputeBMI(*m.WeightKg, *m.HeightCm)
		response["bmi"] = fiber.Map{
			"value":    bmi,
			"category": models.BMICategory(bmi),
		}
	}
	return c.JSON(response)
}

// UpdateFamilyMember applies changes to an owned dependent.
func (h *FamilyHandler) UpdateFamilyMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	memberID := c.Params("id")
	if !validateUUID(memberID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Member ID must be in UUID format"})
	}

	var req FamilyMemberRequest
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

	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "birth_date must be in YYYY-MM-DD format",
		})
	}

	tag, err := h.pgPool.Exec(c.Context(), `
		UPDATE family_members SET
			name = $1,
			relationship = $2,
			gender = NULLIF($3, ''),
			birth_date = COALESCE($4, birth_date),
			height_cm = COALESCE($5, height_cm),
			weight_kg = COALESCE($6, weight_kg),
			allergies = NULLIF($7, ''),
			notes = NULLIF($8, ''),
			updated_at = now()
		WHERE id = $9 AND owner_id = $10
	`, req.Name, req.Relationship, req.Gender, birthDate, req.HeightCm,
		req.WeightKg, req.Allergies, req.Notes, memberID, userID)
	if err != nil {
		h.logger.Error("failed to update family member", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update family member"})
	}
	if tag.RowsAffected() == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Family member not found"})
	}

	return c.JSON(fiber.Map{"message": "Family member updated successfully"})
}

// DeleteFamilyMember removes an owned dependent. Idempotent.
func (h *FamilyHandler) DeleteFamilyMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	memberID := c.Params("id")
	if !validateUUID(memberID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Member ID must be in UUID format"})
	}

	tag, err := h.pgPool.Exec(c.Context(), `
		DELETE FROM family_members WHERE id = $1 AND owner_id = $2
	`, memberID, userID)
	if err != nil {
		h.logger.Error("failed to delete family member", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete family member"})
	}

	h.logger.Info("family member deleted",
		zap.String("member_id", memberID),
		zap.Int64("deleted_count", tag.RowsAffected()))

	return c.JSON(fiber.Map{"message": "Family member deleted successfully"})
}
