package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/ai"
	"github.com/hanfang-health/backend/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SeedHandler loads demo data for development and staging environments. Every
// insert is keyed on a fixed identifier, so re-running the seed is a no-op.
type SeedHandler struct {
	config *config.Config
	logger *zap.Logger
	pgPool *pgxpool.Pool
}

func NewSeedHandler(cfg *config.Config, logger *zap.Logger, pgPool *pgxpool.Pool) *SeedHandler {
	return &SeedHandler{
		config: cfg,
		logger: logger,
		pgPool: pgPool,
	}
}

type seedUser struct {
	email    string
	password string
	name     string
	role     string
}

var demoUsers = []seedUser{
	{"patient@demo.hanfang.health", "demo-patient-1", "王小明", "patient"},
	{"doctor@demo.hanfang.health", "demo-doctor-1", "李医生", "doctor"},
	{"admin@demo.hanfang.health", "demo-admin-1", "管理员", "admin"},
}

func (h *SeedHandler) seedUsers(ctx context.Context) (created int, patientID string, err error) {
	for _, u := range demoUsers {
		var existingID string
		err = h.pgPool.QueryRow(ctx,
			"SELECT id FROM profiles WHERE email = $1", u.email).Scan(&existingID)
		if err == nil {
			if u.role == "patient" {
				patientID = existingID
			}
			continue
		}

		hash, hashErr := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if hashErr != nil {
			return created, patientID, hashErr
		}

		userID := uuid.New().String()
		_, err = h.pgPool.Exec(ctx, `
			INSERT INTO profiles (id, email, password_hash, name, role)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (email) DO NOTHING
		`, userID, u.email, string(hash), u.name, u.role)
		if err != nil {
			return created, patientID, err
		}
		if u.role == "patient" {
			patientID = userID
		}
		created++
	}
	return created, patientID, nil
}

func (h *SeedHandler) seedFamily(ctx context.Context, patientID string) (int, error) {
	if patientID == "" {
		return 0, nil
	}

	var count int
	if err := h.pgPool.QueryRow(ctx,
		"SELECT count(*) FROM family_members WHERE owner_id = $1", patientID).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	_, err := h.pgPool.Exec(ctx, `
		INSERT INTO family_members (id, owner_id, name, relationship, gender, height_cm, weight_kg)
		VALUES
			($1, $2, '王奶奶', 'grandparent', 'female', 155, 52),
			($3, $2, '王小宝', 'child', 'male', 110, 19.5)
	`, uuid.New().String(), patientID, uuid.New().String())
	if err != nil {
		return 0, err
	}
	return 2, nil
}

func (h *SeedHandler) seedSystemPrompt(ctx context.Context) (int, error) {
	var count int
	if err := h.pgPool.QueryRow(ctx,
		"SELECT count(*) FROM system_prompts WHERE role = 'patient'").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	_, err := h.pgPool.Exec(ctx, `
		INSERT INTO system_prompts (id, role, name, content, active)
		VALUES ($1, 'patient', 'Default TCM consultation', $2, true)
	`, uuid.New().String(), ai.DefaultSystemInstruction)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

var demoHerbs = [][]string{
	{"huangqi", "黄芪", "Astragalus root", "补气药", "甘，微温", "脾、肺", "补气升阳，固表止汗"},
	{"danggui", "当归", "Angelica root", "补血药", "甘、辛，温", "肝、心、脾", "补血活血，调经止痛"},
	{"gouqizi", "枸杞子", "Goji berry", "补阴药", "甘，平", "肝、肾", "滋补肝肾，益精明目"},
	{"chenpi", "陈皮", "Dried tangerine peel", "理气药", "辛、苦，温", "脾、肺", "理气健脾，燥湿化痰"},
	{"jinyinhua", "金银花", "Honeysuckle flower", "清热药", "甘，寒", "肺、心、胃", "清热解毒，疏散风热"},
}

func (h *SeedHandler) seedHerbs(ctx context.Context) (int, error) {
	var count int
	if err := h.pgPool.QueryRow(ctx, "SELECT count(*) FROM herbs").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for _, herb := range demoHerbs {
		_, err := h.pgPool.Exec(ctx, `
			INSERT INTO herbs (pinyin, name_cn, name_en, category, properties, meridians, functions)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, herb[0], herb[1], herb[2], herb[3], herb[4], herb[5], herb[6])
		if err != nil {
			return 0, err
		}
	}
	return len(demoHerbs), nil
}

// Seed loads demo accounts, family members, a default system prompt and the
// starter herb reference. Refused in production.
func (h *SeedHandler) Seed(c *fiber.Ctx) error {
	if h.config.IsProduction() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Seeding is disabled in production",
		})
	}

	users, patientID, err := h.seedUsers(c.Context())
	if err != nil {
		h.logger.Error("failed to seed users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Seeding failed"})
	}

	family, err := h.seedFamily(c.Context(), patientID)
	if err != nil {
		h.logger.Error("failed to seed family members", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Seeding failed"})
	}

	prompts, err := h.seedSystemPrompt(c.Context())
	if err != nil {
		h.logger.Error("failed to seed system prompt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Seeding failed"})
	}

	herbs, err := h.seedHerbs(c.Context())
	if err != nil {
		h.logger.Error("failed to seed herbs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Seeding failed"})
	}

	h.logger.Info("demo data seeded",
		zap.Int("users", users),
		zap.Int("family_members", family),
		zap.Int("system_prompts", prompts),
		zap.Int("herbs", herbs))

	return c.JSON(fiber.Map{
		"message":        "Demo data seeded",
		"users":          users,
		"family_members": family,
		"system_prompts": prompts,
		"herbs":          herbs,
	})
}
