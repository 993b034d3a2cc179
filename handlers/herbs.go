package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/cache"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Herb is one entry of the TCM materia medica reference.
type Herb struct {
	ID         int    `json:"id"`
	Pinyin     string `json:"pinyin"`
	NameCN     string `json:"name_cn"`
	NameEN     string `json:"name_en"`
	Category   string `json:"category"`
	Properties string `json:"properties"`
	Meridians  string `json:"meridians"`
	Functions  string `json:"functions"`
}

// HerbHandler serves read-only lookups against the herbs reference table.
type HerbHandler struct {
	logger *zap.Logger
	pgPool *pgxpool.Pool
	cache  *cache.Cache
}

func NewHerbHandler(logger *zap.Logger, pgPool *pgxpool.Pool, herbCache *cache.Cache) *HerbHandler {
	return &HerbHandler{
		logger: logger,
		pgPool: pgPool,
		cache:  herbCache,
	}
}

const herbCacheTTL = 6 * time.Hour

// SearchHerbs matches the term against pinyin, Chinese and English names and
// the listed functions. Results are cached; the reference table rarely changes.
func (h *HerbHandler) SearchHerbs(c *fiber.Ctx) error {
	searchTerm := c.Query("term")
	if searchTerm == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Search term is required"})
	}
	if len(searchTerm) > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Search term too long"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	var herbs []Herb
	err := h.cache.Remember(ctx, "herbs:search:"+searchTerm, herbCacheTTL, &herbs, func(ctx context.Context) (any, error) {
		return h.queryHerbs(ctx, searchTerm)
	})
	if err != nil {
		h.logger.Error("failed to search herbs",
			zap.String("term", searchTerm),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search herbs",
		})
	}

	if len(herbs) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "No herbs found matching the search term",
			"herbs":   []Herb{},
		})
	}

	return c.JSON(fiber.Map{
		"herbs": herbs,
		"count": len(herbs),
	})
}

func (h *HerbHandler) queryHerbs(ctx context.Context, searchTerm string) ([]Herb, error) {
	query := `
		SELECT id,
		       COALESCE(pinyin, '') as pinyin,
		       COALESCE(name_cn, '') as name_cn,
		       COALESCE(name_en, '') as name_en,
		       COALESCE(category, '') as category,
		       COALESCE(properties, '') as properties,
		       COALESCE(meridians, '') as meridians,
		       COALESCE(functions, '') as functions
		FROM herbs
		WHERE
			COALESCE(pinyin, '') ILIKE $1 OR
			COALESCE(name_cn, '') ILIKE $1 OR
			COALESCE(name_en, '') ILIKE $1 OR
			COALESCE(functions, '') ILIKE $1
		ORDER BY pinyin ASC
		LIMIT 50
	`
	pattern := fmt.Sprintf("%%%s%%", searchTerm)

	rows, err := h.pgPool.Query(ctx, query, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var herbs []Herb
	for rows.Next() {
		var herb Herb
		if err := rows.Scan(&herb.ID, &herb.Pinyin, &herb.NameCN, &herb.NameEN,
			&herb.Category, &herb.Properties, &herb.Meridians, &herb.Functions); err != nil {
			h.logger.Error("failed to scan herb row", zap.Error(err))
			continue
		}
		herbs = append(herbs, herb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return herbs, nil
}

// GetHerb returns a single herb by ID.
func (h *HerbHandler) GetHerb(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Herb ID must be a positive integer"})
	}

	var herb Herb
	err = h.pgPool.QueryRow(c.Context(), `
		SELECT id,
		       COALESCE(pinyin, ''), COALESCE(name_cn, ''), COALESCE(name_en, ''),
		       COALESCE(category, ''), COALESCE(properties, ''),
		       COALESCE(meridians, ''), COALESCE(functions, '')
		FROM herbs WHERE id = $1
	`, id).Scan(&herb.ID, &herb.Pinyin, &herb.NameCN, &herb.NameEN,
		&herb.Category, &herb.Properties, &herb.Meridians, &herb.Functions)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Herb not found"})
	}

	return c.JSON(fiber.Map{"herb": herb})
}
