package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

const (
	profilePicBucket = "profile-pics"
	maxUploadSize    = 5 * 1024 * 1024 // 5 MB
	jpegQuality      = 85
)

// ProfileHandler handles profile reads, updates and avatar storage.
type ProfileHandler struct {
	config      *config.Config
	logger      *zap.Logger
	pgPool      *pgxpool.Pool
	minioClient *minio.Client
	validator   *validator.Validate
}

func NewProfileHandler(cfg *config.Config, logger *zap.Logger, pgPool *pgxpool.Pool, minioClient *minio.Client) *ProfileHandler {
	return &ProfileHandler{
		config:      cfg,
		logger:      logger,
		pgPool:      pgPool,
		minioClient: minioClient,
		validator:   validator.New(),
	}
}

func (h *ProfileHandler) loadProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := h.pgPool.QueryRow(ctx, `
		SELECT id, email, name, role,
		       COALESCE(phone, ''), COALESCE(gender, ''),
		       birth_date, height_cm, weight_kg,
		       COALESCE(constitution, ''), COALESCE(avatar_file, ''),
		       created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.Phone, &p.Gender,
		&p.BirthDate, &p.HeightCm, &p.WeightKg, &p.Constitution, &p.AvatarFile,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile returns the authenticated user's profile with derived BMI.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	profile, err := h.loadProfile(c.Context(), userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		h.logger.Error("failed to load profile", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	response := fiber.Map{"profile": profile}
	if profile.HeightCm != nil && profile.WeightKg != nil {
		bmi := models.ComputeBMI(*profile.WeightKg, *profile.HeightCm)
		response["bmi"] = fiber.Map{
			"value":    bmi,
			"category": models.BMICategory(bmi),
		}
	}

	return c.JSON(response)
}

// UpdateProfile applies the mutable profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var req models.UpdateProfile
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse profile update", zap.Error(err))
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

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "birth_date must be in YYYY-MM-DD format",
			})
		}
		birthDate = &parsed
	}

	_, err := h.pgPool.Exec(c.Context(), `
		UPDATE profiles SET
			name = COALESCE(NULLIF($1, ''), name),
			phone = COALESCE(NULLIF($2, ''), phone),
			gender = COALESCE(NULLIF($3, ''), gender),
			birth_date = COALESCE($4, birth_date),
			height_cm = COALESCE($5, height_cm),
			weight_kg = COALESCE($6, weight_kg),
			constitution = COALESCE(NULLIF($7, ''), constitution),
			updated_at = now()
		WHERE id = $8
	`, req.Name, req.Phone, req.Gender, birthDate, req.HeightCm, req.WeightKg,
		req.Constitution, userID)
	if err != nil {
		h.logger.Error("failed to update profile", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}

	profile, err := h.loadProfile(c.Context(), userID)
	if err != nil {
		h.logger.Error("failed to reload profile", zap.Error(err))
		return c.JSON(fiber.Map{"message": "Profile updated successfully"})
	}

	h.logger.Info("profile updated", zap.String("user_id", userID))
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"profile": profile,
	})
}

// UploadProfilePic stores a resized avatar in MinIO and records its object
// name on the profile.
func (h *ProfileHandler) UploadProfilePic(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	file, err := c.FormFile("profilePic")
	if err != nil {
		h.logger.Error("failed to get file from form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	if file.Size > maxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File size exceeds maximum limit of %d MB", maxUploadSize/(1024*1024)),
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only JPG and PNG files are allowed",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process uploaded file",
		})
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		h.logger.Error("failed to decode image", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid image format",
		})
	}

	// Resize image to 512x512
	resized := resize.Resize(512, 512, img, resize.Lanczos3)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		h.logger.Error("failed to encode image", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process image",
		})
	}

	filename := fmt.Sprintf("%s.jpg", uuid.New().String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := h.minioClient.PutObject(
		ctx,
		profilePicBucket,
		filename,
		bytes.NewReader(buf.Bytes()),
		int64(buf.Len()),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
		},
	)
	if err != nil {
		h.logger.Error("failed to upload to minio",
			zap.Error(err),
			zap.String("bucket", profilePicBucket),
			zap.String("filename", filename))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store image",
		})
	}

	if _, err := h.pgPool.Exec(c.Context(),
		"UPDATE profiles SET avatar_file = $1, updated_at = now() WHERE id = $2",
		filename, userID); err != nil {
		h.logger.Error("failed to update avatar reference", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update profile picture",
		})
	}

	h.logger.Info("profile picture uploaded",
		zap.String("user_id", userID),
		zap.String("filename", filename),
		zap.Int64("size", info.Size))

	return c.JSON(fiber.Map{
		"message":  "Profile picture updated successfully",
		"filename": filename,
	})
}

// GetProfilePic streams a stored avatar from MinIO.
func (h *ProfileHandler) GetProfilePic(c *fiber.Ctx) error {
	filename := c.Params("filename")

	// Basic validation to prevent path traversal
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid filename",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Retry with backoff: object storage is occasionally slow to answer
	// right after an upload.
	var obj *minio.Object
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		obj, err = h.minioClient.GetObject(ctx, profilePicBucket, filename, minio.GetObjectOptions{})
		if err == nil {
			break
		}
		h.logger.Warn("attempt to get object from minio failed, retrying...",
			zap.Error(err),
			zap.String("filename", filename),
			zap.Int("attempt", attempt+1))
		if attempt < 2 {
			time.Sleep(time.Duration(100*(2<<attempt)) * time.Millisecond)
		}
	}
	if err != nil {
		h.logger.Error("all attempts to get object from minio failed",
			zap.Error(err),
			zap.String("filename", filename))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve image",
		})
	}

	objInfo, err := obj.Stat()
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Image not found",
		})
	}

	c.Set("Content-Type", objInfo.ContentType)
	c.Set("Cache-Control", "public, max-age=86400")
	return c.SendStream(obj, int(objInfo.Size))
}
