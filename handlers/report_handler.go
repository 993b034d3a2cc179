package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/ai"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const (
	reportBucket      = "medical-reports"
	maxReportSize     = 20 * 1024 * 1024 // 20 MB
	maxExtractedChars = 100_000
)

// ReportHandler manages medical report files and the report chat.
type ReportHandler struct {
	config      *config.Config
	logger      *zap.Logger
	pgPool      *pgxpool.Pool
	minioClient *minio.Client
	aiClient    *ai.Client
	validator   *validator.Validate
}

func NewReportHandler(cfg *config.Config, logger *zap.Logger, pgPool *pgxpool.Pool, minioClient *minio.Client, aiClient *ai.Client) *ReportHandler {
	return &ReportHandler{
		config:      cfg,
		logger:      logger,
		pgPool:      pgPool,
		minioClient: minioClient,
		aiClient:    aiClient,
		validator:   validator.New(),
	}
}

var allowedReportTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".txt":  "text/plain",
}

// UploadReport stores the file in MinIO and its metadata in Postgres. The
// client sends any text it extracted alongside the file.
func (h *ReportHandler) UploadReport(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	file, err := c.FormFile("file")
	if err != nil {
		h.logger.Error("failed to get file from form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file uploaded"})
	}

	if file.Size > maxReportSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File size exceeds maximum limit of %d MB", maxReportSize/(1024*1024)),
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, ok := allowedReportTypes[ext]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only PDF, JPG, PNG and TXT files are allowed",
		})
	}

	title := c.FormValue("title")
	if title == "" {
		title = file.Filename
	}
	extractedText := c.FormValue("extracted_text")
	if len(extractedText) > maxExtractedChars {
		extractedText = extractedText[:maxExtractedChars]
	}
	familyMemberID := c.FormValue("family_member_id")
	if familyMemberID != "" && !validateUUID(familyMemberID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "family_member_id must be a UUID"})
	}

	var reportDate *time.Time
	if raw := c.FormValue("report_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "report_date must be in YYYY-MM-DD format",
			})
		}
		reportDate = &parsed
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process uploaded file"})
	}
	defer src.Close()

	reportID := uuid.New().String()
	objectName := fmt.Sprintf("%s/%s%s", userID, reportID, ext)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := h.minioClient.PutObject(ctx, reportBucket, objectName, src, file.Size,
		minio.PutObjectOptions{ContentType: contentType}); err != nil {
		h.logger.Error("failed to upload report to minio",
			zap.Error(err),
			zap.String("object", objectName))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store report"})
	}

	_, err = h.pgPool.Exec(c.Context(), `
		INSERT INTO medical_reports
			(id, owner_id, family_member_id, title, file_name, file_type, file_size, object_name, extracted_text, report_date)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`, reportID, userID, familyMemberID, title, file.Filename, contentType,
		file.Size, objectName, extractedText, reportDate)
	if err != nil {
		h.logger.Error("failed to insert report metadata", zap.Error(err))
		// Best-effort cleanup of the orphaned object
		if rmErr := h.minioClient.RemoveObject(ctx, reportBucket, objectName, minio.RemoveObjectOptions{}); rmErr != nil {
			h.logger.Warn("failed to remove orphaned report object", zap.Error(rmErr))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save report"})
	}

	h.logger.Info("medical report uploaded",
		zap.String("report_id", reportID),
		zap.String("owner_id", userID),
		zap.Int64("size", file.Size))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Report uploaded successfully",
		"report_id": reportID,
	})
}

func (h *ReportHandler) loadReport(c *fiber.Ctx, reportID, userID string) (*models.MedicalReport, error) {
	var r models.MedicalReport
	var familyMemberID *string
	err := h.pgPool.QueryRow(c.Context(), `
		SELECT id, owner_id, family_member_id, title, file_name, file_type,
		       file_size, object_name, COALESCE(extracted_text, ''),
		       report_date, created_at, updated_at
		FROM medical_reports
		WHERE id = $1 AND owner_id = $2
	`, reportID, userID).Scan(&r.ID, &r.OwnerID, &familyMemberID, &r.Title,
		&r.FileName, &r.FileType, &r.FileSize, &r.ObjectName, &r.ExtractedText,
		&r.ReportDate, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if familyMemberID != nil {
		r.FamilyMemberID = *familyMemberID
	}
	return &r, nil
}

// ListReports returns report metadata for the authenticated user.
func (h *ReportHandler) ListReports(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	rows, err := h.pgPool.Query(c.Context(), `
		SELECT id, owner_id, family_member_id, title, file_name, file_type,
		       file_size, object_name, report_date, created_at, updated_at
		FROM medical_reports
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer rows.Close()

	reports := []models.MedicalReport{}
	for rows.Next() {
		var r models.MedicalReport
		var familyMemberID *string
		if err := rows.Scan(&r.ID, &r.OwnerID, &familyMemberID, &r.Title,
			&r.FileName, &r.FileType, &r.FileSize, &r.ObjectName,
			&r.ReportDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			h.logger.Error("failed to scan report row", zap.Error(err))
			continue
		}
		if familyMemberID != nil {
			r.FamilyMemberID = *familyMemberID
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("error during row iteration", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"reports": reports})
}

// GetReport returns one report's metadata and extracted text.
func (h *ReportHandler) GetReport(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	reportID := c.Params("id")
	if !validateUUID(reportID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Report ID must be in UUID format"})
	}

	report, err := h.loadReport(c, reportID, userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report not found"})
		}
		h.logger.Error("failed to load report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"report": report})
}

// DownloadReport streams the stored file from MinIO.
func (h *ReportHandler) DownloadReport(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	reportID := c.Params("id")
	if !validateUUID(reportID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Report ID must be in UUID format"})
	}

	report, err := h.loadReport(c, reportID, userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report not found"})
		}
		h.logger.Error("failed to load report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	obj, err := h.minioClient.GetObject(ctx, reportBucket, report.ObjectName, minio.GetObjectOptions{})
	if err != nil {
		h.logger.Error("failed to get report from minio",
			zap.Error(err),
			zap.String("object", report.ObjectName))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve report"})
	}

	objInfo, err := obj.Stat()
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report file not found"})
	}

	c.Set("Content-Type", report.FileType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	return c.SendStream(obj, int(objInfo.Size))
}

// DeleteReport removes the row and the stored file. Idempotent.
func (h *ReportHandler) DeleteReport(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	reportID := c.Params("id")
	if !validateUUID(reportID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Report ID must be in UUID format"})
	}

	var objectName string
	err := h.pgPool.QueryRow(c.Context(), `
		DELETE FROM medical_reports WHERE id = $1 AND owner_id = $2
		RETURNING object_name
	`, reportID, userID).Scan(&objectName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(fiber.Map{"message": "Report deleted successfully"})
		}
		h.logger.Error("failed to delete report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete report"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.minioClient.RemoveObject(ctx, reportBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		h.logger.Warn("failed to remove report object",
			zap.Error(err),
			zap.String("object", objectName))
	}

	h.logger.Info("medical report deleted", zap.String("report_id", reportID))
	return c.JSON(fiber.Map{"message": "Report deleted successfully"})
}

type ReportChatRequest struct {
	Question string `json:"question" validate:"required,min=1,max=2000"`
}

// ChatWithReport answers a question against the report's extracted text.
func (h *ReportHandler) ChatWithReport(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	reportID := c.Params("id")
	if !validateUUID(reportID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Report ID must be in UUID format"})
	}

	var req ReportChatRequest
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

	report, err := h.loadReport(c, reportID, userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report not found"})
		}
		h.logger.Error("failed to load report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	if report.ExtractedText == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Report has no extracted text to chat about",
		})
	}

	answer, err := h.aiClient.AnswerReportQuestion(c.Context(), report.ExtractedText, req.Question)
	if err != nil {
		h.logger.Error("report chat failed",
			zap.Error(err),
			zap.String("report_id", reportID))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "AI provider unavailable"})
	}

	return c.JSON(fiber.Map{
		"report_id": reportID,
		"question":  req.Question,
		"answer":    answer,
	})
}
