package handlers

import (
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hanfang-health/backend/ai"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const diagnosisCollection = "diagnosis_sessions"

// DiagnosisHandler manages TCM consultation session records.
type DiagnosisHandler struct {
	config      *config.Config
	logger      *zap.Logger
	mongoClient *mongo.Client
	ids         *utils.IDGenerator
	validator   *validator.Validate
}

// DiagnosisSessionRequest is the payload for creating or updating a session.
type DiagnosisSessionRequest struct {
	PatientID      string                `json:"patient_id" validate:"required,uuid"`
	FamilyMemberID string                `json:"family_member_id,omitempty" validate:"omitempty,uuid"`
	DoctorID       string                `json:"doctor_id,omitempty" validate:"omitempty,uuid"`
	Status         string                `json:"status" validate:"required,oneof=draft in_progress completed cancelled"`
	Symptoms       []string              `json:"symptoms,omitempty"`
	Inquiry        []ai.InquiryTurn      `json:"inquiry,omitempty" validate:"omitempty,dive"`
	Tongue         *ai.TongueObservation `json:"tongue,omitempty"`
	Face           *ai.FaceObservation   `json:"face,omitempty"`
	Audio          *ai.AudioAnalysis     `json:"audio,omitempty"`
	Pulse          *ai.PulseReading      `json:"pulse,omitempty"`
	Wearable       *ai.WearableReadings  `json:"wearable,omitempty"`
	Vitals         *SessionVitals        `json:"vitals,omitempty"`
	DiagnosisText  string                `json:"diagnosis_text,omitempty"`
	Notes          string                `json:"notes,omitempty"`
}

// SessionVitals carries the measurements captured during the consultation.
type SessionVitals struct {
	Timestamp        time.Time `json:"timestamp"`
	Temperature      *float64  `json:"temperature,omitempty"`
	HeartRate        *int      `json:"heart_rate,omitempty"`
	BloodPressure    *string   `json:"blood_pressure,omitempty"`
	RespiratoryRate  *int      `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64  `json:"oxygen_saturation,omitempty"`
}

func NewDiagnosisHandler(cfg *config.Config, logger *zap.Logger, mongoClient *mongo.Client, ids *utils.IDGenerator) *DiagnosisHandler {
	return &DiagnosisHandler{
		config:      cfg,
		logger:      logger,
		mongoClient: mongoClient,
		ids:         ids,
		validator:   validator.New(),
	}
}

func (h *DiagnosisHandler) collection() *mongo.Collection {
	return h.mongoClient.Database(h.config.MongoDBName).Collection(diagnosisCollection)
}

// CreateSession creates a new diagnosis session record.
func (h *DiagnosisHandler) CreateSession(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	var req DiagnosisSessionRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse diagnosis session data", zap.Error(err))
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

	sessionID := uuid.New().String()
	now := time.Now()

	// Short human-readable number quoted by patients and staff; the UUID
	// stays the canonical key.
	recordNumber, err := h.ids.GenerateID()
	if err != nil {
		h.logger.Error("failed to generate record number", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create diagnosis session"})
	}

	doc := bson.M{
		"session_id":    sessionID,
		"record_number": recordNumber,
		"patient_id":    req.PatientID,
		"created_by":    userID,
		"status":        req.Status,
		"created_at":    now,
		"updated_at":    now,
	}
	if req.FamilyMemberID != "" {
		doc["family_member_id"] = req.FamilyMemberID
	}
	if req.DoctorID != "" {
		doc["doctor_id"] = req.DoctorID
	}
	if len(req.Symptoms) > 0 {
		doc["symptoms"] = req.Symptoms
	}
	if len(req.Inquiry) > 0 {
		doc["inquiry"] = req.Inquiry
	}
	if req.Tongue != nil {
		doc["tongue"] = req.Tongue
	}
	if req.Face != nil {
		doc["face"] = req.Face
	}
	if req.Audio != nil {
		doc["audio"] = req.Audio
	}
	if req.Pulse != nil {
		doc["pulse"] = req.Pulse
	}
	if req.Wearable != nil {
		doc["wearable"] = req.Wearable
	}
	if req.Vitals != nil {
		doc["vitals"] = req.Vitals
	}
	if req.DiagnosisText != "" {
		doc["diagnosis_text"] = req.DiagnosisText
	}
	if req.Notes != "" {
		doc["notes"] = req.Notes
	}

	result, err := h.collection().InsertOne(c.Context(), doc)
	if err != nil {
		h.logger.Error("failed to insert diagnosis session", zap.Error(err))
		if mongo.IsDuplicateKeyError(err) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session with this ID already exists"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create diagnosis session"})
	}

	h.logger.Info("diagnosis session created",
		zap.Any("insertedID", result.InsertedID),
		zap.String("session_id", sessionID),
		zap.String("patient_id", req.PatientID))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":       "Diagnosis session created successfully",
		"session_id":    sessionID,
		"record_number": recordNumber,
		"created_at":    now,
		"status":        req.Status,
	})
}

// GetSession retrieves a diagnosis session by ID.
func (h *DiagnosisHandler) GetSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !validateUUID(sessionID) {
		h.logger.Warn("invalid session ID format", zap.String("session_id", sessionID))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Session ID must be in UUID format"})
	}

	var session bson.M
	err := h.collection().FindOne(c.Context(), bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Diagnosis session not found"})
		}
		h.logger.Error("failed to retrieve diagnosis session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{"session": session})
}

// UpdateSession applies partial changes to an existing session.
func (h *DiagnosisHandler) UpdateSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !validateUUID(sessionID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Session ID must be in UUID format"})
	}

	var req DiagnosisSessionRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Error("failed to parse update data", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
	}

	// Build update document from provided fields only
	updateDoc := bson.M{"updated_at": time.Now()}
	if req.Status != "" {
		updateDoc["status"] = req.Status
	}
	if len(req.Symptoms) > 0 {
		updateDoc["symptoms"] = req.Symptoms
	}
	if len(req.Inquiry) > 0 {
		updateDoc["inquiry"] = req.Inquiry
	}
	if req.Tongue != nil {
		updateDoc["tongue"] = req.Tongue
	}
	if req.Face != nil {
		updateDoc["face"] = req.Face
	}
	if req.Audio != nil {
		updateDoc["audio"] = req.Audio
	}
	if req.Pulse != nil {
		updateDoc["pulse"] = req.Pulse
	}
	if req.Wearable != nil {
		updateDoc["wearable"] = req.Wearable
	}
	if req.Vitals != nil {
		updateDoc["vitals"] = req.Vitals
	}
	if req.DiagnosisText != "" {
		updateDoc["diagnosis_text"] = req.DiagnosisText
	}
	if req.Notes != "" {
		updateDoc["notes"] = req.Notes
	}
	if req.DoctorID != "" {
		updateDoc["doctor_id"] = req.DoctorID
	}

	result, err := h.collection().UpdateOne(
		c.Context(),
		bson.M{"session_id": sessionID},
		bson.M{"$set": updateDoc},
	)
	if err != nil {
		h.logger.Error("failed to update diagnosis session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update diagnosis session"})
	}
	if result.MatchedCount == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Diagnosis session not found"})
	}

	h.logger.Info("diagnosis session updated",
		zap.String("session_id", sessionID),
		zap.Int64("modified_count", result.ModifiedCount))

	return c.JSON(fiber.Map{
		"message":        "Diagnosis session updated successfully",
		"session_id":     sessionID,
		"modified_count": result.ModifiedCount,
	})
}

// DeleteSession deletes a diagnosis session by ID.
func (h *DiagnosisHandler) DeleteSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !validateUUID(sessionID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Session ID must be in UUID format"})
	}

	result, err := h.collection().DeleteOne(c.Context(), bson.M{"session_id": sessionID})
	if err != nil {
		h.logger.Error("failed to delete diagnosis session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete diagnosis session"})
	}
	if result.DeletedCount == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Diagnosis session not found"})
	}

	h.logger.Info("diagnosis session deleted",
		zap.String("session_id", sessionID),
		zap.Int64("deleted_count", result.DeletedCount))

	return c.JSON(fiber.Map{
		"message":    "Diagnosis session deleted successfully",
		"session_id": sessionID,
	})
}

// ListSessions retrieves sessions with optional filtering and pagination.
func (h *DiagnosisHandler) ListSessions(c *fiber.Ctx) error {
	patientID := c.Query("patient_id")
	doctorID := c.Query("doctor_id")
	status := c.Query("status")

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	skip := (page - 1) * limit

	filter := bson.M{}
	if patientID != "" {
		filter["patient_id"] = patientID
	}
	if doctorID != "" {
		filter["doctor_id"] = doctorID
	}
	if status != "" {
		filter["status"] = status
	}

	// Patients only ever see their own sessions
	role, _ := c.Locals("role").(string)
	userID, _ := c.Locals("userID").(string)
	if role == "patient" {
		filter["patient_id"] = userID
	}

	findOptions := options.Find()
	findOptions.SetSkip(int64(skip))
	findOptions.SetLimit(int64(limit))
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := h.collection().Find(c.Context(), filter, findOptions)
	if err != nil {
		h.logger.Error("failed to retrieve diagnosis sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
	defer cursor.Close(c.Context())

	var sessions []bson.M
	if err = cursor.All(c.Context(), &sessions); err != nil {
		h.logger.Error("failed to decode diagnosis sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	totalCount, err := h.collection().CountDocuments(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to count diagnosis sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(limit)))

	return c.JSON(fiber.Map{
		"sessions": sessions,
		"pagination": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total":       totalCount,
			"total_pages": totalPages,
			"has_next":    page < totalPages,
			"has_prev":    page > 1,
		},
	})
}

// PatientHistoryRecord is the privacy-trimmed projection returned when
// reviewing a patient's past sessions. Doctor and device identifiers are
// deliberately excluded.
type PatientHistoryRecord struct {
	SessionID     string    `json:"session_id" bson:"session_id"`
	RecordNumber  string    `json:"record_number,omitempty" bson:"record_number"`
	Status        string    `json:"status" bson:"status"`
	Symptoms      []string  `json:"symptoms,omitempty" bson:"symptoms"`
	DiagnosisText string    `json:"diagnosis_text,omitempty" bson:"diagnosis_text"`
	Notes         string    `json:"notes,omitempty" bson:"notes"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// GetPatientHistory fetches a patient's past sessions, most recent first.
func (h *DiagnosisHandler) GetPatientHistory(c *fiber.Ctx) error {
	patientID := c.Params("patientID")
	if !validateUUID(patientID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Patient ID must be in UUID format"})
	}

	// Patients can only fetch their own history
	role, _ := c.Locals("role").(string)
	userID, _ := c.Locals("userID").(string)
	if role == "patient" && userID != patientID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}

	limit := c.QueryInt("limit", 50)
	if limit > 100 {
		limit = 100
	}
	includeDrafts := c.QueryBool("include_drafts", false)

	filter := bson.M{"patient_id": patientID}
	if !includeDrafts {
		filter["status"] = bson.M{"$ne": "draft"}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := h.collection().Find(c.Context(), filter, opts)
	if err != nil {
		h.logger.Error("failed to fetch patient history",
			zap.Error(err),
			zap.String("patient_id", patientID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch patient history",
		})
	}
	defer cursor.Close(c.Context())

	var history []PatientHistoryRecord
	if err = cursor.All(c.Context(), &history); err != nil {
		h.logger.Error("failed to decode patient history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process patient history",
		})
	}

	totalCount, err := h.collection().CountDocuments(c.Context(), filter)
	if err != nil {
		h.logger.Warn("failed to get total count", zap.Error(err))
		totalCount = int64(len(history))
	}

	return c.JSON(fiber.Map{
		"patient_id": patientID,
		"history":    history,
		"total":      totalCount,
	})
}
