package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/config"
	"github.com/hanfang-health/backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newPatientHistoryApp mounts GetPatientHistory on the same route shape the
// server registers, with auth locals stubbed in.
func newPatientHistoryApp(userID, role string) *fiber.App {
	h := NewDiagnosisHandler(&config.Config{}, zap.NewNop(), nil, utils.NewIDGenerator())

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	})
	app.Get("/api/patients/:patientID/history", h.GetPatientHistory)
	return app
}

func TestGetPatientHistoryReadsRoutePatientID(t *testing.T) {
	// A patient asking for someone else's history must get 403, which proves
	// the handler saw the path's patient ID rather than an empty param.
	app := newPatientHistoryApp("3b49c5a1-93c8-4f02-9d6e-2f1f6f9f0a11", "patient")

	req := httptest.NewRequest("GET", "/api/patients/7f6f2c4e-5b1d-49a3-8f0e-6cfbf5f2d9aa/history", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestGetPatientHistoryRejectsMalformedPatientID(t *testing.T) {
	app := newPatientHistoryApp("3b49c5a1-93c8-4f02-9d6e-2f1f6f9f0a11", "doctor")

	req := httptest.NewRequest("GET", "/api/patients/not-a-uuid/history", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
