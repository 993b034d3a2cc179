package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hanfang-health/backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ errorSink = (*storage.ErrorRecorder)(nil)

type recordedError struct {
	source  string
	message string
	detail  string
}

type memErrorSink struct {
	records []recordedError
}

func (s *memErrorSink) Record(_ context.Context, source, message, detail string) error {
	s.records = append(s.records, recordedError{source: source, message: message, detail: detail})
	return nil
}

func TestFiberErrorHandlerRecordsServerErrors(t *testing.T) {
	sink := &memErrorSink{}
	app := fiber.New(fiber.Config{
		ErrorHandler: newFiberErrorHandler(zap.NewNop(), sink),
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadGateway, "upstream timeout")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no such thing")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	require.Len(t, sink.records, 1)
	assert.Equal(t, "GET /boom", sink.records[0].source)
	assert.Equal(t, "upstream timeout", sink.records[0].message)

	// Client errors are noise, not incidents.
	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Len(t, sink.records, 1)
}

func TestFiberErrorHandlerSurvivesNilSink(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: newFiberErrorHandler(zap.NewNop(), nil),
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusInternalServerError, "broken")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
