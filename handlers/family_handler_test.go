package handlers

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseBirthDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
		wantNil bool
	}{
		{name: "empty is optional", raw: "", wantNil: true},
		{name: "iso date", raw: "1987-06-05", want: "1987-06-05"},
		{name: "slashes rejected", raw: "05/06/1987", wantErr: true},
		{name: "words rejected", raw: "not-a-date", wantErr: true},
		{name: "impossible date rejected", raw: "2001-13-40", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBirthDate(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
		})
	}
}

func newFamilyTestApp() *fiber.App {
	// nil pool is fine: these requests must be rejected before any query runs.
	h := NewFamilyHandler(zap.NewNop(), nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", "3b49c5a1-93c8-4f02-9d6e-2f1f6f9f0a11")
		c.Locals("role", "patient")
		return c.Next()
	})
	app.Post("/family", h.CreateFamilyMember)
	app.Put("/family/:id", h.UpdateFamilyMember)
	return app
}

func TestCreateFamilyMemberRejectsMalformedBirthDate(t *testing.T) {
	app := newFamilyTestApp()

	body := `{"name":"奶奶","relationship":"grandparent","birth_date":"14/03/1948"}`
	req := httptest.NewRequest("POST", "/family", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "birth_date must be in YYYY-MM-DD format")
}

func TestUpdateFamilyMemberRejectsMalformedBirthDate(t *testing.T) {
	app := newFamilyTestApp()

	body := `{"name":"奶奶","relationship":"grandparent","birth_date":"yesterday"}`
	req := httptest.NewRequest("PUT", "/family/7f6f2c4e-5b1d-49a3-8f0e-6cfbf5f2d9aa", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "birth_date must be in YYYY-MM-DD format")
}
