package handlers

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUUID(t *testing.T) {
	assert.True(t, validateUUID("6f1c1f36-9e47-4df0-8f5a-2e1f0b6f7c1d"))
	assert.False(t, validateUUID(""))
	assert.False(t, validateUUID("not-a-uuid"))
	assert.False(t, validateUUID("6f1c1f36-9e47-4df0-8f5a"))
}

func TestFormatValidationErrors(t *testing.T) {
	v := validator.New()

	err := v.Struct(RegisterRequest{
		Email:    "not-an-email",
		Password: "short",
		Role:     "superuser",
	})
	require.Error(t, err)

	formatted, ok := formatValidationErrors(err).([]map[string]string)
	require.True(t, ok)
	require.Len(t, formatted, 4)

	byField := make(map[string]map[string]string)
	for _, fe := range formatted {
		byField[fe["field"]] = fe
	}
	assert.Equal(t, "Email must be a valid email address", byField["Email"]["message"])
	assert.Equal(t, "Password must be at least 8", byField["Password"]["message"])
	assert.Equal(t, "Name is required", byField["Name"]["message"])
	assert.Equal(t, "Role must be one of: patient doctor", byField["Role"]["message"])
}

func TestFormatValidationErrorsNonValidatorError(t *testing.T) {
	formatted := formatValidationErrors(assert.AnError)
	assert.Equal(t, assert.AnError.Error(), formatted)
}
