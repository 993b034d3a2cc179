package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCategory(t *testing.T) {
	for _, category := range []string{
		CategoryMedication, CategoryAppointment, CategoryHealthTip,
		CategoryReport, CategoryCommunity, CategorySystem,
	} {
		assert.True(t, ValidCategory(category), category)
	}
	assert.False(t, ValidCategory(""))
	assert.False(t, ValidCategory("Medication"))
	assert.False(t, ValidCategory("marketing"))
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences("u1")

	assert.Equal(t, "u1", prefs.UserID)
	assert.True(t, prefs.Enabled)
	assert.Len(t, prefs.Categories, 6)
	for category, enabled := range prefs.Categories {
		assert.True(t, enabled, category)
	}
	// No quiet hours until the user sets them.
	assert.Equal(t, prefs.QuietStart, prefs.QuietEnd)
}
