package utils

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIDShapeAndCharset(t *testing.T) {
	g := NewIDGenerator()

	id, err := g.GenerateID()
	require.NoError(t, err)
	assert.Len(t, id, 8)

	for _, r := range id {
		assert.Contains(t, "ABCDEFGHJKLMNPQRSTUVWXYZ23456789", string(r))
	}
}

func TestGenerateIDUniqueness(t *testing.T) {
	g := NewIDGenerator()
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		id, err := g.GenerateID()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNotificationIDShape(t *testing.T) {
	before := time.Now().UnixMilli()
	id := NotificationID()
	after := time.Now().UnixMilli()

	assert.Regexp(t, `^\d+-[a-z0-9]{6}$`, id)

	millis, err := strconv.ParseInt(strings.SplitN(id, "-", 2)[0], 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, millis, before)
	assert.LessOrEqual(t, millis, after)
}

func TestNotificationIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NotificationID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
