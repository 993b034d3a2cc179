package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeBMI(t *testing.T) {
	assert.InDelta(t, 22.86, ComputeBMI(70, 175), 0.01)
	assert.InDelta(t, 17.3, ComputeBMI(45, 161.2), 0.05)
	assert.Zero(t, ComputeBMI(70, 0))
	assert.Zero(t, ComputeBMI(0, 175))
}

func TestBMICategory(t *testing.T) {
	tests := []struct {
		bmi  float64
		want string
	}{
		{0, "unknown"},
		{-1, "unknown"},
		{18.49, "underweight"},
		{18.5, "normal"},
		{24.99, "normal"},
		{25, "overweight"},
		{29.99, "overweight"},
		{30, "obese"},
		{42, "obese"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BMICategory(tt.bmi), "bmi=%v", tt.bmi)
	}
}
