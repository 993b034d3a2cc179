package models

import "time"

// Profile is a registered account: a patient, a doctor or an admin.
type Profile struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Phone        string     `json:"phone,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	HeightCm     *float64   `json:"height_cm,omitempty"`
	WeightKg     *float64   `json:"weight_kg,omitempty"`
	Constitution string     `json:"constitution,omitempty"`
	AvatarFile   string     `json:"avatar_file,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UpdateProfile carries the mutable subset of Profile.
type UpdateProfile struct {
	Name         string   `json:"name,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Gender       string   `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	BirthDate    string   `json:"birth_date,omitempty"`
	HeightCm     *float64 `json:"height_cm,omitempty" validate:"omitempty,gt=0,lt=300"`
	WeightKg     *float64 `json:"weight_kg,omitempty" validate:"omitempty,gt=0,lt=500"`
	Constitution string   `json:"constitution,omitempty"`
}

// ComputeBMI returns weight/(height/100)^2, or 0 when either input is unusable.
func ComputeBMI(weightKg, heightCm float64) float64 {
	if weightKg <= 0 || heightCm <= 0 {
		return 0
	}
	m := heightCm / 100
	return weightKg / (m * m)
}

// BMICategory maps a BMI value onto the standard bands.
func BMICategory(bmi float64) string {
	switch {
	case bmi <= 0:
		return "unknown"
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal"
	case bmi < 30:
		return "overweight"
	default:
		return "obese"
	}
}
