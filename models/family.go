package models

import "time"

// FamilyMember is a dependent profile managed by an account owner.
type FamilyMember struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	Relationship string     `json:"relationship"`
	Gender       string     `json:"gender,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	HeightCm     *float64   `json:"height_cm,omitempty"`
	WeightKg     *float64   `json:"weight_kg,omitempty"`
	Allergies    string     `json:"allergies,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
