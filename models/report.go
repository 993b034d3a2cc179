package models

import "time"

// MedicalReport is an uploaded document: metadata and extracted text live in
// Postgres, the file bytes live in MinIO under ObjectName.
type MedicalReport struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	FamilyMemberID string     `json:"family_member_id,omitempty"`
	Title          string     `json:"title"`
	FileName       string     `json:"file_name"`
	FileType       string     `json:"file_type"`
	FileSize       int64      `json:"file_size"`
	ObjectName     string     `json:"object_name"`
	ExtractedText  string     `json:"extracted_text,omitempty"`
	ReportDate     *time.Time `json:"report_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
