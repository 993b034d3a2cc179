package models

import "time"

// Notification categories understood by the orchestrator and the clients.
const (
	CategoryMedication  = "medication"
	CategoryAppointment = "appointment"
	CategoryHealthTip   = "health_tip"
	CategoryReport      = "report"
	CategoryCommunity   = "community"
	CategorySystem      = "system"
)

// ValidCategory reports whether the category is one the clients understand.
func ValidCategory(category string) bool {
	switch category {
	case CategoryMedication, CategoryAppointment, CategoryHealthTip,
		CategoryReport, CategoryCommunity, CategorySystem:
		return true
	}
	return false
}

// NotificationPreferences is the per-user notification configuration row.
// QuietStart/QuietEnd are minute-of-day values; a window with start > end
// wraps around midnight, start == end disables suppression.
type NotificationPreferences struct {
	UserID     string          `json:"user_id"`
	Enabled    bool            `json:"enabled"`
	Categories map[string]bool `json:"categories"`
	QuietStart int             `json:"quiet_start"`
	QuietEnd   int             `json:"quiet_end"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PreferencesPatch is a partial update merged into NotificationPreferences.
type PreferencesPatch struct {
	Enabled    *bool           `json:"enabled,omitempty"`
	Categories map[string]bool `json:"categories,omitempty"`
	QuietStart *int            `json:"quiet_start,omitempty" validate:"omitempty,min=0,max=1439"`
	QuietEnd   *int            `json:"quiet_end,omitempty" validate:"omitempty,min=0,max=1439"`
}

// DefaultPreferences returns the configuration applied before a user has
// saved anything: everything on, no quiet hours.
func DefaultPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:  userID,
		Enabled: true,
		Categories: map[string]bool{
			CategoryMedication:  true,
			CategoryAppointment: true,
			CategoryHealthTip:   true,
			CategoryReport:      true,
			CategoryCommunity:   true,
			CategorySystem:      true,
		},
	}
}

// ScheduledNotification is a pending notification owned by a user.
type ScheduledNotification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Category  string            `json:"category"`
	FireAt    time.Time         `json:"fire_at"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HistoryEntry records a displayed notification, most recent first.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Category    string    `json:"category"`
	DisplayedAt time.Time `json:"displayed_at"`
	Clicked     bool      `json:"clicked"`
}
