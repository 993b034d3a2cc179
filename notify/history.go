package notify

import (
	"sync"

	"github.com/hanfang-health/backend/models"
)

// HistoryCap bounds the number of retained entries per user.
const HistoryCap = 100

// history keeps displayed notifications per user, most recent first.
type history struct {
	mu      sync.Mutex
	entries map[string][]models.HistoryEntry
}

func newHistory() *history {
	return &history{entries: make(map[string][]models.HistoryEntry)}
}

// record prepends an entry, evicting the oldest once the cap is reached.
func (h *history) record(userID string, entry models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append([]models.HistoryEntry{entry}, h.entries[userID]...)
	if len(list) > HistoryCap {
		list = list[:HistoryCap]
	}
	h.entries[userID] = list
}

// markClicked flags the entry with the given ID and reports whether it was
// found.
func (h *history) markClicked(userID, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.entries[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].Clicked = true
			return true
		}
	}
	return false
}

// list returns a copy of the user's history, most recent first.
func (h *history) list(userID string) []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.entries[userID]
	out := make([]models.HistoryEntry, len(list))
	copy(out, list)
	return out
}
