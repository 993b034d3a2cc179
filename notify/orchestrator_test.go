package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hanfang-health/backend/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu        sync.Mutex
	prefs     map[string]models.NotificationPreferences
	scheduled map[string]models.ScheduledNotification
	pingErr   error
}

func newMemStore() *memStore {
	return &memStore{
		prefs:     make(map[string]models.NotificationPreferences),
		scheduled: make(map[string]models.ScheduledNotification),
	}
}

func (s *memStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *memStore) LoadPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, ok := s.prefs[userID]
	if !ok {
		return models.NotificationPreferences{}, errors.New("not found")
	}
	return prefs, nil
}

func (s *memStore) SavePreferences(ctx context.Context, prefs models.NotificationPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefs.UserID] = prefs
	return nil
}

func (s *memStore) ListScheduled(ctx context.Context, userID string) ([]models.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledNotification
	for _, n := range s.scheduled {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) SaveScheduled(ctx context.Context, n models.ScheduledNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[n.ID] = n
	return nil
}

func (s *memStore) DeleteScheduled(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, id)
	return nil
}

type memSink struct {
	mu        sync.Mutex
	delivered []models.HistoryEntry
}

func (s *memSink) Deliver(ctx context.Context, userID string, entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, entry)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newTestOrchestrator(t *testing.T, store Store, sink Sink) *Orchestrator {
	t.Helper()
	o := New(Config{
		Logger:       zap.NewNop(),
		Store:        store,
		Sink:         sink,
		SyncInterval: time.Hour,
	})
	require.True(t, o.Initialize(context.Background()))
	t.Cleanup(o.Shutdown)
	return o
}

func TestInitializeFailsWhenStoreUnreachable(t *testing.T) {
	store := newMemStore()
	store.pingErr = errors.New("connection refused")

	o := New(Config{Logger: zap.NewNop(), Store: store})
	assert.False(t, o.Initialize(context.Background()))
	assert.False(t, o.Ready())

	// Operations on a disabled orchestrator are no-ops, not panics.
	assert.False(t, o.Show(context.Background(), "u1", Options{Title: "x", Category: models.CategorySystem}))
	assert.Empty(t, o.Schedule(context.Background(), "u1", Options{Title: "x", Category: models.CategorySystem}))
}

func TestShowDeliversAndRecordsHistory(t *testing.T) {
	sink := &memSink{}
	o := newTestOrchestrator(t, newMemStore(), sink)

	displayed := o.Show(context.Background(), "u1", Options{
		Title:    "Time for your herbs",
		Body:     "Evening decoction",
		Category: models.CategoryMedication,
	})
	assert.True(t, displayed)
	assert.Equal(t, 1, sink.count())

	history := o.History("u1")
	require.Len(t, history, 1)
	assert.Equal(t, "Time for your herbs", history[0].Title)
	assert.NotEmpty(t, history[0].ID)
	assert.False(t, history[0].Clicked)
}

func TestShowSuppression(t *testing.T) {
	sink := &memSink{}
	o := newTestOrchestrator(t, newMemStore(), sink)
	ctx := context.Background()

	disabled := false
	o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{Enabled: &disabled})
	assert.False(t, o.Show(ctx, "u1", Options{Title: "x", Category: models.CategorySystem}))

	enabled := true
	o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{
		Enabled:    &enabled,
		Categories: map[string]bool{models.CategoryHealthTip: false},
	})
	assert.False(t, o.Show(ctx, "u1", Options{Title: "x", Category: models.CategoryHealthTip}))
	assert.True(t, o.Show(ctx, "u1", Options{Title: "x", Category: models.CategoryMedication}))

	// Suppressed notifications leave no history entry.
	assert.Len(t, o.History("u1"), 1)
}

func TestShowSuppressedDuringQuietHours(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), &memSink{})
	ctx := context.Background()

	start, end := 22*60, 7*60
	o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{QuietStart: &start, QuietEnd: &end})

	o.now = func() time.Time { return at(23, 30) }
	assert.False(t, o.Show(ctx, "u1", Options{Title: "x", Category: models.CategorySystem}))

	o.now = func() time.Time { return at(12, 0) }
	assert.True(t, o.Show(ctx, "u1", Options{Title: "x", Category: models.CategorySystem}))
}

func TestHistoryCappedAtHundredNewestFirst(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), &memSink{})
	ctx := context.Background()

	for i := 0; i < HistoryCap+1; i++ {
		o.Show(ctx, "u1", Options{
			ID:       fmt.Sprintf("n-%d", i),
			Title:    fmt.Sprintf("notification %d", i),
			Category: models.CategorySystem,
		})
	}

	history := o.History("u1")
	require.Len(t, history, HistoryCap)
	assert.Equal(t, "n-100", history[0].ID)
	assert.Equal(t, "n-1", history[HistoryCap-1].ID)
	for _, entry := range history {
		assert.NotEqual(t, "n-0", entry.ID)
	}
}

func TestScheduleMirrorsToStoreAndCancelIsIdempotent(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &memSink{})
	ctx := context.Background()

	id := o.Schedule(ctx, "u1", Options{
		Title:    "Appointment reminder",
		Category: models.CategoryAppointment,
		FireAt:   time.Now().Add(time.Hour),
	})
	require.NotEmpty(t, id)
	assert.Regexp(t, `^\d+-[a-z0-9]{6}$`, id)

	pending := o.Scheduled("u1")
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	store.mu.Lock()
	_, mirrored := store.scheduled[id]
	store.mu.Unlock()
	assert.True(t, mirrored)

	o.Cancel(ctx, "u1", id)
	assert.Empty(t, o.Scheduled("u1"))

	// Cancelling again, or cancelling garbage, must not fail.
	o.Cancel(ctx, "u1", id)
	o.Cancel(ctx, "u1", "no-such-id")
}

func TestScheduleRefusedWhenDisabled(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), &memSink{})
	ctx := context.Background()

	disabled := false
	o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{Enabled: &disabled})

	id := o.Schedule(ctx, "u1", Options{
		Title:    "x",
		Category: models.CategorySystem,
		FireAt:   time.Now().Add(time.Hour),
	})
	assert.Empty(t, id)
}

func TestUpdatePreferencesMergesPatch(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &memSink{})
	ctx := context.Background()

	start, end := 21*60, 8*60
	prefs := o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{
		QuietStart: &start,
		QuietEnd:   &end,
		Categories: map[string]bool{models.CategoryCommunity: false},
	})

	assert.True(t, prefs.Enabled) // untouched by the patch
	assert.Equal(t, start, prefs.QuietStart)
	assert.Equal(t, end, prefs.QuietEnd)
	assert.False(t, prefs.Categories[models.CategoryCommunity])
	assert.True(t, prefs.Categories[models.CategoryMedication])

	// Patch is mirrored to the store.
	saved, err := store.LoadPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, start, saved.QuietStart)
}

func TestSyncWithServerPullsMissingSchedules(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &memSink{})
	ctx := context.Background()

	serverPrefs := models.DefaultPreferences("u1")
	serverPrefs.QuietStart = 23 * 60
	serverPrefs.QuietEnd = 6 * 60
	require.NoError(t, store.SavePreferences(ctx, serverPrefs))
	require.NoError(t, store.SaveScheduled(ctx, models.ScheduledNotification{
		ID:       "srv-1",
		UserID:   "u1",
		Title:    "From the server",
		Category: models.CategoryReport,
		FireAt:   time.Now().Add(time.Hour),
	}))

	result := o.SyncWithServer(ctx, "u1")
	assert.True(t, result.Synced)
	assert.Equal(t, 1, result.Pulled)

	prefs := o.Preferences(ctx, "u1")
	assert.Equal(t, 23*60, prefs.QuietStart)

	pending := o.Scheduled("u1")
	require.Len(t, pending, 1)
	assert.Equal(t, "srv-1", pending[0].ID)

	// A second pass pulls nothing new.
	result = o.SyncWithServer(ctx, "u1")
	assert.Zero(t, result.Pulled)
}

func TestPerformFullSyncUploadsLocalState(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store, &memSink{})
	ctx := context.Background()

	o.Schedule(ctx, "u1", Options{
		Title:    "local",
		Category: models.CategorySystem,
		FireAt:   time.Now().Add(time.Hour),
	})
	start := 22 * 60
	o.UpdatePreferences(ctx, "u1", models.PreferencesPatch{QuietStart: &start})

	result := o.PerformFullSync(ctx, "u1")
	assert.True(t, result.Synced)
	assert.Equal(t, 1, result.Uploaded)

	saved, err := store.LoadPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, start, saved.QuietStart)
}

func TestHandleClick(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore(), &memSink{})
	ctx := context.Background()

	o.Show(ctx, "u1", Options{
		ID:       "shown-1",
		Title:    "Report ready",
		Category: models.CategoryReport,
	})

	target := o.HandleClick("u1", ClickData{
		ID:       "shown-1",
		Category: models.CategoryReport,
		Data:     map[string]string{"report_id": "r-42"},
	})
	assert.Contains(t, target, "/dashboard/reports?")
	assert.Contains(t, target, "report_id=r-42")

	history := o.History("u1")
	require.Len(t, history, 1)
	assert.True(t, history[0].Clicked)

	// A click for an unknown ID appends a clicked entry instead of dropping it.
	o.HandleClick("u1", ClickData{ID: "ghost-1", Title: "Ghost", Category: models.CategorySystem})
	history = o.History("u1")
	require.Len(t, history, 2)
	assert.Equal(t, "ghost-1", history[0].ID)
	assert.True(t, history[0].Clicked)
}
