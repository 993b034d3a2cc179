package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hanfang-health/backend/cache"
	"github.com/hanfang-health/backend/models"
	"github.com/hanfang-health/backend/utils"
	"go.uber.org/zap"
)

// Store is the server-side persistence the orchestrator reconciles against.
type Store interface {
	Ping(ctx context.Context) error
	LoadPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs models.NotificationPreferences) error
	ListScheduled(ctx context.Context, userID string) ([]models.ScheduledNotification, error)
	SaveScheduled(ctx context.Context, n models.ScheduledNotification) error
	DeleteScheduled(ctx context.Context, userID, id string) error
}

// Sink delivers a fired notification to whatever transport the deployment
// uses. The orchestrator is channel-agnostic.
type Sink interface {
	Deliver(ctx context.Context, userID string, entry models.HistoryEntry) error
}

// Options describes a notification to show or schedule.
type Options struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title" validate:"required"`
	Body     string            `json:"body"`
	Category string            `json:"category" validate:"required"`
	FireAt   time.Time         `json:"fire_at,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// SyncResult reports the outcome of a reconciliation pass. Failures are
// carried here rather than raised; the caller decides whether to surface them.
type SyncResult struct {
	Synced    bool      `json:"synced"`
	Uploaded  int       `json:"uploaded"`
	Pulled    int       `json:"pulled"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const prefsCacheTTL = 15 * time.Minute

type scheduledEntry struct {
	notification models.ScheduledNotification
	timer        *time.Timer
}

// Orchestrator mediates between user preferences (enabled flag, per-category
// toggles, quiet hours), locally scheduled notifications and the server copy
// of the same state. Every operation degrades to a no-op on failure; nothing
// here has a fatal error path.
type Orchestrator struct {
	logger     *zap.Logger
	store      Store
	sink       Sink
	prefsCache *cache.Cache

	mu          sync.Mutex
	prefs       map[string]models.NotificationPreferences
	scheduled   map[string]*scheduledEntry
	history     *history
	initialized bool

	syncInterval time.Duration
	cancelSync   context.CancelFunc

	// now is swapped out by tests
	now func() time.Time
}

// Config wires an Orchestrator.
type Config struct {
	Logger       *zap.Logger
	Store        Store
	Sink         Sink
	PrefsCache   *cache.Cache
	SyncInterval time.Duration
}

// New creates an Orchestrator; call Initialize before use.
func New(cfg Config) *Orchestrator {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Orchestrator{
		logger:       cfg.Logger,
		store:        cfg.Store,
		sink:         cfg.Sink,
		prefsCache:   cfg.PrefsCache,
		prefs:        make(map[string]models.NotificationPreferences),
		scheduled:    make(map[string]*scheduledEntry),
		history:      newHistory(),
		syncInterval: interval,
		now:          time.Now,
	}
}

// Initialize checks the store, starts the periodic sync loop and marks the
// orchestrator ready. It never returns an error; callers must check the
// returned flag before relying on any other operation.
func (o *Orchestrator) Initialize(ctx context.Context) bool {
	if err := o.store.Ping(ctx); err != nil {
		o.logger.Warn("notification store unavailable, orchestrator disabled",
			zap.Error(err))
		return false
	}

	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		return true
	}
	o.initialized = true
	syncCtx, cancel := context.WithCancel(context.Background())
	o.cancelSync = cancel
	o.mu.Unlock()

	go o.syncLoop(syncCtx)

	o.logger.Info("notification orchestrator initialized",
		zap.Duration("sync_interval", o.syncInterval))
	return true
}

// Ready reports whether Initialize succeeded.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// Shutdown stops the sync loop and all pending timers.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelSync != nil {
		o.cancelSync()
	}
	for id, entry := range o.scheduled {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(o.scheduled, id)
	}
	o.initialized = false
}

// preferencesLocked returns the in-memory preferences for a user, loading
// defaults when nothing has been synced yet. Caller holds o.mu.
func (o *Orchestrator) preferencesLocked(userID string) models.NotificationPreferences {
	if prefs, ok := o.prefs[userID]; ok {
		return prefs
	}
	prefs := models.DefaultPreferences(userID)
	o.prefs[userID] = prefs
	return prefs
}

// Preferences returns the current preferences for a user, consulting the
// Redis cache and then the store on first access.
func (o *Orchestrator) Preferences(ctx context.Context, userID string) models.NotificationPreferences {
	o.mu.Lock()
	if prefs, ok := o.prefs[userID]; ok {
		o.mu.Unlock()
		return prefs
	}
	o.mu.Unlock()

	var prefs models.NotificationPreferences
	if o.prefsCache != nil {
		if err := o.prefsCache.Get(ctx, userID, &prefs); err == nil && prefs.UserID == userID {
			o.setPreferences(prefs)
			return prefs
		}
	}

	prefs, err := o.store.LoadPreferences(ctx, userID)
	if err != nil {
		o.logger.Debug("preferences not on server, using defaults",
			zap.String("user_id", userID), zap.Error(err))
		prefs = models.DefaultPreferences(userID)
	}
	o.setPreferences(prefs)
	return prefs
}

func (o *Orchestrator) setPreferences(prefs models.NotificationPreferences) {
	o.mu.Lock()
	o.prefs[prefs.UserID] = prefs
	o.mu.Unlock()
}

// suppressed reports whether a notification for the user must be dropped:
// disabled globally, category toggled off, or inside the quiet-hours window.
func (o *Orchestrator) suppressed(prefs models.NotificationPreferences, category string) bool {
	if !prefs.Enabled {
		return true
	}
	if enabled, ok := prefs.Categories[category]; ok && !enabled {
		return true
	}
	return InQuietHours(prefs.QuietStart, prefs.QuietEnd, o.now())
}

// Show delivers a notification immediately unless suppressed, and records it
// in the bounded history. Returns whether the notification was displayed.
func (o *Orchestrator) Show(ctx context.Context, userID string, opts Options) bool {
	if !o.Ready() {
		return false
	}

	prefs := o.Preferences(ctx, userID)
	if o.suppressed(prefs, opts.Category) {
		o.logger.Debug("notification suppressed",
			zap.String("user_id", userID),
			zap.String("category", opts.Category))
		return false
	}

	id := opts.ID
	if id == "" {
		id = utils.NotificationID()
	}
	entry := models.HistoryEntry{
		ID:          id,
		Title:       opts.Title,
		Body:        opts.Body,
		Category:    opts.Category,
		DisplayedAt: o.now(),
	}
	o.history.record(userID, entry)

	if o.sink != nil {
		if err := o.sink.Deliver(ctx, userID, entry); err != nil {
			o.logger.Warn("notification delivery failed",
				zap.String("user_id", userID),
				zap.String("id", id),
				zap.Error(err))
		}
	}
	return true
}

// Schedule registers a future notification. Returns the schedule identifier,
// or an empty string when scheduling is suppressed by preferences.
func (o *Orchestrator) Schedule(ctx context.Context, userID string, opts Options) string {
	if !o.Ready() {
		return ""
	}

	prefs := o.Preferences(ctx, userID)
	if !prefs.Enabled {
		return ""
	}
	if enabled, ok := prefs.Categories[opts.Category]; ok && !enabled {
		return ""
	}

	id := opts.ID
	if id == "" {
		id = utils.NotificationID()
	}

	notification := models.ScheduledNotification{
		ID:        id,
		UserID:    userID,
		Title:     opts.Title,
		Body:      opts.Body,
		Category:  opts.Category,
		FireAt:    opts.FireAt,
		Data:      opts.Data,
		CreatedAt: o.now(),
	}

	delay := opts.FireAt.Sub(o.now())
	if delay < 0 {
		delay = 0
	}
	entry := &scheduledEntry{notification: notification}
	entry.timer = time.AfterFunc(delay, func() {
		o.fire(userID, id)
	})

	o.mu.Lock()
	o.scheduled[id] = entry
	o.mu.Unlock()

	// Best-effort mirror to the server; a failure leaves the local schedule
	// intact and the periodic sync will retry.
	if err := o.store.SaveScheduled(ctx, notification); err != nil {
		o.logger.Warn("failed to mirror schedule to server",
			zap.String("id", id), zap.Error(err))
	}

	return id
}

// fire runs when a schedule's timer elapses.
func (o *Orchestrator) fire(userID, id string) {
	o.mu.Lock()
	entry, ok := o.scheduled[id]
	if ok {
		delete(o.scheduled, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n := entry.notification
	o.Show(ctx, userID, Options{
		ID:       n.ID,
		Title:    n.Title,
		Body:     n.Body,
		Category: n.Category,
		Data:     n.Data,
	})
	if err := o.store.DeleteScheduled(ctx, userID, id); err != nil {
		o.logger.Debug("failed to clear fired schedule on server",
			zap.String("id", id), zap.Error(err))
	}
}

// Cancel removes a scheduled notification locally and best-effort on the
// server. Idempotent: cancelling an unknown ID is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, userID, id string) {
	o.mu.Lock()
	entry, ok := o.scheduled[id]
	if ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(o.scheduled, id)
	}
	o.mu.Unlock()

	if err := o.store.DeleteScheduled(ctx, userID, id); err != nil {
		o.logger.Debug("failed to cancel schedule on server",
			zap.String("id", id), zap.Error(err))
	}
}

// Scheduled returns the user's pending notifications, soonest first is not
// guaranteed; callers sort as needed.
func (o *Orchestrator) Scheduled(userID string) []models.ScheduledNotification {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []models.ScheduledNotification
	for _, entry := range o.scheduled {
		if entry.notification.UserID == userID {
			out = append(out, entry.notification)
		}
	}
	return out
}

// UpdatePreferences merges a partial patch into the current preferences,
// persists them to the Redis cache and best-effort syncs to the server.
func (o *Orchestrator) UpdatePreferences(ctx context.Context, userID string, patch models.PreferencesPatch) models.NotificationPreferences {
	prefs := o.Preferences(ctx, userID)

	if patch.Enabled != nil {
		prefs.Enabled = *patch.Enabled
	}
	if patch.QuietStart != nil {
		prefs.QuietStart = *patch.QuietStart
	}
	if patch.QuietEnd != nil {
		prefs.QuietEnd = *patch.QuietEnd
	}
	if len(patch.Categories) > 0 {
		if prefs.Categories == nil {
			prefs.Categories = make(map[string]bool)
		}
		for category, enabled := range patch.Categories {
			prefs.Categories[category] = enabled
		}
	}
	prefs.UpdatedAt = o.now()

	o.setPreferences(prefs)

	if o.prefsCache != nil {
		if err := o.prefsCache.Set(ctx, userID, prefs, prefsCacheTTL); err != nil {
			o.logger.Debug("failed to cache preferences", zap.Error(err))
		}
	}
	if err := o.store.SavePreferences(ctx, prefs); err != nil {
		o.logger.Warn("failed to sync preferences to server",
			zap.String("user_id", userID), zap.Error(err))
	}

	return prefs
}

// SyncWithServer pulls the server copy of preferences and scheduled
// notifications and applies it locally (last writer wins).
func (o *Orchestrator) SyncWithServer(ctx context.Context, userID string) SyncResult {
	result := SyncResult{Timestamp: o.now()}

	prefs, err := o.store.LoadPreferences(ctx, userID)
	if err == nil {
		o.setPreferences(prefs)
		if o.prefsCache != nil {
			if cacheErr := o.prefsCache.Set(ctx, userID, prefs, prefsCacheTTL); cacheErr != nil {
				o.logger.Debug("failed to cache pulled preferences", zap.Error(cacheErr))
			}
		}
	} else {
		result.Error = fmt.Sprintf("pull preferences: %v", err)
	}

	pending, err := o.store.ListScheduled(ctx, userID)
	if err != nil {
		if result.Error != "" {
			result.Error += "; "
		}
		result.Error += fmt.Sprintf("pull scheduled: %v", err)
		return result
	}

	for _, n := range pending {
		o.mu.Lock()
		_, exists := o.scheduled[n.ID]
		o.mu.Unlock()
		if exists {
			continue
		}
		o.Schedule(ctx, userID, Options{
			ID:       n.ID,
			Title:    n.Title,
			Body:     n.Body,
			Category: n.Category,
			FireAt:   n.FireAt,
			Data:     n.Data,
		})
		result.Pulled++
	}

	result.Synced = result.Error == ""
	return result
}

// PerformFullSync uploads local state first, then pulls the server copy.
func (o *Orchestrator) PerformFullSync(ctx context.Context, userID string) SyncResult {
	result := SyncResult{Timestamp: o.now()}

	o.mu.Lock()
	prefs, hasPrefs := o.prefs[userID]
	var local []models.ScheduledNotification
	for _, entry := range o.scheduled {
		if entry.notification.UserID == userID {
			local = append(local, entry.notification)
		}
	}
	o.mu.Unlock()

	if hasPrefs {
		if err := o.store.SavePreferences(ctx, prefs); err != nil {
			result.Error = fmt.Sprintf("upload preferences: %v", err)
		}
	}
	for _, n := range local {
		if err := o.store.SaveScheduled(ctx, n); err != nil {
			o.logger.Debug("failed to upload schedule",
				zap.String("id", n.ID), zap.Error(err))
			continue
		}
		result.Uploaded++
	}

	pull := o.SyncWithServer(ctx, userID)
	result.Pulled = pull.Pulled
	if pull.Error != "" {
		if result.Error != "" {
			result.Error += "; "
		}
		result.Error += pull.Error
	}
	result.Synced = result.Error == ""
	return result
}

// ClickData identifies a clicked notification.
type ClickData struct {
	ID       string            `json:"id" validate:"required"`
	Title    string            `json:"title,omitempty"`
	Category string            `json:"category,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// HandleClick marks the matching history entry clicked, appending a new entry
// when the click arrived before the originating show was recorded, and
// returns the per-category navigation target.
func (o *Orchestrator) HandleClick(userID string, data ClickData) string {
	if !o.history.markClicked(userID, data.ID) {
		o.history.record(userID, models.HistoryEntry{
			ID:          data.ID,
			Title:       data.Title,
			Category:    data.Category,
			DisplayedAt: o.now(),
			Clicked:     true,
		})
	}
	return NavigationTarget(data)
}

// History returns the user's displayed-notification history.
func (o *Orchestrator) History(userID string) []models.HistoryEntry {
	return o.history.list(userID)
}

// syncLoop re-syncs every known user on a fixed interval. There is no
// backoff; a failed pass just waits for the next tick.
func (o *Orchestrator) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			users := make([]string, 0, len(o.prefs))
			for userID := range o.prefs {
				users = append(users, userID)
			}
			o.mu.Unlock()

			for _, userID := range users {
				syncCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				result := o.SyncWithServer(syncCtx, userID)
				cancel()
				if !result.Synced {
					o.logger.Debug("periodic sync failed",
						zap.String("user_id", userID),
						zap.String("error", result.Error))
				}
			}
		}
	}
}
