// Package identity produces the durable identifiers the SDK attaches
// to bookings: a tracking session id, a contact token for template
// lookup, and per-scope client request ids the backend deduplicates
// retried submissions on.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BotCoder254/calemly-go-sdk/internal/storage"
	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

const (
	keyTrackingSession = "tracking_session_id"
	keyContactToken    = "contact_token"
	keyRequestIDs      = "client_request_ids"

	// RequestIDWindow is how long a (event, slot, email) scope keeps
	// returning the same client request id.
	RequestIDWindow = 72 * time.Hour
)

// Scope identifies one logical submission for idempotency purposes.
type Scope struct {
	EventTypeID string
	SlotStart   time.Time
	SlotEnd     time.Time
	Email       string
}

func (s Scope) key() string {
	return strings.Join([]string{
		s.EventTypeID,
		s.SlotStart.UTC().Format(time.RFC3339),
		s.SlotEnd.UTC().Format(time.RFC3339),
		strings.ToLower(strings.TrimSpace(s.Email)),
	}, "|")
}

// Manager hands out identifiers backed by the session and profile
// stores. Every accessor falls back to a fresh random id when storage
// is unavailable; identity must never block a booking.
type Manager struct {
	session storage.Store
	profile storage.Store
	logger  *logging.Logger

	now   func() time.Time
	newID func() string
}

// NewManager creates a Manager over the given stores. session holds
// tab-session-scoped state, profile holds cross-session state.
func NewManager(session, profile storage.Store, logger *logging.Logger) *Manager {
	if session == nil {
		session = storage.NewMemory()
	}
	if profile == nil {
		profile = storage.NewMemory()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		session: session,
		profile: profile,
		logger:  logger.Component("identity"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// TrackingSessionID returns the id correlating bookings from one visit.
// Created on first use, stable for the session store's lifetime.
func (m *Manager) TrackingSessionID(ctx context.Context) string {
	return m.stableID(ctx, m.session, keyTrackingSession)
}

// ContactToken returns the id used to look up saved templates for a
// returning guest. Created on first use, stable for the profile store's
// lifetime.
func (m *Manager) ContactToken(ctx context.Context) string {
	return m.stableID(ctx, m.profile, keyContactToken)
}

func (m *Manager) stableID(ctx context.Context, store storage.Store, key string) string {
	existing, err := store.Get(ctx, key)
	if err == nil && existing != "" {
		return existing
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Debug("identifier storage unavailable, using ephemeral id", "key", key, "error", err)
		return m.newID()
	}
	id := m.newID()
	if err := store.Set(ctx, key, id, 0); err != nil {
		m.logger.Debug("failed to persist identifier", "key", key, "error", err)
	}
	return id
}

type requestIDEntry struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClientRequestID returns the idempotency id for a submission scope.
// The same scope yields the same id within RequestIDWindow; expired
// entries are pruned while the map is loaded.
func (m *Manager) ClientRequestID(ctx context.Context, scope Scope) string {
	now := m.now()
	entries := m.loadRequestIDs(ctx)

	changed := false
	for key, entry := range entries {
		if now.After(entry.ExpiresAt) {
			delete(entries, key)
			changed = true
		}
	}

	key := scope.key()
	if entry, ok := entries[key]; ok {
		if changed {
			m.saveRequestIDs(ctx, entries)
		}
		return entry.ID
	}

	id := m.newID()
	entries[key] = requestIDEntry{ID: id, ExpiresAt: now.Add(RequestIDWindow)}
	m.saveRequestIDs(ctx, entries)
	return id
}

func (m *Manager) loadRequestIDs(ctx context.Context) map[string]requestIDEntry {
	raw, err := m.profile.Get(ctx, keyRequestIDs)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug("request-id cache unavailable", "error", err)
		}
		return make(map[string]requestIDEntry)
	}
	entries := make(map[string]requestIDEntry)
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		// Corrupt cache: start fresh rather than fail the flow.
		return make(map[string]requestIDEntry)
	}
	return entries
}

func (m *Manager) saveRequestIDs(ctx context.Context, entries map[string]requestIDEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := m.profile.Set(ctx, keyRequestIDs, string(raw), 0); err != nil {
		m.logger.Debug("failed to persist request-id cache", "error", err)
	}
}
