// Package account is the session facade used by the web and CLI layers.
package account

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashavatar/hashavatar/internal/profiles"
)

// ErrNoActiveSession is returned by updates made while logged out.
var ErrNoActiveSession = profiles.ErrNoActiveSession

// AnonymousSession is the slot used for requests without a browser session.
// Nothing ever signs in to it.
const AnonymousSession = "anonymous"

// Manager wraps a profiles.Store with login state. IsLoading is true until the
// first Restore completes and false forever after.
type Manager struct {
	store   *profiles.Store
	logger  *slog.Logger
	loading atomic.Bool
	once    sync.Once

	mu      sync.RWMutex
	current *profiles.UserRecord
}

// NewManager returns a Manager in the loading state.
func NewManager(store *profiles.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, logger: logger}
	m.loading.Store(true)
	return m
}

// Restore loads the session user from durable storage. Only the first call
// reads; later calls return the cached result. A read failure leaves the
// manager logged out and still ends the loading state.
func (m *Manager) Restore(ctx context.Context) (*profiles.UserRecord, error) {
	var err error
	m.once.Do(func() {
		defer m.loading.Store(false)
		var user *profiles.UserRecord
		user, err = m.store.CurrentUser(ctx)
		if err != nil {
			m.logger.Error("restore session", slog.String("key", m.store.SessionKey()), slog.Any("error", err))
			return
		}
		m.setCurrent(user)
	})
	return m.Current(), err
}

// IsLoading reports whether the initial restore is still running.
func (m *Manager) IsLoading() bool {
	return m.loading.Load()
}

// Current returns a copy of the session user, or nil when logged out.
func (m *Manager) Current() *profiles.UserRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	user := *m.current
	return &user
}

// Store exposes the underlying store.
func (m *Manager) Store() *profiles.Store {
	return m.store
}

// For returns a Manager bound to the session slot of sessionID. The returned
// manager is already restored.
func (m *Manager) For(ctx context.Context, sessionID string) (*Manager, error) {
	scoped := NewManager(m.store.ForSession(sessionID), m.logger)
	if _, err := scoped.Restore(ctx); err != nil {
		return nil, err
	}
	return scoped, nil
}

// Login signs email in to this manager's session slot.
func (m *Manager) Login(ctx context.Context, email string) (profiles.UserRecord, error) {
	user, err := m.store.Login(ctx, email)
	if err != nil {
		return profiles.UserRecord{}, err
	}
	m.setCurrent(&user)
	m.logger.Info("login", slog.String("session", m.store.SessionKey()))
	return user, nil
}

// Logout clears the session slot. Stored avatars and profiles are kept.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Logout(ctx); err != nil {
		return err
	}
	m.setCurrent(nil)
	return nil
}

// UpdateAvatar sets the signed-in user's avatar URL.
func (m *Manager) UpdateAvatar(ctx context.Context, url string) (profiles.UserRecord, error) {
	user, err := m.store.UpdateAvatar(ctx, url)
	if err != nil {
		return profiles.UserRecord{}, err
	}
	m.setCurrent(&user)
	return user, nil
}

// UpdateProfile applies fields to the signed-in user's profile.
func (m *Manager) UpdateProfile(ctx context.Context, fields profiles.Fields) (profiles.UserRecord, error) {
	user, err := m.store.UpdateProfile(ctx, fields)
	if err != nil {
		return profiles.UserRecord{}, err
	}
	m.setCurrent(&user)
	return user, nil
}

func (m *Manager) setCurrent(user *profiles.UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user == nil {
		m.current = nil
		return
	}
	copied := *user
	m.current = &copied
}
