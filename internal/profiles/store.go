// Package profiles persists users across three overlapping collections: the
// current session user, the avatar-by-email map and the profile-by-email map.
//
// The avatar and profile maps are the durable source of truth. Every change to
// the session user's avatar or profile fields is written through to them in
// the same kv batch, so a user stays resolvable by hash after logout.
//
// There is no locking: one actor owns a session slot at a time and the last
// write wins. Two concurrent writers on the same slot (two tabs of one
// browser) may lose an update.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/kv"
)

// Storage keys.
const (
	KeyUser     = "user"
	KeyAvatars  = "avatars"
	KeyProfiles = "profiles"
)

var (
	// ErrNoActiveSession is returned by mutating calls without a session user.
	// Nothing is written when it is returned.
	ErrNoActiveSession = errors.New("profiles: no active session")
	// ErrEmptyEmail is returned by Login for a blank email.
	ErrEmptyEmail = errors.New("profiles: email is required")
)

// Store reads and writes the three collections over a kv.Store.
type Store struct {
	kv          kv.Store
	sessionKey  string
	placeholder identity.Placeholder
	logger      *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithPlaceholder sets the generator used for default avatars.
func WithPlaceholder(p identity.Placeholder) Option {
	return func(s *Store) { s.placeholder = p }
}

// WithLogger sets the logger used to report discarded stored data.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore returns a Store whose session slot is KeyUser.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store, sessionKey: KeyUser, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForSession returns a Store sharing the avatar and profile maps but with its
// own session slot "user:<id>". An empty id selects the plain "user" slot.
func (s *Store) ForSession(id string) *Store {
	scoped := *s
	scoped.sessionKey = KeyUser
	if id = strings.TrimSpace(id); id != "" {
		scoped.sessionKey = KeyUser + ":" + id
	}
	return &scoped
}

// SessionKey returns the key of the session slot.
func (s *Store) SessionKey() string {
	return s.sessionKey
}

// Placeholder returns the default avatar generator.
func (s *Store) Placeholder() identity.Placeholder {
	return s.placeholder
}

// DefaultAvatarURL builds the placeholder URL for seed.
func (s *Store) DefaultAvatarURL(seed string) string {
	return s.placeholder.URL(seed)
}

// CurrentUser returns the session user, or nil when logged out.
func (s *Store) CurrentUser(ctx context.Context) (*UserRecord, error) {
	raw, ok, err := s.kv.Get(ctx, s.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("profiles: read session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	user, valid := decodeUser(raw)
	if !valid {
		s.logger.Warn("discarding malformed stored session", slog.String("key", s.sessionKey))
		return nil, nil
	}
	return user, nil
}

// Avatars returns the avatar map. Malformed stored data reads as empty.
func (s *Store) Avatars(ctx context.Context) (*AvatarMap, error) {
	raw, ok, err := s.kv.Get(ctx, KeyAvatars)
	if err != nil {
		return nil, fmt.Errorf("profiles: read avatars: %w", err)
	}
	if !ok {
		return newCollection[string](), nil
	}
	avatars, valid := decodeAvatars(raw)
	if !valid {
		s.logger.Warn("discarding malformed stored collection", slog.String("key", KeyAvatars))
	}
	return avatars, nil
}

// Profiles returns the profile map. Malformed stored data reads as empty.
func (s *Store) Profiles(ctx context.Context) (*ProfileMap, error) {
	raw, ok, err := s.kv.Get(ctx, KeyProfiles)
	if err != nil {
		return nil, fmt.Errorf("profiles: read profiles: %w", err)
	}
	if !ok {
		return newCollection[UserRecord](), nil
	}
	profiles, valid := decodeProfiles(raw)
	if !valid {
		s.logger.Warn("discarding malformed stored collection", slog.String("key", KeyProfiles))
	}
	return profiles, nil
}

// Login makes email the session user and returns its record. The email is
// stored as given. The record comes from, in order: the existing session when
// it has exactly this email, the profile map, the avatar map, or a new record
// with a placeholder avatar. Login never writes the avatar or profile maps.
func (s *Store) Login(ctx context.Context, email string) (UserRecord, error) {
	if strings.TrimSpace(email) == "" {
		return UserRecord{}, ErrEmptyEmail
	}
	user, err := s.lookupForLogin(ctx, email)
	if err != nil {
		return UserRecord{}, err
	}
	if err := s.writeSession(ctx, user); err != nil {
		return UserRecord{}, err
	}
	return user, nil
}

func (s *Store) lookupForLogin(ctx context.Context, email string) (UserRecord, error) {
	current, err := s.CurrentUser(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	if current != nil && current.Email == email {
		return *current, nil
	}

	profiles, err := s.Profiles(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	if rec, ok := profiles.Get(email); ok {
		return rec, nil
	}

	avatars, err := s.Avatars(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	if url, ok := avatars.Get(email); ok {
		return UserRecord{Email: email, AvatarURL: url}, nil
	}

	return UserRecord{Email: email, AvatarURL: s.DefaultAvatarURL(email)}, nil
}

// Logout clears the session slot. The avatar and profile maps are untouched.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.sessionKey); err != nil {
		return fmt.Errorf("profiles: clear session: %w", err)
	}
	return nil
}

// UpdateAvatar sets the session user's avatar and writes it to the avatar map
// and, when the user already has one, to their profile map entry. All writes
// land in one batch.
func (s *Store) UpdateAvatar(ctx context.Context, url string) (UserRecord, error) {
	current, err := s.CurrentUser(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	if current == nil {
		return UserRecord{}, ErrNoActiveSession
	}
	updated := current.Merge(Fields{AvatarURL: &url})

	avatars, err := s.Avatars(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	avatars.set(updated.Email, url)

	profiles, err := s.Profiles(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	userRaw, err := encodeRecord(updated)
	if err != nil {
		return UserRecord{}, err
	}
	avatarsRaw, err := avatars.encode()
	if err != nil {
		return UserRecord{}, fmt.Errorf("profiles: encode avatars: %w", err)
	}
	entries := []kv.Entry{
		{Key: s.sessionKey, Value: userRaw},
		{Key: KeyAvatars, Value: avatarsRaw},
	}

	if rec, ok := profiles.Get(updated.Email); ok {
		rec.AvatarURL = url
		profiles.set(updated.Email, rec)
		profilesRaw, err := profiles.encode()
		if err != nil {
			return UserRecord{}, fmt.Errorf("profiles: encode profiles: %w", err)
		}
		entries = append(entries, kv.Entry{Key: KeyProfiles, Value: profilesRaw})
	}

	if err := s.kv.SetMany(ctx, entries...); err != nil {
		return UserRecord{}, fmt.Errorf("profiles: write avatar: %w", err)
	}
	return updated, nil
}

// UpdateProfile merges fields into the session user and stores the complete
// merged record in the profile map. The avatar map is not touched, even when
// fields carries an avatar.
func (s *Store) UpdateProfile(ctx context.Context, fields Fields) (UserRecord, error) {
	current, err := s.CurrentUser(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	if current == nil {
		return UserRecord{}, ErrNoActiveSession
	}
	merged := current.Merge(fields)

	profiles, err := s.Profiles(ctx)
	if err != nil {
		return UserRecord{}, err
	}
	profiles.set(merged.Email, merged)

	userRaw, err := encodeRecord(merged)
	if err != nil {
		return UserRecord{}, err
	}
	profilesRaw, err := profiles.encode()
	if err != nil {
		return UserRecord{}, fmt.Errorf("profiles: encode profiles: %w", err)
	}
	err = s.kv.SetMany(ctx,
		kv.Entry{Key: s.sessionKey, Value: userRaw},
		kv.Entry{Key: KeyProfiles, Value: profilesRaw},
	)
	if err != nil {
		return UserRecord{}, fmt.Errorf("profiles: write profile: %w", err)
	}
	return merged, nil
}

func (s *Store) writeSession(ctx context.Context, user UserRecord) error {
	raw, err := encodeRecord(user)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.sessionKey, raw); err != nil {
		return fmt.Errorf("profiles: write session: %w", err)
	}
	return nil
}
