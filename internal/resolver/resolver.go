// Package resolver answers public lookups by identity hash. It only reads the
// profile store and never fails on an unmatched hash: a miss produces a
// placeholder profile, since hashes are one-way and most are unknown locally.
package resolver

import (
	"context"
	"strings"

	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/profiles"
)

// UnknownEmail is shown for hashes without a local record.
const UnknownEmail = "Unknown"

// Source tells which collection answered a lookup.
type Source string

// Lookup sources in precedence order.
const (
	SourceProfile  Source = "profile"
	SourceAvatar   Source = "avatar"
	SourceSession  Source = "session"
	SourceFallback Source = "fallback"
)

// Views reported to the Observer.
const (
	ViewProfile = "profile"
	ViewAvatar  = "avatar"
)

// DisplayProfile is a profile ready for rendering. AvatarURL is never empty.
type DisplayProfile struct {
	Hash      string `json:"hash"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
	Source    Source `json:"source"`
}

// Found reports whether a stored record matched.
func (p DisplayProfile) Found() bool {
	return p.Source != SourceFallback
}

// DisplayName is the name when set, otherwise the email.
func (p DisplayProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// AvatarItem is one entry of the public avatar directory.
type AvatarItem struct {
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Hash      string `json:"hash"`
}

// Reader is the read side of the profile store.
type Reader interface {
	CurrentUser(ctx context.Context) (*profiles.UserRecord, error)
	Avatars(ctx context.Context) (*profiles.AvatarMap, error)
	Profiles(ctx context.Context) (*profiles.ProfileMap, error)
	DefaultAvatarURL(seed string) string
}

// Observer is told which source answered each lookup.
type Observer interface {
	ObserveResolve(view string, source Source)
}

// Resolver searches the store by hash.
type Resolver struct {
	reader   Reader
	observer Observer
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithObserver reports lookup sources to o.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// New returns a Resolver over reader.
func New(reader Reader, opts ...Option) *Resolver {
	r := &Resolver{reader: reader}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithReader returns a copy of r reading from reader, typically a store
// scoped to the viewer's session slot.
func (r *Resolver) WithReader(reader Reader) *Resolver {
	scoped := *r
	scoped.reader = reader
	return &scoped
}

// ResolveByHash finds the profile for hash. The first match wins, searching
// the profile map, then the avatar map, then the session user. Without a match
// it returns an "Unknown" profile with the placeholder avatar for hash.
// Errors only come from reading storage.
func (r *Resolver) ResolveByHash(ctx context.Context, hash string) (DisplayProfile, error) {
	query := normalizeHash(hash)

	profileMap, err := r.reader.Profiles(ctx)
	if err != nil {
		return DisplayProfile{}, err
	}
	avatarMap, err := r.reader.Avatars(ctx)
	if err != nil {
		return DisplayProfile{}, err
	}

	if rec, ok := findByHash(profileMap, query); ok {
		p := fromRecord(query, rec, SourceProfile)
		p.AvatarURL = r.avatarFor(rec.Email, rec.AvatarURL, avatarMap)
		return r.observed(ViewProfile, p), nil
	}

	if email, url, ok := findAvatarByHash(avatarMap, query); ok {
		p := DisplayProfile{Hash: query, Email: email, AvatarURL: r.orDefault(url, email), Source: SourceAvatar}
		return r.observed(ViewProfile, p), nil
	}

	current, err := r.reader.CurrentUser(ctx)
	if err != nil {
		return DisplayProfile{}, err
	}
	if current != nil && identity.Hash(current.Email) == query {
		p := fromRecord(query, *current, SourceSession)
		p.AvatarURL = r.orDefault(current.AvatarURL, current.Email)
		return r.observed(ViewProfile, p), nil
	}

	return r.observed(ViewProfile, r.fallback(hash, query)), nil
}

// ResolveAvatar returns the avatar URL for hash. It searches the profile map
// and the avatar map like ResolveByHash but skips the session user, so the
// image is the same for every viewer.
func (r *Resolver) ResolveAvatar(ctx context.Context, hash string) (string, Source, error) {
	query := normalizeHash(hash)

	profileMap, err := r.reader.Profiles(ctx)
	if err != nil {
		return "", "", err
	}
	avatarMap, err := r.reader.Avatars(ctx)
	if err != nil {
		return "", "", err
	}

	if rec, ok := findByHash(profileMap, query); ok {
		r.observe(ViewAvatar, SourceProfile)
		return r.avatarFor(rec.Email, rec.AvatarURL, avatarMap), SourceProfile, nil
	}
	if email, url, ok := findAvatarByHash(avatarMap, query); ok {
		r.observe(ViewAvatar, SourceAvatar)
		return r.orDefault(url, email), SourceAvatar, nil
	}
	r.observe(ViewAvatar, SourceFallback)
	return r.reader.DefaultAvatarURL(hash), SourceFallback, nil
}

// Directory lists every stored avatar in stored order, followed by the
// session user when they have no avatar map entry.
func (r *Resolver) Directory(ctx context.Context) ([]AvatarItem, error) {
	avatarMap, err := r.reader.Avatars(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]AvatarItem, 0, avatarMap.Len()+1)
	avatarMap.Each(func(email, url string) bool {
		items = append(items, AvatarItem{Email: email, AvatarURL: r.orDefault(url, email), Hash: identity.Hash(email)})
		return true
	})

	current, err := r.reader.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if _, listed := avatarMap.Get(current.Email); !listed {
			items = append(items, AvatarItem{
				Email:     current.Email,
				AvatarURL: r.orDefault(current.AvatarURL, current.Email),
				Hash:      identity.Hash(current.Email),
			})
		}
	}
	return items, nil
}

func (r *Resolver) fallback(raw, query string) DisplayProfile {
	return DisplayProfile{
		Hash:      query,
		Email:     UnknownEmail,
		AvatarURL: r.reader.DefaultAvatarURL(raw),
		Source:    SourceFallback,
	}
}

// avatarFor prefers the profile map's avatar, then the avatar map entry for
// the same email, then the placeholder.
func (r *Resolver) avatarFor(email, profileAvatar string, avatarMap *profiles.AvatarMap) string {
	if profileAvatar != "" {
		return profileAvatar
	}
	if url, ok := avatarMap.Get(email); ok && url != "" {
		return url
	}
	return r.reader.DefaultAvatarURL(email)
}

func (r *Resolver) orDefault(url, seed string) string {
	if url != "" {
		return url
	}
	return r.reader.DefaultAvatarURL(seed)
}

func (r *Resolver) observed(view string, p DisplayProfile) DisplayProfile {
	r.observe(view, p.Source)
	return p
}

func (r *Resolver) observe(view string, source Source) {
	if r.observer != nil {
		r.observer.ObserveResolve(view, source)
	}
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

func fromRecord(hash string, rec profiles.UserRecord, source Source) DisplayProfile {
	return DisplayProfile{
		Hash:      hash,
		Email:     rec.Email,
		AvatarURL: rec.AvatarURL,
		Name:      rec.Name,
		Bio:       rec.Bio,
		Location:  rec.Location,
		Website:   rec.Website,
		Source:    source,
	}
}

func findByHash(profileMap *profiles.ProfileMap, hash string) (profiles.UserRecord, bool) {
	var (
		found profiles.UserRecord
		ok    bool
	)
	profileMap.Each(func(email string, rec profiles.UserRecord) bool {
		if identity.Hash(email) == hash {
			found, ok = rec, true
			return false
		}
		return true
	})
	return found, ok
}

func findAvatarByHash(avatarMap *profiles.AvatarMap, hash string) (string, string, bool) {
	var (
		foundEmail, foundURL string
		ok                   bool
	)
	avatarMap.Each(func(email, url string) bool {
		if identity.Hash(email) == hash {
			foundEmail, foundURL, ok = email, url, true
			return false
		}
		return true
	})
	return foundEmail, foundURL, ok
}
