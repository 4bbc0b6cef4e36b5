package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashavatar/hashavatar/internal/kv"
)

// ErrMalformedExport is returned by DecodeExport for documents that are not
// an object holding both collections.
var ErrMalformedExport = errors.New("profiles: malformed export")

// Export is a consistent read of the durable collections.
type Export struct {
	Avatars  *AvatarMap  `json:"avatars"`
	Profiles *ProfileMap `json:"profiles"`
}

// Export reads both durable collections. Malformed data is exported as empty.
func (s *Store) Export(ctx context.Context) (Export, error) {
	avatars, err := s.Avatars(ctx)
	if err != nil {
		return Export{}, err
	}
	profiles, err := s.Profiles(ctx)
	if err != nil {
		return Export{}, err
	}
	return Export{Avatars: avatars, Profiles: profiles}, nil
}

// DecodeExport parses a document produced by encoding an Export, keeping the
// stored order of both collections. Other top-level fields are ignored.
func DecodeExport(raw string) (Export, error) {
	obj, ok := parseObject(raw)
	if !ok {
		return Export{}, ErrMalformedExport
	}
	avatarsRaw := obj.Get("avatars")
	profilesRaw := obj.Get("profiles")
	if !avatarsRaw.IsObject() || !profilesRaw.IsObject() {
		return Export{}, ErrMalformedExport
	}
	avatars, _ := decodeAvatars(avatarsRaw.Raw)
	profiles, _ := decodeProfiles(profilesRaw.Raw)
	return Export{Avatars: avatars, Profiles: profiles}, nil
}

// Import replaces both durable collections with e in one batch. Session
// slots are left alone.
func (s *Store) Import(ctx context.Context, e Export) error {
	avatarsRaw, err := e.Avatars.encode()
	if err != nil {
		return fmt.Errorf("profiles: encode avatars: %w", err)
	}
	profilesRaw, err := e.Profiles.encode()
	if err != nil {
		return fmt.Errorf("profiles: encode profiles: %w", err)
	}
	err = s.kv.SetMany(ctx,
		kv.Entry{Key: KeyAvatars, Value: avatarsRaw},
		kv.Entry{Key: KeyProfiles, Value: profilesRaw},
	)
	if err != nil {
		return fmt.Errorf("profiles: import: %w", err)
	}
	return nil
}

func encodeRecord(rec UserRecord) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("profiles: encode user: %w", err)
	}
	return string(raw), nil
}
