package profiles

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Collection is an email-keyed map that remembers insertion order. Stored
// JSON objects are decoded in document order, so iteration is deterministic
// for a given stored state.
type Collection[V any] struct {
	keys   []string
	values map[string]V
}

// AvatarMap maps email to avatar URL.
type AvatarMap = Collection[string]

// ProfileMap maps email to the full user record.
type ProfileMap = Collection[UserRecord]

func newCollection[V any]() *Collection[V] {
	return &Collection[V]{values: make(map[string]V)}
}

// Len returns the number of entries.
func (c *Collection[V]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Get returns the entry for email.
func (c *Collection[V]) Get(email string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	v, ok := c.values[email]
	if !ok {
		return zero, false
	}
	return v, true
}

// Each calls fn for every entry in order until fn returns false.
func (c *Collection[V]) Each(fn func(email string, value V) bool) {
	if c == nil {
		return
	}
	for _, k := range c.keys {
		if !fn(k, c.values[k]) {
			return
		}
	}
}

// set overwrites an existing entry in place or appends a new one.
func (c *Collection[V]) set(email string, value V) {
	if _, ok := c.values[email]; !ok {
		c.keys = append(c.keys, email)
	}
	c.values[email] = value
}

// MarshalJSON encodes the entries as a JSON object in order.
func (c *Collection[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if c != nil {
		for i, k := range c.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(c.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Collection[V]) encode() (string, error) {
	raw, err := c.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// parseObject returns the top-level object in raw, or false when raw is not a
// valid JSON object.
func parseObject(raw string) (gjson.Result, bool) {
	if !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	res := gjson.Parse(raw)
	if !res.IsObject() {
		return gjson.Result{}, false
	}
	return res, true
}

// decodeAvatars reads an avatar map. Entries whose value is not a string are
// dropped. ok is false when raw is not an object at all.
func decodeAvatars(raw string) (avatars *AvatarMap, ok bool) {
	avatars = newCollection[string]()
	obj, ok := parseObject(raw)
	if !ok {
		return avatars, false
	}
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			avatars.set(key.String(), value.String())
		}
		return true
	})
	return avatars, true
}

// decodeProfiles reads a profile map. The map key is authoritative for the
// record's email; entries that are not objects are dropped. A mistyped field
// does not drop its record.
func decodeProfiles(raw string) (profiles *ProfileMap, ok bool) {
	profiles = newCollection[UserRecord]()
	obj, ok := parseObject(raw)
	if !ok {
		return profiles, false
	}
	obj.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		rec := recordFrom(value)
		rec.Email = key.String()
		profiles.set(rec.Email, rec)
		return true
	})
	return profiles, true
}

// decodeUser reads the session slot. A record without an email is no session.
func decodeUser(raw string) (*UserRecord, bool) {
	obj, ok := parseObject(raw)
	if !ok {
		return nil, false
	}
	rec := recordFrom(obj)
	if rec.Email == "" {
		return nil, false
	}
	return &rec, true
}

// recordFrom reads each field of obj on its own. Numbers and booleans keep
// their text; objects, arrays and null read as empty.
func recordFrom(obj gjson.Result) UserRecord {
	return UserRecord{
		Email:     scalar(obj.Get("email")),
		AvatarURL: scalar(obj.Get("avatarUrl")),
		Name:      scalar(obj.Get("name")),
		Bio:       scalar(obj.Get("bio")),
		Location:  scalar(obj.Get("location")),
		Website:   scalar(obj.Get("website")),
	}
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	default:
		return ""
	}
}
