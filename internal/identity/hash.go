// Package identity maps email addresses to their public, non-reversible
// profile identifiers and builds the URLs derived from them.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// DefaultPlaceholderBase renders initials avatars from a seed string.
const DefaultPlaceholderBase = "https://api.dicebear.com/7.x/initials/svg"

// HashLength is the length of an identity hash in hex characters.
const HashLength = sha256.Size * 2

// Normalize trims surrounding whitespace and lowercases an email.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Hash returns the lowercase hex SHA-256 digest of the normalized email.
func Hash(email string) string {
	sum := sha256.Sum256([]byte(Normalize(email)))
	return hex.EncodeToString(sum[:])
}

// LooksLikeHash reports whether value is a lowercase hex string of HashLength.
func LooksLikeHash(value string) bool {
	if len(value) != HashLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Placeholder builds URLs for an external image generator that renders a
// deterministic image from a seed. The zero value uses DefaultPlaceholderBase.
type Placeholder struct {
	BaseURL string
}

// URL returns the generator URL for seed. It never fetches anything.
func (p Placeholder) URL(seed string) string {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		base = DefaultPlaceholderBase
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "seed=" + url.QueryEscape(seed)
}

// DefaultAvatarURL is Placeholder{}.URL.
func DefaultAvatarURL(seed string) string {
	return Placeholder{}.URL(seed)
}

// ProfileImageURL returns the public avatar URL for email under base.
func ProfileImageURL(base, email string) string {
	return strings.TrimRight(base, "/") + "/avatar/" + Hash(email)
}

// ProfileURL returns the public profile page URL for email under base.
func ProfileURL(base, email string) string {
	return strings.TrimRight(base, "/") + "/profile/" + Hash(email)
}
