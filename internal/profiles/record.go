package profiles

// UserRecord is the stored form of a user. Email is the key and never changes
// once the record exists; it keeps the casing the user typed.
type UserRecord struct {
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Name      string `json:"name,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
}

// Fields is a partial update. A nil field keeps the existing value; a
// non-nil field replaces it, even with the empty string.
type Fields struct {
	AvatarURL *string
	Name      *string
	Bio       *string
	Location  *string
	Website   *string
}

// String returns a pointer to v for building Fields literals.
func String(v string) *string {
	return &v
}

// IsZero reports whether f changes nothing.
func (f Fields) IsZero() bool {
	return f.AvatarURL == nil && f.Name == nil && f.Bio == nil && f.Location == nil && f.Website == nil
}

// Merge returns r with every present field of f applied. Email is not part
// of Fields, so it can never be overridden.
func (r UserRecord) Merge(f Fields) UserRecord {
	merged := r
	apply(&merged.AvatarURL, f.AvatarURL)
	apply(&merged.Name, f.Name)
	apply(&merged.Bio, f.Bio)
	apply(&merged.Location, f.Location)
	apply(&merged.Website, f.Website)
	return merged
}

func apply(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
