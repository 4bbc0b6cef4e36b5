package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	base := UserRecord{Email: "a@x.com", AvatarURL: "a.png", Name: "Ann", Bio: "bio", Location: "Oslo", Website: "https://ann.example"}

	assert.Equal(t, base, base.Merge(Fields{}))
	assert.True(t, Fields{}.IsZero())

	got := base.Merge(Fields{Name: String("Anna"), Bio: String("")})
	assert.Equal(t, "Anna", got.Name)
	assert.Empty(t, got.Bio, "present empty value clears the field")
	assert.Equal(t, "Oslo", got.Location)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "Ann", base.Name, "merge does not mutate the receiver")
	assert.False(t, Fields{Website: String("")}.IsZero())
}
