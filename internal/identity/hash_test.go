package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKnownValue(t *testing.T) {
	assert.Equal(t, "0c7e6a405862e402eb76a70f8a26fc732d07c32931e9fae9ab1582911d2e8a3b", Hash("foo@bar.com"))
	assert.Equal(t, "478abec7430569163161dfea8513b8ce89d05f559456a26e945c66e1fe55a29d", Hash("a@x.com"))
}

func TestHashNormalizes(t *testing.T) {
	cases := []struct {
		a, b string
		same bool
	}{
		{" Foo@Bar.com ", "foo@bar.com", true},
		{"A@X.com", "a@x.com", true},
		{"\ta@x.com\n", "A@X.COM", true},
		{"a@x.com", "b@x.com", false},
		{"a.b@x.com", "ab@x.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.a+"|"+tc.b, func(t *testing.T) {
			assert.Equal(t, tc.same, Normalize(tc.a) == Normalize(tc.b))
			assert.Equal(t, tc.same, Hash(tc.a) == Hash(tc.b))
		})
	}
}

func TestHashShape(t *testing.T) {
	h := Hash("someone@example.com")
	require.Len(t, h, HashLength)
	assert.True(t, LooksLikeHash(h))
	assert.False(t, LooksLikeHash("ABC"))
	assert.False(t, LooksLikeHash("0C7E6A405862E402EB76A70F8A26FC732D07C32931E9FAE9AB1582911D2E8A3B"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash("   "))
}

func TestPlaceholderURL(t *testing.T) {
	assert.Equal(t, "https://api.dicebear.com/7.x/initials/svg?seed=a%40x.com", DefaultAvatarURL("a@x.com"))
	assert.Equal(t, DefaultAvatarURL("seed"), DefaultAvatarURL("seed"))

	custom := Placeholder{BaseURL: "https://img.example/gen?style=pixel"}
	assert.Equal(t, "https://img.example/gen?style=pixel&seed=abc", custom.URL("abc"))
}

func TestPublicURLs(t *testing.T) {
	h := Hash("a@x.com")
	assert.Equal(t, "https://avatars.example/avatar/"+h, ProfileImageURL("https://avatars.example/", " A@X.com"))
	assert.Equal(t, "https://avatars.example/profile/"+h, ProfileURL("https://avatars.example", "a@x.com"))
}
