package resolver_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/kv"
	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/resolver"
)

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveResolve(view string, source resolver.Source) {
	o.calls = append(o.calls, view+":"+string(source))
}

func setup(t *testing.T) (*profiles.Store, *kv.Memory, *resolver.Resolver) {
	t.Helper()
	mem := kv.NewMemory()
	store := profiles.NewStore(mem)
	return store, mem, resolver.New(store)
}

func TestResolveUnknownHashFallsBack(t *testing.T) {
	_, _, r := setup(t)
	h := identity.Hash("nobody@x.com")

	p, err := r.ResolveByHash(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, resolver.UnknownEmail, p.Email)
	assert.Equal(t, identity.DefaultAvatarURL(h), p.AvatarURL)
	assert.Equal(t, resolver.SourceFallback, p.Source)
	assert.False(t, p.Found())

	again, err := r.ResolveByHash(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestResolveAfterUpdateAvatar(t *testing.T) {
	store, _, r := setup(t)
	ctx := context.Background()

	user, err := store.Login(ctx, "a@x.com")
	require.NoError(t, err)
	_, err = store.UpdateAvatar(ctx, "https://img.example/a.png")
	require.NoError(t, err)

	p, err := r.ResolveByHash(ctx, identity.Hash(user.Email))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/a.png", p.AvatarURL)
	assert.Equal(t, resolver.SourceAvatar, p.Source)
	assert.Equal(t, "a@x.com", p.Email)
}

func TestResolveProfileMapIsAuthoritative(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()
	h := identity.Hash("e@x.com")

	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles, `{"e@x.com":{"email":"e@x.com","bio":"x"}}`))
	require.NoError(t, mem.Set(ctx, profiles.KeyAvatars, `{"e@x.com":"avatar-map.png"}`))

	p, err := r.ResolveByHash(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceProfile, p.Source)
	assert.Equal(t, "x", p.Bio)
	assert.Equal(t, "avatar-map.png", p.AvatarURL, "avatar map fills a missing profile avatar")

	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles, `{"e@x.com":{"email":"e@x.com","bio":"x","avatarUrl":"profile.png"}}`))
	p, err = r.ResolveByHash(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "profile.png", p.AvatarURL)

	require.NoError(t, mem.Delete(ctx, profiles.KeyAvatars))
	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles, `{"e@x.com":{"bio":"x"}}`))
	p, err = r.ResolveByHash(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, identity.DefaultAvatarURL("e@x.com"), p.AvatarURL)
}

func TestResolveKeepsRecordWithMistypedField(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles, `{"d@x.com":{"name":{"first":"D"},"bio":"keep","location":7}}`))
	p, err := r.ResolveByHash(ctx, identity.Hash("d@x.com"))
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceProfile, p.Source)
	assert.Equal(t, "d@x.com", p.Email)
	assert.Equal(t, "keep", p.Bio)
	assert.Equal(t, "7", p.Location)
	assert.Empty(t, p.Name)
}

func TestResolveSessionUser(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyUser, `{"email":"s@x.com","name":"Sam"}`))

	p, err := r.ResolveByHash(ctx, identity.Hash("S@X.COM"))
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceSession, p.Source)
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, "Sam", p.DisplayName())
	assert.Equal(t, identity.DefaultAvatarURL("s@x.com"), p.AvatarURL)
}

func TestResolveNormalizedEmailsShareProfile(t *testing.T) {
	store, _, r := setup(t)
	ctx := context.Background()

	_, err := store.Login(ctx, "A@X.com")
	require.NoError(t, err)
	_, err = store.UpdateProfile(ctx, profiles.Fields{Name: profiles.String("Ann")})
	require.NoError(t, err)

	assert.Equal(t, identity.Hash("A@X.com"), identity.Hash("a@x.com"))
	p, err := r.ResolveByHash(ctx, identity.Hash("a@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, "A@X.com", p.Email, "stored casing is preserved")
}

func TestResolveAcceptsUppercaseHash(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyAvatars, `{"a@x.com":"a.png"}`))

	p, err := r.ResolveByHash(ctx, strings.ToUpper(identity.Hash("a@x.com")))
	require.NoError(t, err)
	assert.Equal(t, "a.png", p.AvatarURL)
}

func TestResolveCollisionTieBreakIsStoredOrder(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles,
		`{"A@x.com":{"name":"first"},"a@x.com":{"name":"second"}}`))

	for i := 0; i < 5; i++ {
		p, err := r.ResolveByHash(ctx, identity.Hash("a@x.com"))
		require.NoError(t, err)
		assert.Equal(t, "first", p.Name)
	}
}

func TestResolveAvatar(t *testing.T) {
	_, mem, r := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyProfiles, `{"p@x.com":{"avatarUrl":"p.png"},"q@x.com":{"name":"Q"}}`))
	require.NoError(t, mem.Set(ctx, profiles.KeyAvatars, `{"a@x.com":"a.png","q@x.com":"q.png"}`))
	require.NoError(t, mem.Set(ctx, profiles.KeyUser, `{"email":"s@x.com","avatarUrl":"s.png"}`))

	cases := []struct {
		email  string
		url    string
		source resolver.Source
	}{
		{"p@x.com", "p.png", resolver.SourceProfile},
		{"q@x.com", "q.png", resolver.SourceProfile},
		{"a@x.com", "a.png", resolver.SourceAvatar},
	}
	for _, tc := range cases {
		url, source, err := r.ResolveAvatar(ctx, identity.Hash(tc.email))
		require.NoError(t, err)
		assert.Equal(t, tc.url, url, tc.email)
		assert.Equal(t, tc.source, source, tc.email)
	}

	h := identity.Hash("s@x.com")
	url, source, err := r.ResolveAvatar(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, identity.DefaultAvatarURL(h), url, "session user is not consulted")
	assert.Equal(t, resolver.SourceFallback, source)
}

func TestDirectory(t *testing.T) {
	store, mem, r := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyAvatars, `{"b@x.com":"b.png","a@x.com":""}`))

	items, err := r.Directory(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b@x.com", items[0].Email)
	assert.Equal(t, identity.Hash("b@x.com"), items[0].Hash)
	assert.Equal(t, identity.DefaultAvatarURL("a@x.com"), items[1].AvatarURL)

	_, err = store.Login(ctx, "c@x.com")
	require.NoError(t, err)
	items, err = r.Directory(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "c@x.com", items[2].Email)

	_, err = store.Login(ctx, "b@x.com")
	require.NoError(t, err)
	items, err = r.Directory(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2, "listed session user is not duplicated")
}

func TestWithReaderScopesSession(t *testing.T) {
	store, _, r := setup(t)
	ctx := context.Background()
	viewer := store.ForSession("viewer")
	_, err := viewer.Login(ctx, "v@x.com")
	require.NoError(t, err)

	p, err := r.ResolveByHash(ctx, identity.Hash("v@x.com"))
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceFallback, p.Source)

	p, err = r.WithReader(viewer).ResolveByHash(ctx, identity.Hash("v@x.com"))
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceSession, p.Source)
}

func TestObserver(t *testing.T) {
	mem := kv.NewMemory()
	store := profiles.NewStore(mem)
	obs := &recordingObserver{}
	r := resolver.New(store, resolver.WithObserver(obs))
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, profiles.KeyAvatars, `{"a@x.com":"a.png"}`))

	_, err := r.ResolveByHash(ctx, identity.Hash("a@x.com"))
	require.NoError(t, err)
	_, _, err = r.ResolveAvatar(ctx, "ffff")
	require.NoError(t, err)

	assert.Equal(t, []string{"profile:avatar", "avatar:fallback"}, obs.calls)
}

type brokenReader struct {
	resolver.Reader
}

func (brokenReader) Profiles(ctx context.Context) (*profiles.ProfileMap, error) {
	return nil, errors.New("redis down")
}

func TestStorageErrorsPropagate(t *testing.T) {
	r := resolver.New(brokenReader{Reader: profiles.NewStore(kv.NewMemory())})
	_, err := r.ResolveByHash(context.Background(), "abc")
	assert.EqualError(t, err, "redis down")
	_, _, err = r.ResolveAvatar(context.Background(), "abc")
	assert.Error(t, err)
}
