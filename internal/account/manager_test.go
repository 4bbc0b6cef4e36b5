package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/kv"
	"github.com/hashavatar/hashavatar/internal/profiles"
)

// gatedKV blocks reads until release is closed.
type gatedKV struct {
	kv.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Get(ctx context.Context, key string) (string, bool, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Store.Get(ctx, key)
}

type failingGetKV struct {
	kv.Store
}

func (failingGetKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store offline")
}

func TestManagerLoadingFlag(t *testing.T) {
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(context.Background(), profiles.KeyUser, `{"email":"a@x.com"}`))
	gate := &gatedKV{Store: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	m := NewManager(profiles.NewStore(gate), nil)

	assert.True(t, m.IsLoading())

	done := make(chan *profiles.UserRecord)
	go func() {
		user, _ := m.Restore(context.Background())
		done <- user
	}()
	<-gate.entered
	assert.True(t, m.IsLoading())
	close(gate.release)

	user := <-done
	require.NotNil(t, user)
	assert.Equal(t, "a@x.com", user.Email)
	assert.False(t, m.IsLoading())

	_, err := m.Login(context.Background(), "b@x.com")
	require.NoError(t, err)
	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, m.IsLoading(), "loading never returns")
}

func TestManagerRestoreRunsOnce(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	m := NewManager(profiles.NewStore(mem), nil)

	user, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	require.NoError(t, mem.Set(ctx, profiles.KeyUser, `{"email":"late@x.com"}`))
	user, err = m.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestManagerRestoreFailureEndsLoading(t *testing.T) {
	m := NewManager(profiles.NewStore(failingGetKV{Store: kv.NewMemory()}), nil)
	_, err := m.Restore(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsLoading())
	assert.Nil(t, m.Current())
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(profiles.NewStore(kv.NewMemory()), nil)
	_, err := m.Restore(ctx)
	require.NoError(t, err)

	_, err = m.UpdateAvatar(ctx, "x.png")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = m.Login(ctx, "a@x.com")
	require.NoError(t, err)
	_, err = m.UpdateProfile(ctx, profiles.Fields{Name: profiles.String("Ann")})
	require.NoError(t, err)
	assert.Equal(t, "Ann", m.Current().Name)

	require.NoError(t, m.Logout(ctx))
	assert.Nil(t, m.Current())

	user, err := m.Login(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, profiles.UserRecord{
		Email:     "a@x.com",
		Name:      "Ann",
		AvatarURL: identity.DefaultAvatarURL("a@x.com"),
	}, user)

	updated, err := m.UpdateAvatar(ctx, "y.png")
	require.NoError(t, err)
	assert.Equal(t, "y.png", updated.AvatarURL)
	assert.Equal(t, "y.png", m.Current().AvatarURL)
}

func TestManagerCurrentIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewManager(profiles.NewStore(kv.NewMemory()), nil)
	_, err := m.Login(ctx, "a@x.com")
	require.NoError(t, err)

	m.Current().Name = "changed"
	assert.Empty(t, m.Current().Name)
}

func TestManagerForScopesSessions(t *testing.T) {
	ctx := context.Background()
	root := NewManager(profiles.NewStore(kv.NewMemory()), nil)

	alice, err := root.For(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, alice.IsLoading())
	_, err = alice.Login(ctx, "alice@x.com")
	require.NoError(t, err)

	bob, err := root.For(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, bob.Current())

	again, err := root.For(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, again.Current())
	assert.Equal(t, "alice@x.com", again.Current().Email)
}
