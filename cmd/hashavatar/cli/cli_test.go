package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/identity"
	"github.com/hashavatar/hashavatar/internal/kv"
	"github.com/hashavatar/hashavatar/internal/profiles"
	"github.com/hashavatar/hashavatar/internal/resolver"
	"github.com/hashavatar/hashavatar/jobs"
)

func TestHashCommandJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := HashCommand(HashOptions{
		Email:      "  Ann@Example.com ",
		BaseURL:    "https://avatars.test/",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary HashSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "ann@example.com", summary.Normalized)
	require.Equal(t, identity.Hash("ann@example.com"), summary.Hash)
	require.Equal(t, "https://avatars.test/avatar/"+summary.Hash, summary.ImageURL)
	require.Equal(t, "https://avatars.test/profile/"+summary.Hash, summary.ProfileURL)
}

func TestHashCommandRequiresEmail(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := HashCommand(HashOptions{Email: " ", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "email is required")
}

func newResolveCLI(t *testing.T) (*ResolveCLI, *account.Manager) {
	t.Helper()
	store := profiles.NewStore(kv.NewMemory())
	cli, err := NewResolveCLI(resolver.New(store))
	require.NoError(t, err)
	return cli, account.NewManager(store, nil)
}

func TestResolveCommandFound(t *testing.T) {
	ctx := context.Background()
	cli, accounts := newResolveCLI(t)
	_, err := accounts.Login(ctx, "ann@example.com")
	require.NoError(t, err)
	_, err = accounts.UpdateProfile(ctx, profiles.Fields{Name: profiles.String("Ann")})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.ResolveCommand(ctx, ResolveOptions{
		Hash:       identity.Hash("ann@example.com"),
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, code)

	var profile resolver.DisplayProfile
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &profile))
	require.Equal(t, "Ann", profile.Name)
	require.Equal(t, resolver.SourceProfile, profile.Source)
}

func TestResolveCommandUnknownHash(t *testing.T) {
	cli, _ := newResolveCLI(t)
	stdout := new(bytes.Buffer)
	code := cli.ResolveCommand(context.Background(), ResolveOptions{
		Hash:   "deadbeef",
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, ExitNotFound, code)
	require.Contains(t, stdout.String(), "email:    Unknown")
	require.Contains(t, stdout.String(), "source:   fallback")
}

func TestResolveCommandAvatarOnly(t *testing.T) {
	ctx := context.Background()
	cli, accounts := newResolveCLI(t)
	_, err := accounts.Login(ctx, "bob@example.com")
	require.NoError(t, err)
	_, err = accounts.UpdateAvatar(ctx, "https://img.test/bob.png")
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.ResolveCommand(ctx, ResolveOptions{
		Hash:       identity.Hash("bob@example.com"),
		AvatarOnly: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Equal(t, "https://img.test/bob.png\n", stdout.String())
}

func TestAccountCommands(t *testing.T) {
	ctx := context.Background()
	store := profiles.NewStore(kv.NewMemory())
	cli, err := NewAccountCLI(account.NewManager(store, nil))
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.Run(ctx, AccountOptions{Action: "avatar", AvatarURL: "x.png", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitNotFound, code)
	require.Contains(t, stderr.String(), "no active session")

	code = cli.Run(ctx, AccountOptions{Action: "login", Email: "cli@example.com", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Zero(t, code)

	stdout := new(bytes.Buffer)
	code = cli.Run(ctx, AccountOptions{
		Action:     "profile",
		Fields:     profiles.Fields{Name: profiles.String("Cli")},
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, code)
	var user profiles.UserRecord
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &user))
	require.Equal(t, "cli@example.com", user.Email)
	require.Equal(t, "Cli", user.Name)

	current, err := store.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, "Cli", current.Name)

	code = cli.Run(ctx, AccountOptions{Action: "logout", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	code = cli.Run(ctx, AccountOptions{Action: "whoami", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitNotFound, code)

	code = cli.Run(ctx, AccountOptions{Action: "dance", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Equal(t, 2, code)
}

func TestJobsCLIRequiresRedis(t *testing.T) {
	_, err := NewJobsCLI(asynq.RedisClientOpt{}, time.Hour)
	require.Error(t, err)

	var empty *JobsCLI
	_, err = empty.Trigger(context.Background(), jobs.TaskProfilesSnapshot)
	require.Error(t, err)
	_, err = empty.InspectQueue(context.Background())
	require.Error(t, err)
}
