package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashavatar/hashavatar/internal/account"
	"github.com/hashavatar/hashavatar/internal/profiles"
)

// AccountOptions configures one account subcommand.
type AccountOptions struct {
	Action     string
	Email      string
	AvatarURL  string
	Fields     profiles.Fields
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// AccountCLI drives the terminal session slot of the store.
type AccountCLI struct {
	accounts *account.Manager
}

// NewAccountCLI wraps a manager bound to the terminal session.
func NewAccountCLI(accounts *account.Manager) (*AccountCLI, error) {
	if accounts == nil {
		return nil, errors.New("account cli: manager is required")
	}
	return &AccountCLI{accounts: accounts}, nil
}

// Run executes login, logout, whoami, avatar or profile.
func (c *AccountCLI) Run(ctx context.Context, opts AccountOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if _, err := c.accounts.Restore(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "account: restore session: %v\n", err)
		return 1
	}

	var (
		user profiles.UserRecord
		err  error
	)
	switch opts.Action {
	case "login":
		user, err = c.accounts.Login(ctx, opts.Email)
	case "logout":
		if err := c.accounts.Logout(ctx); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "account: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(opts.Stdout, "logged out")
		return 0
	case "whoami":
		current := c.accounts.Current()
		if current == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "account: not logged in")
			return ExitNotFound
		}
		user = *current
	case "avatar":
		user, err = c.accounts.UpdateAvatar(ctx, opts.AvatarURL)
	case "profile":
		user, err = c.accounts.UpdateProfile(ctx, opts.Fields)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "account: unknown action %q\n", opts.Action)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "account: %v\n", err)
		if errors.Is(err, account.ErrNoActiveSession) {
			return ExitNotFound
		}
		return 1
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(user); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "account: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s\n", user.Email)
	_, _ = fmt.Fprintf(opts.Stdout, "avatar: %s\n", user.AvatarURL)
	if user.Name != "" {
		_, _ = fmt.Fprintf(opts.Stdout, "name:   %s\n", user.Name)
	}
	return 0
}
