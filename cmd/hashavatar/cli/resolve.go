package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashavatar/hashavatar/internal/resolver"
)

// ExitNotFound is returned by resolve when no stored record matched.
const ExitNotFound = 3

// ResolveOptions defines available flags for the resolve command.
type ResolveOptions struct {
	Hash       string
	AvatarOnly bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ResolveCLI looks up hashes against the configured store.
type ResolveCLI struct {
	resolver *resolver.Resolver
}

// NewResolveCLI wraps a resolver.
func NewResolveCLI(res *resolver.Resolver) (*ResolveCLI, error) {
	if res == nil {
		return nil, errors.New("resolve cli: resolver is required")
	}
	return &ResolveCLI{resolver: res}, nil
}

// ResolveCommand prints the profile for a hash. The placeholder profile is
// still printed for unknown hashes, with exit code ExitNotFound.
func (c *ResolveCLI) ResolveCommand(ctx context.Context, opts ResolveOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Hash) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "resolve: a hash is required")
		return 1
	}

	if opts.AvatarOnly {
		url, source, err := c.resolver.ResolveAvatar(ctx, opts.Hash)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "resolve: %v\n", err)
			return 1
		}
		if opts.JSONOutput {
			err = json.NewEncoder(opts.Stdout).Encode(map[string]string{"avatar_url": url, "source": string(source)})
		} else {
			_, err = fmt.Fprintln(opts.Stdout, url)
		}
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "resolve: %v\n", err)
			return 1
		}
		if source == resolver.SourceFallback {
			return ExitNotFound
		}
		return 0
	}

	profile, err := c.resolver.ResolveByHash(ctx, opts.Hash)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "resolve: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(profile); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "resolve: encode json: %v\n", err)
			return 1
		}
	} else {
		renderProfileHuman(opts.Stdout, profile)
	}
	if !profile.Found() {
		return ExitNotFound
	}
	return 0
}

func renderProfileHuman(w io.Writer, p resolver.DisplayProfile) {
	_, _ = fmt.Fprintf(w, "email:    %s\n", p.Email)
	_, _ = fmt.Fprintf(w, "avatar:   %s\n", p.AvatarURL)
	for _, field := range []struct{ label, value string }{
		{"name:     ", p.Name},
		{"bio:      ", p.Bio},
		{"location: ", p.Location},
		{"website:  ", p.Website},
	} {
		if field.value != "" {
			_, _ = fmt.Fprintf(w, "%s%s\n", field.label, field.value)
		}
	}
	_, _ = fmt.Fprintf(w, "source:   %s\n", p.Source)
}
