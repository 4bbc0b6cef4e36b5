package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashavatar/hashavatar/internal/identity"
)

// HashOptions defines available flags for the hash command.
type HashOptions struct {
	Email      string
	BaseURL    string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// HashSummary is the JSON output of the hash command.
type HashSummary struct {
	Email      string `json:"email"`
	Normalized string `json:"normalized"`
	Hash       string `json:"hash"`
	ImageURL   string `json:"image_url"`
	ProfileURL string `json:"profile_url"`
}

// HashCommand prints the identity hash of an email and its public URLs.
func HashCommand(opts HashOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Email) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "hash: an email is required")
		return 1
	}
	summary := HashSummary{
		Email:      opts.Email,
		Normalized: identity.Normalize(opts.Email),
		Hash:       identity.Hash(opts.Email),
		ImageURL:   identity.ProfileImageURL(opts.BaseURL, opts.Email),
		ProfileURL: identity.ProfileURL(opts.BaseURL, opts.Email),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "hash: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stdout, summary.Hash)
	_, _ = fmt.Fprintf(opts.Stdout, "image:   %s\n", summary.ImageURL)
	_, _ = fmt.Fprintf(opts.Stdout, "profile: %s\n", summary.ProfileURL)
	return 0
}
