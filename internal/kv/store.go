// Package kv is the durable string key-value surface the profile store and
// cookie sessions persist to. Every driver offers the same synchronous
// get/set/delete contract plus an all-or-nothing multi-key write.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kv: store closed")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("kv: unknown driver")
)

// Entry is a single write in a SetMany batch. A zero TTL never expires.
type Entry struct {
	Key   string
	Value string
	TTL   time.Duration
}

// Store is a string-keyed key-value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key without expiry.
	Set(ctx context.Context, key, value string) error
	// SetWithTTL stores value under key for ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// SetMany applies all entries or none of them.
	SetMany(ctx context.Context, entries ...Entry) error
	Close() error
}

func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl).UTC()
	return &at
}
