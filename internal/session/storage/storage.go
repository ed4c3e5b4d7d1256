// Package storage provides the durable key/value backends that keep the
// session across process restarts.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

// Keys under which the session store persists its two entries.
const (
	KeyUser  = "user"
	KeyToken = "token"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a small durable key/value store.
type Storage interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
