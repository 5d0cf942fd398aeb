// Package store provides the TTL-bound key/value store that correlates the
// two asynchronous halves of a login: the browser-redirected identity
// provider callback and the polling API client. Records are write-once and
// expire silently; a record that expired is indistinguishable from one that
// never existed.
package store

import (
	"context"

	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/sentinel"
)

var (
	// ErrNotFound keeps storage-specific misses consistent across the
	// in-memory and redis implementations.
	ErrNotFound = sentinel.ErrNotFound

	errEmptyKey = dErrors.New(dErrors.CodeInvariantViolation, "store: key must not be empty")
)

// KeyValue is the behavioral contract shared by both store implementations.
// The in-memory variant serves a single instance; the redis variant is shared
// across replicas and namespaced by record type.
//
// Take is a destructive read: once it returns a value to one caller, no
// subsequent Take or Get on the same key observes it. TTL refresh is not
// supported; records live exactly as long as the TTL set at construction.
type KeyValue interface {
	Add(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Take(ctx context.Context, key string) ([]byte, error)
}

func checkKey(key string) error {
	if key == "" {
		return errEmptyKey
	}
	return nil
}
