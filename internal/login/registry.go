package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"authbroker/internal/store"
	"authbroker/pkg/platform/sentinel"
)

// RequestRegistry persists pending login requests. Lookups are
// non-destructive because the request record is consulted by several parties
// during a login (status polls, SAML round trips).
type RequestRegistry struct {
	kv store.KeyValue
}

func NewRequestRegistry(kv store.KeyValue) *RequestRegistry {
	return &RequestRegistry{kv: kv}
}

func (r *RequestRegistry) Add(ctx context.Context, request Request) error {
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return r.kv.Add(ctx, request.ID, data)
}

// Find returns the request for the given id, or nil when the id is unknown
// or the record expired. Absence is a normal outcome, not an error.
func (r *RequestRegistry) Find(ctx context.Context, requestID string) (*Request, error) {
	data, err := r.kv.Get(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var request Request
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &request, nil
}

// ProfileRegistry persists resolved user profiles for at-most-once delivery.
// Take removes the record so a profile can never be replayed to a second
// poller.
type ProfileRegistry struct {
	kv store.KeyValue
}

func NewProfileRegistry(kv store.KeyValue) *ProfileRegistry {
	return &ProfileRegistry{kv: kv}
}

func (r *ProfileRegistry) Add(ctx context.Context, profile Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return r.kv.Add(ctx, profile.ID, data)
}

// Take destructively reads the profile for the given id, returning nil when
// no profile has arrived (or it was already taken).
func (r *ProfileRegistry) Take(ctx context.Context, requestID string) (*Profile, error) {
	data, err := r.kv.Take(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, nil
}
