// Package service implements the login correlator: it bridges the
// asynchronous identity-provider callback and the synchronous polling client
// through the request and profile registries.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"authbroker/internal/login"
	dErrors "authbroker/pkg/domain-errors"
)

const (
	// DefaultTimeout bounds how long a single FindProfile call waits.
	DefaultTimeout = 10 * time.Second
	// DefaultInterval is the cadence at which a waiting poll re-checks.
	DefaultInterval = time.Second
)

// Correlator orchestrates request creation, profile delivery, and the
// poll-with-timeout retrieval protocol.
type Correlator struct {
	requests *login.RequestRegistry
	profiles *login.ProfileRegistry
}

func New(requests *login.RequestRegistry, profiles *login.ProfileRegistry) *Correlator {
	return &Correlator{
		requests: requests,
		profiles: profiles,
	}
}

// newRequestID returns a 128-bit random correlation token in URL-safe
// encoding. Ids must not be attacker-predictable; the token is the only
// credential tying a poller to a login.
func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; treat failure as fatal.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// StartRequest begins a login for the given user identifier and returns the
// immutable request record containing the fresh correlation id.
func (c *Correlator) StartRequest(ctx context.Context, userID string, forceAuthn bool) (*login.Request, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user identifier must be defined")
	}
	request := login.Request{
		ID:         newRequestID(),
		UserID:     userID,
		ForceAuthn: forceAuthn,
	}
	if err := c.requests.Add(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store login request")
	}
	return &request, nil
}

// FindRequest is a non-destructive lookup. Unknown, expired, and empty ids
// all yield nil without an error.
func (c *Correlator) FindRequest(ctx context.Context, requestID string) (*login.Request, error) {
	if requestID == "" {
		return nil, nil
	}
	return c.requests.Find(ctx, requestID)
}

// ReceiveProfile stores the resolved user profile under the request id. It
// deliberately does not check that a matching request still exists; callers
// on the IdP callback path perform that check before waiting so they can
// fail fast.
func (c *Correlator) ReceiveProfile(ctx context.Context, requestID, userID string, claims map[string]any) (*login.Profile, error) {
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "request identifier must be defined")
	}
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user identifier must be defined")
	}
	if claims == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "user profile must be defined")
	}
	profile := login.Profile{ID: requestID, Claims: claims}
	if err := c.profiles.Add(ctx, profile); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store user profile")
	}
	return &profile, nil
}

// FindProfile retrieves the profile for the given request, waiting up to
// timeout for it to arrive. The profile is taken destructively so it is
// delivered at most once.
//
// Returns (nil, nil) immediately when the request id is unknown: there is no
// point waiting for a profile that can never be matched. Returns a
// CodeTimeout error when the wait window elapses; the underlying profile
// record is left untouched, so a retried poll may still succeed later.
func (c *Correlator) FindProfile(ctx context.Context, requestID string, timeout, interval time.Duration) (*login.Profile, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	request, err := c.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, nil
	}

	// Immediate attempt: resolve without waiting when the profile already
	// arrived.
	profile, err := c.profiles.Take(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "wait for user profile cancelled")
		case <-timer.C:
			return nil, dErrors.New(dErrors.CodeTimeout, "timeout waiting for user profile")
		case <-ticker.C:
			profile, err := c.profiles.Take(ctx, requestID)
			if err != nil {
				return nil, err
			}
			if profile != nil {
				return profile, nil
			}
		}
	}
}
