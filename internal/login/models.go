// Package login holds the correlation records that tie a login attempt's
// start to its eventual resolution.
package login

// Request is a pending login. The ID is the opaque correlation token handed
// to the client; everything else about the record is immutable after
// creation. Requests live only until consumed or expired.
type Request struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	ForceAuthn bool   `json:"forceAuthn"`
}

// Profile is a resolved user identity as returned by an identity provider.
// Claims has no fixed shape; different providers send different fields.
// A profile is consumed exactly once by a poller.
type Profile struct {
	ID     string         `json:"id"`
	Claims map[string]any `json:"claims"`
}
