// Package webtoken parses the structure of a compact JSON web token without
// verifying it. Both self-issued admin tokens and externally issued OAuth
// tokens share this shape; only the verification policy applied afterwards
// differs, and that lives with the respective services.
package webtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	dErrors "authbroker/pkg/domain-errors"
)

// Token is the decoded structure of a compact JWT. The signature is kept as
// the raw segment; this package never verifies it.
type Token struct {
	Header    map[string]any
	Payload   map[string]any
	Signature string
}

// Audience returns the aud claim from the payload, or "" if absent. Only
// the single-string form is meaningful here: the admin token service issues
// exactly one audience per token.
func (t *Token) Audience() string {
	aud, _ := t.Payload["aud"].(string)
	return aud
}

// KeyID returns the kid from the header, or "" if absent.
func (t *Token) KeyID() string {
	kid, _ := t.Header["kid"].(string)
	return kid
}

// Parse breaks a compact token into its three dot-separated segments. The
// header and payload must each independently decode as JSON and the
// signature segment must be non-empty; anything less is a malformed token.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "token must be defined")
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid json web token")
	}
	if parts[2] == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "jwt signature is required")
	}

	header, err := decodeSegment(parts[0])
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "malformed json web token")
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "malformed json web token")
	}

	return &Token{Header: header, Payload: payload, Signature: parts[2]}, nil
}

func decodeSegment(segment string) (map[string]any, error) {
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
