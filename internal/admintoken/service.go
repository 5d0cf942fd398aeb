// Package admintoken issues and verifies the service's self-issued bearer
// tokens. Each token carries a unique audience that doubles as the lookup key
// for its per-token signing secret; revocation simply discards the secret.
package admintoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authbroker/internal/platform/config"
	"authbroker/internal/store"
	"authbroker/internal/webtoken"
	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/sentinel"
)

// DefaultTTLSeconds is the token lifetime when TOKEN_TTL is unset.
const DefaultTTLSeconds = 3600

// Service mints, verifies, and revokes admin web tokens. Secrets are kept in
// the backing store keyed by audience, so a token outlives neither its TTL
// nor an explicit revocation.
type Service struct {
	secrets  store.KeyValue
	settings config.Settings
}

func New(secrets store.KeyValue, settings config.Settings) *Service {
	return &Service{secrets: secrets, settings: settings}
}

// Register creates a new signed token. The signing secret is generated per
// token and persisted before the token is returned, so a caller can never
// hold a token whose secret is not yet verifiable.
func (s *Service) Register(ctx context.Context) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate token secret")
	}
	secret := hex.EncodeToString(buf)
	audience := uuid.NewString()

	ttl := time.Duration(s.settings.GetInt(config.TokenTTL, DefaultTTLSeconds)) * time.Second
	now := time.Now()
	claims := jwt.MapClaims{
		"aud": audience,
		"iss": config.BaseURI(s.settings),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign admin token")
	}
	if err := s.secrets.Add(ctx, audience, []byte(secret)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "store token secret")
	}
	return signed, nil
}

// Verify checks the token signature and claims against the stored secret for
// its audience. Unknown audiences and expired tokens both resolve to nil
// without error: the caller treats either as "not authenticated" rather than
// a fault. Any other verification failure is reported.
func (s *Service) Verify(ctx context.Context, raw string) (map[string]any, error) {
	parsed, err := webtoken.Parse(raw)
	if err != nil {
		return nil, err
	}
	audience := parsed.Audience()
	if audience == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token audience must be defined")
	}

	secret, err := s.secrets.Get(ctx, audience)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up token secret")
	}

	token, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(config.BaseURI(s.settings)),
		jwt.WithExpirationRequired(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "verify admin token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected token claims")
	}
	return claims, nil
}

// Revoke discards the secret for the token's audience. Revoking an unknown
// or already revoked token is a no-op.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	parsed, err := webtoken.Parse(raw)
	if err != nil {
		return err
	}
	audience := parsed.Audience()
	if audience == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token audience must be defined")
	}
	if _, err := s.secrets.Take(ctx, audience); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "discard token secret")
	}
	return nil
}
