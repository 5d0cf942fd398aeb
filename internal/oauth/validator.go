// Package oauth validates externally issued bearer tokens against the
// configured identity provider. The signing key comes from either a static
// configured key or a cached JWKS lookup keyed by the token's kid.
package oauth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"authbroker/internal/platform/config"
	dErrors "authbroker/pkg/domain-errors"
)

// DefaultAlgorithm is assumed when OAUTH_ALGORITHM is unset.
const DefaultAlgorithm = "RS256"

// Validator verifies OAuth/OIDC bearer tokens. The JWKS cache auto-refreshes
// in the background once the URI has been registered.
type Validator struct {
	settings config.Settings
	jwksURL  string

	cache *jwk.Cache

	registrationMu  sync.Mutex
	registered      bool
	registrationErr error
}

// New builds a validator from configuration. The JWKS cache is only created
// when a JWKS URI is configured and no static key overrides it.
func New(ctx context.Context, settings config.Settings) (*Validator, error) {
	v := &Validator{
		settings: settings,
		jwksURL:  settings.Get(config.OAuthJwksURI),
	}
	if v.jwksURL != "" && settings.Get(config.OAuthSigningKey) == "" {
		cache, err := jwk.NewCache(ctx, httprc.NewClient())
		if err != nil {
			return nil, fmt.Errorf("create JWKS cache: %w", err)
		}
		v.cache = cache
	}
	return v, nil
}

func (v *Validator) algorithm() string {
	if alg := v.settings.Get(config.OAuthAlgorithm); alg != "" {
		return alg
	}
	return DefaultAlgorithm
}

// ValidateToken verifies signature, algorithm, audience, and issuer in one
// pass, plus the tenant claim when one is configured. Every failure is hard:
// there is no partial-success state.
func (v *Validator) ValidateToken(ctx context.Context, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "token must be defined")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{v.algorithm()})}
	if aud := v.settings.Get(config.OAuthAudience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	if iss := v.settings.Get(config.OAuthIssuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}

	token, err := jwt.Parse(raw, v.resolveKey(ctx), opts...)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUpstream) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "verify bearer token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected token claims")
	}

	if tenant := v.settings.Get(config.OAuthTenantID); tenant != "" {
		tid, _ := claims["tid"].(string)
		if tid != tenant {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token tenant mismatch")
		}
	}
	return claims, nil
}

// resolveKey returns the keyfunc for jwt.Parse: a static configured key when
// present, otherwise a JWKS lookup by key id.
func (v *Validator) resolveKey(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if configured := v.settings.Get(config.OAuthSigningKey); configured != "" {
			return v.staticKey(configured)
		}
		return v.remoteKey(ctx, token)
	}
}

// staticKey interprets the configured key material according to the allowed
// algorithm: PEM public key for asymmetric schemes, shared secret otherwise.
func (v *Validator) staticKey(material string) (any, error) {
	alg := v.algorithm()
	switch {
	case strings.HasPrefix(alg, "HS"):
		return []byte(material), nil
	case strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS"):
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(material))
		if err != nil {
			return nil, fmt.Errorf("parse configured signing key: %w", err)
		}
		return key, nil
	case strings.HasPrefix(alg, "ES"):
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(material))
		if err != nil {
			return nil, fmt.Errorf("parse configured signing key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

func (v *Validator) remoteKey(ctx context.Context, token *jwt.Token) (any, error) {
	if v.cache == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no signing key or JWKS URI configured")
	}

	kid := v.settings.Get(config.OAuthJwksKeyID)
	if kid == "" {
		kid, _ = token.Header["kid"].(string)
	}
	if kid == "" {
		return nil, fmt.Errorf("cannot determine signing key id")
	}

	if err := v.ensureRegistered(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "register JWKS endpoint")
	}
	keySet, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "fetch signing keys")
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key id %q not present in JWKS", kid)
	}
	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("export signing key: %w", err)
	}
	return rawKey, nil
}

// ensureRegistered registers the JWKS URL with the cache exactly once.
func (v *Validator) ensureRegistered(ctx context.Context) error {
	v.registrationMu.Lock()
	defer v.registrationMu.Unlock()

	if v.registered {
		return v.registrationErr
	}
	v.registrationErr = v.cache.Register(ctx, v.jwksURL)
	v.registered = true
	return v.registrationErr
}
