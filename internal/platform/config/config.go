// Package config provides string-keyed settings lookup for the service. The
// core never parses configuration files; it consumes this narrow interface
// and the boundary decides where values come from.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Setting names understood by the service.
const (
	SvcBaseURI       = "SVC_BASE_URI"
	Port             = "PORT"
	CertFile         = "CERT_FILE"
	KeyFile          = "KEY_FILE"
	RedisURL         = "REDIS_URL"
	AdminUsername    = "ADMIN_USERNAME"
	AdminPasswd      = "ADMIN_PASSWD"
	TokenTTL         = "TOKEN_TTL"
	LoginTimeout     = "LOGIN_TIMEOUT"
	ForceAuthn       = "FORCE_AUTHN"
	DefaultProtocol  = "DEFAULT_PROTOCOL"
	SamlNameIDField  = "SAML_NAMEID_FIELD"
	IdpConfFile      = "IDP_CONF_FILE"
	SamlAuthnContext = "SAML_AUTHN_CONTEXT"
	OAuthAudience    = "OAUTH_AUDIENCE"
	OAuthIssuer      = "OAUTH_ISSUER"
	OAuthAlgorithm   = "OAUTH_ALGORITHM"
	OAuthTenantID    = "OAUTH_TENANT_ID"
	OAuthJwksURI     = "OAUTH_JWKS_URI"
	OAuthJwksKeyID   = "OAUTH_JWKS_KEYID"
	OAuthSigningKey  = "OAUTH_SIGNING_KEY"
)

// Settings is the configuration lookup contract consumed by services.
type Settings interface {
	Get(name string) string
	GetBool(name string) bool
	GetInt(name string, fallback int) int
	Has(name string) bool
}

// Env reads settings from process environment variables.
type Env struct{}

func NewEnv() Env { return Env{} }

func (Env) Get(name string) string { return os.Getenv(name) }

func (Env) GetBool(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && v
}

func (Env) GetInt(name string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return fallback
	}
	return v
}

func (Env) Has(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

// Map serves settings from a plain map. Used in tests and anywhere a fixed
// set of values needs to masquerade as configuration.
type Map map[string]string

func (m Map) Get(name string) string { return m[name] }

func (m Map) GetBool(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(m[name]))
	return err == nil && v
}

func (m Map) GetInt(name string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(m[name]))
	if err != nil {
		return fallback
	}
	return v
}

func (m Map) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// BaseURI returns the configured service base URI with the documented
// development fallback.
func BaseURI(s Settings) string {
	if uri := s.Get(SvcBaseURI); uri != "" {
		return uri
	}
	return "https://localhost:3000"
}

// LoginWait returns how long the status endpoint waits for a profile.
func LoginWait(s Settings) time.Duration {
	return time.Duration(s.GetInt(LoginTimeout, 60)) * time.Second
}
