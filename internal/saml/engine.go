// Package saml builds signed SAML responses for resolved profiles and
// validates inbound responses from service providers. The correlation id
// rides in the assertion's SessionIndex, which is the only field the SP is
// obliged to echo back.
package saml

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/google/uuid"

	"authbroker/internal/platform/config"
	dErrors "authbroker/pkg/domain-errors"
)

const signatureMethodRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"

// assertionValidity bounds how long a generated assertion may be replayed.
const assertionValidity = 5 * time.Minute

// Engine holds the signing credentials and configuration shared by all SAML
// operations.
type Engine struct {
	settings  config.Settings
	key       *rsa.PrivateKey
	cert      *x509.Certificate
	directory Directory
}

// NewEngine parses the PEM signing credentials and builds the engine. Key
// material is groomed first so exported blobs with bag attributes load
// cleanly.
func NewEngine(settings config.Settings, keyPEM, certPEM string, directory Directory) (*Engine, error) {
	key, err := parsePrivateKey(GroomKeyData(keyPEM))
	if err != nil {
		return nil, err
	}
	cert, err := parseCertificate(GroomKeyData(certPEM))
	if err != nil {
		return nil, err
	}
	return &Engine{
		settings:  settings,
		key:       key,
		cert:      cert,
		directory: directory,
	}, nil
}

// Directory exposes the service-provider directory for request validation.
func (e *Engine) Directory() Directory {
	return e.directory
}

// ResponseOptions identify the service provider a response is destined for.
type ResponseOptions struct {
	// Audience is the SP entity id placed in the audience restriction.
	Audience string
	// Recipient is the assertion consumer endpoint the response targets.
	Recipient string
}

// GenerateResponse builds a signed SAML response for the user, stamping the
// login request id into the assertion's SessionIndex. The user must already
// carry a nameID; the signer cannot synthesize a subject.
func (e *Engine) GenerateResponse(user map[string]any, opts ResponseOptions, requestID string) (string, error) {
	nameID := stringClaim(user, "nameID")
	if nameID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "user nameID must be defined")
	}
	if opts.Recipient == "" {
		return "", dErrors.New(dErrors.CodeValidation, "recipient must be defined")
	}

	issuerURL, err := url.Parse(config.BaseURI(e.settings))
	if err != nil {
		return "", fmt.Errorf("parse service base URI: %w", err)
	}

	idp := &saml.IdentityProvider{
		Key:             e.key,
		Certificate:     e.cert,
		MetadataURL:     *issuerURL,
		SSOURL:          *issuerURL,
		SignatureMethod: signatureMethodRSASHA256,
	}

	now := time.Now()
	session := saml.Session{
		ID:             uuid.NewString(),
		CreateTime:     now,
		ExpireTime:     now.Add(assertionValidity),
		Index:          requestID,
		NameID:         nameID,
		UserName:       firstClaim(user, "sub", "nameID"),
		UserEmail:      stringClaim(user, "email"),
		UserCommonName: displayName(user),
		UserGivenName:  givenName(user),
		UserSurname:    familyName(user),
	}

	req := &saml.IdpAuthnRequest{
		IDP:         idp,
		HTTPRequest: &http.Request{},
		Now:         now,
		ServiceProviderMetadata: &saml.EntityDescriptor{
			EntityID: opts.Audience,
		},
		ACSEndpoint: &saml.IndexedEndpoint{
			Binding:  saml.HTTPPostBinding,
			Location: opts.Recipient,
			Index:    1,
		},
	}

	maker := saml.DefaultAssertionMaker{}
	if err := maker.MakeAssertion(req, &session); err != nil {
		return "", fmt.Errorf("build assertion: %w", err)
	}
	e.customizeAssertion(req.Assertion, user)
	if err := req.MakeResponse(); err != nil {
		return "", fmt.Errorf("sign response: %w", err)
	}

	doc := etree.NewDocument()
	doc.SetRoot(req.ResponseEl)
	response, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize response: %w", err)
	}
	return response, nil
}

// customizeAssertion applies the subject format from the user record and the
// configured authn context, both of which the stock assertion maker fixes to
// defaults.
func (e *Engine) customizeAssertion(assertion *saml.Assertion, user map[string]any) {
	if format := stringClaim(user, "nameIDFormat"); format != "" {
		if assertion.Subject != nil && assertion.Subject.NameID != nil {
			assertion.Subject.NameID.Format = format
		}
	}
	contexts := ResolveAuthnContext(e.settings.Get(config.SamlAuthnContext))
	if len(contexts) == 0 {
		return
	}
	for i := range assertion.AuthnStatements {
		assertion.AuthnStatements[i].AuthnContext = saml.AuthnContext{
			AuthnContextClassRef: &saml.AuthnContextClassRef{Value: contexts[0]},
		}
	}
}

// ValidateOptions carry the trust material for an inbound SAML response.
type ValidateOptions struct {
	// SPEntityID is our entity id, checked against the audience restriction.
	SPEntityID string
	// ACSURL is the consumer endpoint the response must be destined for.
	ACSURL string
	// IssuerEntityID is the expected assertion issuer.
	IssuerEntityID string
	// Certificate is the issuer's signing certificate in PEM or bare base64.
	Certificate string
}

// ValidatedResponse is the outcome of a successful response validation.
type ValidatedResponse struct {
	// Profile holds the subject and assertion attributes as claims.
	Profile map[string]any
	// RequestID is the correlation id recovered from the SessionIndex.
	RequestID string
}

// ValidateResponse verifies a base64-encoded SAML response against the
// supplied trust options and recovers the user profile plus the original
// login request id.
func (e *Engine) ValidateResponse(opts ValidateOptions, samlResponse string) (*ValidatedResponse, error) {
	if samlResponse == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "SAMLResponse must be defined")
	}
	if opts.Certificate == "" {
		// Trust our own signing certificate: the common case is validating a
		// response this engine issued.
		opts.Certificate = base64.StdEncoding.EncodeToString(e.cert.Raw)
	}
	if opts.IssuerEntityID == "" {
		opts.IssuerEntityID = config.BaseURI(e.settings)
	}
	decoded, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "decode SAMLResponse")
	}

	acsURL, err := url.Parse(opts.ACSURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "parse ACS URL")
	}

	sp := saml.ServiceProvider{
		EntityID:          opts.SPEntityID,
		AcsURL:            *acsURL,
		IDPMetadata:       trustedIDPMetadata(opts.IssuerEntityID, opts.Certificate),
		AllowIDPInitiated: true,
	}

	assertion, err := sp.ParseXMLResponse(decoded, nil, sp.AcsURL)
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) {
			err = invalid.PrivateErr
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "validate SAML response")
	}

	profile := profileFromAssertion(assertion)
	requestID := ""
	for _, statement := range assertion.AuthnStatements {
		if statement.SessionIndex != "" {
			requestID = statement.SessionIndex
			break
		}
	}
	return &ValidatedResponse{Profile: profile, RequestID: requestID}, nil
}

// trustedIDPMetadata builds the minimal IdP descriptor needed to verify
// signatures from the given issuer.
func trustedIDPMetadata(entityID, certificate string) *saml.EntityDescriptor {
	return &saml.EntityDescriptor{
		EntityID: entityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				RoleDescriptor: saml.RoleDescriptor{
					KeyDescriptors: []saml.KeyDescriptor{{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{
									{Data: MassageCertificate(certificate)},
								},
							},
						},
					}},
				},
			},
		}},
	}
}

func profileFromAssertion(assertion *saml.Assertion) map[string]any {
	profile := make(map[string]any)
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		profile["nameID"] = assertion.Subject.NameID.Value
		if assertion.Subject.NameID.Format != "" {
			profile["nameIDFormat"] = assertion.Subject.NameID.Format
		}
	}
	for _, statement := range assertion.AttributeStatements {
		for _, attribute := range statement.Attributes {
			name := attribute.FriendlyName
			if name == "" {
				name = attribute.Name
			}
			var values []string
			for _, value := range attribute.Values {
				values = append(values, value.Value)
			}
			switch len(values) {
			case 0:
			case 1:
				profile[name] = values[0]
			default:
				profile[name] = values
			}
		}
	}
	return profile
}

func parsePrivateKey(groomed string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(groomed))
	if block == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse signing key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key must be RSA")
	}
	return key, nil
}

func parseCertificate(groomed string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(groomed))
	if block == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse certificate")
	}
	return cert, nil
}

// displayName prefers an explicit full name, falling back to the name parts.
func displayName(user map[string]any) string {
	if name := firstClaim(user, "fullname", "name"); name != "" {
		return name
	}
	return strings.TrimSpace(stringClaim(user, "given_name") + " " + stringClaim(user, "family_name"))
}

func givenName(user map[string]any) string {
	if given := stringClaim(user, "given_name"); given != "" {
		return given
	}
	if name := firstClaim(user, "fullname", "name"); name != "" {
		if first, _, found := strings.Cut(name, " "); found {
			return first
		}
		return name
	}
	return ""
}

func familyName(user map[string]any) string {
	if family := stringClaim(user, "family_name"); family != "" {
		return family
	}
	if name := firstClaim(user, "fullname", "name"); name != "" {
		if _, rest, found := strings.Cut(name, " "); found {
			return rest
		}
	}
	return ""
}

func firstClaim(claims map[string]any, names ...string) string {
	for _, name := range names {
		if v := stringClaim(claims, name); v != "" {
			return v
		}
	}
	return ""
}
