package httptransport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"authbroker/internal/admintoken"
	"authbroker/internal/login"
	"authbroker/internal/login/service"
	"authbroker/internal/oauth"
	"authbroker/internal/platform/config"
	"authbroker/internal/platform/metrics"
	"authbroker/internal/saml"
	"authbroker/internal/store"
)

// Metrics register against the default prometheus registry, so the test
// binary shares one instance.
var testMetrics = metrics.New()

const (
	testAudience  = "urn:swarm:sp"
	testRecipient = "https://swarm.example.com/api/v10/session"
)

type HandlerSuite struct {
	suite.Suite
	settings   config.Map
	requests   *store.Memory
	profiles   *store.Memory
	secrets    *store.Memory
	correlator *service.Correlator
	server     *httptest.Server
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.settings = config.Map{
		config.SvcBaseURI:      "https://auth.example.com",
		config.AdminUsername:   "scott",
		config.AdminPasswd:     "tiger",
		config.LoginTimeout:    "1",
		config.OAuthSigningKey: "oauth-shared-secret",
		config.OAuthAlgorithm:  "HS256",
	}
	s.requests = store.NewMemory(10 * time.Minute)
	s.profiles = store.NewMemory(time.Hour)
	s.secrets = store.NewMemory(time.Hour)

	s.correlator = service.New(
		login.NewRequestRegistry(s.requests),
		login.NewProfileRegistry(s.profiles),
	)
	tokens := admintoken.New(s.secrets, s.settings)

	verifier, err := oauth.New(context.Background(), s.settings)
	s.Require().NoError(err)

	keyPEM, certPEM := s.signingCredentials()
	engine, err := saml.NewEngine(s.settings, keyPEM, certPEM, saml.Directory{
		testAudience: {ACSURL: testRecipient},
	})
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, s.settings, s.correlator, engine, verifier, tokens, nil, testMetrics)
	s.server = httptest.NewServer(handler.Router())
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
	s.requests.Close()
	s.profiles.Close()
	s.secrets.Close()
}

func (s *HandlerSuite) signingCredentials() (string, string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "auth.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	s.Require().NoError(err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	certPEM := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}))
	return keyPEM, certPEM
}

func (s *HandlerSuite) getJSON(path string, out any) *http.Response {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *HandlerSuite) TestNewRequest() {
	var body newRequestResponse
	resp := s.getJSON("/requests/new/joe@example.com", &body)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("joe@example.com", body.UserID)
	s.NotEmpty(body.Request)
	s.Equal("https://auth.example.com", body.BaseURL)
	s.Equal("https://auth.example.com/saml/login/"+body.Request, body.LoginURL)
	s.False(body.ForceAuthn)

	s.Run("forceAuthn query overrides the setting", func() {
		var forced newRequestResponse
		resp := s.getJSON("/requests/new/joe@example.com?forceAuthn=true", &forced)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.True(forced.ForceAuthn)
	})
}

func (s *HandlerSuite) TestRequestStatus() {
	s.Run("unknown request is 404", func() {
		resp := s.getJSON("/requests/status/never-created", nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("delivered profile is 200", func() {
		request, err := s.correlator.StartRequest(context.Background(), "joe", false)
		s.Require().NoError(err)

		go func() {
			time.Sleep(100 * time.Millisecond)
			_, _ = s.correlator.ReceiveProfile(context.Background(), request.ID, "joe",
				map[string]any{"email": "joe@example.com"})
		}()

		var claims map[string]any
		resp := s.getJSON("/requests/status/"+request.ID, &claims)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("joe@example.com", claims["email"])
	})

	s.Run("missing profile is 408 after the login wait", func() {
		request, err := s.correlator.StartRequest(context.Background(), "joe", false)
		s.Require().NoError(err)

		resp := s.getJSON("/requests/status/"+request.ID, nil)
		s.Equal(http.StatusRequestTimeout, resp.StatusCode)
	})
}

func (s *HandlerSuite) issueToken() string {
	resp, err := http.PostForm(s.server.URL+"/oauth/tokens", url.Values{
		"grant_type": {"password"},
		"username":   {"scott"},
		"password":   {"tiger"},
	})
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body tokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal("bearer", body.TokenType)
	s.Positive(body.ExpiresIn)
	return body.AccessToken
}

func (s *HandlerSuite) TestIssueToken() {
	s.Run("valid credentials yield a bearer token", func() {
		s.NotEmpty(s.issueToken())
	})

	s.Run("wrong grant type is 400", func() {
		resp, err := http.PostForm(s.server.URL+"/oauth/tokens", url.Values{
			"grant_type": {"client_credentials"},
		})
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("bad credentials are 401", func() {
		resp, err := http.PostForm(s.server.URL+"/oauth/tokens", url.Values{
			"grant_type": {"password"},
			"username":   {"scott"},
			"password":   {"wrong"},
		})
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *HandlerSuite) deleteTokens(token string) int {
	req, err := http.NewRequest(http.MethodDelete, s.server.URL+"/oauth/tokens", nil)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	return resp.StatusCode
}

func (s *HandlerSuite) TestRevokeToken() {
	token := s.issueToken()

	s.Run("missing bearer token is 401", func() {
		s.Equal(http.StatusUnauthorized, s.deleteTokens(""))
	})

	s.Run("valid token revokes itself", func() {
		s.Equal(http.StatusOK, s.deleteTokens(token))
	})

	s.Run("revoked token no longer authenticates", func() {
		s.Equal(http.StatusUnauthorized, s.deleteTokens(token))
	})
}

func (s *HandlerSuite) TestValidateBearer() {
	validate := func(token string) (*http.Response, map[string]any) {
		req, err := http.NewRequest(http.MethodGet, s.server.URL+"/oauth/validate", nil)
		s.Require().NoError(err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp, body
	}

	s.Run("valid token yields its claims", func() {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "joe@example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("oauth-shared-secret"))
		s.Require().NoError(err)

		resp, claims := validate(raw)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("joe@example.com", claims["sub"])
	})

	s.Run("forged token is 401", func() {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "eve",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("some-other-secret"))
		s.Require().NoError(err)

		resp, _ := validate(raw)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("missing token is 401", func() {
		resp, _ := validate("")
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *HandlerSuite) TestSamlValidate() {
	keyPEM, certPEM := s.signingCredentials()
	engine, err := saml.NewEngine(s.settings, keyPEM, certPEM, saml.Directory{
		testAudience: {ACSURL: testRecipient},
	})
	s.Require().NoError(err)

	// The handler validates against its own engine, so rebuild the server
	// around this one to share the signing certificate.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier, err := oauth.New(context.Background(), s.settings)
	s.Require().NoError(err)
	tokens := admintoken.New(s.secrets, s.settings)
	handler := NewHandler(logger, s.settings, s.correlator, engine, verifier, tokens, nil, testMetrics)
	s.server.Close()
	s.server = httptest.NewServer(handler.Router())

	request, err := s.correlator.StartRequest(context.Background(), "joe@example.com", false)
	s.Require().NoError(err)

	response, err := engine.GenerateResponse(map[string]any{
		"nameID": "joe@example.com",
		"email":  "joe@example.com",
	}, saml.ResponseOptions{Audience: testAudience, Recipient: testRecipient}, request.ID)
	s.Require().NoError(err)

	s.Run("valid response yields profile and request id", func() {
		resp, err := http.PostForm(s.server.URL+"/saml/validate", url.Values{
			"audience":     {testAudience},
			"recipient":    {testRecipient},
			"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(response))},
		})
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var body samlValidateResponse
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
		s.Equal(request.ID, body.RequestID)
		s.Equal("joe@example.com", body.Profile["nameID"])
	})

	s.Run("validated profile resolves a status poll", func() {
		var claims map[string]any
		resp := s.getJSON("/requests/status/"+request.ID, &claims)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("joe@example.com", claims["nameID"])
	})

	s.Run("unlisted audience is 403", func() {
		resp, err := http.PostForm(s.server.URL+"/saml/validate", url.Values{
			"audience":     {"urn:unknown:sp"},
			"recipient":    {testRecipient},
			"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(response))},
		})
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})

	s.Run("garbage response is rejected", func() {
		resp, err := http.PostForm(s.server.URL+"/saml/validate", url.Values{
			"audience":     {testAudience},
			"recipient":    {testRecipient},
			"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte("<Response>nope</Response>"))},
		})
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *HandlerSuite) TestStatus() {
	var body map[string]string
	resp := s.getJSON("/status", &body)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
	s.Equal("memory", body["store"])
}
