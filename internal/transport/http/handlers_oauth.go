package httptransport

import (
	"crypto/subtle"
	"net/http"

	"authbroker/internal/admintoken"
	"authbroker/internal/platform/config"
	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/httputil"
)

type tokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleIssueToken implements the password grant for the administrative API.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	if r.PostFormValue("grant_type") != "password" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unsupported grant type"))
		return
	}

	if !h.validCredentials(r.PostFormValue("username"), r.PostFormValue("password")) {
		h.logger.WarnContext(ctx, "token issuance refused - bad credentials")
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := h.tokens.Register(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue admin token", "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.TokensIssued.Inc()

	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		TokenType:   "bearer",
		AccessToken: token,
		ExpiresIn:   h.settings.GetInt(config.TokenTTL, admintoken.DefaultTTLSeconds),
	})
}

// validCredentials compares against the configured admin credentials in
// constant time. Unconfigured credentials disable issuance entirely.
func (h *Handler) validCredentials(username, password string) bool {
	wantUser := h.settings.Get(config.AdminUsername)
	wantPass := h.settings.Get(config.AdminPasswd)
	if wantUser == "" || wantPass == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	return userOK && passOK
}

// handleRevokeToken revokes the bearer token that authenticated this
// request. RequireAdmin has already verified it.
func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.tokens.Revoke(ctx, BearerToken(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke admin token", "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.TokensRevoked.Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleValidateBearer verifies an externally issued bearer token and
// returns its claims.
func (h *Handler) handleValidateBearer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := bearerFromHeader(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
		return
	}

	claims, err := h.verifier.ValidateToken(ctx, token)
	if err != nil {
		outcome := "invalid"
		if dErrors.HasCode(err, dErrors.CodeUpstream) {
			outcome = "upstream_error"
			h.logger.ErrorContext(ctx, "bearer validation failed upstream", "error", err)
		} else {
			h.logger.WarnContext(ctx, "bearer token rejected", "error", err)
		}
		h.metrics.TokenValidations.WithLabelValues(outcome).Inc()
		httputil.WriteError(w, err)
		return
	}

	h.metrics.TokenValidations.WithLabelValues("success").Inc()
	httputil.WriteJSON(w, http.StatusOK, claims)
}
