package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"authbroker/internal/login/service"
	"authbroker/internal/platform/config"
	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/httputil"
)

type newRequestResponse struct {
	Request    string `json:"request"`
	UserID     string `json:"userId"`
	ForceAuthn bool   `json:"forceAuthn"`
	LoginURL   string `json:"loginUrl"`
	BaseURL    string `json:"baseUrl"`
}

// handleNewRequest starts a login for the user named in the path and hands
// back the login URL the client should open in a browser.
func (h *Handler) handleNewRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")

	forceAuthn := h.settings.GetBool(config.ForceAuthn)
	if raw := r.URL.Query().Get("forceAuthn"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			forceAuthn = v
		}
	}

	request, err := h.correlator.StartRequest(ctx, userID, forceAuthn)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to start login request",
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.metrics.RequestsStarted.Inc()

	protocol := h.settings.Get(config.DefaultProtocol)
	if protocol == "" {
		protocol = "saml"
	}
	baseURL := config.BaseURI(h.settings)

	httputil.WriteJSON(w, http.StatusOK, newRequestResponse{
		Request:    request.ID,
		UserID:     request.UserID,
		ForceAuthn: request.ForceAuthn,
		LoginURL:   baseURL + "/" + protocol + "/login/" + request.ID,
		BaseURL:    baseURL,
	})
}

// handleRequestStatus blocks until the user profile arrives or the login
// wait elapses. Unknown requests 404 immediately rather than holding the
// connection open.
func (h *Handler) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "requestId")

	start := time.Now()
	profile, err := h.correlator.FindProfile(ctx, requestID, config.LoginWait(h.settings), service.DefaultInterval)
	h.metrics.PollDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			h.metrics.PollTimeouts.Inc()
			h.logger.InfoContext(ctx, "status poll timed out", "request_id", requestID)
		} else {
			h.logger.ErrorContext(ctx, "status poll failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	if profile == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "request not found"))
		return
	}

	h.metrics.ProfilesDelivered.Inc()
	httputil.WriteJSON(w, http.StatusOK, profile.Claims)
}
