package httptransport

import (
	"net/http"

	"authbroker/internal/saml"
	dErrors "authbroker/pkg/domain-errors"
	"authbroker/pkg/platform/httputil"
)

type samlValidateResponse struct {
	Profile   map[string]any `json:"profile"`
	RequestID string         `json:"requestId"`
}

// handleSamlValidate verifies a SAML response posted back by a service
// provider. The caller identifies itself by audience and recipient, which
// must be permitted by the provider directory before any signature work.
func (h *Handler) handleSamlValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form body"))
		return
	}

	audience := r.PostFormValue("audience")
	recipient := r.PostFormValue("recipient")
	if !h.engine.Directory().ValidateRequest(audience, recipient) {
		h.logger.WarnContext(ctx, "saml validation refused",
			"audience", audience,
			"recipient", recipient,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "audience or recipient not permitted"))
		return
	}

	validated, err := h.engine.ValidateResponse(saml.ValidateOptions{
		SPEntityID: audience,
		ACSURL:     recipient,
	}, r.PostFormValue("SAMLResponse"))
	if err != nil {
		h.logger.WarnContext(ctx, "saml response rejected",
			"audience", audience,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	// Hand the profile to the correlator so a poller blocked on the request
	// id resolves. Delivery failures degrade to validation-only: the SP still
	// gets its answer.
	if validated.RequestID != "" {
		userID, _ := validated.Profile["nameID"].(string)
		if _, err := h.correlator.ReceiveProfile(ctx, validated.RequestID, userID, validated.Profile); err != nil {
			h.logger.WarnContext(ctx, "failed to deliver validated profile",
				"request_id", validated.RequestID,
				"error", err,
			)
		} else {
			h.metrics.ProfilesReceived.Inc()
		}
	}

	httputil.WriteJSON(w, http.StatusOK, samlValidateResponse{
		Profile:   validated.Profile,
		RequestID: validated.RequestID,
	})
}
