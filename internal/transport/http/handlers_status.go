package httptransport

import (
	"net/http"

	"authbroker/pkg/platform/httputil"
)

// handleStatus reports liveness. When the distributed store is configured
// the redis connection is probed; a failure degrades the report rather than
// crashing the endpoint.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "store": "memory"}
	if h.redis != nil {
		body["store"] = "redis"
		if err := h.redis.Health(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "redis health check failed", "error", err)
			body["status"] = "error"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}
