// Package httptransport is the HTTP boundary of the broker. Handlers decode
// requests, delegate to the domain services, and translate typed failures
// into status codes; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authbroker/internal/admintoken"
	"authbroker/internal/login/service"
	"authbroker/internal/oauth"
	"authbroker/internal/platform/config"
	"authbroker/internal/platform/metrics"
	"authbroker/internal/platform/redis"
	"authbroker/internal/saml"
)

// Handler carries the wired services consumed by the route handlers.
type Handler struct {
	logger     *slog.Logger
	settings   config.Settings
	correlator *service.Correlator
	engine     *saml.Engine
	verifier   *oauth.Validator
	tokens     *admintoken.Service
	redis      *redis.Client
	metrics    *metrics.Metrics
}

func NewHandler(
	logger *slog.Logger,
	settings config.Settings,
	correlator *service.Correlator,
	engine *saml.Engine,
	verifier *oauth.Validator,
	tokens *admintoken.Service,
	redisClient *redis.Client,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		logger:     logger,
		settings:   settings,
		correlator: correlator,
		engine:     engine,
		verifier:   verifier,
		tokens:     tokens,
		redis:      redisClient,
		metrics:    m,
	}
}

// Router builds the chi router for all public endpoints. The status poll can
// legitimately block for the full login wait, so the request timeout leaves
// headroom beyond it.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.LoginWait(h.settings) + 10*time.Second))
	r.Use(requestLogger(h.logger))

	r.Get("/requests/new/{userId}", h.handleNewRequest)
	r.Get("/requests/status/{requestId}", h.handleRequestStatus)

	r.Post("/saml/validate", h.handleSamlValidate)

	r.Route("/oauth", func(r chi.Router) {
		r.Post("/tokens", h.handleIssueToken)
		r.With(RequireAdmin(h.tokens, h.logger)).Delete("/tokens", h.handleRevokeToken)
		r.Get("/validate", h.handleValidateBearer)
	})

	r.Get("/status", h.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// requestLogger emits one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
