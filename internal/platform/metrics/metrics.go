package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the broker.
type Metrics struct {
	RequestsStarted   prometheus.Counter
	ProfilesReceived  prometheus.Counter
	ProfilesDelivered prometheus.Counter
	PollTimeouts      prometheus.Counter
	TokensIssued      prometheus.Counter
	TokensRevoked     prometheus.Counter
	TokenValidations  *prometheus.CounterVec
	PollDuration      prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_login_requests_started_total",
			Help: "Total number of login requests started",
		}),
		ProfilesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_profiles_received_total",
			Help: "Total number of user profiles received from identity providers",
		}),
		ProfilesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_profiles_delivered_total",
			Help: "Total number of user profiles delivered to polling clients",
		}),
		PollTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_poll_timeouts_total",
			Help: "Total number of status polls that timed out",
		}),
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_admin_tokens_issued_total",
			Help: "Total number of admin bearer tokens issued",
		}),
		TokensRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authbroker_admin_tokens_revoked_total",
			Help: "Total number of admin bearer tokens revoked",
		}),
		TokenValidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authbroker_token_validations_total",
			Help: "Total number of external bearer token validations by outcome",
		}, []string{"outcome"}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "authbroker_poll_duration_seconds",
			Help:    "Time status polls spend waiting for a profile",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
