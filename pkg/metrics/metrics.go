package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "storefront", Name: "auth_operations_total", Help: "Auth operations by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	RefreshReuse = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "storefront", Name: "auth_refresh_reuse_total", Help: "Refresh tokens presented after they were already rotated away."},
	)
	SessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "storefront", Name: "auth_sessions_revoked_total", Help: "Refresh tokens removed, by reason."},
		[]string{"reason"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "storefront", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "storefront", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthOperations)
	reg.MustRegister(RefreshReuse)
	reg.MustRegister(SessionsRevoked)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
