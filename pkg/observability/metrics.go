package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome label values for LoginAttemptsTotal
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeConflict           = "conflict"
	OutcomeError              = "error"
)

// Token verification result label values for TokenVerificationsTotal
const (
	TokenResultValid        = "valid"
	TokenResultMalformed    = "malformed"
	TokenResultBadSignature = "bad_signature"
	TokenResultExpired      = "expired"
	TokenResultWrongKind    = "wrong_kind"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Login metrics
	LoginAttemptsTotal *prometheus.CounterVec
	LockoutsTotal      *prometheus.CounterVec
	ForcedLoginsTotal  *prometheus.CounterVec

	// Token metrics
	TokenVerificationsTotal *prometheus.CounterVec

	// Permission metrics
	PermissionDenialsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_login_attempts_total",
				Help: "Total number of login attempts by principal kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		LockoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_account_lockouts_total",
				Help: "Total number of accounts locked after repeated failures",
			},
			[]string{"kind"},
		),
		ForcedLoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_forced_logins_total",
				Help: "Total number of logins that evicted an existing session",
			},
			[]string{"kind"},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_token_verifications_total",
				Help: "Total number of token verifications by result",
			},
			[]string{"result"},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permission_denials_total",
				Help: "Total number of permission check denials by permission code",
			},
			[]string{"code"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.LockoutsTotal,
		m.ForcedLoginsTotal,
		m.TokenVerificationsTotal,
		m.PermissionDenialsTotal,
	)

	return m
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NopMetrics returns metrics backed by a throwaway registry, for tests and
// callers that disable metrics collection.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
