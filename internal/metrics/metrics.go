package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agenda"

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo is always 1; the build metadata lives in the labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Auth metrics
var (
	// LoginAttemptsTotal counts login requests by outcome:
	// success, invalid_credentials, invalid_request, rate_limited, error.
	LoginAttemptsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_login_attempts_total",
			Help:      "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// TokenVerificationsTotal counts session checks: valid, rejected, error.
	TokenVerificationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_token_verifications_total",
			Help:      "Total number of session token verifications by result",
		},
		[]string{"result"},
	)

	// RegistrationsTotal counts register requests: created, conflict,
	// forbidden, invalid, error.
	RegistrationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_registrations_total",
			Help:      "Total number of account registrations by result",
		},
		[]string{"result"},
	)

	// AuthorizationDenialsTotal counts 403 responses per resource.
	AuthorizationDenialsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_authorization_denials_total",
			Help:      "Total number of requests denied by role checks",
		},
		[]string{"resource"},
	)
)

// Init registers the runtime collectors and records build metadata. Call it
// once at startup.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
