package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ghlogin_login_attempts_total",
		Help: "Total number of device flow login attempts started",
	})
	// outcome is the terminal state of an attempt: authenticated, cancelled,
	// or the failure reason.
	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghlogin_login_outcomes_total",
		Help: "Total number of finished login attempts by outcome",
	}, []string{"outcome"})
	TokenPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghlogin_token_polls_total",
		Help: "Total number of token endpoint polls by result",
	}, []string{"result"})
	IdentityChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghlogin_identity_checks_total",
		Help: "Total number of user profile validations by result",
	}, []string{"result"})
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghlogin_store_errors_total",
		Help: "Total number of credential storage failures by operation",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(LoginAttempts)
	prometheus.MustRegister(LoginOutcomes)
	prometheus.MustRegister(TokenPolls)
	prometheus.MustRegister(IdentityChecks)
	prometheus.MustRegister(StoreErrors)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
