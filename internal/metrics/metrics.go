// Package metrics holds the Prometheus collectors for credential
// issuance. Collectors are usable before registration so packages can
// record without caring whether /metrics is served.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Grants counts token grants by grant type and result. Result is
	// "success" or the OAuth/session error code.
	Grants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "txmon_auth_grants_total",
		Help: "Token grants by grant type and result",
	}, []string{"grant", "result"})

	// RefreshReuse counts refresh attempts that lost the race for a
	// token another caller already spent.
	RefreshReuse = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "txmon_auth_refresh_reuse_total",
		Help: "Refresh attempts with an already consumed token",
	})

	// LoginThrottled counts logins rejected by the per-IP limiter.
	LoginThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "txmon_auth_login_throttled_total",
		Help: "Login attempts rejected by the rate limiter",
	})

	// SecretVerify times secret verifications, including the decoy
	// verifications run for unknown principals.
	SecretVerify = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "txmon_auth_secret_verify_seconds",
		Help:    "Duration of secret hash verifications",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// Clients tracks registered OAuth clients.
	Clients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "txmon_auth_registered_clients",
		Help: "Number of registered OAuth clients",
	})
)

// Register registers all collectors on reg, or the default registerer
// when reg is nil. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	for _, c := range []prometheus.Collector{Grants, RefreshReuse, LoginThrottled, SecretVerify, Clients} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}

	return nil
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
