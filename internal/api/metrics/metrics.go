// Package metrics defines the Prometheus metrics of the mock users API.
//
// Metrics are registered on the registry handed to New rather than the
// default one, so several routers can coexist in one process (tests).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "userdesk_mockapi"

type Metrics struct {
	// UserOperationsTotal counts handled user operations.
	// Labels:
	//   - operation: list, get, create, update, delete
	//   - result: ok, not_found, invalid, error
	UserOperationsTotal *prometheus.CounterVec

	// UsersStored tracks how many users the repository holds.
	UsersStored prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UserOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "user_operations_total",
				Help:      "Total number of user operations handled, by operation and result.",
			},
			[]string{"operation", "result"},
		),
		UsersStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "users_stored",
				Help:      "Number of users currently held by the mock API.",
			},
		),
	}
}
