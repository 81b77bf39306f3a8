// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes recorded on NotificationsTotal.
const (
	OutcomeEmitted      = "emitted"
	OutcomeSuppressed   = "suppressed"
	OutcomeDeduplicated = "deduplicated"
	OutcomeDropped      = "dropped"
	OutcomeDelivered    = "delivered"
	OutcomeFailed       = "failed"
)

// Registry is the registry served on /metrics. The default registry is not
// used so tests can read collectors without global side effects.
var Registry = prometheus.NewRegistry()

var (
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handraise",
		Name:      "notifications_total",
		Help:      "Notification intents by kind and outcome.",
	}, []string{"kind", "outcome"})

	ObserverConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "handraise",
		Name:      "observer_connections",
		Help:      "Open websocket observers by role.",
	}, []string{"role"})

	ClassesClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handraise",
		Name:      "classes_closed_total",
		Help:      "Classes closed, by trigger.",
	}, []string{"trigger"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handraise",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	HubQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "handraise",
		Name:      "hub_queue_depth",
		Help:      "Notification intents waiting in the dispatch hub.",
	})
)

func init() {
	Registry.MustRegister(
		NotificationsTotal,
		ObserverConnections,
		ClassesClosedTotal,
		HTTPRequestsTotal,
		HubQueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
