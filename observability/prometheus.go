package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver counts events by type and severity, exposing the
// orchestrator's behavior (turns, tool calls, cancellations, errors) as
// Prometheus metrics without coupling this package to event producers.
type PrometheusObserver struct {
	events *prometheus.CounterVec
}

// NewPrometheusObserver creates an observer registered with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steward",
		Name:      "events_total",
		Help:      "Observability events emitted, by event type and severity.",
	}, []string{"type", "severity"})
	reg.MustRegister(events)

	return &PrometheusObserver{events: events}
}

func (o *PrometheusObserver) OnEvent(_ context.Context, event Event) {
	o.events.WithLabelValues(string(event.Type), event.Level.String()).Inc()
}
