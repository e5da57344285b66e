// Package metrics exposes the prometheus collectors of the registration service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry             *prometheus.Registry
	Transitions          *prometheus.CounterVec
	WebhookDeliveries    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camp_transitions_total",
			Help: "Registration stage transitions applied, by trigger.",
		}, []string{"trigger"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camp_webhook_deliveries_total",
			Help: "Payment webhook deliveries, by outcome.",
		}, []string{"outcome"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camp_notification_failures_total",
			Help: "Notifications that could not be delivered, by notice.",
		}, []string{"notice"}),
	}
	m.registry.MustRegister(
		m.Transitions,
		m.WebhookDeliveries,
		m.NotificationFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The helpers below accept a nil receiver so services can run without metrics.

func (m *Metrics) TransitionApplied(trigger string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(trigger).Inc()
}

func (m *Metrics) WebhookDelivered(outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationFailed(notice string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(notice).Inc()
}
