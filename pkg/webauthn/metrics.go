// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the Prometheus namespace for all ceremony metrics
	MetricsNamespace = "webauthn"

	// Label names
	LabelCeremony = "ceremony"
	LabelStatus   = "status"

	// Ceremony names
	CeremonyRegistration    = "registration"
	CeremonyU2FRegistration = "u2f_registration"
	CeremonyAuthentication  = "authentication"

	// Status values
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusError     = "error"
)

// Metrics instruments ceremony outcomes.
type Metrics struct {
	// ceremoniesTotal counts ceremony events by ceremony kind and status.
	ceremoniesTotal *prometheus.CounterVec

	// ceremonyDuration tracks start-to-finish ceremony latency in seconds.
	ceremonyDuration *prometheus.HistogramVec
}

// NewMetrics registers ceremony metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ceremoniesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "ceremonies_total",
				Help:      "Total number of ceremony events by ceremony kind and status",
			},
			[]string{LabelCeremony, LabelStatus},
		),
		ceremonyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Name:      "ceremony_duration_seconds",
				Help:      "Duration of completed ceremonies in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{LabelCeremony},
		),
	}
}

// CeremonyCount records a ceremony event.
func (m *Metrics) CeremonyCount(ceremony, status string) {
	m.ceremoniesTotal.WithLabelValues(ceremony, status).Inc()
}

// ObserveCeremonyDuration records the start-to-finish latency of a
// completed ceremony.
func (m *Metrics) ObserveCeremonyDuration(ceremony string, d time.Duration) {
	m.ceremonyDuration.WithLabelValues(ceremony).Observe(d.Seconds())
}
