// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts authentication outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	revokedSessions *prometheus.CounterVec
}

// NewMetrics creates and registers the auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_refresh_rotations_total",
			Help: "Refresh token rotations by outcome",
		}, []string{"outcome"}),
		revokedSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sessions_revoked_total",
			Help: "Sessions revoked by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.logins, m.registrations, m.rotations, m.revokedSessions)
	return m
}

// outcomeLabel maps an error to a low-cardinality label.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if IsExpected(err) {
		return ErrorCode(err)
	}
	return "error"
}

func (m *Metrics) login(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) registration(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) rotation(err error) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revokedSessions.WithLabelValues(reason).Add(float64(n))
}
