// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prom exports pipeline counters to Prometheus. It implements sampling.Metrics.
type Prom struct {
	accepted    *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	ignored     *prometheus.CounterVec
	writeErrors *prometheus.CounterVec
	active      *prometheus.GaugeVec
	interval    *prometheus.HistogramVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlog_samples_accepted_total",
			Help: "Readings accepted as samples.",
		}, []string{"stream"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlog_readings_rate_limited_total",
			Help: "Readings dropped because they arrived before the sampling period elapsed.",
		}, []string{"stream"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlog_readings_ignored_total",
			Help: "Readings for another stream or with a malformed payload.",
		}, []string{"stream"}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorlog_write_errors_total",
			Help: "Samples that could not be written to the log.",
		}, []string{"stream"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensorlog_stream_active",
			Help: "1 while the stream is sampling.",
		}, []string{"stream"}),
		interval: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensorlog_sample_interval_seconds",
			Help:    "Time between consecutive accepted samples.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stream"}),
	}
	reg.MustRegister(p.accepted, p.rateLimited, p.ignored, p.writeErrors, p.active, p.interval)
	return p
}

func (p *Prom) Accepted(stream string, delta int64) {
	p.accepted.WithLabelValues(stream).Inc()
	if delta >= 0 {
		p.interval.WithLabelValues(stream).Observe(float64(delta) / 1000.0)
	}
}

func (p *Prom) RateLimited(stream string) {
	p.rateLimited.WithLabelValues(stream).Inc()
}

func (p *Prom) Ignored(stream string) {
	p.ignored.WithLabelValues(stream).Inc()
}

func (p *Prom) WriteFailed(stream string) {
	p.writeErrors.WithLabelValues(stream).Inc()
}

func (p *Prom) SetActive(stream string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	p.active.WithLabelValues(stream).Set(v)
}
