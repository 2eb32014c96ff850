package metrics

import (
	"NetSeismic/internal/model"
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus keeps the session metrics on a private registry.
type Prometheus struct {
	registry       *prometheus.Registry
	chunksSent     *prometheus.CounterVec
	chunksReceived *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewPrometheus creates and registers the session collectors.
func NewPrometheus() *Prometheus {
	labels := []string{"role", "outcome"}
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		chunksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ChunksSentTotal,
			Help: "Chunks written by sessions.",
		}, labels),
		chunksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: ChunksReceivedTotal,
			Help: "Chunks read by sessions.",
		}, labels),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SessionsTotal,
			Help: "Finished sessions.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    SessionDuration,
			Help:    "Session duration in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
		}, labels),
	}
	p.registry.MustRegister(p.chunksSent, p.chunksReceived, p.sessions, p.duration)
	return p
}

func (p *Prometheus) RecordSession(_ context.Context, r *model.Report) error {
	if p == nil {
		return nil
	}
	role, out := string(r.Role), outcome(r)
	p.chunksSent.WithLabelValues(role, out).Add(float64(r.TotalSent))
	p.chunksReceived.WithLabelValues(role, out).Add(float64(r.TotalReceived))
	p.sessions.WithLabelValues(role, out).Inc()
	p.duration.WithLabelValues(role, out).Observe(durationSeconds(r))
	return nil
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
