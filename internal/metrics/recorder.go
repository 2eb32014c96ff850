// Package metrics records per-session throughput figures for OTLP collectors
// and Prometheus scrapers.
package metrics

import (
	"NetSeismic/internal/model"
	"context"
	"errors"
)

const (
	ChunksSentTotal     = "seismic_chunks_sent_total"
	ChunksReceivedTotal = "seismic_chunks_received_total"
	SessionsTotal       = "seismic_sessions_total"
	SessionDuration     = "seismic_session_duration_seconds"
)

// Recorder receives every finished session.
type Recorder interface {
	RecordSession(ctx context.Context, r *model.Report) error
}

// Multi fans a report out to several recorders. Nil entries are skipped.
type Multi []Recorder

func (m Multi) RecordSession(ctx context.Context, r *model.Report) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.RecordSession(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// outcome labels a session as "ok" or "error".
func outcome(r *model.Report) string {
	if r.Error != "" {
		return "error"
	}
	return "ok"
}

func durationSeconds(r *model.Report) float64 {
	return r.Summary().Duration.Seconds()
}
