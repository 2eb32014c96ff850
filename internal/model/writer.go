package model

import "context"

// Writer defines a generic interface for persisting finished session reports.
type Writer interface {
	// Write persists a single report. Implementations must not retain the report.
	Write(ctx context.Context, report *Report) error

	// Name returns the writer type, used in logs.
	Name() string

	Close() error
}

// SampleObserver receives every sample as soon as the sampler records it.
// It is called from the sampler goroutine and must not block.
type SampleObserver func(sessionID string, sample Sample)
