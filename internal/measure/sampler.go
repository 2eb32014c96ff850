// Package measure samples a session's counters on a fixed period.
package measure

import (
	"NetSeismic/internal/model"
	"fmt"
	"sync"
	"time"
)

// Observer is called synchronously after every recorded sample.
type Observer func(model.Sample)

// Sampler periodically snapshots a pair of counters into a series until it is
// told to stop.
type Sampler struct {
	freq      time.Duration
	counters  *model.Counters
	stop      <-chan struct{}
	observers []Observer
}

// Stopper delivers the one-shot stop signal to a sampler. Stop is safe to call
// any number of times, from any goroutine, before or after the sampler exits.
type Stopper struct {
	once sync.Once
	ch   chan struct{}
}

// Stop signals the sampler to return. It never blocks.
func (s *Stopper) Stop() {
	s.once.Do(func() { close(s.ch) })
}

// New creates a sampler over counters and the stopper that ends it. freq must
// be positive; like time.NewTicker, New panics otherwise.
func New(freq time.Duration, counters *model.Counters) (*Sampler, *Stopper) {
	if freq <= 0 {
		panic(fmt.Sprintf("measure: non-positive sample frequency %s", freq))
	}
	stopper := &Stopper{ch: make(chan struct{})}
	return &Sampler{freq: freq, counters: counters, stop: stopper.ch}, stopper
}

// WithObserver registers fn to be called with every sample. It must be called
// before Run.
func (s *Sampler) WithObserver(fn Observer) *Sampler {
	s.observers = append(s.observers, fn)
	return s
}

// Run samples until stopped and returns the series. The first sample is taken
// immediately; no final sample is taken on stop.
func (s *Sampler) Run() *model.Series {
	series := &model.Series{StartTime: time.Now()}

	select {
	case <-s.stop:
		return series
	default:
		s.record(series)
	}

	ticker := time.NewTicker(s.freq)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return series
		case <-ticker.C:
			s.record(series)
		}
	}
}

func (s *Sampler) record(series *model.Series) {
	// The two loads are independent; a sample may pair values read a few
	// nanoseconds apart.
	sample := model.Sample{
		Offset:   time.Since(series.StartTime),
		Sent:     s.counters.Sent.Load(),
		Received: s.counters.Received.Load(),
	}
	if n := len(series.Samples); n > 0 && sample.Offset <= series.Samples[n-1].Offset {
		return
	}
	series.Samples = append(series.Samples, sample)
	for _, fn := range s.observers {
		fn(sample)
	}
}
