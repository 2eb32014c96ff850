package model

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Role identifies which end of a session produced a report.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Counters holds the cumulative chunk counters of a single session.
// Each counter has exactly one writing goroutine; any goroutine may read.
type Counters struct {
	Sent     atomic.Uint64
	Received atomic.Uint64
}

// Sample is one point-in-time reading of a session's counters.
type Sample struct {
	Offset   time.Duration `json:"offset"`
	Sent     uint64        `json:"sent"`
	Received uint64        `json:"received"`
}

// Series is the ordered sequence of samples taken during one session.
// Offsets are strictly increasing and measured from StartTime.
type Series struct {
	StartTime time.Time `json:"start_time"`
	Samples   []Sample  `json:"samples"`
}

// Len returns the number of samples in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// Last returns the most recent sample and whether one exists.
func (s *Series) Last() (Sample, bool) {
	if s.Len() == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// SessionConfig is the per-session configuration, copied into each session.
type SessionConfig struct {
	ChunkSize       int
	SampleFrequency time.Duration
	// RunDuration bounds the generator; only meaningful for senders.
	RunDuration time.Duration
	// Echo selects the echoing consumer; only meaningful for receivers.
	Echo bool
	// IdleTimeout bounds the wait for each chunk on the receiver. Zero disables it.
	IdleTimeout time.Duration
}

// Validate checks the configuration for values that would make a session meaningless.
func (c SessionConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.SampleFrequency <= 0 {
		return fmt.Errorf("sample frequency must be a positive duration, got %s", c.SampleFrequency)
	}
	if c.RunDuration < 0 {
		return fmt.Errorf("run duration must not be negative, got %s", c.RunDuration)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	return nil
}
