package model

import "time"

// Report is everything known about one finished session. It is what writers,
// publishers and the API hand around.
type Report struct {
	SessionID     string    `json:"session_id"`
	Role          Role      `json:"role"`
	Peer          string    `json:"peer"`
	ChunkSize     int       `json:"chunk_size"`
	Echo          bool      `json:"echo"`
	Series        *Series   `json:"series"`
	EndTime       time.Time `json:"end_time"`
	TotalSent     uint64    `json:"total_sent"`
	TotalReceived uint64    `json:"total_received"`
	// Error holds the fatal error that ended the session, if any.
	Error string `json:"error,omitempty"`
}

// Rate is the throughput observed between two consecutive samples.
type Rate struct {
	Offset      time.Duration `json:"offset"`
	SentBps     float64       `json:"sent_bps"`
	ReceivedBps float64       `json:"received_bps"`
}

// Summary condenses a report into the figures shown in listings.
type Summary struct {
	SessionID       string        `json:"session_id"`
	Role            Role          `json:"role"`
	Peer            string        `json:"peer"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	Samples         int           `json:"samples"`
	TotalSent       uint64        `json:"total_sent"`
	TotalReceived   uint64        `json:"total_received"`
	BytesSent       uint64        `json:"bytes_sent"`
	BytesReceived   uint64        `json:"bytes_received"`
	MeanSentBps     float64       `json:"mean_sent_bps"`
	MeanReceivedBps float64       `json:"mean_received_bps"`
	PeakSentBps     float64       `json:"peak_sent_bps"`
	PeakReceivedBps float64       `json:"peak_received_bps"`
	Error           string        `json:"error,omitempty"`
}

// Throughput derives per-interval byte rates from consecutive samples.
// Counters start at zero when the series starts, so the first interval is
// measured from the origin.
func (r *Report) Throughput() []Rate {
	if r.Series.Len() == 0 {
		return nil
	}
	chunk := float64(r.ChunkSize)
	rates := make([]Rate, 0, len(r.Series.Samples))
	var prev Sample
	for _, s := range r.Series.Samples {
		dt := (s.Offset - prev.Offset).Seconds()
		if dt <= 0 {
			prev = s
			continue
		}
		rates = append(rates, Rate{
			Offset:      s.Offset,
			SentBps:     float64(s.Sent-prev.Sent) * chunk / dt,
			ReceivedBps: float64(s.Received-prev.Received) * chunk / dt,
		})
		prev = s
	}
	return rates
}

// Summary computes the headline figures of the report.
func (r *Report) Summary() Summary {
	sum := Summary{
		SessionID:     r.SessionID,
		Role:          r.Role,
		Peer:          r.Peer,
		Samples:       r.Series.Len(),
		TotalSent:     r.TotalSent,
		TotalReceived: r.TotalReceived,
		BytesSent:     r.TotalSent * uint64(r.ChunkSize),
		BytesReceived: r.TotalReceived * uint64(r.ChunkSize),
		Error:         r.Error,
	}
	if r.Series != nil {
		sum.StartTime = r.Series.StartTime
		if !r.EndTime.IsZero() {
			sum.Duration = r.EndTime.Sub(r.Series.StartTime)
		}
	}
	if secs := sum.Duration.Seconds(); secs > 0 {
		sum.MeanSentBps = float64(sum.BytesSent) / secs
		sum.MeanReceivedBps = float64(sum.BytesReceived) / secs
	}
	for _, rate := range r.Throughput() {
		if rate.SentBps > sum.PeakSentBps {
			sum.PeakSentBps = rate.SentBps
		}
		if rate.ReceivedBps > sum.PeakReceivedBps {
			sum.PeakReceivedBps = rate.ReceivedBps
		}
	}
	return sum
}
