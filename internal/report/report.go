// Package report renders session reports for terminals and text files.
package report

import (
	"NetSeismic/internal/model"
	"fmt"
	"io"
	"strings"
	"time"
)

// Print writes the sample table and the summary of a report.
func Print(w io.Writer, r *model.Report) error {
	var b strings.Builder

	start := time.Time{}
	if r.Series != nil {
		start = r.Series.StartTime
	}
	fmt.Fprintf(&b, "Measurements @ %s\n", start.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "session %s, %s, peer %s, chunk %d bytes, echo %t\n",
		r.SessionID, r.Role, r.Peer, r.ChunkSize, r.Echo)

	if r.Series != nil {
		for _, s := range r.Series.Samples {
			fmt.Fprintf(&b, "%.2fs: %10d sent / %10d received\n", s.Offset.Seconds(), s.Sent, s.Received)
		}
	}

	sum := r.Summary()
	fmt.Fprintf(&b, "duration %.2fs, %d samples\n", sum.Duration.Seconds(), sum.Samples)
	fmt.Fprintf(&b, "sent     %10d chunks %12s  mean %14s  peak %14s\n",
		sum.TotalSent, FormatBytes(sum.BytesSent), FormatRate(sum.MeanSentBps), FormatRate(sum.PeakSentBps))
	fmt.Fprintf(&b, "received %10d chunks %12s  mean %14s  peak %14s\n",
		sum.TotalReceived, FormatBytes(sum.BytesReceived), FormatRate(sum.MeanReceivedBps), FormatRate(sum.PeakReceivedBps))
	if sum.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", sum.Error)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders a byte rate as a decimal bit rate.
func FormatRate(bytesPerSec float64) string {
	bits := bytesPerSec * 8
	switch {
	case bits >= 1e9:
		return fmt.Sprintf("%.2f Gbit/s", bits/1e9)
	case bits >= 1e6:
		return fmt.Sprintf("%.2f Mbit/s", bits/1e6)
	case bits >= 1e3:
		return fmt.Sprintf("%.2f kbit/s", bits/1e3)
	default:
		return fmt.Sprintf("%.0f bit/s", bits)
	}
}
