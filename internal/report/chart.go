package report

import (
	"NetSeismic/internal/model"
	"fmt"
	"io"
	"strings"
)

const chartWidth = 50

// Direction selects which counter a chart plots.
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Received {
		return "received"
	}
	return "sent"
}

// Chart draws one horizontal bar per sampling interval, scaled to the peak rate.
func Chart(w io.Writer, r *model.Report, dir Direction) error {
	rates := r.Throughput()
	if len(rates) == 0 {
		_, err := fmt.Fprintf(w, "no %s throughput to plot\n", dir)
		return err
	}

	values := make([]float64, len(rates))
	peak := 0.0
	for i, rate := range rates {
		values[i] = rate.SentBps
		if dir == Received {
			values[i] = rate.ReceivedBps
		}
		if values[i] > peak {
			peak = values[i]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s throughput (peak %s)\n", dir, FormatRate(peak))
	for i, rate := range rates {
		filled := 0
		if peak > 0 {
			filled = int(values[i] / peak * chartWidth)
		}
		fmt.Fprintf(&b, "%7.2fs |%s%s| %s\n",
			rate.Offset.Seconds(),
			strings.Repeat("#", filled),
			strings.Repeat(" ", chartWidth-filled),
			FormatRate(values[i]))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
