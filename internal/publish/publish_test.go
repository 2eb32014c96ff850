package publish

import (
	"NetSeismic/internal/model"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestSampleCodec(t *testing.T) {
	msg := SampleMessage{
		SessionID: "abc",
		Role:      model.RoleSender,
		Peer:      "10.1.1.1:7225",
		Timestamp: time.Date(2024, 2, 2, 10, 0, 0, 123456789, time.UTC),
		Sample:    model.Sample{Offset: 1400 * time.Millisecond, Sent: 123456, Received: 42},
	}

	data, err := EncodeSample(msg)
	if err != nil {
		t.Fatalf("EncodeSample failed: %v", err)
	}
	got, err := DecodeSample(data)
	if err != nil {
		t.Fatalf("DecodeSample failed: %v", err)
	}
	if got.SessionID != msg.SessionID || got.Role != msg.Role || got.Peer != msg.Peer {
		t.Errorf("Identity fields differ: %+v", got)
	}
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Timestamp differs: %s vs %s", got.Timestamp, msg.Timestamp)
	}
	if got.Sample != msg.Sample {
		t.Errorf("Sample differs: %+v vs %+v", got.Sample, msg.Sample)
	}
}

func TestSummaryCodec(t *testing.T) {
	sum := model.Summary{
		SessionID:       "xyz",
		Role:            model.RoleReceiver,
		StartTime:       time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC),
		Duration:        5 * time.Second,
		Samples:         26,
		TotalReceived:   100000,
		BytesReceived:   102400000,
		MeanReceivedBps: 20480000,
		PeakReceivedBps: 25000000.5,
		Error:           "read chunk: boom",
	}

	data, err := EncodeSummary(sum)
	if err != nil {
		t.Fatalf("EncodeSummary failed: %v", err)
	}
	got, err := DecodeSummary(data)
	if err != nil {
		t.Fatalf("DecodeSummary failed: %v", err)
	}
	if !got.StartTime.Equal(sum.StartTime) {
		t.Errorf("Start time differs: %s", got.StartTime)
	}
	got.StartTime = sum.StartTime
	if got != sum {
		t.Errorf("Summary differs:\n got  %+v\n want %+v", got, sum)
	}
}

func TestDecodeSample_Malformed(t *testing.T) {
	if _, err := DecodeSample([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Errorf("Expected an error for garbage input")
	}
}

func TestSubscriber_Dispatch(t *testing.T) {
	s := &Subscriber{subject: "seismic.samples", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	sampleData, _ := EncodeSample(SampleMessage{SessionID: "a", Role: model.RoleSender, Timestamp: time.Now()})
	summaryData, _ := EncodeSummary(model.Summary{SessionID: "b", StartTime: time.Now()})

	var samples, summaries []string
	onSample := func(m SampleMessage) { samples = append(samples, m.SessionID) }
	onSummary := func(sum model.Summary) { summaries = append(summaries, sum.SessionID) }

	s.dispatch(sampleSubject("seismic.samples", model.RoleSender), sampleData, onSample, onSummary)
	s.dispatch(summarySubject("seismic.samples", model.RoleReceiver), summaryData, onSample, onSummary)
	s.dispatch("seismic.samples.other", sampleData, onSample, onSummary)
	s.dispatch(sampleSubject("seismic.samples", model.RoleSender), []byte{0xff}, onSample, onSummary)

	if len(samples) != 1 || samples[0] != "a" {
		t.Errorf("Unexpected samples: %v", samples)
	}
	if len(summaries) != 1 || summaries[0] != "b" {
		t.Errorf("Unexpected summaries: %v", summaries)
	}
}
