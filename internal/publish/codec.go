// Package publish streams live samples and session summaries over NATS.
package publish

import (
	"NetSeismic/internal/model"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// SampleMessage is one sample tagged with the session it belongs to.
type SampleMessage struct {
	SessionID string
	Role      model.Role
	Peer      string
	Timestamp time.Time
	Sample    model.Sample
}

// EncodeSample serializes a sample message as a protobuf Struct.
func EncodeSample(msg SampleMessage) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"session_id": msg.SessionID,
		"role":       string(msg.Role),
		"peer":       msg.Peer,
		"timestamp":  msg.Timestamp.UTC().Format(time.RFC3339Nano),
		"offset_ns":  float64(msg.Sample.Offset),
		"sent":       float64(msg.Sample.Sent),
		"received":   float64(msg.Sample.Received),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// DecodeSample parses a message produced by EncodeSample.
func DecodeSample(data []byte) (SampleMessage, error) {
	f, err := unmarshalFields(data)
	if err != nil {
		return SampleMessage{}, fmt.Errorf("unmarshal sample: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		return SampleMessage{}, fmt.Errorf("parse sample timestamp: %w", err)
	}
	return SampleMessage{
		SessionID: f["session_id"].GetStringValue(),
		Role:      model.Role(f["role"].GetStringValue()),
		Peer:      f["peer"].GetStringValue(),
		Timestamp: ts,
		Sample: model.Sample{
			Offset:   time.Duration(f["offset_ns"].GetNumberValue()),
			Sent:     uint64(f["sent"].GetNumberValue()),
			Received: uint64(f["received"].GetNumberValue()),
		},
	}, nil
}

// EncodeSummary serializes a session summary as a protobuf Struct.
func EncodeSummary(sum model.Summary) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"session_id":        sum.SessionID,
		"role":              string(sum.Role),
		"peer":              sum.Peer,
		"start_time":        sum.StartTime.UTC().Format(time.RFC3339Nano),
		"duration_ns":       float64(sum.Duration),
		"samples":           float64(sum.Samples),
		"total_sent":        float64(sum.TotalSent),
		"total_received":    float64(sum.TotalReceived),
		"bytes_sent":        float64(sum.BytesSent),
		"bytes_received":    float64(sum.BytesReceived),
		"mean_sent_bps":     sum.MeanSentBps,
		"mean_received_bps": sum.MeanReceivedBps,
		"peak_sent_bps":     sum.PeakSentBps,
		"peak_received_bps": sum.PeakReceivedBps,
		"error":             sum.Error,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// DecodeSummary parses a message produced by EncodeSummary.
func DecodeSummary(data []byte) (model.Summary, error) {
	f, err := unmarshalFields(data)
	if err != nil {
		return model.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	start, err := time.Parse(time.RFC3339Nano, f["start_time"].GetStringValue())
	if err != nil {
		return model.Summary{}, fmt.Errorf("parse summary start time: %w", err)
	}
	return model.Summary{
		SessionID:       f["session_id"].GetStringValue(),
		Role:            model.Role(f["role"].GetStringValue()),
		Peer:            f["peer"].GetStringValue(),
		StartTime:       start,
		Duration:        time.Duration(f["duration_ns"].GetNumberValue()),
		Samples:         int(f["samples"].GetNumberValue()),
		TotalSent:       uint64(f["total_sent"].GetNumberValue()),
		TotalReceived:   uint64(f["total_received"].GetNumberValue()),
		BytesSent:       uint64(f["bytes_sent"].GetNumberValue()),
		BytesReceived:   uint64(f["bytes_received"].GetNumberValue()),
		MeanSentBps:     f["mean_sent_bps"].GetNumberValue(),
		MeanReceivedBps: f["mean_received_bps"].GetNumberValue(),
		PeakSentBps:     f["peak_sent_bps"].GetNumberValue(),
		PeakReceivedBps: f["peak_received_bps"].GetNumberValue(),
		Error:           f["error"].GetStringValue(),
	}, nil
}

func unmarshalFields(data []byte) (map[string]*structpb.Value, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return st.GetFields(), nil
}
