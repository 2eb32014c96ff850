package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testReport() *model.Report {
	start := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	return &model.Report{
		SessionID:     "3f1c",
		Role:          model.RoleReceiver,
		Peer:          "192.0.2.1:50000",
		ChunkSize:     1024,
		Echo:          true,
		EndTime:       start.Add(2 * time.Second),
		TotalSent:     40,
		TotalReceived: 40,
		Series: &model.Series{
			StartTime: start,
			Samples: []model.Sample{
				{Offset: 0},
				{Offset: time.Second, Sent: 20, Received: 21},
				{Offset: 2 * time.Second, Sent: 40, Received: 40},
			},
		},
	}
}

func TestTextWriter_Write(t *testing.T) {
	root := t.TempDir()
	w := NewTextWriter(root, discardLogger())

	if err := w.Write(context.Background(), testReport()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	path := filepath.Join(root, "2024-03-09", "08-30-00_receiver_3f1c.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected report file at %s: %v", path, err)
	}
	if !strings.Contains(string(data), "1.00s:         20 sent /         21 received") {
		t.Errorf("Report file missing sample line:\n%s", data)
	}
}

func TestGobWriter_Write(t *testing.T) {
	// 1. Write the report
	root := t.TempDir()
	w := NewGobWriter(root, discardLogger())
	original := testReport()
	if err := w.Write(context.Background(), original); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	sessionDir := filepath.Join(root, "2024-03-09", "3f1c")

	// 2. Verify summary content
	summaryBytes, err := os.ReadFile(filepath.Join(sessionDir, "summary.json"))
	if err != nil {
		t.Fatalf("Failed to read summary.json: %v", err)
	}
	var summary model.Summary
	if err := json.Unmarshal(summaryBytes, &summary); err != nil {
		t.Fatalf("Failed to unmarshal summary.json: %v", err)
	}
	if summary.TotalReceived != 40 || summary.Samples != 3 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	// 3. Verify gob file content
	decoded, err := ReadGob(filepath.Join(sessionDir, "report.dat"))
	if err != nil {
		t.Fatalf("ReadGob failed: %v", err)
	}
	if decoded.SessionID != original.SessionID || decoded.Series.Len() != 3 {
		t.Fatalf("Decoded report does not match: %+v", decoded)
	}
	if !decoded.Series.StartTime.Equal(original.Series.StartTime) {
		t.Errorf("Start time mismatch: %s vs %s", decoded.Series.StartTime, original.Series.StartTime)
	}
	if decoded.Series.Samples[1] != original.Series.Samples[1] {
		t.Errorf("Sample mismatch: %+v vs %+v", decoded.Series.Samples[1], original.Series.Samples[1])
	}
}

func TestSampleRows(t *testing.T) {
	rows := sampleRows(testReport())
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	row := rows[1]
	if len(row) != 8 {
		t.Fatalf("Expected 8 columns, got %d", len(row))
	}
	if row[0] != "3f1c" || row[1] != "receiver" {
		t.Errorf("Unexpected key columns: %v", row[:2])
	}
	if row[4] != float64(1000) {
		t.Errorf("Expected offset 1000ms, got %v", row[4])
	}
	if row[5] != uint64(20) || row[6] != uint64(21) {
		t.Errorf("Unexpected counter columns: %v %v", row[5], row[6])
	}

	if rows := sampleRows(&model.Report{Series: &model.Series{}}); rows != nil {
		t.Errorf("Expected no rows for an empty series")
	}
}

func TestCreate(t *testing.T) {
	root := t.TempDir()
	defs := []config.WriterDef{
		{Type: "text", Enabled: true, RootPath: root},
		{Type: "gob", Enabled: false, RootPath: root},
	}
	writers, err := Create(defs, discardLogger())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(writers) != 1 || writers[0].Name() != "text" {
		t.Fatalf("Expected only the text writer, got %d writers", len(writers))
	}

	_, err = Create([]config.WriterDef{{Type: "parquet", Enabled: true}}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "unknown writer type") {
		t.Errorf("Expected unknown writer type error, got %v", err)
	}
}

func TestTypes(t *testing.T) {
	got := strings.Join(Types(), ",")
	if got != "clickhouse,gob,redis,text" {
		t.Errorf("Unexpected registered types %q", got)
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	written []string
	err     error
	closed  bool
}

func (f *fakeWriter) Write(_ context.Context, r *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, r.SessionID)
	return f.err
}

func (f *fakeWriter) Name() string { return "fake" }

func (f *fakeWriter) Close() error {
	f.closed = true
	return f.err
}

func TestDispatcher_WritesEveryReportToEveryWriter(t *testing.T) {
	a, b := &fakeWriter{}, &fakeWriter{err: errors.New("storage down")}
	d := NewDispatcher([]model.Writer{a, b}, 3, 16, discardLogger())

	for i := 0; i < 10; i++ {
		r := testReport()
		r.SessionID = string(rune('a' + i))
		if !d.Enqueue(r) {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}
	d.Stop()

	if len(a.written) != 10 || len(b.written) != 10 {
		t.Errorf("Expected 10 writes per writer, got %d and %d", len(a.written), len(b.written))
	}
	if d.Enqueue(testReport()) {
		t.Errorf("Expected Enqueue after Stop to be rejected")
	}
	d.Stop()
}

func TestCloseAll(t *testing.T) {
	a, b := &fakeWriter{}, &fakeWriter{err: errors.New("close failed")}
	err := CloseAll([]model.Writer{a, b})
	if err == nil || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("Expected joined close error, got %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("Expected every writer to be closed")
	}
}

func TestRedisWriter_Keys(t *testing.T) {
	w := &RedisWriter{prefix: "seismic"}
	if got := w.sessionKey("3f1c"); got != "seismic:session:3f1c" {
		t.Errorf("Unexpected session key %q", got)
	}
	if got := w.indexKey(); got != "seismic:sessions" {
		t.Errorf("Unexpected index key %q", got)
	}
}

func TestNewRedisWriter_Unreachable(t *testing.T) {
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: 1}
	if _, err := NewRedisWriter(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatalf("Expected a ping error for an unreachable server")
	}
}
