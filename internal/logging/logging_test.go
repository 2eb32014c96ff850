package logging

import (
	"bytes"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"testing"
	"testing/slogtest"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelError},
		{"  info  ", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestServiceHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("ns-server", slog.LevelDebug, &buf))

	logger.Info("hello world")

	lineRegex := regexp.MustCompile(
		`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}[+-]\d{2}:\d{2} ns-server \[INFO\] logging: hello world\n$`,
	)
	if !lineRegex.MatchString(buf.String()) {
		t.Errorf("unexpected log line:\n  got: %q", buf.String())
	}
}

func TestServiceHandlerSessionPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("ns-server", slog.LevelDebug, &buf))

	logger.Info("session finished", slog.String("session_id", "abc"), slog.Uint64("sent", 7))

	line := buf.String()
	if !strings.Contains(line, ": session=abc session finished sent=7\n") {
		t.Errorf("expected session prefix and trailing attrs, got %q", line)
	}
}

func TestServiceHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewServiceHandler("svc", slog.LevelDebug, &buf))

	logger := base.With(slog.String("session_id", "s1")).WithGroup("writer")
	logger.Info("wrote", slog.String("type", "gob"))

	line := buf.String()
	if !strings.Contains(line, "session=s1 wrote") {
		t.Errorf("expected pre-set session attr to be lifted, got %q", line)
	}
	if !strings.Contains(line, "writer.type=gob") {
		t.Errorf("expected grouped attr, got %q", line)
	}
}

func TestServiceHandlerAttrsKeepTheirGroups(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewServiceHandler("svc", slog.LevelDebug, &buf))

	base.With(slog.String("peer", "p1")).WithGroup("g").Info("m", slog.Int("a", 1))

	if line := buf.String(); !strings.Contains(line, ": m peer=p1 g.a=1\n") {
		t.Errorf("attrs added before WithGroup must stay ungrouped, got %q", line)
	}
}

func TestServiceHandlerGroupedSessionNotLifted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("svc", slog.LevelDebug, &buf)).WithGroup("peer")

	logger.Info("m", slog.String("session_id", "s1"))

	line := buf.String()
	if strings.Contains(line, "session=s1") || !strings.Contains(line, "peer.session_id=s1") {
		t.Errorf("grouped session_id should stay in its group, got %q", line)
	}
}

func TestServiceHandlerSlogtest(t *testing.T) {
	var buf bytes.Buffer
	h := NewServiceHandler("svc", slog.LevelDebug, &buf)

	results := func() []map[string]any {
		var out []map[string]any
		for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
			out = append(out, parseLine(t, line))
		}
		return out
	}
	if err := slogtest.TestHandler(h, results); err != nil {
		t.Fatal(err)
	}
}

// parseLine turns "[time ]svc [LEVEL] pkg: msg k=v g.k=v" into the nested map
// slogtest expects.
func parseLine(t *testing.T, line string) map[string]any {
	t.Helper()
	head, body, ok := strings.Cut(line, ": ")
	if !ok {
		t.Fatalf("malformed line %q", line)
	}
	m := map[string]any{}
	fields := strings.Fields(head)
	if len(fields) == 4 {
		m[slog.TimeKey] = fields[0]
		fields = fields[1:]
	}
	if len(fields) != 3 {
		t.Fatalf("malformed header %q", head)
	}
	m[slog.LevelKey] = strings.Trim(fields[1], "[]")

	words := strings.Fields(body)
	if len(words) > 0 && strings.HasPrefix(words[0], "session=") {
		m[sessionAttrKey] = strings.TrimPrefix(words[0], "session=")
		words = words[1:]
	}
	if len(words) == 0 {
		t.Fatalf("missing message in %q", line)
	}
	m[slog.MessageKey] = words[0]
	for _, kv := range words[1:] {
		k, v, _ := strings.Cut(kv, "=")
		parts := strings.Split(k, ".")
		cur := m
		for _, g := range parts[:len(parts)-1] {
			sub, ok := cur[g].(map[string]any)
			if !ok {
				sub = map[string]any{}
				cur[g] = sub
			}
			cur = sub
		}
		cur[parts[len(parts)-1]] = v
	}
	return m
}

func TestServiceHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewServiceHandler("svc", slog.LevelWarn, &buf))

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("info line should have been filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := InitLogger("svc", Config{Level: slog.LevelInfo, LogDir: dir, LogName: "probe"})
	logger.Info("to file")

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %d (%v)", len(entries), err)
	}
	if !strings.HasSuffix(entries[0].Name(), "_probe.txt") {
		t.Errorf("unexpected log file name %q", entries[0].Name())
	}
	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file does not contain the message: %q", data)
	}
}

func TestFlagPointers_WithDefaults(t *testing.T) {
	level, dir, name := "", "/tmp/flag-dir", ""
	f := &FlagPointers{logLevel: &level, logDir: &dir, logName: &name}

	cfg := f.WithDefaults("debug", "/var/log/seismic", "server")
	if cfg.Level != slog.LevelDebug {
		t.Errorf("Expected the file level when the flag is empty, got %v", cfg.Level)
	}
	if cfg.LogDir != "/tmp/flag-dir" {
		t.Errorf("Expected the flag to win, got %q", cfg.LogDir)
	}
	if cfg.LogName != "server" {
		t.Errorf("Expected the file log name, got %q", cfg.LogName)
	}
}
