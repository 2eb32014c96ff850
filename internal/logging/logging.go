/*
Portions adapted from NVIDIA OSMO (src/utils/logging/logging.go).
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.
SPDX-License-Identifier: Apache-2.0
*/

// Package logging configures the process-wide slog logger. Lines look like
//
//	<ISO8601_time> <service> [<LEVEL>] <package>: [session=<id> ]<message>[ key=value ...]
//
// The session_id attribute is lifted in front of the message so the lines of
// one session can be grepped together.
package logging

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Config holds the logging configuration.
type Config struct {
	Level   slog.Level
	LogDir  string
	LogName string
}

// FlagPointers holds pointers to flag values for logging configuration.
type FlagPointers struct {
	logLevel *string
	logDir   *string
	logName  *string
}

// RegisterFlags registers -log-level, -log-dir and -log-name on the default
// flag set. Defaults come from the config file values passed in.
func RegisterFlags(level, dir, name string) *FlagPointers {
	return &FlagPointers{
		logLevel: flag.String("log-level", level, "Log level (debug, info, warn, error)"),
		logDir:   flag.String("log-dir", dir, "Directory to write log files to"),
		logName:  flag.String("log-name", name, "Name for the log file (without extension)"),
	}
}

// ToConfig converts flag pointers to Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig() Config {
	return Config{
		Level:   ParseLevel(*f.logLevel),
		LogDir:  *f.logDir,
		LogName: *f.logName,
	}
}

// WithDefaults is ToConfig with fallbacks for flags left empty, typically the
// values of the configuration file.
func (f *FlagPointers) WithDefaults(level, dir, name string) Config {
	pick := func(flagValue, fallback string) string {
		if flagValue != "" {
			return flagValue
		}
		return fallback
	}
	return Config{
		Level:   ParseLevel(pick(*f.logLevel, level)),
		LogDir:  pick(*f.logDir, dir),
		LogName: pick(*f.logName, name),
	}
}

// ParseLevel converts a string log level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const sessionAttrKey = "session_id"

// ServiceHandler is a slog.Handler writing one plain-text line per record.
type ServiceHandler struct {
	serviceName string
	level       slog.Level
	writer      io.Writer
	mu          *sync.Mutex
	attrs       []groupedAttr
	groups      []string
}

// groupedAttr is an attribute from WithAttrs with the groups open at that time.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewServiceHandler creates a new ServiceHandler that writes to the given writer.
func NewServiceHandler(serviceName string, level slog.Level, writer io.Writer) *ServiceHandler {
	return &ServiceHandler{
		serviceName: serviceName,
		level:       level,
		writer:      writer,
		mu:          &sync.Mutex{},
	}
}

func (h *ServiceHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ServiceHandler) Handle(_ context.Context, r slog.Record) error {
	var session string
	var extra []string

	var collect func(a slog.Attr, groups []string)
	collect = func(a slog.Attr, groups []string) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		if a.Value.Kind() == slog.KindGroup {
			if a.Key != "" {
				groups = append(groups[:len(groups):len(groups)], a.Key)
			}
			for _, ga := range a.Value.Group() {
				collect(ga, groups)
			}
			return
		}
		if a.Key == sessionAttrKey && len(groups) == 0 && session == "" {
			session = a.Value.String()
			return
		}
		extra = append(extra, formatAttr(a, groups))
	}
	for _, ga := range h.attrs {
		collect(ga.attr, ga.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a, h.groups)
		return true
	})

	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format("2006-01-02T15:04:05.000-07:00"))
		b.WriteByte(' ')
	}
	b.WriteString(h.serviceName)
	b.WriteString(" [")
	b.WriteString(r.Level.String())
	b.WriteString("] ")
	b.WriteString(callerSource(r.PC))
	b.WriteString(": ")
	if session != "" {
		b.WriteString("session=")
		b.WriteString(session)
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	for _, part := range extra {
		b.WriteByte(' ')
		b.WriteString(part)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]groupedAttr(nil), h.attrs...)
	groups := append([]string(nil), h.groups...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, groupedAttr{groups: groups, attr: a})
	}
	return &clone
}

func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// InitLogger installs a ServiceHandler as the default slog logger. It always
// writes to stdout and additionally to <LogDir>/<timestamp>_<pid>_<LogName>.txt
// when LogDir is set.
func InitLogger(serviceName string, cfg Config) *slog.Logger {
	writers := []io.Writer{os.Stdout}

	if cfg.LogDir != "" {
		if file, err := openLogFile(serviceName, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		} else {
			writers = append(writers, file)
		}
	}

	logger := slog.New(NewServiceHandler(serviceName, cfg.Level, io.MultiWriter(writers...)))
	slog.SetDefault(logger)
	return logger
}

func openLogFile(serviceName string, cfg Config) (*os.File, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", cfg.LogDir, err)
	}
	name := cfg.LogName
	if name == "" {
		name = serviceName
	}
	fileName := fmt.Sprintf("%s_%d_%s.txt", time.Now().Format("2006-01-02T15-04-05"), os.Getpid(), name)
	return os.OpenFile(filepath.Join(cfg.LogDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// callerSource extracts the Go package name from the program counter.
func callerSource(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Function == "" {
		return "unknown"
	}
	lastPart := f.Function[strings.LastIndex(f.Function, "/")+1:]
	if idx := strings.Index(lastPart, "."); idx >= 0 {
		return lastPart[:idx]
	}
	return lastPart
}

func formatAttr(a slog.Attr, groups []string) string {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return key + "=" + a.Value.String()
}
