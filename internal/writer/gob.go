package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

func init() {
	Register("gob", func(def config.WriterDef, logger *slog.Logger) (model.Writer, error) {
		return NewGobWriter(def.RootPath, logger), nil
	})
}

// GobWriter stores each report as a gob file next to a JSON summary:
//
//	<root>/<date>/<session_id>/report.dat
//	<root>/<date>/<session_id>/summary.json
type GobWriter struct {
	rootPath string
	logger   *slog.Logger
}

// NewGobWriter creates a new gob writer rooted at rootPath.
func NewGobWriter(rootPath string, logger *slog.Logger) *GobWriter {
	return &GobWriter{rootPath: rootPath, logger: logger}
}

func (w *GobWriter) Name() string { return "gob" }

func (w *GobWriter) Close() error { return nil }

func (w *GobWriter) Write(_ context.Context, r *model.Report) error {
	// 1. Create the session directory
	sessionDir := filepath.Join(w.rootPath, r.Series.StartTime.Format("2006-01-02"), r.SessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// 2. Encode the full report
	dataPath := filepath.Join(sessionDir, "report.dat")
	if err := encodeFile(dataPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(r)
	}); err != nil {
		return fmt.Errorf("failed to encode report to gob: %w", err)
	}

	// 3. Write the summary
	summaryPath := filepath.Join(sessionDir, "summary.json")
	if err := encodeFile(summaryPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(r.Summary())
	}); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}

	w.logger.Debug("wrote gob report", slog.String("session_id", r.SessionID), slog.String("path", sessionDir))
	return nil
}

// ReadGob decodes a report written by GobWriter.
func ReadGob(path string) (*model.Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var r model.Report
	if err := gob.NewDecoder(file).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode gob report: %w", err)
	}
	return &r, nil
}

func encodeFile(path string, encode func(f *os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
