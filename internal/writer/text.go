package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"NetSeismic/internal/report"
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

func init() {
	Register("text", func(def config.WriterDef, logger *slog.Logger) (model.Writer, error) {
		return NewTextWriter(def.RootPath, logger), nil
	})
}

// TextWriter writes the human-readable printout of each report to its own file.
type TextWriter struct {
	rootPath string
	logger   *slog.Logger
}

// NewTextWriter creates a new text writer rooted at rootPath.
func NewTextWriter(rootPath string, logger *slog.Logger) *TextWriter {
	return &TextWriter{rootPath: rootPath, logger: logger}
}

func (w *TextWriter) Name() string { return "text" }

func (w *TextWriter) Close() error { return nil }

// Write creates <root>/<date>/<start>_<role>_<session>.txt.
func (w *TextWriter) Write(_ context.Context, r *model.Report) error {
	dir := filepath.Join(w.rootPath, r.Series.StartTime.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	filePath := filepath.Join(dir, fileStem(r)+".txt")
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create report file '%s': %w", filePath, err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if err := report.Print(buf, r); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush report file: %w", err)
	}

	w.logger.Debug("wrote text report", slog.String("session_id", r.SessionID), slog.String("path", filePath))
	return nil
}

func fileStem(r *model.Report) string {
	return fmt.Sprintf("%s_%s_%s", r.Series.StartTime.Format("15-04-05"), r.Role, r.SessionID)
}
