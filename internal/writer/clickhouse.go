package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

func init() {
	Register("clickhouse", func(def config.WriterDef, logger *slog.Logger) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, logger)
	})
}

const createSamplesTable = `
CREATE TABLE IF NOT EXISTS session_samples (
    SessionID  String,
    Role       LowCardinality(String),
    Peer       String,
    StartTime  DateTime64(3),
    OffsetMs   Float64,
    Sent       UInt64,
    Received   UInt64,
    ChunkSize  UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (SessionID, OffsetMs);
`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    SessionID     String,
    Role          LowCardinality(String),
    Peer          String,
    Echo          Bool,
    ChunkSize     UInt32,
    StartTime     DateTime64(3),
    EndTime       DateTime64(3),
    TotalSent     UInt64,
    TotalReceived UInt64,
    MeanSentBps   Float64,
    MeanRecvBps   Float64,
    Error         String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (StartTime, SessionID);
`

// ClickHouseWriter stores every sample and a per-session summary row.
type ClickHouseWriter struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewClickHouseWriter connects to ClickHouse and ensures both tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig, logger *slog.Logger) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createSamplesTable, createSessionsTable} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	logger.Info("connected to ClickHouse and ensured tables exist", slog.String("host", cfg.Host))

	return &ClickHouseWriter{conn: conn, logger: logger}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

func (w *ClickHouseWriter) Close() error { return w.conn.Close() }

// Write inserts the samples of the report and its summary row.
func (w *ClickHouseWriter) Write(ctx context.Context, r *model.Report) error {
	if rows := sampleRows(r); len(rows) > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO session_samples")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for _, row := range rows {
			if err := batch.Append(row...); err != nil {
				return fmt.Errorf("failed to append sample to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	sum := r.Summary()
	err := w.conn.Exec(ctx, `INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, string(r.Role), r.Peer, r.Echo, uint32(r.ChunkSize),
		sum.StartTime, r.EndTime, r.TotalSent, r.TotalReceived,
		sum.MeanSentBps, sum.MeanReceivedBps, r.Error)
	if err != nil {
		return fmt.Errorf("failed to insert session row: %w", err)
	}

	w.logger.Debug("wrote report to ClickHouse",
		slog.String("session_id", r.SessionID),
		slog.Int("samples", r.Series.Len()))
	return nil
}

// sampleRows flattens the series into session_samples rows.
func sampleRows(r *model.Report) [][]any {
	if r.Series.Len() == 0 {
		return nil
	}
	rows := make([][]any, 0, r.Series.Len())
	for _, s := range r.Series.Samples {
		rows = append(rows, []any{
			r.SessionID,
			string(r.Role),
			r.Peer,
			r.Series.StartTime,
			float64(s.Offset) / float64(time.Millisecond),
			s.Sent,
			s.Received,
			uint32(r.ChunkSize),
		})
	}
	return rows
}
