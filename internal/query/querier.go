package query

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"NetSeismic/internal/writer"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

const defaultLimit = 100

// Filter narrows a session listing. Zero fields match everything.
type Filter struct {
	Role  string
	Peer  string
	Since time.Time
	Until time.Time
	Limit int
}

// Querier defines the interface for querying stored sessions.
type Querier interface {
	ListSessions(ctx context.Context, f Filter) ([]model.Summary, error)
	SessionReport(ctx context.Context, id string) (*model.Report, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := writer.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

const sessionColumns = `SessionID, Role, Peer, Echo, ChunkSize, StartTime, EndTime,
	TotalSent, TotalReceived, MeanSentBps, MeanRecvBps, Error`

// buildListQuery builds the listing query, newest sessions first.
func buildListQuery(f Filter) (string, []any) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + sessionColumns + " FROM sessions")

	var whereClauses []string
	var args []any
	if f.Role != "" {
		whereClauses = append(whereClauses, "Role = ?")
		args = append(args, f.Role)
	}
	if f.Peer != "" {
		whereClauses = append(whereClauses, "Peer = ?")
		args = append(args, f.Peer)
	}
	if !f.Since.IsZero() {
		whereClauses = append(whereClauses, "StartTime >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		whereClauses = append(whereClauses, "StartTime <= ?")
		args = append(args, f.Until)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY StartTime DESC LIMIT %d", limit))
	return queryBuilder.String(), args
}

// sessionRow mirrors one row of the sessions table.
type sessionRow struct {
	SessionID     string
	Role          string
	Peer          string
	Echo          bool
	ChunkSize     uint32
	StartTime     time.Time
	EndTime       time.Time
	TotalSent     uint64
	TotalReceived uint64
	MeanSentBps   float64
	MeanRecvBps   float64
	Error         string
}

func (r *sessionRow) dest() []any {
	return []any{&r.SessionID, &r.Role, &r.Peer, &r.Echo, &r.ChunkSize, &r.StartTime, &r.EndTime,
		&r.TotalSent, &r.TotalReceived, &r.MeanSentBps, &r.MeanRecvBps, &r.Error}
}

func (r *sessionRow) summary() model.Summary {
	return model.Summary{
		SessionID:       r.SessionID,
		Role:            model.Role(r.Role),
		Peer:            r.Peer,
		StartTime:       r.StartTime,
		Duration:        r.EndTime.Sub(r.StartTime),
		TotalSent:       r.TotalSent,
		TotalReceived:   r.TotalReceived,
		BytesSent:       r.TotalSent * uint64(r.ChunkSize),
		BytesReceived:   r.TotalReceived * uint64(r.ChunkSize),
		MeanSentBps:     r.MeanSentBps,
		MeanReceivedBps: r.MeanRecvBps,
		Error:           r.Error,
	}
}

// ListSessions returns the summaries matching f.
func (q *clickhouseQuerier) ListSessions(ctx context.Context, f Filter) ([]model.Summary, error) {
	query, args := buildListQuery(f)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var sums []model.Summary
	for rows.Next() {
		var row sessionRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sums = append(sums, row.summary())
	}
	return sums, rows.Err()
}

// SessionReport rebuilds the full report of a stored session.
func (q *clickhouseQuerier) SessionReport(ctx context.Context, id string) (*model.Report, error) {
	var row sessionRow
	err := q.conn.QueryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE SessionID = ? LIMIT 1", id).
		Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}

	rows, err := q.conn.Query(ctx,
		"SELECT OffsetMs, Sent, Received FROM session_samples WHERE SessionID = ? ORDER BY OffsetMs", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	series := &model.Series{StartTime: row.StartTime}
	for rows.Next() {
		var offsetMs float64
		var s model.Sample
		if err := rows.Scan(&offsetMs, &s.Sent, &s.Received); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Offset = time.Duration(offsetMs * float64(time.Millisecond))
		series.Samples = append(series.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.Report{
		SessionID:     row.SessionID,
		Role:          model.Role(row.Role),
		Peer:          row.Peer,
		ChunkSize:     int(row.ChunkSize),
		Echo:          row.Echo,
		Series:        series,
		EndTime:       row.EndTime,
		TotalSent:     row.TotalSent,
		TotalReceived: row.TotalReceived,
		Error:         row.Error,
	}, nil
}
