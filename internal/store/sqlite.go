package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"actcollective.org/momentum/internal/model"
)

// sqliteStore is the embedded fallback used when no Postgres DSN is
// configured, so a dev run of the CLI needs nothing but a file path.
// Timestamps are stored as RFC 3339 text, the as-of key as YYYY-MM-DD.
type sqliteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metrics_snapshots (
	id INTEGER NOT NULL,
	sprint_label TEXT NOT NULL,
	as_of_date TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end TEXT NOT NULL,
	cycle_time_hours REAL,
	lead_time_hours REAL,
	cycle_time_samples INTEGER NOT NULL DEFAULT 0,
	lead_time_samples INTEGER NOT NULL DEFAULT 0,
	throughput_per_week REAL NOT NULL DEFAULT 0,
	wip_count INTEGER NOT NULL DEFAULT 0,
	flow_efficiency_pct REAL,
	clock_skew_suspected INTEGER NOT NULL DEFAULT 0,
	alerts TEXT NOT NULL DEFAULT '[]',
	insights TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	PRIMARY KEY (sprint_label, as_of_date)
)`

// OpenSQLite opens (creating if needed) a snapshot store at path.
func OpenSQLite(ctx context.Context, path string) (SnapshotStore, func() error, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &sqliteStore{db: db}, db.Close, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, snapshot *model.MetricsSnapshot) error {
	alerts, insights, err := marshalSnapshotJSON(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %v: %w", err, ErrPublishRejected)
	}

	const q = `
INSERT INTO metrics_snapshots (
	id, sprint_label, as_of_date, window_start, window_end,
	cycle_time_hours, lead_time_hours, cycle_time_samples, lead_time_samples,
	throughput_per_week, wip_count, flow_efficiency_pct, clock_skew_suspected,
	alerts, insights, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (sprint_label, as_of_date) DO UPDATE SET
	id = excluded.id,
	window_start = excluded.window_start,
	window_end = excluded.window_end,
	cycle_time_hours = excluded.cycle_time_hours,
	lead_time_hours = excluded.lead_time_hours,
	cycle_time_samples = excluded.cycle_time_samples,
	lead_time_samples = excluded.lead_time_samples,
	throughput_per_week = excluded.throughput_per_week,
	wip_count = excluded.wip_count,
	flow_efficiency_pct = excluded.flow_efficiency_pct,
	clock_skew_suspected = excluded.clock_skew_suspected,
	alerts = excluded.alerts,
	insights = excluded.insights,
	created_at = excluded.created_at`

	_, err = s.db.ExecContext(ctx, q,
		snapshot.ID,
		snapshot.SprintLabel,
		snapshot.AsOfDate.UTC().Format("2006-01-02"),
		snapshot.WindowStart.UTC().Format(time.RFC3339Nano),
		snapshot.WindowEnd.UTC().Format(time.RFC3339Nano),
		nullableFloat(snapshot.CycleTimeHours),
		nullableFloat(snapshot.LeadTimeHours),
		snapshot.CycleTimeSamples,
		snapshot.LeadTimeSamples,
		snapshot.ThroughputPerWeek,
		snapshot.WIPCount,
		nullableFloat(snapshot.FlowEfficiencyPct),
		snapshot.ClockSkewSuspected,
		string(alerts),
		string(insights),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %v: %w", err, ErrPublishUnavailable)
	}
	return nil
}

const sqliteSelect = `
SELECT id, sprint_label, as_of_date, window_start, window_end,
	cycle_time_hours, lead_time_hours, cycle_time_samples, lead_time_samples,
	throughput_per_week, wip_count, flow_efficiency_pct, clock_skew_suspected,
	alerts, insights, created_at
FROM metrics_snapshots`

func (s *sqliteStore) GetPrevious(ctx context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelect+` WHERE sprint_label = ? AND as_of_date < ? ORDER BY as_of_date DESC LIMIT 1`,
		sprintLabel, before.UTC().Format("2006-01-02"))

	snap, err := scanSQLiteSnapshot(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching previous snapshot: %w", err)
	}
	return snap, nil
}

func (s *sqliteStore) List(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteSelect+` WHERE sprint_label = ? ORDER BY as_of_date DESC LIMIT ?`,
		sprintLabel, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []model.MetricsSnapshot{}
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

func scanSQLiteSnapshot(scan func(dest ...any) error) (*model.MetricsSnapshot, error) {
	var (
		snap         model.MetricsSnapshot
		asOf         string
		windowStart  string
		windowEnd    string
		createdAt    string
		cycle        sql.NullFloat64
		lead         sql.NullFloat64
		flow         sql.NullFloat64
		alertsJSON   string
		insightsJSON string
	)
	if err := scan(
		&snap.ID, &snap.SprintLabel, &asOf, &windowStart, &windowEnd,
		&cycle, &lead, &snap.CycleTimeSamples, &snap.LeadTimeSamples,
		&snap.ThroughputPerWeek, &snap.WIPCount, &flow, &snap.ClockSkewSuspected,
		&alertsJSON, &insightsJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if snap.AsOfDate, err = time.Parse("2006-01-02", asOf); err != nil {
		return nil, fmt.Errorf("parsing as_of_date: %w", err)
	}
	if snap.WindowStart, err = time.Parse(time.RFC3339Nano, windowStart); err != nil {
		return nil, fmt.Errorf("parsing window_start: %w", err)
	}
	if snap.WindowEnd, err = time.Parse(time.RFC3339Nano, windowEnd); err != nil {
		return nil, fmt.Errorf("parsing window_end: %w", err)
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	snap.CycleTimeHours = fromNullFloat(cycle)
	snap.LeadTimeHours = fromNullFloat(lead)
	snap.FlowEfficiencyPct = fromNullFloat(flow)

	if err := json.Unmarshal([]byte(alertsJSON), &snap.Alerts); err != nil {
		return nil, fmt.Errorf("decoding alerts: %w", err)
	}
	if err := json.Unmarshal([]byte(insightsJSON), &snap.Insights); err != nil {
		return nil, fmt.Errorf("decoding insights: %w", err)
	}
	return &snap, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
