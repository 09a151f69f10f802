package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"actcollective.org/momentum/internal/model"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a SnapshotStore backed by the metrics_snapshots table
// (schema in core/db/schema.sql).
func NewPostgres(pool *pgxpool.Pool) SnapshotStore {
	return &postgresStore{pool: pool}
}

const upsertSnapshotSQL = `
INSERT INTO metrics_snapshots (
	id, sprint_label, as_of_date, window_start, window_end,
	cycle_time_hours, lead_time_hours, cycle_time_samples, lead_time_samples,
	throughput_per_week, wip_count, flow_efficiency_pct, clock_skew_suspected,
	alerts, insights, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
ON CONFLICT (sprint_label, as_of_date) DO UPDATE SET
	id = EXCLUDED.id,
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	cycle_time_hours = EXCLUDED.cycle_time_hours,
	lead_time_hours = EXCLUDED.lead_time_hours,
	cycle_time_samples = EXCLUDED.cycle_time_samples,
	lead_time_samples = EXCLUDED.lead_time_samples,
	throughput_per_week = EXCLUDED.throughput_per_week,
	wip_count = EXCLUDED.wip_count,
	flow_efficiency_pct = EXCLUDED.flow_efficiency_pct,
	clock_skew_suspected = EXCLUDED.clock_skew_suspected,
	alerts = EXCLUDED.alerts,
	insights = EXCLUDED.insights,
	created_at = now()`

func (s *postgresStore) Upsert(ctx context.Context, snapshot *model.MetricsSnapshot) error {
	alerts, insights, err := marshalSnapshotJSON(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %v: %w", err, ErrPublishRejected)
	}

	_, err = s.pool.Exec(ctx, upsertSnapshotSQL,
		snapshot.ID,
		snapshot.SprintLabel,
		snapshot.AsOfDate,
		snapshot.WindowStart,
		snapshot.WindowEnd,
		snapshot.CycleTimeHours,
		snapshot.LeadTimeHours,
		snapshot.CycleTimeSamples,
		snapshot.LeadTimeSamples,
		snapshot.ThroughputPerWeek,
		snapshot.WIPCount,
		snapshot.FlowEfficiencyPct,
		snapshot.ClockSkewSuspected,
		alerts,
		insights,
	)
	if err != nil {
		return classifyPgError("upserting snapshot", err)
	}
	return nil
}

const selectSnapshotSQL = `
SELECT id, sprint_label, as_of_date, window_start, window_end,
	cycle_time_hours, lead_time_hours, cycle_time_samples, lead_time_samples,
	throughput_per_week, wip_count, flow_efficiency_pct, clock_skew_suspected,
	alerts, insights, created_at
FROM metrics_snapshots`

func (s *postgresStore) GetPrevious(ctx context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		selectSnapshotSQL+` WHERE sprint_label = $1 AND as_of_date < $2 ORDER BY as_of_date DESC LIMIT 1`,
		sprintLabel, before)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching previous snapshot: %w", err)
	}
	return snap, nil
}

func (s *postgresStore) List(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		selectSnapshotSQL+` WHERE sprint_label = $1 ORDER BY as_of_date DESC LIMIT $2`,
		sprintLabel, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []model.MetricsSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*model.MetricsSnapshot, error) {
	var (
		snap         model.MetricsSnapshot
		alertsJSON   []byte
		insightsJSON []byte
	)
	err := row.Scan(
		&snap.ID,
		&snap.SprintLabel,
		&snap.AsOfDate,
		&snap.WindowStart,
		&snap.WindowEnd,
		&snap.CycleTimeHours,
		&snap.LeadTimeHours,
		&snap.CycleTimeSamples,
		&snap.LeadTimeSamples,
		&snap.ThroughputPerWeek,
		&snap.WIPCount,
		&snap.FlowEfficiencyPct,
		&snap.ClockSkewSuspected,
		&alertsJSON,
		&insightsJSON,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(alertsJSON, &snap.Alerts); err != nil {
		return nil, fmt.Errorf("decoding alerts: %w", err)
	}
	if err := json.Unmarshal(insightsJSON, &snap.Insights); err != nil {
		return nil, fmt.Errorf("decoding insights: %w", err)
	}
	return &snap, nil
}

func marshalSnapshotJSON(snapshot *model.MetricsSnapshot) (alerts, insights []byte, err error) {
	if snapshot.Alerts == nil {
		snapshot.Alerts = []model.Alert{}
	}
	if snapshot.Insights == nil {
		snapshot.Insights = []string{}
	}
	alerts, err = json.Marshal(snapshot.Alerts)
	if err != nil {
		return nil, nil, err
	}
	insights, err = json.Marshal(snapshot.Insights)
	if err != nil {
		return nil, nil, err
	}
	return alerts, insights, nil
}

// classifyPgError splits store failures into the retryable and fatal
// buckets. Data and schema errors (SQLSTATE classes 22, 23, 42) mean the
// payload shape is wrong and retrying cannot help; everything else is
// assumed transient.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return fmt.Errorf("%s: %v: %w", op, pgErr, ErrPublishRejected)
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrPublishUnavailable)
}
