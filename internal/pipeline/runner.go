// Package pipeline orchestrates a metrics run: fetch events, compute the
// snapshot, detect anomalies, generate insights, publish. Stages run
// strictly in order; a failed fetch or a cancelled context means no snapshot
// is written at all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"actcollective.org/momentum/common/id"
	"actcollective.org/momentum/common/logger"
	"actcollective.org/momentum/internal/anomaly"
	"actcollective.org/momentum/internal/insight"
	"actcollective.org/momentum/internal/metrics"
	"actcollective.org/momentum/internal/model"
	"actcollective.org/momentum/internal/source"
	"actcollective.org/momentum/internal/store"
)

const (
	// StageTimeout bounds each store or tracker call so a hung upstream
	// cannot stall the whole run.
	StageTimeout = 30 * time.Second

	publishAttempts = 3
	publishBackoff  = 500 * time.Millisecond
)

// Params selects what a single run computes.
type Params struct {
	// SprintLabel narrows the run to one sprint. Empty means all open work.
	SprintLabel string
	// WindowDays is the trailing window length. Zero falls back to 14.
	WindowDays int
	// AsOf anchors the window end. Zero means now.
	AsOf time.Time
	// RunID identifies the run in logs and summaries. Zero means generate one.
	RunID int64
}

type Runner struct {
	source     source.EventSource
	snapshots  store.SnapshotStore
	thresholds model.Thresholds
	logger     *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewRunner(src source.EventSource, snapshots store.SnapshotStore, thresholds model.Thresholds, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		source:     src,
		snapshots:  snapshots,
		thresholds: thresholds.Normalized(),
		logger:     log,
		now:        time.Now,
	}
}

// Run executes the full pipeline once. The returned summary is valid even on
// error for the fields that were populated before the failure.
func (r *Runner) Run(ctx context.Context, params Params) (model.RunSummary, error) {
	start := r.now()

	runID := params.RunID
	if runID == 0 {
		runID = id.New()
	}

	asOf := params.AsOf
	if asOf.IsZero() {
		asOf = start
	}
	asOf = asOf.UTC()

	windowDays := params.WindowDays
	if windowDays <= 0 {
		windowDays = 14
	}
	window := model.Window{
		Start: asOf.AddDate(0, 0, -windowDays),
		End:   asOf,
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:       logger.Ptr(runID),
		SprintLabel: logger.Ptr(params.SprintLabel),
		Component:   "momentum.pipeline",
	})

	summary := model.RunSummary{
		RunID:       runID,
		SprintLabel: params.SprintLabel,
		AsOfDate:    asOf,
	}

	slog.InfoContext(ctx, "run started",
		"window_start", window.Start,
		"window_end", window.End,
		"window_days", windowDays)

	events, stats, err := r.fetch(ctx, window, params.SprintLabel)
	if err != nil {
		return summary, fmt.Errorf("fetch events: %w", err)
	}
	summary.EventCount = len(events)
	summary.MalformedSkipped = stats.MalformedSkipped

	if stats.MalformedSkipped > 0 {
		slog.WarnContext(ctx, "skipped malformed events", "count", stats.MalformedSkipped)
	}

	snapshot := metrics.Compute(events, window, params.SprintLabel)
	snapshot.ID = runID
	snapshot.CreatedAt = r.now().UTC()

	states := model.ProjectStates(events, window.End)
	snapshot.Alerts = anomaly.Detect(states, snapshot.WIPCount, r.thresholds)
	summary.AlertCount = len(snapshot.Alerts)

	previous := r.previousSnapshot(ctx, params.SprintLabel, asOf)
	snapshot.Insights = insight.Generate(snapshot, previous, r.thresholds)
	summary.InsightCount = len(snapshot.Insights)

	// A cancelled run must not leave a half-baked snapshot behind, so the
	// cancellation check happens before the first write, not after.
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run cancelled before publish: %w", err)
	}

	if err := r.publish(ctx, &snapshot); err != nil {
		return summary, fmt.Errorf("publish snapshot: %w", err)
	}
	summary.Published = true
	summary.Duration = r.now().Sub(start)

	slog.InfoContext(ctx, "run completed",
		"event_count", summary.EventCount,
		"malformed_skipped", summary.MalformedSkipped,
		"alert_count", summary.AlertCount,
		"insight_count", summary.InsightCount,
		"duration_ms", summary.Duration.Milliseconds())

	return summary, nil
}

func (r *Runner) fetch(ctx context.Context, window model.Window, sprintLabel string) ([]model.WorkItemEvent, source.FetchStats, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, StageTimeout)
	defer cancel()

	return r.source.FetchEvents(fetchCtx, window, sprintLabel)
}

// previousSnapshot is best-effort. Trend insights degrade gracefully when
// history is missing or the store hiccups.
func (r *Runner) previousSnapshot(ctx context.Context, sprintLabel string, before time.Time) *model.MetricsSnapshot {
	prevCtx, cancel := context.WithTimeout(ctx, StageTimeout)
	defer cancel()

	previous, err := r.snapshots.GetPrevious(prevCtx, sprintLabel, before)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "failed to load previous snapshot, trend insights skipped", "error", err)
		}
		return nil
	}
	return previous
}

func (r *Runner) publish(ctx context.Context, snapshot *model.MetricsSnapshot) error {
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		publishCtx, cancel := context.WithTimeout(ctx, StageTimeout)
		err := r.snapshots.Upsert(publishCtx, snapshot)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		// Schema rejections never succeed on retry.
		if errors.Is(err, store.ErrPublishRejected) {
			return err
		}
		if !errors.Is(err, store.ErrPublishUnavailable) {
			return err
		}

		if attempt < publishAttempts {
			backoff := publishBackoff << (attempt - 1)
			slog.WarnContext(ctx, "publish failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return fmt.Errorf("publish retry cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
