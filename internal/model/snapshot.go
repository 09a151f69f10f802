package model

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type AlertKind string

const (
	AlertStuckInProgress  AlertKind = "stuck_in_progress"
	AlertWIPLimitExceeded AlertKind = "wip_limit_exceeded"
	AlertLongBlocked      AlertKind = "long_blocked"
)

// Alert is a structured anomaly finding. WIPLimitExceeded alerts reference
// no specific item and carry an empty ItemID.
type Alert struct {
	ItemID      string        `json:"item_id,omitempty"`
	ItemTitle   string        `json:"item_title,omitempty"`
	Kind        AlertKind     `json:"kind"`
	AgeInStatus time.Duration `json:"age_in_status,omitempty"`
	Severity    Severity      `json:"severity"`
}

// MetricsSnapshot is the unit of pipeline output, one per
// (sprint_label, as_of_date). A snapshot is immutable once published; a later
// run for the same key replaces it wholesale via upsert.
type MetricsSnapshot struct {
	ID          int64     `json:"id"`
	SprintLabel string    `json:"sprint_label"`
	AsOfDate    time.Time `json:"as_of_date"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Median deltas in hours; nil when fewer than the minimum number of
	// samples qualified (reported as absent, never as a noisy point figure).
	CycleTimeHours *float64 `json:"cycle_time_hours,omitempty"`
	LeadTimeHours  *float64 `json:"lead_time_hours,omitempty"`

	CycleTimeSamples int `json:"cycle_time_samples"`
	LeadTimeSamples  int `json:"lead_time_samples"`

	ThroughputPerWeek float64 `json:"throughput_per_week"`
	WIPCount          int     `json:"wip_count"`

	// FlowEfficiencyPct is cycle/lead × 100, only set when both medians are
	// known and lead > 0. Values above 100 are reported as computed with
	// ClockSkewSuspected set, never silently clamped.
	FlowEfficiencyPct  *float64 `json:"flow_efficiency_pct,omitempty"`
	ClockSkewSuspected bool     `json:"clock_skew_suspected,omitempty"`

	Alerts   []Alert  `json:"alerts"`
	Insights []string `json:"insights"`

	CreatedAt time.Time `json:"created_at"`
}

// Thresholds carries the anomaly-detection knobs. Callers pass thresholds
// explicitly rather than reading ambient config.
type Thresholds struct {
	WIPLimit         int `json:"wip_limit" yaml:"wip_limit"`
	StuckAfterDays   int `json:"stuck_after_days" yaml:"stuck_after_days"`
	BlockedAfterDays int `json:"blocked_after_days" yaml:"blocked_after_days"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WIPLimit:         3,
		StuckAfterDays:   3,
		BlockedAfterDays: 2,
	}
}

// Normalized returns t with zero or negative fields replaced by defaults.
func (t Thresholds) Normalized() Thresholds {
	def := DefaultThresholds()
	if t.WIPLimit <= 0 {
		t.WIPLimit = def.WIPLimit
	}
	if t.StuckAfterDays <= 0 {
		t.StuckAfterDays = def.StuckAfterDays
	}
	if t.BlockedAfterDays <= 0 {
		t.BlockedAfterDays = def.BlockedAfterDays
	}
	return t
}

// RunSummary is what the trigger surface reports after a pipeline invocation.
type RunSummary struct {
	RunID            int64         `json:"run_id"`
	SprintLabel      string        `json:"sprint_label"`
	AsOfDate         time.Time     `json:"as_of_date"`
	EventCount       int           `json:"event_count"`
	MalformedSkipped int           `json:"malformed_skipped"`
	AlertCount       int           `json:"alert_count"`
	InsightCount     int           `json:"insight_count"`
	Published        bool          `json:"published"`
	Duration         time.Duration `json:"duration"`
}
