package dto

import (
	"time"

	"actcollective.org/momentum/internal/model"
)

type Alert struct {
	ItemID    string  `json:"item_id,omitempty"`
	ItemTitle string  `json:"item_title,omitempty"`
	Kind      string  `json:"kind"`
	AgeHours  float64 `json:"age_hours,omitempty"`
	Severity  string  `json:"severity"`
}

type Snapshot struct {
	ID                 int64     `json:"id"`
	SprintLabel        string    `json:"sprint_label"`
	AsOfDate           string    `json:"as_of_date"`
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	CycleTimeHours     *float64  `json:"cycle_time_hours,omitempty"`
	LeadTimeHours      *float64  `json:"lead_time_hours,omitempty"`
	CycleTimeSamples   int       `json:"cycle_time_samples"`
	LeadTimeSamples    int       `json:"lead_time_samples"`
	ThroughputPerWeek  float64   `json:"throughput_per_week"`
	WIPCount           int       `json:"wip_count"`
	FlowEfficiencyPct  *float64  `json:"flow_efficiency_pct,omitempty"`
	ClockSkewSuspected bool      `json:"clock_skew_suspected,omitempty"`
	Alerts             []Alert   `json:"alerts"`
	Insights           []string  `json:"insights"`
	CreatedAt          time.Time `json:"created_at"`
}

type ListSnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots"`
}

func SnapshotFromModel(s model.MetricsSnapshot) Snapshot {
	alerts := make([]Alert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		alerts = append(alerts, Alert{
			ItemID:    a.ItemID,
			ItemTitle: a.ItemTitle,
			Kind:      string(a.Kind),
			AgeHours:  a.AgeInStatus.Hours(),
			Severity:  string(a.Severity),
		})
	}

	return Snapshot{
		ID:                 s.ID,
		SprintLabel:        s.SprintLabel,
		AsOfDate:           s.AsOfDate.Format("2006-01-02"),
		WindowStart:        s.WindowStart,
		WindowEnd:          s.WindowEnd,
		CycleTimeHours:     s.CycleTimeHours,
		LeadTimeHours:      s.LeadTimeHours,
		CycleTimeSamples:   s.CycleTimeSamples,
		LeadTimeSamples:    s.LeadTimeSamples,
		ThroughputPerWeek:  s.ThroughputPerWeek,
		WIPCount:           s.WIPCount,
		FlowEfficiencyPct:  s.FlowEfficiencyPct,
		ClockSkewSuspected: s.ClockSkewSuspected,
		Alerts:             alerts,
		Insights:           s.Insights,
		CreatedAt:          s.CreatedAt,
	}
}
