// Package metrics computes velocity figures from normalized work-item events.
// Everything here is a pure function of its inputs: no clocks, no I/O.
package metrics

import (
	"sort"
	"time"

	"actcollective.org/momentum/internal/model"
)

// MinSamples is the smallest sample set a median is reported for. Below this
// the figure is statistically meaningless and the field stays nil.
const MinSamples = 3

// Compute fills the numeric fields of a MetricsSnapshot from the event
// stream. Alerts and insights are populated by later pipeline stages.
//
// Cycle time pairs the earliest StartedWork with the first Merged event,
// counting only items whose Merged falls inside the window. Lead time pairs
// Created with the first Closed inside the window. Pairs with a negative
// delta (out-of-order ingestion, clock skew upstream) are dropped from the
// sample set rather than clamped, so they cannot zero-inflate the median.
func Compute(events []model.WorkItemEvent, window model.Window, sprintLabel string) model.MetricsSnapshot {
	snap := model.MetricsSnapshot{
		SprintLabel: sprintLabel,
		AsOfDate:    window.End.UTC().Truncate(24 * time.Hour),
		WindowStart: window.Start.UTC(),
		WindowEnd:   window.End.UTC(),
		Alerts:      []model.Alert{},
		Insights:    []string{},
	}

	timelines := groupByItem(events)

	var cycleSamples, leadSamples []float64
	closedInWindow := 0

	for _, timeline := range timelines {
		started := firstOfKind(timeline, model.EventStartedWork)
		merged := firstOfKind(timeline, model.EventMerged)
		created := firstOfKind(timeline, model.EventCreated)
		closed := firstOfKind(timeline, model.EventClosed)

		if started != nil && merged != nil && window.Contains(merged.Timestamp) {
			if delta := merged.Timestamp.Sub(started.Timestamp); delta >= 0 {
				cycleSamples = append(cycleSamples, delta.Hours())
			}
		}

		if closed != nil && window.Contains(closed.Timestamp) {
			closedInWindow++
			if created != nil {
				if delta := closed.Timestamp.Sub(created.Timestamp); delta >= 0 {
					leadSamples = append(leadSamples, delta.Hours())
				}
			}
		}
	}

	snap.CycleTimeSamples = len(cycleSamples)
	snap.LeadTimeSamples = len(leadSamples)
	snap.CycleTimeHours = median(cycleSamples)
	snap.LeadTimeHours = median(leadSamples)

	snap.ThroughputPerWeek = float64(closedInWindow) / (window.Days() / 7)

	for _, state := range model.ProjectStates(events, window.End) {
		if state.Status == model.StatusInProgress {
			snap.WIPCount++
		}
	}

	if snap.CycleTimeHours != nil && snap.LeadTimeHours != nil && *snap.LeadTimeHours > 0 {
		pct := *snap.CycleTimeHours / *snap.LeadTimeHours * 100
		snap.FlowEfficiencyPct = &pct
		// Cycle time exceeding lead time means upstream clocks disagree.
		// Report the figure as computed and flag it instead of clamping.
		snap.ClockSkewSuspected = pct > 100
	}

	return snap
}

func groupByItem(events []model.WorkItemEvent) map[string][]model.WorkItemEvent {
	byItem := make(map[string][]model.WorkItemEvent)
	for _, ev := range events {
		byItem[ev.ItemID] = append(byItem[ev.ItemID], ev)
	}
	for _, timeline := range byItem {
		sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	}
	return byItem
}

func firstOfKind(timeline []model.WorkItemEvent, kind model.EventKind) *model.WorkItemEvent {
	for i := range timeline {
		if timeline[i].Kind == kind {
			return &timeline[i]
		}
	}
	return nil
}

// median returns the middle sample (mean of the two middle samples for even
// counts), or nil when fewer than MinSamples qualify. Median rather than mean
// keeps abandoned-then-resumed outliers from dominating.
func median(samples []float64) *float64 {
	if len(samples) < MinSamples {
		return nil
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	var m float64
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		m = sorted[mid]
	}
	return &m
}
