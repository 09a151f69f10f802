// Package insight turns metric deltas into short, ranked recommendations.
// Deliberately a fixed rule table rather than anything learned: the same
// snapshot pair always yields the same strings, which keeps the dashboard
// reproducible and the rules testable one by one.
package insight

import (
	"fmt"

	"actcollective.org/momentum/internal/model"
)

// MaxInsights caps the list so the dashboard shows a digest, not a report.
const MaxInsights = 5

type rule struct {
	name  string
	build func(in input) (string, bool)
}

type input struct {
	current    model.MetricsSnapshot
	previous   *model.MetricsSnapshot
	thresholds model.Thresholds
}

// Rules are evaluated in priority order; each contributes at most one entry.
var rules = []rule{
	{name: "wip_overload", build: wipOverload},
	{name: "cycle_time_improved", build: cycleTimeImproved},
	{name: "fast_shipping", build: fastShipping},
	{name: "oldest_blocked", build: oldestBlocked},
	{name: "throughput_drop", build: throughputDrop},
}

// Generate runs the rule table against the computed snapshot and the prior
// one for the same sprint (nil on the first run). The previous snapshot is
// fetched before the run, never inferred from the publish step.
func Generate(current model.MetricsSnapshot, previous *model.MetricsSnapshot, thresholds model.Thresholds) []string {
	in := input{current: current, previous: previous, thresholds: thresholds.Normalized()}

	insights := []string{}
	for _, r := range rules {
		if len(insights) >= MaxInsights {
			break
		}
		if msg, ok := r.build(in); ok {
			insights = append(insights, msg)
		}
	}
	return insights
}

func wipOverload(in input) (string, bool) {
	if in.current.WIPCount <= in.thresholds.WIPLimit {
		return "", false
	}
	return fmt.Sprintf("Too much WIP: %d items in progress against a limit of %d; finish before starting new work.",
		in.current.WIPCount, in.thresholds.WIPLimit), true
}

func cycleTimeImproved(in input) (string, bool) {
	if in.previous == nil || in.current.CycleTimeHours == nil || in.previous.CycleTimeHours == nil {
		return "", false
	}
	prev, cur := *in.previous.CycleTimeHours, *in.current.CycleTimeHours
	if prev <= 0 || cur >= prev*0.8 {
		return "", false
	}
	improvement := (prev - cur) / prev * 100
	return fmt.Sprintf("Cycle time improved %.0f%% (%.1fh → %.1fh): whatever changed, keep doing it.",
		improvement, prev, cur), true
}

func fastShipping(in input) (string, bool) {
	if in.current.CycleTimeHours == nil || *in.current.CycleTimeHours >= 24 {
		return "", false
	}
	return fmt.Sprintf("Excellent shipping speed: median cycle time is %.1fh, under a day.",
		*in.current.CycleTimeHours), true
}

func oldestBlocked(in input) (string, bool) {
	var oldest *model.Alert
	for i := range in.current.Alerts {
		a := &in.current.Alerts[i]
		if a.Kind != model.AlertLongBlocked {
			continue
		}
		if oldest == nil || a.AgeInStatus > oldest.AgeInStatus {
			oldest = a
		}
	}
	if oldest == nil {
		return "", false
	}
	name := oldest.ItemTitle
	if name == "" {
		name = oldest.ItemID
	}
	blockedDays := oldest.AgeInStatus.Hours() / 24
	return fmt.Sprintf("%q has been blocked for %.1f days: unblock it or descope it.", name, blockedDays), true
}

func throughputDrop(in input) (string, bool) {
	if in.previous == nil || in.previous.ThroughputPerWeek <= 0 {
		return "", false
	}
	prev, cur := in.previous.ThroughputPerWeek, in.current.ThroughputPerWeek
	if cur > prev*0.75 {
		return "", false
	}
	drop := (prev - cur) / prev * 100
	return fmt.Sprintf("Throughput dropped %.0f%% vs the previous snapshot (%.1f → %.1f items/week): check for hidden blockers.",
		drop, prev, cur), true
}
