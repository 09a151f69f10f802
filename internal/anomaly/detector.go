// Package anomaly scans projected board state for flow problems and turns
// them into structured alerts. Pure derivation: no side effects, no clocks.
package anomaly

import (
	"sort"
	"time"

	"actcollective.org/momentum/internal/model"
)

// Detect evaluates each rule independently against the projected states, so a
// single item can yield several alerts. The result is ordered: the snapshot
// level WIP alert first, then item alerts by descending age.
func Detect(states []model.WorkItemState, wipCount int, thresholds model.Thresholds) []model.Alert {
	t := thresholds.Normalized()
	alerts := []model.Alert{}

	// Emitted once per snapshot, never per item.
	if wipCount > t.WIPLimit {
		alerts = append(alerts, model.Alert{
			Kind:     model.AlertWIPLimitExceeded,
			Severity: model.SeverityMedium,
		})
	}

	var itemAlerts []model.Alert
	for _, state := range states {
		switch state.Status {
		case model.StatusInProgress:
			if limit := days(t.StuckAfterDays); state.AgeInStatus > limit {
				itemAlerts = append(itemAlerts, model.Alert{
					ItemID:      state.ItemID,
					ItemTitle:   state.Title,
					Kind:        model.AlertStuckInProgress,
					AgeInStatus: state.AgeInStatus,
					Severity:    ageSeverity(state.AgeInStatus, limit),
				})
			}
		case model.StatusBlocked:
			if limit := days(t.BlockedAfterDays); state.AgeInStatus > limit {
				itemAlerts = append(itemAlerts, model.Alert{
					ItemID:      state.ItemID,
					ItemTitle:   state.Title,
					Kind:        model.AlertLongBlocked,
					AgeInStatus: state.AgeInStatus,
					Severity:    ageSeverity(state.AgeInStatus, limit),
				})
			}
		}
	}

	sort.SliceStable(itemAlerts, func(i, j int) bool {
		return itemAlerts[i].AgeInStatus > itemAlerts[j].AgeInStatus
	})

	return append(alerts, itemAlerts...)
}

// ageSeverity bands linearly on how far past the threshold the item is:
// under 2x is low, under 4x is medium, beyond that high.
func ageSeverity(age, threshold time.Duration) model.Severity {
	switch {
	case age > 4*threshold:
		return model.SeverityHigh
	case age > 2*threshold:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
