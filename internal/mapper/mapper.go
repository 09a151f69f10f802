// Package mapper normalizes provider-specific lifecycle records into the
// canonical WorkItemEvent stream. It is the only place aware of provider
// label conventions; everything downstream sees canonical events.
package mapper

import (
	"fmt"
	"strings"

	"actcollective.org/momentum/internal/model"
)

// Board labels that signal a lifecycle transition. Lowercased for matching.
var (
	startedLabels = map[string]bool{
		"in progress": true,
		"doing":       true,
		"wip":         true,
	}
	blockedLabels = map[string]bool{
		"blocked": true,
		"waiting": true,
	}
)

// MapLabelChange translates a label add/remove on a work item into a
// canonical event kind. The second return is false when the label carries no
// lifecycle meaning.
func MapLabelChange(label, action string) (model.EventKind, bool) {
	name := strings.ToLower(strings.TrimSpace(label))

	switch {
	case startedLabels[name] && action == "add":
		return model.EventStartedWork, true
	case blockedLabels[name] && action == "add":
		return model.EventBlocked, true
	case blockedLabels[name] && action == "remove":
		return model.EventUnblocked, true
	}
	return "", false
}

// MalformedEventError marks a record that could not be normalized. The
// adapter logs and skips these; they never fail a run.
type MalformedEventError struct {
	ItemID string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event for item %q: %s", e.ItemID, e.Reason)
}

// Validate rejects events the calculator cannot use.
func Validate(ev model.WorkItemEvent) error {
	if ev.ItemID == "" {
		return &MalformedEventError{Reason: "missing item id"}
	}
	if ev.Timestamp.IsZero() {
		return &MalformedEventError{ItemID: ev.ItemID, Reason: "missing timestamp"}
	}
	switch ev.Kind {
	case model.EventCreated, model.EventStartedWork, model.EventMerged,
		model.EventClosed, model.EventBlocked, model.EventUnblocked:
		return nil
	}
	return &MalformedEventError{ItemID: ev.ItemID, Reason: fmt.Sprintf("unknown kind %q", ev.Kind)}
}

// Normalize validates, forces UTC, drops events at or past the window end,
// and deduplicates by (item, kind, timestamp). Events before the window
// start are kept: a Merged or Closed inside the window needs its earlier
// StartedWork/Created to form a sample. Returns the surviving events plus
// the count of malformed records dropped.
func Normalize(events []model.WorkItemEvent, window model.Window) ([]model.WorkItemEvent, int) {
	type key struct {
		itemID string
		kind   model.EventKind
		ts     int64
	}

	seen := make(map[key]bool, len(events))
	normalized := make([]model.WorkItemEvent, 0, len(events))
	malformed := 0

	for _, ev := range events {
		if err := Validate(ev); err != nil {
			malformed++
			continue
		}

		ev.Timestamp = ev.Timestamp.UTC()
		if !ev.Timestamp.Before(window.End) {
			continue
		}

		k := key{itemID: ev.ItemID, kind: ev.Kind, ts: ev.Timestamp.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		normalized = append(normalized, ev)
	}

	return normalized, malformed
}
