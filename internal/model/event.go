package model

import "time"

// EventKind is one lifecycle transition of a work item.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventStartedWork EventKind = "started_work"
	EventMerged      EventKind = "merged"
	EventClosed      EventKind = "closed"
	EventBlocked     EventKind = "blocked"
	EventUnblocked   EventKind = "unblocked"
)

// kindPrecedence orders kinds that share a timestamp. The lifecycle kinds
// follow Created ≤ StartedWork ≤ Merged ≤ Closed; Blocked/Unblocked may
// interleave anywhere, so they sort between start and merge.
var kindPrecedence = map[EventKind]int{
	EventCreated:     0,
	EventStartedWork: 1,
	EventBlocked:     2,
	EventUnblocked:   3,
	EventMerged:      4,
	EventClosed:      5,
}

// WorkItemEvent is a single normalized lifecycle transition pulled from the
// upstream tracker. Events are append-only: once recorded they are never
// mutated or deleted.
type WorkItemEvent struct {
	ItemID      string    `json:"item_id"`
	Kind        EventKind `json:"kind"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	SprintLabel string    `json:"sprint_label,omitempty"`
	Title       string    `json:"title,omitempty"`
}

// Before reports whether e sorts ahead of other: by timestamp first, then by
// kind precedence for ties.
func (e WorkItemEvent) Before(other WorkItemEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return kindPrecedence[e.Kind] < kindPrecedence[other.Kind]
}

// Window is a half-open interval [Start, End) over event time, always UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in days, floored at one day so that very
// short windows do not blow up per-week rates.
func (w Window) Days() float64 {
	days := w.End.Sub(w.Start).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
