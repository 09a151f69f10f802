package model

import (
	"sort"
	"time"
)

// Status is the derived position of a work item on the board.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// WorkItemState is a projection over an item's events. It is never stored:
// it exists only as long as its owning item has at least one event.
type WorkItemState struct {
	ItemID      string
	Title       string
	SprintLabel string
	Status      Status
	// EnteredAt is when the item entered its current status.
	EnteredAt time.Time
	// AgeInStatus is wall-clock time from EnteredAt to the projection instant.
	AgeInStatus time.Duration
}

// ProjectStates replays each item's events in order and returns the state of
// every item as of the given instant. Events at or after asOf are ignored so
// the projection is a point-in-time figure.
func ProjectStates(events []WorkItemEvent, asOf time.Time) []WorkItemState {
	byItem := make(map[string][]WorkItemEvent)
	order := make([]string, 0)
	for _, ev := range events {
		if !ev.Timestamp.Before(asOf) {
			continue
		}
		if _, seen := byItem[ev.ItemID]; !seen {
			order = append(order, ev.ItemID)
		}
		byItem[ev.ItemID] = append(byItem[ev.ItemID], ev)
	}
	sort.Strings(order)

	states := make([]WorkItemState, 0, len(order))
	for _, itemID := range order {
		states = append(states, projectItem(itemID, byItem[itemID], asOf))
	}
	return states
}

func projectItem(itemID string, events []WorkItemEvent, asOf time.Time) WorkItemState {
	sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })

	state := WorkItemState{
		ItemID:    itemID,
		Status:    StatusTodo,
		EnteredAt: events[0].Timestamp,
	}

	// resumeStatus is where an Unblocked event returns the item to.
	resumeStatus := StatusTodo

	for _, ev := range events {
		if ev.Title != "" {
			state.Title = ev.Title
		}
		if ev.SprintLabel != "" {
			state.SprintLabel = ev.SprintLabel
		}

		next := state.Status
		switch ev.Kind {
		case EventCreated:
			next = StatusTodo
			resumeStatus = StatusTodo
		case EventStartedWork, EventMerged:
			next = StatusInProgress
			resumeStatus = StatusInProgress
		case EventBlocked:
			next = StatusBlocked
		case EventUnblocked:
			next = resumeStatus
		case EventClosed:
			next = StatusDone
			resumeStatus = StatusDone
		}

		if next != state.Status {
			state.Status = next
			state.EnteredAt = ev.Timestamp
		}
	}

	state.AgeInStatus = asOf.Sub(state.EnteredAt)
	if state.AgeInStatus < 0 {
		state.AgeInStatus = 0
	}
	return state
}
