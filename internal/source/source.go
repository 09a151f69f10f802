// Package source adapts external project trackers into the canonical
// WorkItemEvent stream. Adapters are read-only: the pipeline never writes
// back to the tracker.
package source

import (
	"context"
	"errors"

	"actcollective.org/momentum/internal/model"
)

// ErrSourceUnavailable means the upstream tracker could not be reached. It is
// fatal for the run: no partial snapshot is produced.
var ErrSourceUnavailable = errors.New("event source unavailable")

// FetchStats reports how a fetch went alongside its events. Malformed
// records are skipped, not fatal; partial results are still usable, but the
// skip count surfaces so operators can chase data quality separately.
type FetchStats struct {
	RawItems         int
	MalformedSkipped int
}

// EventSource fetches every lifecycle event relevant to the window,
// deduplicated by (item, kind, timestamp). A sprint label narrows the query;
// the empty label means all open work.
type EventSource interface {
	FetchEvents(ctx context.Context, window model.Window, sprintLabel string) ([]model.WorkItemEvent, FetchStats, error)
}
