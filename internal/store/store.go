// Package store persists computed snapshots for dashboard consumption. The
// pipeline only ever appends or replaces whole snapshots; it never patches a
// stored record in place.
package store

import (
	"context"
	"errors"
	"time"

	"actcollective.org/momentum/internal/model"
)

// ErrNotFound is returned when a requested snapshot does not exist.
var ErrNotFound = errors.New("not found")

// ErrPublishUnavailable marks a transient store failure. Callers retry these
// with bounded backoff.
var ErrPublishUnavailable = errors.New("snapshot store unavailable")

// ErrPublishRejected marks a schema-level rejection of the payload shape.
// Never retried: the mismatch has to be fixed upstream.
var ErrPublishRejected = errors.New("snapshot rejected by store")

// SnapshotStore is the publish-side contract. Upsert is keyed by
// (sprint_label, as_of_date) and must be a single atomic write; last write
// wins under concurrent runs, with no merge logic and no partial state
// visible to readers.
type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *model.MetricsSnapshot) error

	// GetPrevious returns the most recent snapshot for the sprint strictly
	// before the given date, or ErrNotFound. Fetched ahead of a run to feed
	// the insight rules; the publish path never reads it.
	GetPrevious(ctx context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error)

	// List returns the newest snapshots for a sprint, most recent first.
	List(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error)
}
