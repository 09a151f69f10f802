package pipeline_test

import (
	"context"
	"time"

	"actcollective.org/momentum/internal/model"
	"actcollective.org/momentum/internal/source"
)

type mockEventSource struct {
	fetchFn func(ctx context.Context, window model.Window, sprintLabel string) ([]model.WorkItemEvent, source.FetchStats, error)
}

func (m *mockEventSource) FetchEvents(ctx context.Context, window model.Window, sprintLabel string) ([]model.WorkItemEvent, source.FetchStats, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, window, sprintLabel)
	}
	return nil, source.FetchStats{}, nil
}

type mockSnapshotStore struct {
	upsertFn      func(ctx context.Context, snapshot *model.MetricsSnapshot) error
	getPreviousFn func(ctx context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error)
	listFn        func(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error)

	upsertCalls int
}

func (m *mockSnapshotStore) Upsert(ctx context.Context, snapshot *model.MetricsSnapshot) error {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, snapshot)
	}
	return nil
}

func (m *mockSnapshotStore) GetPrevious(ctx context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error) {
	if m.getPreviousFn != nil {
		return m.getPreviousFn(ctx, sprintLabel, before)
	}
	return nil, nil
}

func (m *mockSnapshotStore) List(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sprintLabel, limit)
	}
	return nil, nil
}
