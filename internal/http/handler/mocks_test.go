package handler_test

import (
	"context"
	"time"

	"actcollective.org/momentum/internal/model"
	"actcollective.org/momentum/internal/queue"
)

type mockProducer struct {
	enqueueFn func(ctx context.Context, req queue.RunRequest) error
}

func (m *mockProducer) Enqueue(ctx context.Context, req queue.RunRequest) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, req)
	}
	return nil
}

func (m *mockProducer) Close() error { return nil }

type mockSnapshotStore struct {
	listFn func(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error)
}

func (m *mockSnapshotStore) Upsert(_ context.Context, _ *model.MetricsSnapshot) error { return nil }

func (m *mockSnapshotStore) GetPrevious(_ context.Context, _ string, _ time.Time) (*model.MetricsSnapshot, error) {
	return nil, nil
}

func (m *mockSnapshotStore) List(ctx context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sprintLabel, limit)
	}
	return nil, nil
}
