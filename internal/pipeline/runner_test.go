package pipeline_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"actcollective.org/momentum/common/id"
	"actcollective.org/momentum/internal/model"
	"actcollective.org/momentum/internal/pipeline"
	"actcollective.org/momentum/internal/source"
	"actcollective.org/momentum/internal/store"
)

var _ = Describe("Runner", func() {
	var (
		ctx        context.Context
		mockSource *mockEventSource
		mockStore  *mockSnapshotStore
		thresholds model.Thresholds
		asOf       time.Time
	)

	newRunner := func() *pipeline.Runner {
		return pipeline.NewRunner(mockSource, mockStore, thresholds, nil)
	}

	sprintEvents := func(window model.Window) []model.WorkItemEvent {
		var events []model.WorkItemEvent
		for _, itemID := range []string{"issue-1", "issue-2", "issue-3"} {
			createdAt := window.Start.Add(time.Hour)
			events = append(events,
				model.WorkItemEvent{ItemID: itemID, Kind: model.EventCreated, Timestamp: createdAt},
				model.WorkItemEvent{ItemID: itemID, Kind: model.EventStartedWork, Timestamp: createdAt.Add(24 * time.Hour)},
				model.WorkItemEvent{ItemID: itemID, Kind: model.EventMerged, Timestamp: createdAt.Add(48 * time.Hour)},
				model.WorkItemEvent{ItemID: itemID, Kind: model.EventClosed, Timestamp: createdAt.Add(48 * time.Hour)},
			)
		}
		return events
	}

	BeforeEach(func() {
		ctx = context.Background()
		mockSource = &mockEventSource{}
		mockStore = &mockSnapshotStore{
			getPreviousFn: func(_ context.Context, _ string, _ time.Time) (*model.MetricsSnapshot, error) {
				return nil, store.ErrNotFound
			},
		}
		thresholds = model.DefaultThresholds()
		asOf = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

		err := id.Init(1)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("a successful run", func() {
		It("should publish one snapshot and report the summary", func() {
			var published *model.MetricsSnapshot
			mockSource.fetchFn = func(_ context.Context, window model.Window, _ string) ([]model.WorkItemEvent, source.FetchStats, error) {
				events := sprintEvents(window)
				return events, source.FetchStats{RawItems: 3, MalformedSkipped: 2}, nil
			}
			mockStore.upsertFn = func(_ context.Context, snapshot *model.MetricsSnapshot) error {
				published = snapshot
				return nil
			}

			summary, err := newRunner().Run(ctx, pipeline.Params{
				SprintLabel: "sprint-7",
				WindowDays:  14,
				AsOf:        asOf,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Published).To(BeTrue())
			Expect(summary.EventCount).To(Equal(12))
			Expect(summary.MalformedSkipped).To(Equal(2))
			Expect(summary.RunID).NotTo(BeZero())

			Expect(published).NotTo(BeNil())
			Expect(published.SprintLabel).To(Equal("sprint-7"))
			Expect(published.WindowStart).To(Equal(asOf.AddDate(0, 0, -14)))
			Expect(published.WindowEnd).To(Equal(asOf))
			Expect(published.CycleTimeSamples).To(Equal(3))
			Expect(published.ID).To(Equal(summary.RunID))
		})

		It("should use the caller's run ID when one is given", func() {
			mockStore.upsertFn = func(_ context.Context, _ *model.MetricsSnapshot) error { return nil }

			summary, err := newRunner().Run(ctx, pipeline.Params{RunID: 42, AsOf: asOf})

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.RunID).To(Equal(int64(42)))
		})

		It("should default the window to 14 days", func() {
			var gotWindow model.Window
			mockSource.fetchFn = func(_ context.Context, window model.Window, _ string) ([]model.WorkItemEvent, source.FetchStats, error) {
				gotWindow = window
				return nil, source.FetchStats{}, nil
			}

			_, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).NotTo(HaveOccurred())
			Expect(gotWindow.End.Sub(gotWindow.Start)).To(Equal(14 * 24 * time.Hour))
		})

		It("should feed the previous snapshot into trend insights", func() {
			prevCycle := 200.0
			mockStore.getPreviousFn = func(_ context.Context, sprintLabel string, before time.Time) (*model.MetricsSnapshot, error) {
				Expect(sprintLabel).To(Equal("sprint-7"))
				Expect(before).To(Equal(asOf))
				return &model.MetricsSnapshot{CycleTimeHours: &prevCycle}, nil
			}
			var published *model.MetricsSnapshot
			mockSource.fetchFn = func(_ context.Context, window model.Window, _ string) ([]model.WorkItemEvent, source.FetchStats, error) {
				return sprintEvents(window), source.FetchStats{}, nil
			}
			mockStore.upsertFn = func(_ context.Context, snapshot *model.MetricsSnapshot) error {
				published = snapshot
				return nil
			}

			_, err := newRunner().Run(ctx, pipeline.Params{SprintLabel: "sprint-7", AsOf: asOf})

			Expect(err).NotTo(HaveOccurred())
			// 200h → 24h cycle time triggers the improvement insight
			Expect(published.Insights).To(ContainElement(ContainSubstring("Cycle time improved")))
		})
	})

	Describe("fetch failures", func() {
		It("should fail the run without publishing anything", func() {
			mockSource.fetchFn = func(_ context.Context, _ model.Window, _ string) ([]model.WorkItemEvent, source.FetchStats, error) {
				return nil, source.FetchStats{}, source.ErrSourceUnavailable
			}

			summary, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, source.ErrSourceUnavailable)).To(BeTrue())
			Expect(summary.Published).To(BeFalse())
			Expect(mockStore.upsertCalls).To(BeZero())
		})
	})

	Describe("previous snapshot failures", func() {
		It("should degrade to a first-run snapshot instead of failing", func() {
			mockStore.getPreviousFn = func(_ context.Context, _ string, _ time.Time) (*model.MetricsSnapshot, error) {
				return nil, errors.New("connection refused")
			}
			mockStore.upsertFn = func(_ context.Context, _ *model.MetricsSnapshot) error { return nil }

			summary, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Published).To(BeTrue())
		})
	})

	Describe("publish failures", func() {
		It("should retry transient failures up to three attempts", func() {
			mockStore.upsertFn = func(_ context.Context, _ *model.MetricsSnapshot) error {
				if mockStore.upsertCalls < 3 {
					return store.ErrPublishUnavailable
				}
				return nil
			}

			summary, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Published).To(BeTrue())
			Expect(mockStore.upsertCalls).To(Equal(3))
		})

		It("should give up after exhausting publish attempts", func() {
			mockStore.upsertFn = func(_ context.Context, _ *model.MetricsSnapshot) error {
				return store.ErrPublishUnavailable
			}

			summary, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, store.ErrPublishUnavailable)).To(BeTrue())
			Expect(summary.Published).To(BeFalse())
			Expect(mockStore.upsertCalls).To(Equal(3))
		})

		It("should never retry a schema rejection", func() {
			mockStore.upsertFn = func(_ context.Context, _ *model.MetricsSnapshot) error {
				return store.ErrPublishRejected
			}

			_, err := newRunner().Run(ctx, pipeline.Params{AsOf: asOf})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, store.ErrPublishRejected)).To(BeTrue())
			Expect(mockStore.upsertCalls).To(Equal(1))
		})
	})

	Describe("cancellation", func() {
		It("should not publish a snapshot for a cancelled run", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			// The mock ignores its context, so the events come back fine; the
			// runner still has to notice the cancellation before publishing.
			mockSource.fetchFn = func(_ context.Context, window model.Window, _ string) ([]model.WorkItemEvent, source.FetchStats, error) {
				return sprintEvents(window), source.FetchStats{}, nil
			}

			summary, err := newRunner().Run(cancelled, pipeline.Params{AsOf: asOf})

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(summary.Published).To(BeFalse())
			Expect(mockStore.upsertCalls).To(BeZero())
		})
	})
})
