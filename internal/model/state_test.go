package model_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"actcollective.org/momentum/internal/model"
)

var _ = Describe("ProjectStates", func() {
	var asOf time.Time

	ev := func(itemID string, kind model.EventKind, ts time.Time) model.WorkItemEvent {
		return model.WorkItemEvent{ItemID: itemID, Kind: kind, Timestamp: ts}
	}

	BeforeEach(func() {
		asOf = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	})

	It("should replay the lifecycle into the current status", func() {
		start := asOf.Add(-96 * time.Hour)
		events := []model.WorkItemEvent{
			ev("a", model.EventCreated, start),
			ev("a", model.EventStartedWork, start.Add(24*time.Hour)),
			ev("a", model.EventClosed, start.Add(72*time.Hour)),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states).To(HaveLen(1))
		Expect(states[0].Status).To(Equal(model.StatusDone))
		Expect(states[0].EnteredAt).To(Equal(start.Add(72 * time.Hour)))
		Expect(states[0].AgeInStatus).To(Equal(24 * time.Hour))
	})

	It("should return a blocked item to its prior status on unblock", func() {
		start := asOf.Add(-120 * time.Hour)
		events := []model.WorkItemEvent{
			ev("a", model.EventCreated, start),
			ev("a", model.EventStartedWork, start.Add(12*time.Hour)),
			ev("a", model.EventBlocked, start.Add(24*time.Hour)),
			ev("a", model.EventUnblocked, start.Add(48*time.Hour)),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].Status).To(Equal(model.StatusInProgress))
		Expect(states[0].EnteredAt).To(Equal(start.Add(48 * time.Hour)))
	})

	It("should return an unblocked item to todo when work never started", func() {
		start := asOf.Add(-72 * time.Hour)
		events := []model.WorkItemEvent{
			ev("a", model.EventCreated, start),
			ev("a", model.EventBlocked, start.Add(12*time.Hour)),
			ev("a", model.EventUnblocked, start.Add(24*time.Hour)),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].Status).To(Equal(model.StatusTodo))
	})

	It("should treat a merge without an explicit start as in progress", func() {
		start := asOf.Add(-48 * time.Hour)
		events := []model.WorkItemEvent{
			ev("a", model.EventCreated, start),
			ev("a", model.EventMerged, start.Add(12*time.Hour)),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].Status).To(Equal(model.StatusInProgress))
	})

	It("should ignore events at or after the projection instant", func() {
		events := []model.WorkItemEvent{
			ev("a", model.EventCreated, asOf.Add(-24*time.Hour)),
			ev("a", model.EventClosed, asOf),
			ev("b", model.EventCreated, asOf.Add(time.Hour)),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states).To(HaveLen(1))
		Expect(states[0].ItemID).To(Equal("a"))
		Expect(states[0].Status).To(Equal(model.StatusTodo))
	})

	It("should keep the latest title and sprint label seen", func() {
		start := asOf.Add(-48 * time.Hour)
		events := []model.WorkItemEvent{
			{ItemID: "a", Kind: model.EventCreated, Timestamp: start, Title: "Old title", SprintLabel: "sprint-6"},
			{ItemID: "a", Kind: model.EventStartedWork, Timestamp: start.Add(time.Hour), Title: "New title", SprintLabel: "sprint-7"},
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].Title).To(Equal("New title"))
		Expect(states[0].SprintLabel).To(Equal("sprint-7"))
	})

	It("should order same-timestamp events by lifecycle precedence", func() {
		ts := asOf.Add(-24 * time.Hour)
		// arrival order is scrambled on purpose
		events := []model.WorkItemEvent{
			ev("a", model.EventClosed, ts),
			ev("a", model.EventCreated, ts),
			ev("a", model.EventStartedWork, ts),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].Status).To(Equal(model.StatusDone))
	})

	It("should return items in a stable sorted order", func() {
		ts := asOf.Add(-time.Hour)
		events := []model.WorkItemEvent{
			ev("zebra", model.EventCreated, ts),
			ev("alpha", model.EventCreated, ts),
		}

		states := model.ProjectStates(events, asOf)

		Expect(states[0].ItemID).To(Equal("alpha"))
		Expect(states[1].ItemID).To(Equal("zebra"))
	})
})
