package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"actcollective.org/momentum/internal/metrics"
	"actcollective.org/momentum/internal/model"
)

var _ = Describe("Compute", func() {
	var (
		window model.Window
		end    time.Time
	)

	ev := func(itemID string, kind model.EventKind, ts time.Time) model.WorkItemEvent {
		return model.WorkItemEvent{ItemID: itemID, Kind: kind, Timestamp: ts}
	}

	// completedItem emits the full created→started→merged→closed lifecycle
	// with the given offsets from the window start.
	completedItem := func(itemID string, createdAt time.Time, cycleHours, leadHours float64) []model.WorkItemEvent {
		started := createdAt.Add(time.Duration(leadHours-cycleHours) * time.Hour)
		done := createdAt.Add(time.Duration(leadHours) * time.Hour)
		return []model.WorkItemEvent{
			ev(itemID, model.EventCreated, createdAt),
			ev(itemID, model.EventStartedWork, started),
			ev(itemID, model.EventMerged, done),
			ev(itemID, model.EventClosed, done),
		}
	}

	BeforeEach(func() {
		end = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
		window = model.Window{Start: end.AddDate(0, 0, -14), End: end}
	})

	Describe("cycle and lead time medians", func() {
		Context("when fewer than three samples qualify", func() {
			It("should report the sample count but leave the medians nil", func() {
				events := completedItem("a", window.Start.Add(time.Hour), 10, 20)

				snap := metrics.Compute(events, window, "sprint-7")

				Expect(snap.CycleTimeSamples).To(Equal(1))
				Expect(snap.LeadTimeSamples).To(Equal(1))
				Expect(snap.CycleTimeHours).To(BeNil())
				Expect(snap.LeadTimeHours).To(BeNil())
			})
		})

		Context("when three items completed in the window", func() {
			It("should report the median of the samples", func() {
				var events []model.WorkItemEvent
				events = append(events, completedItem("a", window.Start.Add(time.Hour), 24, 48)...)
				events = append(events, completedItem("b", window.Start.Add(2*time.Hour), 48, 96)...)
				events = append(events, completedItem("c", window.Start.Add(3*time.Hour), 120, 240)...)

				snap := metrics.Compute(events, window, "sprint-7")

				Expect(snap.CycleTimeSamples).To(Equal(3))
				Expect(snap.CycleTimeHours).NotTo(BeNil())
				Expect(*snap.CycleTimeHours).To(BeNumerically("~", 48, 0.001))
				Expect(snap.LeadTimeHours).NotTo(BeNil())
				Expect(*snap.LeadTimeHours).To(BeNumerically("~", 96, 0.001))
			})
		})

		Context("when the sample count is even", func() {
			It("should average the two middle samples", func() {
				var events []model.WorkItemEvent
				events = append(events, completedItem("a", window.Start.Add(time.Hour), 10, 20)...)
				events = append(events, completedItem("b", window.Start.Add(time.Hour), 20, 40)...)
				events = append(events, completedItem("c", window.Start.Add(time.Hour), 40, 80)...)
				events = append(events, completedItem("d", window.Start.Add(time.Hour), 80, 160)...)

				snap := metrics.Compute(events, window, "")

				Expect(snap.CycleTimeHours).NotTo(BeNil())
				Expect(*snap.CycleTimeHours).To(BeNumerically("~", 30, 0.001))
			})
		})

		Context("when a pair has a negative delta", func() {
			It("should drop the sample instead of clamping it to zero", func() {
				mergedAt := window.Start.Add(48 * time.Hour)
				events := []model.WorkItemEvent{
					// started after merged: clock skew upstream
					ev("a", model.EventStartedWork, mergedAt.Add(6*time.Hour)),
					ev("a", model.EventMerged, mergedAt),
				}
				events = append(events, completedItem("b", window.Start.Add(time.Hour), 24, 48)...)
				events = append(events, completedItem("c", window.Start.Add(time.Hour), 24, 48)...)
				events = append(events, completedItem("d", window.Start.Add(time.Hour), 24, 48)...)

				snap := metrics.Compute(events, window, "")

				Expect(snap.CycleTimeSamples).To(Equal(3))
				Expect(*snap.CycleTimeHours).To(BeNumerically("~", 24, 0.001))
			})
		})

		Context("when work started before the window", func() {
			It("should still count the pair if the merge landed inside", func() {
				started := window.Start.Add(-72 * time.Hour)
				events := []model.WorkItemEvent{
					ev("a", model.EventStartedWork, started),
					ev("a", model.EventMerged, window.Start.Add(24*time.Hour)),
				}
				events = append(events, completedItem("b", window.Start.Add(time.Hour), 24, 48)...)
				events = append(events, completedItem("c", window.Start.Add(time.Hour), 24, 48)...)

				snap := metrics.Compute(events, window, "")

				Expect(snap.CycleTimeSamples).To(Equal(3))
			})
		})

		Context("when the merge landed before the window", func() {
			It("should not count the pair", func() {
				events := []model.WorkItemEvent{
					ev("a", model.EventStartedWork, window.Start.Add(-96*time.Hour)),
					ev("a", model.EventMerged, window.Start.Add(-24*time.Hour)),
				}

				snap := metrics.Compute(events, window, "")

				Expect(snap.CycleTimeSamples).To(BeZero())
			})
		})
	})

	Describe("throughput", func() {
		It("should normalize closed items to a per-week rate", func() {
			var events []model.WorkItemEvent
			for _, id := range []string{"a", "b", "c", "d"} {
				events = append(events, completedItem(id, window.Start.Add(time.Hour), 10, 20)...)
			}

			snap := metrics.Compute(events, window, "")

			// 4 closed over a 14-day window = 2 per week
			Expect(snap.ThroughputPerWeek).To(BeNumerically("~", 2.0, 0.001))
		})

		It("should be zero when nothing closed", func() {
			events := []model.WorkItemEvent{
				ev("a", model.EventCreated, window.Start.Add(time.Hour)),
				ev("a", model.EventStartedWork, window.Start.Add(2*time.Hour)),
			}

			snap := metrics.Compute(events, window, "")

			Expect(snap.ThroughputPerWeek).To(BeZero())
		})
	})

	Describe("WIP count", func() {
		It("should count items in progress at the window end, not throughout", func() {
			events := []model.WorkItemEvent{
				ev("open-1", model.EventStartedWork, window.Start.Add(24*time.Hour)),
				ev("open-2", model.EventStartedWork, window.Start.Add(48*time.Hour)),
				// was in progress mid-window but closed before the end
				ev("done-1", model.EventStartedWork, window.Start.Add(24*time.Hour)),
				ev("done-1", model.EventClosed, window.Start.Add(72*time.Hour)),
				// blocked items are not WIP
				ev("blocked-1", model.EventStartedWork, window.Start.Add(24*time.Hour)),
				ev("blocked-1", model.EventBlocked, window.Start.Add(48*time.Hour)),
			}

			snap := metrics.Compute(events, window, "")

			Expect(snap.WIPCount).To(Equal(2))
		})
	})

	Describe("flow efficiency", func() {
		It("should report cycle over lead as a percentage", func() {
			var events []model.WorkItemEvent
			events = append(events, completedItem("a", window.Start.Add(time.Hour), 24, 48)...)
			events = append(events, completedItem("b", window.Start.Add(time.Hour), 24, 48)...)
			events = append(events, completedItem("c", window.Start.Add(time.Hour), 24, 48)...)

			snap := metrics.Compute(events, window, "")

			Expect(snap.FlowEfficiencyPct).NotTo(BeNil())
			Expect(*snap.FlowEfficiencyPct).To(BeNumerically("~", 50, 0.001))
			Expect(snap.ClockSkewSuspected).To(BeFalse())
		})

		It("should stay nil when either median is missing", func() {
			events := completedItem("a", window.Start.Add(time.Hour), 24, 48)

			snap := metrics.Compute(events, window, "")

			Expect(snap.FlowEfficiencyPct).To(BeNil())
		})

		Context("when cycle time exceeds lead time", func() {
			It("should report the figure as computed and flag clock skew", func() {
				var events []model.WorkItemEvent
				for i, id := range []string{"a", "b", "c"} {
					createdAt := window.Start.Add(time.Duration(i+1) * time.Hour)
					// cycle pair spans 100h while the lead pair spans 50h
					events = append(events,
						ev(id, model.EventStartedWork, createdAt),
						ev(id, model.EventCreated, createdAt.Add(50*time.Hour)),
						ev(id, model.EventMerged, createdAt.Add(100*time.Hour)),
						ev(id, model.EventClosed, createdAt.Add(100*time.Hour)),
					)
				}

				snap := metrics.Compute(events, window, "")

				Expect(snap.FlowEfficiencyPct).NotTo(BeNil())
				Expect(*snap.FlowEfficiencyPct).To(BeNumerically(">", 100))
				Expect(snap.ClockSkewSuspected).To(BeTrue())
			})
		})
	})

	Describe("snapshot envelope", func() {
		It("should carry the sprint label, window bounds and empty alert slices", func() {
			snap := metrics.Compute(nil, window, "sprint-9")

			Expect(snap.SprintLabel).To(Equal("sprint-9"))
			Expect(snap.WindowStart).To(Equal(window.Start))
			Expect(snap.WindowEnd).To(Equal(window.End))
			Expect(snap.Alerts).NotTo(BeNil())
			Expect(snap.Alerts).To(BeEmpty())
			Expect(snap.Insights).NotTo(BeNil())
		})
	})
})
