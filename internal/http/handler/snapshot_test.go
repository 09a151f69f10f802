package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"actcollective.org/momentum/internal/http/handler"
	"actcollective.org/momentum/internal/model"
)

var _ = Describe("SnapshotHandler", func() {
	var (
		router *gin.Engine
		store  *mockSnapshotStore
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		store = &mockSnapshotStore{}
		router = gin.New()
		router.GET("/snapshots", handler.NewSnapshotHandler(store).List)
	})

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns snapshots for a sprint", func() {
		cycle := 42.0
		store.listFn = func(_ context.Context, sprintLabel string, limit int32) ([]model.MetricsSnapshot, error) {
			Expect(sprintLabel).To(Equal("sprint-7"))
			Expect(limit).To(Equal(int32(30)))
			return []model.MetricsSnapshot{{
				ID:             1,
				SprintLabel:    sprintLabel,
				AsOfDate:       time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
				CycleTimeHours: &cycle,
				Insights:       []string{"ship it"},
			}}, nil
		}

		w := get("/snapshots?sprint_label=sprint-7")

		Expect(w.Code).To(Equal(http.StatusOK))

		var resp struct {
			Snapshots []map[string]any `json:"snapshots"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Snapshots).To(HaveLen(1))
		Expect(resp.Snapshots[0]["sprint_label"]).To(Equal("sprint-7"))
		Expect(resp.Snapshots[0]["as_of_date"]).To(Equal("2025-06-15"))
		Expect(resp.Snapshots[0]["cycle_time_hours"]).To(BeNumerically("~", 42.0, 0.001))
	})

	It("passes a custom limit through", func() {
		store.listFn = func(_ context.Context, _ string, limit int32) ([]model.MetricsSnapshot, error) {
			Expect(limit).To(Equal(int32(5)))
			return nil, nil
		}

		Expect(get("/snapshots?limit=5").Code).To(Equal(http.StatusOK))
	})

	It("rejects a non-numeric limit", func() {
		Expect(get("/snapshots?limit=all").Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 500 when the store fails", func() {
		store.listFn = func(_ context.Context, _ string, _ int32) ([]model.MetricsSnapshot, error) {
			return nil, errors.New("connection refused")
		}

		Expect(get("/snapshots").Code).To(Equal(http.StatusInternalServerError))
	})
})
