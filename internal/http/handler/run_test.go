package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"actcollective.org/momentum/common/id"
	"actcollective.org/momentum/internal/http/handler"
	"actcollective.org/momentum/internal/queue"
)

var _ = Describe("RunHandler", func() {
	var (
		router   *gin.Engine
		producer *mockProducer
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		Expect(id.Init(1)).To(Succeed())

		producer = &mockProducer{}
		router = gin.New()
		router.POST("/runs", handler.NewRunHandler(producer).Trigger)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns 202 with a run ID and enqueues the request", func() {
		var enqueued queue.RunRequest
		producer.enqueueFn = func(_ context.Context, req queue.RunRequest) error {
			enqueued = req
			return nil
		}

		w := post(`{"sprint_label": "sprint-7", "window_days": 7}`)

		Expect(w.Code).To(Equal(http.StatusAccepted))

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["enqueued"]).To(BeTrue())
		Expect(resp["run_id"]).NotTo(BeZero())

		Expect(enqueued.SprintLabel).To(Equal("sprint-7"))
		Expect(enqueued.WindowDays).To(Equal(7))
		Expect(enqueued.RunID).NotTo(BeZero())
	})

	It("defaults the window to 14 days", func() {
		var enqueued queue.RunRequest
		producer.enqueueFn = func(_ context.Context, req queue.RunRequest) error {
			enqueued = req
			return nil
		}

		w := post(`{}`)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(enqueued.WindowDays).To(Equal(14))
	})

	It("returns 400 on a malformed body", func() {
		w := post(`{`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 when the window is too large", func() {
		w := post(`{"window_days": 400}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 500 when the queue is down", func() {
		producer.enqueueFn = func(_ context.Context, _ queue.RunRequest) error {
			return errors.New("redis: connection refused")
		}

		w := post(`{}`)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})
})
