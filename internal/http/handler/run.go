package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"actcollective.org/momentum/common/id"
	"actcollective.org/momentum/internal/http/dto"
	"actcollective.org/momentum/internal/queue"
)

const maxWindowDays = 90

type RunHandler struct {
	producer queue.Producer
}

func NewRunHandler(producer queue.Producer) *RunHandler {
	return &RunHandler{producer: producer}
}

// Trigger enqueues a metrics run. The actual computation happens on the
// worker; this returns as soon as the request is durably in the stream.
func (h *RunHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid run request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.WindowDays <= 0 {
		req.WindowDays = 14
	}
	if req.WindowDays > maxWindowDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window_days too large"})
		return
	}

	runID := id.New()

	msg := queue.RunRequest{
		RunID:       runID,
		SprintLabel: req.SprintLabel,
		WindowDays:  req.WindowDays,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traceID := spanCtx.TraceID().String()
		msg.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue run request", "error", err, "run_id", runID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue run"})
		return
	}

	c.JSON(http.StatusAccepted, dto.TriggerRunResponse{
		RunID:       runID,
		SprintLabel: req.SprintLabel,
		WindowDays:  req.WindowDays,
		Enqueued:    true,
	})
}
