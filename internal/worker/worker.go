// Package worker consumes run requests from the Redis stream and executes
// the metrics pipeline for each one. Transient upstream failures requeue the
// message with a bounded attempt count; everything else lands in the DLQ.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"actcollective.org/momentum/common/logger"
	"actcollective.org/momentum/internal/model"
	"actcollective.org/momentum/internal/pipeline"
	"actcollective.org/momentum/internal/queue"
	"actcollective.org/momentum/internal/source"
	"actcollective.org/momentum/internal/store"
)

// RunExecutor mirrors pipeline.Runner. Defined here so tests can swap in a
// fake without a Redis round trip.
type RunExecutor interface {
	Run(ctx context.Context, params pipeline.Params) (model.RunSummary, error)
}

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer *queue.RedisConsumer
	executor RunExecutor
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, executor RunExecutor, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		executor:  executor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "run request failed",
				"error", err,
				"message_id", msg.ID,
				"run_id", msg.RunID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in run execution",
				"panic", r,
				"message_id", msg.ID,
				"run_id", msg.RunID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:       logger.Ptr(msg.RunID),
		SprintLabel: logger.Ptr(msg.SprintLabel),
		MessageID:   logger.Ptr(msg.ID),
		Component:   "momentum.worker",
	})

	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.run")
	ctx = span.Context()
	defer span.End()

	slog.InfoContext(ctx, "executing run request",
		"window_days", msg.WindowDays,
		"attempt", msg.Attempt)

	result, err := w.executor.Run(ctx, pipeline.Params{
		SprintLabel: msg.SprintLabel,
		WindowDays:  msg.WindowDays,
		RunID:       msg.RunID,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// Log but don't fail, a duplicate run only rewrites the same snapshot.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", ackErr,
			"message_id", msg.ID)
	}

	slog.InfoContext(ctx, "run request completed",
		"event_count", result.EventCount,
		"malformed_skipped", result.MalformedSkipped,
		"alert_count", result.AlertCount,
		"insight_count", result.InsightCount)

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if !retryable(err) {
		slog.ErrorContext(ctx, "non-retryable failure, sending to DLQ",
			"message_id", msg.ID,
			"run_id", msg.RunID)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"run_id", msg.RunID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed run request",
		"message_id", msg.ID,
		"run_id", msg.RunID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

// retryable reports whether a failure can succeed on a later attempt. Tracker
// outages and store unavailability are transient; schema rejections and
// cancellations are not.
func retryable(err error) bool {
	return errors.Is(err, source.ErrSourceUnavailable) ||
		errors.Is(err, store.ErrPublishUnavailable)
}
