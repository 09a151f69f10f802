package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RunRequest asks the worker to execute a metrics run for a sprint.
type RunRequest struct {
	RunID       int64
	SprintLabel string
	WindowDays  int
	TraceID     *string
	Attempt     int
}

type Producer interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, req RunRequest) error {
	attempt := req.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"run_id":      req.RunID,
		"window_days": req.WindowDays,
		"attempt":     attempt,
	}

	if req.SprintLabel != "" {
		fields["sprint_label"] = req.SprintLabel
	}

	if req.TraceID != nil && *req.TraceID != "" {
		fields["trace_id"] = *req.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue run request: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued run request", "run_id", req.RunID, "sprint_label", req.SprintLabel, "window_days", req.WindowDays, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
