package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"actcollective.org/momentum/common/logger"
	"actcollective.org/momentum/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// RedisReclaimer sweeps the consumer group for run requests that were read
// but never acknowledged, typically because a worker died mid-run, and
// replays them. A replayed run rewrites the same snapshot row, so claiming
// a message twice is harmless.
type RedisReclaimer struct {
	client    *redis.Client
	cfg       RedisReclaimerConfig
	consumer  *queue.RedisConsumer
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer *queue.RedisConsumer, processor queue.MessageProcessor) *RedisReclaimer {
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run sweeps on a fixed interval until Stop is called or ctx is cancelled.
func (r *RedisReclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "momentum.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"stream", r.cfg.Stream,
		"group", r.cfg.Group,
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			claimed, err := r.sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim sweep failed", "error", err)
				continue
			}
			if claimed > 0 {
				slog.InfoContext(ctx, "reclaim sweep finished", "claimed", claimed)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to drain.
func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// sweep lists pending entries idle past MinIdle and replays each one.
// Returns the number of messages actually claimed by this sweep.
func (r *RedisReclaimer) sweep(ctx context.Context) (int, error) {
	stale, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}

	claimed := 0
	for _, entry := range stale {
		ok, err := r.replay(ctx, entry)
		if err != nil {
			slog.ErrorContext(ctx, "failed to replay stale message",
				"error", err,
				"message_id", entry.ID,
				"original_consumer", entry.Consumer,
				"idle_time", entry.Idle)
			continue
		}
		if ok {
			claimed++
		}
	}
	return claimed, nil
}

// replay claims one stale entry and runs it through the worker's processor.
// Returns false when another consumer claimed it first.
func (r *RedisReclaimer) replay(ctx context.Context, entry redis.XPendingExt) (bool, error) {
	msgID := entry.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: &msgID})

	msgs, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: []string{entry.ID},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("xclaim: %w", err)
	}
	if len(msgs) == 0 {
		// Lost the race to another reclaimer.
		return false, nil
	}
	raw := msgs[0]

	slog.InfoContext(ctx, "claimed stale message",
		"original_consumer", entry.Consumer,
		"idle_time", entry.Idle,
		"delivery_count", entry.RetryCount)

	parsed, err := queue.ParseMessage(raw)
	if err != nil {
		// An unparseable message would be re-claimed forever; ack it away.
		slog.ErrorContext(ctx, "acknowledging unparseable stale message", "error", err)
		_ = r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw})
		return true, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:       &parsed.RunID,
		SprintLabel: &parsed.SprintLabel,
	})

	start := time.Now()
	if err := r.processor(ctx, parsed); err != nil {
		return true, fmt.Errorf("replaying run: %w", err)
	}
	slog.InfoContext(ctx, "stale run replayed",
		"duration_ms", time.Since(start).Milliseconds())
	return true, nil
}
