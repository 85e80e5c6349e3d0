package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamField = "event"

// StreamOptions configures the Redis stream dispatcher.
type StreamOptions struct {
	Stream   string
	Group    string
	Consumer string
	// Block bounds one XREADGROUP wait.
	Block time.Duration
	Batch int64
	// ReclaimIdle is how long a delivered but unacknowledged entry waits before
	// another consumer claims it again.
	ReclaimIdle time.Duration
	MaxLen      int64
}

// StreamDispatcher publishes events to a Redis stream and consumes them through a
// consumer group. An entry is acknowledged only after every handler succeeded, so a
// failed handler leaves it pending for redelivery.
type StreamDispatcher struct {
	client   *redis.Client
	opts     StreamOptions
	handlers *handlerSet
	logger   *zap.Logger
	observe  func(eventType EventType, err error)
}

// NewStreamDispatcher constructs a dispatcher over the given client.
func NewStreamDispatcher(client *redis.Client, opts StreamOptions, logger *zap.Logger) *StreamDispatcher {
	if opts.Block == 0 {
		opts.Block = 5 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 16
	}
	if opts.ReclaimIdle <= 0 {
		opts.ReclaimIdle = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamDispatcher{client: client, opts: opts, handlers: newHandlerSet(), logger: logger}
}

// OnHandled registers a hook called after each delivery attempt.
func (d *StreamDispatcher) OnHandled(fn func(eventType EventType, err error)) {
	d.observe = fn
}

// Publish appends the event to the stream.
func (d *StreamDispatcher) Publish(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: d.opts.Stream,
		Values: map[string]any{streamField: data},
	}
	if d.opts.MaxLen > 0 {
		args.MaxLen = d.opts.MaxLen
		args.Approx = true
	}
	return d.client.XAdd(ctx, args).Err()
}

// Subscribe registers a handler for the given event type.
func (d *StreamDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.add(eventType, handler)
}

// EnsureGroup creates the consumer group and stream if missing.
func (d *StreamDispatcher) EnsureGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.opts.Stream, d.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (d *StreamDispatcher) Run(ctx context.Context) error {
	if err := d.EnsureGroup(ctx); err != nil {
		return err
	}
	d.logger.Info("trigger consumer started",
		zap.String("stream", d.opts.Stream),
		zap.String("group", d.opts.Group),
		zap.String("consumer", d.opts.Consumer))

	lastReclaim := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastReclaim) >= d.opts.ReclaimIdle {
			if _, err := d.Reclaim(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("reclaim pending entries failed", zap.Error(err))
			}
			lastReclaim = time.Now()
		}
		if _, err := d.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("read trigger stream failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOnce reads one batch of new entries and handles them. It returns the
// number of entries read.
func (d *StreamDispatcher) ProcessOnce(ctx context.Context) (int, error) {
	streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    d.opts.Group,
		Consumer: d.opts.Consumer,
		Streams:  []string{d.opts.Stream, ">"},
		Count:    d.opts.Batch,
		Block:    d.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			d.handle(ctx, msg)
			n++
		}
	}
	return n, nil
}

// Reclaim takes over entries idle longer than ReclaimIdle and handles them again.
func (d *StreamDispatcher) Reclaim(ctx context.Context) (int, error) {
	start := "0-0"
	total := 0
	for {
		msgs, next, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   d.opts.Stream,
			Group:    d.opts.Group,
			Consumer: d.opts.Consumer,
			MinIdle:  d.opts.ReclaimIdle,
			Start:    start,
			Count:    d.opts.Batch,
		}).Result()
		if err != nil {
			return total, err
		}
		for _, msg := range msgs {
			d.handle(ctx, msg)
			total++
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return total, nil
		}
		start = next
	}
}

func (d *StreamDispatcher) handle(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values[streamField].(string)
	event, err := Decode([]byte(raw))
	if err != nil {
		// undecodable entries can never succeed
		d.logger.Error("dropping malformed trigger", zap.String("stream_id", msg.ID), zap.Error(err))
		d.ack(ctx, msg.ID)
		return
	}

	err = d.handlers.dispatch(ctx, event)
	if d.observe != nil {
		d.observe(event.Type, err)
	}
	if err != nil {
		d.logger.Error("trigger handler failed, leaving for redelivery",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("stream_id", msg.ID),
			zap.Error(err))
		return
	}
	d.ack(ctx, msg.ID)
}

func (d *StreamDispatcher) ack(ctx context.Context, id string) {
	if err := d.client.XAck(ctx, d.opts.Stream, d.opts.Group, id).Err(); err != nil {
		d.logger.Warn("ack trigger failed", zap.String("stream_id", id), zap.Error(err))
	}
}
