package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"
)

// Handler processes one message. Returning an error triggers a bounded retry.
type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries. Record returns false when the event was already seen.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ConsumerConfig struct {
	Brokers     string
	GroupID     string
	Topics      []string
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      *kafka.Reader
	groupID     string
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(logger *slog.Logger, inbox Inbox, cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	c := &Consumer{
		groupID:     cfg.GroupID,
		logger:      logger,
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	if brokers := SplitBrokers(cfg.Brokers); len(brokers) > 0 {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     cfg.GroupID,
			GroupTopics: cfg.Topics,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	if c.reader == nil {
		c.logger.Warn("kafka consumer disabled (no brokers configured)")
		return
	}
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			sleep(ctx, time.Second)
			continue
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxSpan, span := StartConsumeSpan(ctx, msg, c.groupID)
	defer span.End()

	meta := ExtractEventMeta(msg)
	fresh, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return
		}
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt >= c.maxAttempts || ctx.Err() != nil {
			break
		}
		sleep(ctx, c.backoff*time.Duration(attempt))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	c.logger.Error("event dropped after retries", "event_id", meta.EventID, "event_type", meta.EventType)
	if ferr := c.inbox.Forget(ctxSpan, meta.EventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
