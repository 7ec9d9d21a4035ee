package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/kafkax"
	"github.com/healpoint/healpoint/services/notification-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message inside the transaction that claims it in the inbox.
type Handler func(ctx context.Context, q db.DBTX, msg kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  Reader
	conn    db.Conn
	logger  *slog.Logger
	handler Handler
	backoff time.Duration
}

func New(reader Reader, conn db.Conn, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		conn:    conn,
		logger:  logger,
		handler: handler,
		backoff: time.Second,
	}
}

// Run fetches until ctx is cancelled. The offset is committed only after the
// inbox row and the handler's writes are committed, so a crash replays the
// message and the inbox drops the duplicate.
func (c *Consumer) Run(ctx context.Context) {
	defer func() { _ = c.reader.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if err := c.Process(ctx, msg); err != nil {
			// Leave the offset uncommitted so the message is redelivered.
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// Process claims and handles one message. Duplicates are acknowledged without
// calling the handler.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	ctx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	duplicate := false
	err := db.NewTxRunner(c.conn).InTx(ctx, func(q db.DBTX) error {
		claimed, err := inbox.NewRepository(q).Record(ctx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !claimed {
			duplicate = true
			return nil
		}
		return c.handler(ctx, q, msg)
	})
	if err != nil {
		c.logger.Error("event handling failed", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if duplicate {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
