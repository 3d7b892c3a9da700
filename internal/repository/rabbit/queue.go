package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

// DeadSuffix names the dead-letter queue derived from a work queue.
const DeadSuffix = ".dead"

// Queue is a RabbitMQ-backed work queue. One connection is opened at startup
// and reused by every publish and consume; the publisher channel is reopened
// lazily if the broker closes it. A message is acknowledged only after its
// handler returns nil: transient failures requeue once (tracked through the
// broker's redelivered flag), permanent failures and second transient
// failures route to the dead-letter queue.
type Queue struct {
	conn           *amqp.Connection
	logger         *slog.Logger
	publishTimeout time.Duration

	mu        sync.Mutex
	publisher *amqp.Channel
	declared  map[string]bool
}

type Config struct {
	URL            string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

func New(c Config) (*Queue, error) {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	conn, err := amqp.DialConfig(c.URL, amqp.Config{
		Dial: amqp.DefaultDial(c.ConnectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	return &Queue{
		conn:           conn,
		logger:         c.Logger,
		publishTimeout: c.PublishTimeout,
		declared:       map[string]bool{},
	}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue+DeadSuffix, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue + DeadSuffix,
	}); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	return nil
}

func (q *Queue) publisherChannel(queue string) (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.publisher == nil || q.publisher.IsClosed() {
		ch, err := q.conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open channel: %w", err)
		}

		q.publisher = ch
		q.declared = map[string]bool{}
	}

	if !q.declared[queue] {
		if err := declare(q.publisher, queue); err != nil {
			return nil, err
		}
		q.declared[queue] = true
	}

	return q.publisher, nil
}

func (q *Queue) Publish(ctx context.Context, queue string, payload []byte) error {
	ch, err := q.publisherChannel(queue)
	if err != nil {
		return fmt.Errorf("publish to `%s`: %w: %w", queue, entity.ErrPublish, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.publishTimeout)
		defer cancel()
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "text/plain",
		Body:         payload,
	}); err != nil {
		return fmt.Errorf("publish to `%s`: %w: %w", queue, entity.ErrPublish, err)
	}

	return nil
}

func (q *Queue) Consume(ctx context.Context, queue string, h repository.Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, queue); err != nil {
		return err
	}

	// One unacknowledged delivery per consumer; decode/resize load is
	// bounded by the number of competing consumers.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume `%s`: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries closed for `%s`", queue)
			}

			q.settle(ctx, d, h)
		}
	}
}

func (q *Queue) settle(ctx context.Context, d amqp.Delivery, h repository.Handler) {
	err := h(ctx, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			q.logger.Error("ack", slog.String("error", err.Error()))
		}
		return
	}

	requeue := !errors.Is(err, entity.ErrPermanent) && !d.Redelivered

	q.logger.Warn(
		"job failed",
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)

	if err := d.Nack(false, requeue); err != nil {
		q.logger.Error("nack", slog.String("error", err.Error()))
	}
}

func (q *Queue) Close() error {
	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}

	return nil
}
