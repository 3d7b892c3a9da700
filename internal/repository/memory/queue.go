package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
)

const queueDepth = 1024

type delivery struct {
	payload     []byte
	redelivered bool
}

// Queue is an in-process work queue with the same delivery semantics as the
// broker-backed implementation: at-least-once, redeliver-once on transient
// handler failure, dead-letter on permanent failure.
type Queue struct {
	mu     sync.Mutex
	queues map[string]chan delivery
	dead   map[string][][]byte
}

func NewQueue() *Queue {
	return &Queue{
		queues: map[string]chan delivery{},
		dead:   map[string][][]byte{},
	}
}

func (q *Queue) queue(name string) chan delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan delivery, queueDepth)
		q.queues[name] = ch
	}

	return ch
}

func (q *Queue) Publish(ctx context.Context, queue string, payload []byte) error {
	select {
	case q.queue(queue) <- delivery{payload: payload}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue `%s`: %w: %w", queue, entity.ErrPublish, ctx.Err())
	default:
		return fmt.Errorf("enqueue `%s`: queue full: %w", queue, entity.ErrPublish)
	}
}

func (q *Queue) Consume(ctx context.Context, queue string, h repository.Handler) error {
	ch := q.queue(queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-ch:
			q.handle(ctx, queue, ch, d, h)
		}
	}
}

func (q *Queue) handle(ctx context.Context, queue string, ch chan delivery, d delivery, h repository.Handler) {
	err := h(ctx, d.payload)
	if err == nil {
		return
	}

	if errors.Is(err, entity.ErrPermanent) || d.redelivered {
		q.mu.Lock()
		q.dead[queue] = append(q.dead[queue], d.payload)
		q.mu.Unlock()
		return
	}

	d.redelivered = true
	select {
	case ch <- d:
	default:
		q.mu.Lock()
		q.dead[queue] = append(q.dead[queue], d.payload)
		q.mu.Unlock()
	}
}

// DeadLetters returns payloads routed to the dead-letter path for queue.
func (q *Queue) DeadLetters(queue string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([][]byte(nil), q.dead[queue]...)
}

// Pending reports messages not yet delivered (or awaiting redelivery).
func (q *Queue) Pending(queue string) int {
	return len(q.queue(queue))
}

func (q *Queue) Close() error {
	return nil
}
