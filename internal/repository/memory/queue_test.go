package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not reached in time")
}

func TestQueueAckOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue()

	var handled atomic.Int32
	go q.Consume(ctx, "jobs", func(ctx context.Context, payload []byte) error {
		handled.Add(1)
		return nil
	})

	if err := q.Publish(ctx, "jobs", []byte("photo-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return handled.Load() == 1 })

	if got := q.DeadLetters("jobs"); len(got) != 0 {
		t.Errorf("DeadLetters() = %d, want 0", len(got))
	}
	if got := q.Pending("jobs"); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestQueueRedeliverOnTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue()

	var handled atomic.Int32
	go q.Consume(ctx, "jobs", func(ctx context.Context, payload []byte) error {
		if handled.Add(1) == 1 {
			return errors.New("broker hiccup")
		}
		return nil
	})

	if err := q.Publish(ctx, "jobs", []byte("photo-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return handled.Load() == 2 })

	if got := q.DeadLetters("jobs"); len(got) != 0 {
		t.Errorf("DeadLetters() = %d, want 0", len(got))
	}
}

func TestQueueDeadLetterOnPermanent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue()

	var handled atomic.Int32
	go q.Consume(ctx, "jobs", func(ctx context.Context, payload []byte) error {
		handled.Add(1)
		return fmt.Errorf("corrupt image: %w", entity.ErrPermanent)
	})

	if err := q.Publish(ctx, "jobs", []byte("photo-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return len(q.DeadLetters("jobs")) == 1 })

	if got := handled.Load(); got != 1 {
		t.Errorf("handled = %d, want 1 (permanent failures must not retry)", got)
	}
	if got := string(q.DeadLetters("jobs")[0]); got != "photo-1" {
		t.Errorf("dead letter payload = %q, want %q", got, "photo-1")
	}
}

func TestQueueDeadLetterAfterSecondTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue()

	var handled atomic.Int32
	go q.Consume(ctx, "jobs", func(ctx context.Context, payload []byte) error {
		handled.Add(1)
		return errors.New("still down")
	})

	if err := q.Publish(ctx, "jobs", []byte("photo-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return len(q.DeadLetters("jobs")) == 1 })

	if got := handled.Load(); got != 2 {
		t.Errorf("handled = %d, want 2 (one redelivery before dead-letter)", got)
	}
}
