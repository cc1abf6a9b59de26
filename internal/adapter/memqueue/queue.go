// Package memqueue implements the message queue port in process memory.
// It backs the reference server when no NATS URL is configured, and the
// tests.
package memqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wirechat/wirechat/internal/port/messagequeue"
)

type subscription struct {
	subject string
	ch      chan []byte
	done    chan struct{}
}

// Queue is an in-process message queue. Delivery preserves publish order
// per subscription; each subscription drains from its own goroutine.
type Queue struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// New creates an empty queue.
func New(log *slog.Logger) *Queue {
	return &Queue{
		log:  log,
		subs: make(map[*subscription]struct{}),
	}
}

// Publish sends a message to every subscription on the subject. Messages
// are validated against the subject's schema before delivery.
func (q *Queue) Publish(_ context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return fmt.Errorf("memqueue publish: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("memqueue publish %s: queue closed", subject)
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	for sub := range q.subs {
		if sub.subject != subject {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			q.log.Warn("memqueue subscriber backlog full, message dropped", "subject", subject)
		}
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("memqueue subscribe %s: queue closed", subject)
	}

	sub := &subscription{
		subject: subject,
		ch:      make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	q.subs[sub] = struct{}{}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case data := <-sub.ch:
				if err := handler(ctx, subject, data); err != nil {
					q.log.Error("message handler failed", "subject", subject, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, sub)
			q.mu.Unlock()
			close(sub.done)
		})
	}
	return cancel, nil
}

// Drain stops all subscriptions. Messages already queued per subscription
// are handled before the drain returns.
func (q *Queue) Drain() error {
	q.mu.Lock()
	subs := make([]*subscription, 0, len(q.subs))
	for sub := range q.subs {
		subs = append(subs, sub)
	}
	q.subs = make(map[*subscription]struct{})
	q.closed = true
	q.mu.Unlock()

	for _, sub := range subs {
		for len(sub.ch) > 0 {
			time.Sleep(time.Millisecond)
		}
		close(sub.done)
	}
	return nil
}

// Close shuts the queue down immediately, discarding queued messages.
func (q *Queue) Close() error {
	q.mu.Lock()
	subs := make([]*subscription, 0, len(q.subs))
	for sub := range q.subs {
		subs = append(subs, sub)
	}
	q.subs = make(map[*subscription]struct{})
	q.closed = true
	q.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	return nil
}

// IsConnected reports whether the queue accepts messages.
func (q *Queue) IsConnected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}
