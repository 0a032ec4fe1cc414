package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("queue closed")

const requeueTimeout = 5 * time.Second

// Delivery is one job id handed to a consumer. Exactly one of Ack or Nack
// must be called.
type Delivery struct {
	JobID string
	ack   func() error
	nack  func(requeue bool) error
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Queue carries evaluation job ids from the API to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// Memory is an in-process queue used when no broker is configured.
type Memory struct {
	mu      sync.RWMutex
	ch      chan Delivery
	done    chan struct{}
	senders sync.WaitGroup
	closed  bool
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{ch: make(chan Delivery, capacity), done: make(chan struct{})}
}

// Enqueue blocks while the buffer is full until ctx is done or the queue
// is closed.
func (m *Memory) Enqueue(ctx context.Context, jobID string) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.senders.Add(1)
	m.mu.RUnlock()
	defer m.senders.Done()

	d := Delivery{JobID: jobID}
	d.nack = func(requeue bool) error {
		if !requeue {
			return nil
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
			defer cancel()
			m.Enqueue(ctx, jobID)
		}()
		return nil
	}
	select {
	case m.ch <- d:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(context.Context) (<-chan Delivery, error) {
	return m.ch, nil
}

// Len is the number of buffered deliveries.
func (m *Memory) Len() int {
	return len(m.ch)
}

// Close releases blocked senders, then closes the delivery channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.senders.Wait()
	close(m.ch)
	return nil
}
