package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewMemory(4)
	for _, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}
	assert.Equal(t, 3, q.Len())

	deliveries, err := q.Consume(context.Background())
	require.NoError(t, err)
	for _, want := range []string{"j1", "j2", "j3"} {
		d := <-deliveries
		assert.Equal(t, want, d.JobID)
		assert.NoError(t, d.Ack())
	}
}

func TestMemoryQueueRequeuesOnNack(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Enqueue(context.Background(), "j1"))
	deliveries, _ := q.Consume(context.Background())

	d := <-deliveries
	require.NoError(t, d.Nack(true))

	select {
	case again := <-deliveries:
		assert.Equal(t, "j1", again.JobID)
	case <-time.After(time.Second):
		t.Fatal("expected requeued delivery")
	}
}

func TestMemoryQueueFullRespectsContext(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Enqueue(context.Background(), "j1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, "j2"), context.DeadlineExceeded)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), "j1"), ErrClosed)

	deliveries, _ := q.Consume(context.Background())
	_, ok := <-deliveries
	assert.False(t, ok)
}

func TestMemoryQueueCloseReleasesBlockedEnqueue(t *testing.T) {
	q := NewMemory(1)
	require.NoError(t, q.Enqueue(context.Background(), "j1"))

	result := make(chan error, 1)
	go func() { result <- q.Enqueue(context.Background(), "j2") }()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a full-queue Enqueue")
	}
	assert.ErrorIs(t, <-result, ErrClosed)

	deliveries, _ := q.Consume(context.Background())
	d, ok := <-deliveries
	require.True(t, ok)
	assert.Equal(t, "j1", d.JobID)
}
