package worker

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hire-realtime/internal/models"
	"hire-realtime/internal/queue"
	"hire-realtime/internal/repositories"
)

type recordingProcessor struct {
	mu      sync.Mutex
	seen    []string
	done    chan struct{}
	want    int
	panicOn string
}

func newRecordingProcessor(want int) *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}), want: want}
}

func (p *recordingProcessor) Process(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, jobID)
	if len(p.seen) == p.want {
		close(p.done)
	}
	if jobID == p.panicOn {
		panic("boom")
	}
	return nil
}

func (p *recordingProcessor) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.seen...)
	sort.Strings(out)
	return out
}

func TestPoolProcessesQueuedJobs(t *testing.T) {
	q := queue.NewMemory(10)
	proc := newRecordingProcessor(3)
	proc.panicOn = "panic"
	pool := NewPool(q, proc, 2, zaptest.NewLogger(t))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	for _, id := range []string{"j1", "j2", "panic"} {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}

	assert.Equal(t, []string{"j1", "j2", "panic"}, proc.wait(t))
}

func TestPoolRequeuesUnfinishedJobsOnStart(t *testing.T) {
	store := repositories.NewMemoryStore()
	for _, job := range []*models.EvaluationJob{
		{ID: "queued", Step: models.StepQueued, Status: models.JobWaiting},
		{ID: "scoring", Step: models.StepScoring, Status: models.JobActive},
		{ID: "done", Step: models.StepQueued, Status: models.JobWaiting},
	} {
		require.NoError(t, store.CreateJob(context.Background(), job))
	}
	require.NoError(t, store.CompleteJob(context.Background(), "done", models.EvaluationResult{}))

	q := queue.NewMemory(10)
	proc := newRecordingProcessor(2)
	pool := NewPool(q, proc, 1, zaptest.NewLogger(t), WithRecovery(store, 10))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	assert.Equal(t, []string{"queued", "scoring"}, proc.wait(t))
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	q := queue.NewMemory(1)
	pool := NewPool(q, newRecordingProcessor(1), 3, nil)
	require.NoError(t, pool.Start(context.Background()))

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}
