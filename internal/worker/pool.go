package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"hire-realtime/internal/models"
	"hire-realtime/internal/queue"
)

// Processor runs one evaluation job to completion.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// UnfinishedLister finds jobs left behind by a previous process.
type UnfinishedLister interface {
	ListUnfinished(ctx context.Context, limit int) ([]models.EvaluationJob, error)
}

// Pool runs a fixed number of goroutines over the job queue.
type Pool struct {
	queue       queue.Queue
	processor   Processor
	concurrency int
	logger      *zap.Logger

	recovery      UnfinishedLister
	recoveryLimit int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type Option func(*Pool)

// WithRecovery re-enqueues unfinished jobs on Start. Use it with queues that
// lose their contents on restart.
func WithRecovery(lister UnfinishedLister, limit int) Option {
	return func(p *Pool) {
		p.recovery = lister
		p.recoveryLimit = limit
	}
}

func NewPool(q queue.Queue, processor Processor, concurrency int, logger *zap.Logger, opts ...Option) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{queue: q, processor: processor, concurrency: concurrency, logger: logger, recoveryLimit: 100}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	deliveries, err := p.queue.Consume(ctx)
	if err != nil {
		p.cancel()
		return fmt.Errorf("consume job queue: %w", err)
	}
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i+1, deliveries)
	}
	p.logger.Info("worker pool started", zap.Int("concurrency", p.concurrency))

	if p.recovery != nil {
		p.requeueUnfinished(ctx)
	}
	return nil
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int, deliveries <-chan queue.Delivery) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.handle(ctx, id, d)
		}
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d queue.Delivery) {
	log := p.logger.With(zap.Int("worker", workerID), zap.String("job_id", d.JobID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			_ = d.Nack(false)
		}
	}()

	err := p.processor.Process(ctx, d.JobID)
	switch {
	case err == nil:
		log.Debug("job done")
		if ackErr := d.Ack(); ackErr != nil {
			log.Warn("ack job", zap.Error(ackErr))
		}
	case errors.Is(err, context.Canceled):
		log.Info("job interrupted, requeueing")
		_ = d.Nack(true)
	default:
		// The job is already marked failed in the store.
		log.Warn("job failed", zap.Error(err))
		_ = d.Ack()
	}
}

func (p *Pool) requeueUnfinished(ctx context.Context) {
	jobs, err := p.recovery.ListUnfinished(ctx, p.recoveryLimit)
	if err != nil {
		p.logger.Warn("list unfinished jobs", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if err := p.queue.Enqueue(ctx, job.ID); err != nil {
			p.logger.Warn("re-enqueue unfinished job", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
	}
	if len(jobs) > 0 {
		p.logger.Info("re-enqueued unfinished jobs", zap.Int("count", len(jobs)))
	}
}
