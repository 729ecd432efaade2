package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/docspace/library/log"
)

// Processor handles one decoded payload. Returning an error hands the job back
// to the queue's retry policy; wrap it with Permanent to stop retries.
type Processor func(ctx context.Context, payload Payload) error

type registration struct {
	processor   Processor
	concurrency int
}

// Pool runs registered processors with a bounded number of workers per job type.
type Pool struct {
	queue        *Queue
	logger       logSDK.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	handlers map[Type]registration
	started  bool
	wg       sync.WaitGroup
}

// NewPool constructs a worker pool over queue.
func NewPool(queue *Queue, logger logSDK.Logger) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if logger == nil {
		logger = log.Logger.Named("docs_jobs_pool")
	}
	return &Pool{
		queue:        queue,
		logger:       logger,
		pollInterval: queue.settings.PollInterval,
		handlers:     map[Type]registration{},
	}, nil
}

// Register binds a processor to a job type with the given worker count.
func (p *Pool) Register(jobType Type, processor Processor, concurrency int) error {
	if processor == nil {
		return errors.Errorf("processor for %s is nil", jobType)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pool already started")
	}
	if _, ok := p.handlers[jobType]; ok {
		return errors.Errorf("processor for %s already registered", jobType)
	}
	p.handlers[jobType] = registration{processor: processor, concurrency: concurrency}
	return nil
}

// Start launches the workers. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pool already started")
	}
	if len(p.handlers) == 0 {
		return errors.New("no processors registered")
	}
	p.started = true

	for jobType, reg := range p.handlers {
		for i := 0; i < reg.concurrency; i++ {
			logger := p.logger.Named(fmt.Sprintf("%s_%d", jobType, i))
			p.wg.Add(1)
			go func(jobType Type) {
				defer p.wg.Done()
				p.runLoop(ctx, jobType, logger)
			}(jobType)
		}
		p.logger.Info("job workers started",
			zap.String("job_type", string(jobType)),
			zap.Int("concurrency", reg.concurrency))
	}
	return nil
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// runLoop claims and processes jobs until ctx is done, sleeping when idle.
func (p *Pool) runLoop(ctx context.Context, jobType Type, logger logSDK.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.runOnce(ctx, jobType, logger)
		if err != nil {
			logger.Warn("job worker run failed", zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// RunOnce claims and processes at most one due job of jobType.
// It reports whether a job was claimed.
func (p *Pool) RunOnce(ctx context.Context, jobType Type) (bool, error) {
	return p.runOnce(ctx, jobType, p.logger)
}

func (p *Pool) runOnce(ctx context.Context, jobType Type, logger logSDK.Logger) (bool, error) {
	p.mu.Lock()
	reg, ok := p.handlers[jobType]
	p.mu.Unlock()
	if !ok {
		return false, errors.Errorf("no processor registered for %s", jobType)
	}

	claimed, err := p.queue.Claim(ctx, jobType, 1)
	if err != nil {
		return false, errors.Wrap(err, "claim job")
	}
	if len(claimed) == 0 {
		return false, nil
	}
	job := claimed[0]

	jobLogger := logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("job_type", job.JobType),
		zap.Int("attempt", job.Attempts),
	)
	jobCtx := log.WithContext(ctx, jobLogger)

	runErr := p.execute(jobCtx, job, reg.processor)
	// record the outcome even when shutdown cancelled ctx mid-job
	finishCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		jobLogger.Warn("job attempt failed", zap.Error(runErr), zap.Bool("permanent", IsPermanent(runErr)))
		if err := p.queue.Fail(finishCtx, job, runErr); err != nil {
			return true, errors.WithStack(err)
		}
		return true, nil
	}

	jobLogger.Debug("job completed")
	if err := p.queue.Complete(finishCtx, job); err != nil {
		return true, errors.WithStack(err)
	}
	return true, nil
}

// execute decodes the payload and runs the processor, converting panics to errors.
func (p *Pool) execute(ctx context.Context, job QueueJob, processor Processor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job processor panic: %v", r)
		}
	}()

	payload, err := DecodePayload(Type(job.JobType), job.Payload)
	if err != nil {
		return err
	}
	return processor(ctx, payload)
}
