package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"github.com/tech-arch1tect/cloudtoken/services/metrics"
	"go.uber.org/zap"
)

const (
	baseFailureDelay = 10 * time.Second
	maxFailureDelay  = 10 * time.Minute
)

var ErrNoHandler = errors.New("no handler registered for job")

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
}

type Worker struct {
	queue    Queue
	config   WorkerConfig
	logger   *logging.Service
	metrics  metrics.Recorder
	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(q Queue, cfg WorkerConfig, logger *logging.Service, m metrics.Recorder) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Worker{
		queue:    q,
		config:   cfg,
		logger:   logger,
		metrics:  m,
		handlers: make(map[string]Handler),
	}
}

func (w *Worker) Register(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}

	if w.logger != nil {
		w.logger.Info("queue workers started",
			zap.Int("concurrency", w.config.Concurrency),
			zap.Duration("poll_interval", w.config.PollInterval))
	}
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything available before waiting for the next tick.
		for {
			processed, err := w.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil && w.logger != nil {
				w.logger.Error("queue worker error", zap.Int("worker", id), zap.Error(err))
			}
			if !processed || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext runs at most one job. It reports whether a job was reserved.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Reserve(ctx, Priority...)
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, w.run(ctx, job)
}

func (w *Worker) run(ctx context.Context, job *Job) error {
	h, ok := w.handler(job.Name)
	if !ok {
		w.metrics.RecordJob(job.Name, "failed")
		return w.queue.Fail(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Name))
	}

	err := w.safeRun(ctx, h, job)
	if err == nil {
		w.metrics.RecordJob(job.Name, "done")
		return w.queue.Complete(ctx, job)
	}

	job.LastError = err.Error()

	if job.Attempts >= w.config.MaxAttempts {
		if w.logger != nil {
			w.logger.Error("job failed permanently",
				zap.String("job_id", job.ID),
				zap.String("job", job.Name),
				zap.Int("attempts", job.Attempts),
				zap.Error(err))
		}
		w.metrics.RecordJob(job.Name, "failed")
		return w.queue.Fail(ctx, job, err)
	}

	delay := failureDelay(job.Attempts)
	var retry *RetryError
	if errors.As(err, &retry) {
		delay = retry.Delay
	}

	if w.logger != nil {
		w.logger.Warn("job released for retry",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempts", job.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	w.metrics.RecordJob(job.Name, "retried")
	return w.queue.Release(ctx, job, delay)
}

func (w *Worker) safeRun(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func failureDelay(attempts int) time.Duration {
	delay := baseFailureDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxFailureDelay {
			return maxFailureDelay
		}
	}
	return delay
}
