package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const defaultBuffer = 256

// Job is one unit of asynchronous work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Dispatcher owns a set of named in-process queues, each drained by a single
// worker goroutine in submission order. There is no ordering guarantee
// across queues and no retry: a failed job is logged and dropped. Retry and
// backoff, where wanted, belong to the job itself.
type Dispatcher struct {
	mu      sync.Mutex
	queues  map[string]chan Job
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewDispatcher creates a stopped Dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		queues: map[string]chan Job{},
		logger: log.With(slog.String("service", "queue")),
	}
}

// Start begins accepting jobs. Worker goroutines spawn lazily per queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.baseCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.started = true
}

// Stop closes all queues and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started || d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.queues {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
	d.cancel()
	return nil
}

// Dispatch submits a job to the named queue, creating the queue on first
// use. It fails when the dispatcher is stopped or the queue is saturated.
func (d *Dispatcher) Dispatch(queueName string, job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started || d.closed {
		return fmt.Errorf("queue dispatcher not running")
	}
	ch, ok := d.queues[queueName]
	if !ok {
		ch = make(chan Job, defaultBuffer)
		d.queues[queueName] = ch
		d.wg.Add(1)
		go d.work(queueName, ch)
	}

	// The send happens under the lock so Stop cannot close ch mid-send. The
	// channel is buffered and the send never blocks.
	select {
	case ch <- job:
		return nil
	default:
		return fmt.Errorf("queue %q is full", queueName)
	}
}

func (d *Dispatcher) work(queueName string, ch chan Job) {
	defer d.wg.Done()
	for job := range ch {
		d.runJob(queueName, job)
	}
}

func (d *Dispatcher) runJob(queueName string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("queued job panicked",
				slog.String("queue", queueName),
				slog.String("job", job.Name()),
				slog.Any("panic", r),
			)
		}
	}()
	if err := job.Run(d.baseCtx); err != nil {
		d.logger.Error("queued job failed",
			slog.String("queue", queueName),
			slog.String("job", job.Name()),
			slog.Any("error", err),
		)
	}
}
