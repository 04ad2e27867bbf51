package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status tracks a background write from submission to its final outcome.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Job is one durable side effect. Key is the idempotency key: a job whose key
// is pending or confirmed is not run again.
type Job struct {
	Key  string
	Kind string
	Run  func(ctx context.Context) error
}

// Config controls the worker pool and retry policy.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBackoff   time.Duration
	AttemptTimeout time.Duration
	MaxTracked     int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.MaxTracked <= 0 {
		c.MaxTracked = 10000
	}
	return c
}

// Stats exposes dispatcher counters for operators.
type Stats struct {
	Pending   int   `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
	Dropped   int64 `json:"dropped"`
	QueueLen  int   `json:"queueLen"`
}

// Dispatcher runs durable writes in the background so the chat turn never
// waits on storage. Jobs run detached from any request context and keep
// running after the conversation that produced them is closed.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	spill  sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	queue    chan Job
	statuses map[string]Status

	confirmed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	d := &Dispatcher{
		cfg:      cfg,
		logger:   logger.Named("audit"),
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
		queue:    make(chan Job, cfg.QueueSize),
		statuses: make(map[string]Status),
	}

	for i := 0; i < cfg.Workers; i++ {
		group.Go(func() error {
			for job := range d.queue {
				d.execute(groupCtx, job)
			}
			return nil
		})
	}
	return d
}

// Submit schedules job. It never blocks: when the queue is full the job runs
// on its own goroutine. It returns false when the job was deduplicated or the
// dispatcher is closed.
func (d *Dispatcher) Submit(job Job) bool {
	if job.Run == nil {
		return false
	}
	if job.Key == "" {
		job.Key = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("dispatcher closed, dropping job", zap.String("kind", job.Kind), zap.String("key", job.Key))
		return false
	}
	if st, ok := d.statuses[job.Key]; ok && st != StatusFailed {
		return false
	}
	if len(d.statuses) >= d.cfg.MaxTracked {
		d.pruneLocked()
	}
	d.statuses[job.Key] = StatusPending

	select {
	case d.queue <- job:
	default:
		d.logger.Warn("audit queue full, running job on overflow goroutine",
			zap.String("kind", job.Kind),
			zap.Int("queue_len", len(d.queue)),
		)
		d.spill.Add(1)
		go func() {
			defer d.spill.Done()
			d.execute(d.ctx, job)
		}()
	}
	return true
}

// Status returns the current status of the job with the given key.
func (d *Dispatcher) Status(key string) (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statuses[key]
	return st, ok
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	pending := 0
	for _, st := range d.statuses {
		if st == StatusPending {
			pending++
		}
	}
	d.mu.Unlock()

	return Stats{
		Pending:   pending,
		Confirmed: d.confirmed.Load(),
		Failed:    d.failed.Load(),
		Retried:   d.retried.Load(),
		Dropped:   d.dropped.Load(),
		QueueLen:  len(d.queue),
	}
}

// Close stops accepting jobs and waits for queued ones to finish. If ctx
// expires first the remaining jobs are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		d.spill.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) execute(ctx context.Context, job Job) {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err = d.runOnce(ctx, job)
		if err == nil {
			d.setStatus(job.Key, StatusConfirmed)
			d.confirmed.Add(1)
			return
		}

		d.logger.Warn("background write failed",
			zap.String("kind", job.Kind),
			zap.String("key", job.Key),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == d.cfg.MaxAttempts || !d.sleep(ctx, time.Duration(attempt)*d.cfg.RetryBackoff) {
			break
		}
		d.retried.Add(1)
	}

	d.setStatus(job.Key, StatusFailed)
	d.failed.Add(1)
	d.logger.Error("background write gave up",
		zap.String("kind", job.Kind),
		zap.String("key", job.Key),
		zap.Error(err),
	)
}

func (d *Dispatcher) runOnce(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}
	return job.Run(ctx)
}

func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) setStatus(key string, st Status) {
	d.mu.Lock()
	d.statuses[key] = st
	d.mu.Unlock()
}

// pruneLocked forgets finished jobs to bound memory. Pending jobs are kept.
func (d *Dispatcher) pruneLocked() {
	for key, st := range d.statuses {
		if st != StatusPending {
			delete(d.statuses, key)
		}
	}
}
