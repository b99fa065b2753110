// Package dispatch moves persistence work off the tick loop. A single worker
// goroutine preserves submission order, which is what keeps one player's
// finish and stage writes from racing each other, and completed jobs hand a
// rejoin closure back to the host through Drain.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/obslog"
)

// ErrQueueFull is returned by Submit when the job queue is saturated. The
// caller must not block the tick loop waiting for room.
var ErrQueueFull = errors.New("dispatch: queue full")

// Job is one unit of persistence work. Do runs on the worker goroutine with
// retries; Rejoin, if set, runs on the host goroutine at the next Drain with
// the final error.
type Job struct {
	ID      string
	SteamID string
	Kind    string
	Do      func(ctx context.Context) error
	Rejoin  func(err error)
}

// Options tune the dispatcher. Zero values fall back to the defaults below.
type Options struct {
	QueueSize  int
	Retries    int           // additional attempts after the first
	JobTimeout time.Duration // per attempt
	Backoff    time.Duration // initial, doubles per retry
	MaxBackoff time.Duration
}

func (o *Options) fill() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
}

// Dispatcher owns the worker goroutine and the rejoin inbox.
type Dispatcher struct {
	opts    Options
	jobs    chan Job
	results chan func()
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func New(opts Options) *Dispatcher {
	opts.fill()
	return &Dispatcher{
		opts:    opts,
		jobs:    make(chan Job, opts.QueueSize),
		results: make(chan func(), opts.QueueSize),
	}
}

// Start launches the worker. Jobs submitted before Start sit in the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(workerCtx)
}

// Submit queues a job without blocking. A full queue drops the job and
// returns ErrQueueFull; the game keeps ticking and the write is lost.
func (d *Dispatcher) Submit(j Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("dispatch: shut down")
	}
	select {
	case d.jobs <- j:
		d.mu.Unlock()
		return nil
	default:
		d.mu.Unlock()
		obslog.L().Error("dispatch_queue_full",
			zap.String("job_id", j.ID),
			zap.String("steam_id", j.SteamID),
			zap.String("kind", j.Kind),
		)
		return ErrQueueFull
	}
}

// Drain runs pending rejoin closures on the caller's goroutine and returns
// how many ran. The host calls this once per tick.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		select {
		case fn := <-d.results:
			if fn != nil {
				fn()
			}
			n++
		default:
			return n
		}
	}
}

// Shutdown stops accepting jobs, lets the worker finish the queue, and waits
// up to the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if d.cancel != nil {
			d.cancel()
		}
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case j, ok := <-d.jobs:
			if !ok {
				return
			}
			err := d.execute(ctx, j)
			if j.Rejoin != nil {
				d.post(j, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// execute runs one job with exponential backoff. Context errors are final.
func (d *Dispatcher) execute(ctx context.Context, j Job) error {
	var lastErr error
	backoff := d.opts.Backoff

	for attempt := 0; attempt <= d.opts.Retries; attempt++ {
		jobCtx, cancel := context.WithTimeout(ctx, d.opts.JobTimeout)
		err := j.Do(jobCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == d.opts.Retries {
			break
		}
		obslog.L().Warn("dispatch_job_retry",
			zap.String("job_id", j.ID),
			zap.String("kind", j.Kind),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > d.opts.MaxBackoff {
				backoff = d.opts.MaxBackoff
			}
		}
	}

	obslog.L().Error("dispatch_job_failed",
		zap.String("job_id", j.ID),
		zap.String("steam_id", j.SteamID),
		zap.String("kind", j.Kind),
		zap.Error(lastErr),
	)
	return lastErr
}

func (d *Dispatcher) post(j Job, err error) {
	fn := func() { j.Rejoin(err) }
	select {
	case d.results <- fn:
	default:
		// The host stopped draining; running the rejoin here would break
		// the single-goroutine contract, so the result is dropped.
		obslog.L().Error("dispatch_result_dropped", zap.String("job_id", j.ID))
	}
}
